// Package varnishlog reassembles transaction records from varnishlog's
// line-oriented -g request trace output.
package varnishlog

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Header is a single (key, value) request or response header.
type Header struct {
	Key   string
	Value string
}

// Record accumulates one HTTP transaction as seen by Varnish: the client
// request, its response, and the backend response behind it (if any).
type Record struct {
	Method     string
	URL        string
	Protocol   string
	ReqHeaders []Header

	RespStatus  string
	RespReason  string
	RespHeaders []Header

	BerespStatus  string
	BerespReason  string
	BerespHeaders []Header
}

func (r *Record) reset() { *r = Record{} }

func (r *Record) isEmpty() bool {
	return r.Method == "" && r.URL == "" && r.Protocol == "" &&
		len(r.ReqHeaders) == 0 && r.RespStatus == "" && r.RespReason == "" &&
		len(r.RespHeaders) == 0 && r.BerespStatus == "" && r.BerespReason == "" &&
		len(r.BerespHeaders) == 0
}

// matcher pairs a compiled pattern with the field it feeds; patterns are
// tried in priority order and the first match wins, exactly per spec.md
// §4.3's table.
type matcher struct {
	re    *regexp.Regexp
	apply func(rec *Record, groups []string)
}

var matchers = []matcher{
	{regexp.MustCompile(`^-   ReqMethod\s+(\w+)`), func(r *Record, g []string) { r.Method = g[1] }},
	{regexp.MustCompile(`^-   ReqURL\s+(.+)`), func(r *Record, g []string) { r.URL = g[1] }},
	{regexp.MustCompile(`^-   ReqProtocol\s+(.+)`), func(r *Record, g []string) { r.Protocol = g[1] }},
	{regexp.MustCompile(`^-   ReqHeader\s+(.+):\s+(.+)`), func(r *Record, g []string) {
		r.ReqHeaders = append(r.ReqHeaders, Header{Key: g[1], Value: g[2]})
	}},
	{regexp.MustCompile(`^-   RespStatus\s+(\d+)`), func(r *Record, g []string) { r.RespStatus = g[1] }},
	{regexp.MustCompile(`^-   RespReason\s+(.+)`), func(r *Record, g []string) { r.RespReason = g[1] }},
	{regexp.MustCompile(`^-   RespHeader\s+(.+):\s+(.+)`), func(r *Record, g []string) {
		r.RespHeaders = append(r.RespHeaders, Header{Key: g[1], Value: g[2]})
	}},
	{regexp.MustCompile(`^--  BerespStatus\s+(\d+)`), func(r *Record, g []string) { r.BerespStatus = g[1] }},
	{regexp.MustCompile(`^--  BerespReason\s+(.+)`), func(r *Record, g []string) { r.BerespReason = g[1] }},
	{regexp.MustCompile(`^--  BerespHeader\s+(.+):\s+(.+)`), func(r *Record, g []string) {
		r.BerespHeaders = append(r.BerespHeaders, Header{Key: g[1], Value: g[2]})
	}},
}

// Parser holds the single accumulator for the transaction currently being
// assembled.
type Parser struct {
	acc Record
}

// Feed processes one line of varnishlog output, returning a finalised
// Record and true when the line signals end-of-transaction (a blank
// line), and resetting the accumulator for the next one.
func (p *Parser) Feed(line string) (Record, bool) {
	if strings.TrimSpace(line) == "" {
		if p.acc.isEmpty() {
			return Record{}, false
		}
		rec := p.acc
		p.acc.reset()
		return rec, true
	}

	for _, m := range matchers {
		if groups := m.re.FindStringSubmatch(line); groups != nil {
			m.apply(&p.acc, groups)
			return Record{}, false
		}
	}
	return Record{}, false
}

// Run reads lines from r until EOF or a read error, invoking emit for
// every completed transaction.
func Run(r io.Reader, emit func(Record)) error {
	p := &Parser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if rec, ok := p.Feed(scanner.Text()); ok {
			emit(rec)
		}
	}
	return scanner.Err()
}
