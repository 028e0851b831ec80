// Package vcl renders the cache process's configuration artifact from a
// template and a data record, and writes it atomically.
//
// The template engine itself is an external collaborator (spec.md §1): the
// renderer's contract is "pass it a template string and a data map, get
// rendered text back". text/template is the implementation of that
// contract; nothing upstream of this package needs to know that.
package vcl

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/mariusmagureanu/vingress/pkg/backend"
	"github.com/mariusmagureanu/vingress/pkg/log"
)

var renderLog = log.Logger.WithName("vcl")

// TemplateData is what the renderer exposes to the template, per spec.md
// §6: at least backend, snippet and vcl_recv_snippet.
type TemplateData struct {
	Backends    []backend.Backend
	Snippet     string
	RecvSnippet string
}

func (d TemplateData) asMap() map[string]interface{} {
	return map[string]interface{}{
		"backend":          d.Backends,
		"snippet":          d.Snippet,
		"vcl_recv_snippet": d.RecvSnippet,
	}
}

// TemplateRegisterFailed wraps a failure to parse the template file.
type TemplateRegisterFailed struct{ Err error }

func (e *TemplateRegisterFailed) Error() string { return fmt.Sprintf("register template: %v", e.Err) }
func (e *TemplateRegisterFailed) Unwrap() error { return e.Err }

// TemplateRenderFailed wraps a failure to execute the template against the
// data record.
type TemplateRenderFailed struct{ Err error }

func (e *TemplateRenderFailed) Error() string { return fmt.Sprintf("render template: %v", e.Err) }
func (e *TemplateRenderFailed) Unwrap() error { return e.Err }

// WriteFailed wraps a failure to persist the rendered artifact.
type WriteFailed struct{ Err error }

func (e *WriteFailed) Error() string { return fmt.Sprintf("write rendered config: %v", e.Err) }
func (e *WriteFailed) Unwrap() error { return e.Err }

// Render parses tmplPath, executes it against data, and atomically writes
// the result to outPath. On any failure outPath is left untouched: the
// rendered bytes are written to a sibling temp file first and renamed into
// place only once rendering succeeded in full.
func Render(tmplPath string, data TemplateData, outPath string) error {
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return &TemplateRegisterFailed{Err: err}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(outPath), filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return &WriteFailed{Err: err}
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpl.Execute(tmpFile, data.asMap()); err != nil {
		tmpFile.Close()
		return &TemplateRenderFailed{Err: err}
	}
	if err := tmpFile.Close(); err != nil {
		return &WriteFailed{Err: err}
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return &WriteFailed{Err: err}
	}

	renderLog.V(1).Info("rendered config artifact", "path", outPath, "backends", len(data.Backends))
	return nil
}
