// Package varnish supervises the varnishd child process: argument
// assembly, spawn, exit observation, and the reload/log-tail side
// channels that talk to varnishreload and varnishlog.
package varnish

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/varnishlog"
)

var supLog = log.Logger.WithName("varnish")

// Config fixes the varnishd invocation for the lifetime of the process.
type Config struct {
	HTTPPort   string
	VCLPath    string
	WorkDir    string
	DefaultTTL string
	Params     string
	Storage    string
}

// Args builds the varnishd argument vector per spec.md §4.3: -a, -f, -n,
// -t, then one -p per whitespace-separated extra-params token, then -s if
// storage was configured.
func (c Config) Args() []string {
	args := []string{
		"-a", fmt.Sprintf("0.0.0.0:%s", c.HTTPPort),
		"-f", c.VCLPath,
		"-n", c.WorkDir,
		"-t", c.DefaultTTL,
	}
	for _, tok := range strings.Fields(c.Params) {
		args = append(args, "-p", tok)
	}
	if c.Storage != "" {
		args = append(args, "-s", c.Storage)
	}
	return args
}

// ReloadFailed wraps a non-zero exit from the reload tool, carrying its
// stderr for diagnostics.
type ReloadFailed struct {
	Stderr string
	Err    error
}

func (e *ReloadFailed) Error() string {
	return fmt.Sprintf("varnishreload failed: %v: %s", e.Err, e.Stderr)
}
func (e *ReloadFailed) Unwrap() error { return e.Err }

// Supervisor owns the lifetime of one varnishd child process.
type Supervisor struct {
	cfg Config

	mu   sync.Mutex
	cmd  *exec.Cmd
	exit chan error
}

// New returns a Supervisor for the given varnishd configuration. It does
// not spawn anything until Start is called.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg, exit: make(chan error, 1)}
}

// Start launches varnishd and does not block waiting for it to exit; call
// Wait to observe termination. The child writes straight to this
// process's own stdout and stderr; the supervisor does not capture or
// read its output.
func (s *Supervisor) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "varnishd", s.cfg.Args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting varnishd: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	supLog.Info("started varnishd", "args", s.cfg.Args())

	go func() {
		s.exit <- cmd.Wait()
	}()

	return nil
}

// Wait returns a channel that receives exactly once, when the child exits
// for any reason (including a SIGCHLD-observed exit surfaced through
// cmd.Wait, which the standard library reaps transparently on this
// platform's process-management primitives).
func (s *Supervisor) Wait() <-chan error {
	return s.exit
}

// Reload invokes varnishreload against the supervised work directory.
// A non-zero exit surfaces as ReloadFailed carrying the tool's stderr.
func (s *Supervisor) Reload(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "varnishreload", "-n", s.cfg.WorkDir)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ReloadFailed{Stderr: stderr.String(), Err: err}
	}
	supLog.V(1).Info("reloaded varnish configuration", "workDir", s.cfg.WorkDir)
	return nil
}

// TailLog spawns varnishlog -n <workDir> -g request and dispatches every
// completed transaction record it reassembles to emit, until ctx is
// cancelled or the process exits.
func (s *Supervisor) TailLog(ctx context.Context, emit func(varnishlog.Record)) error {
	cmd := exec.CommandContext(ctx, "varnishlog", "-n", s.cfg.WorkDir, "-g", "request")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("piping varnishlog stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting varnishlog: %w", err)
	}

	reader := bufio.NewReader(stdout)
	if err := varnishlog.Run(reader, emit); err != nil {
		return fmt.Errorf("parsing varnishlog output: %w", err)
	}
	return cmd.Wait()
}
