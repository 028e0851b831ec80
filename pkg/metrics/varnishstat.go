package metrics

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/mariusmagureanu/vingress/pkg/log"
)

var statLog = log.Logger.WithName("varnishstat")

const pollInterval = 15 * time.Second

// mainCounters is the fixed set of MAIN.* counters original_source's
// varnishstat bridge requested; kept identical here.
var mainCounters = []string{
	"MAIN.cache_hit",
	"MAIN.cache_miss",
	"MAIN.client_req",
	"MAIN.backend_conn",
	"MAIN.threads",
	"MAIN.n_object",
	"MAIN.n_backend",
	"MAIN.uptime",
	"MAIN.backend_req",
	"MAIN.n_vcl",
}

type varnishstatOutput struct {
	Counters map[string]struct {
		Value float64 `json:"value"`
	} `json:"counters"`
}

// PollVarnishstat runs `varnishstat -j -1 -f <counter>...` against workDir
// every 15s until ctx is cancelled, folding each MAIN.* counter into
// VarnishMainCounter. A failed invocation is logged and skipped; it does
// not affect any other subsystem.
func PollVarnishstat(ctx context.Context, workDir string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		pollOnce(ctx, workDir)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, workDir string) {
	args := []string{"-n", workDir, "-j", "-1"}
	for _, c := range mainCounters {
		args = append(args, "-f", c)
	}

	out, err := exec.CommandContext(ctx, "varnishstat", args...).Output()
	if err != nil {
		statLog.Error(err, "running varnishstat")
		return
	}

	counters, err := parseVarnishstat(out)
	if err != nil {
		statLog.Error(err, "parsing varnishstat output")
		return
	}

	for name, value := range counters {
		VarnishMainCounter.WithLabelValues(name).Set(value)
	}
}

// parseVarnishstat decodes varnishstat -j output into a flat
// counter-name→value map.
func parseVarnishstat(out []byte) (map[string]float64, error) {
	var stats varnishstatOutput
	if err := json.Unmarshal(out, &stats); err != nil {
		return nil, err
	}
	counters := make(map[string]float64, len(stats.Counters))
	for name, counter := range stats.Counters {
		counters[name] = counter.Value
	}
	return counters, nil
}
