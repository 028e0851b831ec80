// Package config holds the CLI flags/environment-variable surface
// spec.md §6 documents. cobra doesn't bind flags to environment
// variables on its own, so this package does it by hand, the same
// explicit way the rest of the retrieval pack's cobra-based CLIs do.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Config is the fully-resolved configuration for one controller process.
type Config struct {
	LogLevel       string
	VCLFile        string
	Template       string
	IngressClass   string
	WorkFolder     string
	Params         string
	Storage        string
	HTTPPort       string
	DefaultTTL     string
	VCLSnippet     string
	VCLRecvSnippet string
	Namespace      string
	PodName        string
}

// flagSpec pairs a flag with its optional environment override and
// default, per spec.md §6's table.
type flagSpec struct {
	name   string
	env    string
	def    string
	usage  string
	target *string
}

// BindFlags registers every flag spec.md §6 names onto cmd's flag set,
// returning a Config whose flag-bound fields are populated once cmd has
// parsed argv. PodName is filled in separately by Validate.
func BindFlags(cmd *cobra.Command) *Config {
	cfg := &Config{}

	specs := []flagSpec{
		{"log-level", "", "info", "logger threshold", &cfg.LogLevel},
		{"vcl-file", "VARNISH_VCL", "/etc/varnish/default.vcl", "rendered config path", &cfg.VCLFile},
		{"template", "", "./template/vcl.hbs", "template path", &cfg.Template},
		{"ingress-class", "", "varnish", "ingress class filter", &cfg.IngressClass},
		{"work-folder", "VARNISH_WORK_FOLDER", "/etc/varnish", "child work dir", &cfg.WorkFolder},
		{"params", "VARNISH_PARAMS", "", "whitespace-split extra -p params", &cfg.Params},
		{"storage", "VARNISH_STORAGE", "", "-s argument", &cfg.Storage},
		{"http-port", "VARNISH_HTTP_PORT", "6081", "listen port", &cfg.HTTPPort},
		{"default-ttl", "VARNISH_DEFAULT_TTL", "120s", "-t argument", &cfg.DefaultTTL},
		{"vcl-snippet", "VARNISH_VCL_SNIPPET", "", "template snippet var", &cfg.VCLSnippet},
		{"vcl-recv-snippet", "VARNISH_VCL_RECV_SNIPPET", "", "template vcl_recv_snippet var", &cfg.VCLRecvSnippet},
		{"namespace", "NAMESPACE", "default", "controller namespace", &cfg.Namespace},
	}

	for _, s := range specs {
		def := s.def
		if s.env != "" {
			if v, ok := os.LookupEnv(s.env); ok {
				def = v
			}
		}
		cmd.Flags().StringVar(s.target, s.name, def, s.usage)
	}

	return cfg
}

// Validate reads the required-but-not-flag-bound POD_NAME environment
// variable into PodName. POD_NAME has no flag or default: it names
// this replica's lease identity and must be set by the pod spec.
func (c *Config) Validate() error {
	c.PodName = os.Getenv("POD_NAME")
	if c.PodName == "" {
		return fmt.Errorf("POD_NAME environment variable is required")
	}
	return nil
}
