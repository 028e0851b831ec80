package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/metrics"
	"github.com/mariusmagureanu/vingress/pkg/operator"
	"github.com/mariusmagureanu/vingress/pkg/operator/client"
	"github.com/mariusmagureanu/vingress/pkg/operator/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vingress",
	Short: "vingress programs a local Varnish cache process from cluster Ingress/Service/ConfigMap state",
}

var cfg *config.Config
var kubeconfig string

func init() {
	cfg = config.BindFlags(rootCmd)
	rootCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "path to kubeconfig (defaults to in-cluster config)")
	rootCmd.RunE = run
}

func run(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	log.SetRuntimeLogger(log.Logger)

	restCfg, err := client.NewRESTConfig(kubeconfig)
	if err != nil {
		return err
	}
	clientset, err := client.New(restCfg)
	if err != nil {
		return err
	}

	op := operator.New(cfg, clientset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSrv := &http.Server{Addr: ":9090", Handler: metricsMux()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error(err, "metrics server exited")
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- op.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	}

	cancel()
	return metricsSrv.Close()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
