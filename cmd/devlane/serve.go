package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devlane/devlane"
)

const defaultListen = "127.0.0.1:7070"

func createServeCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane daemon with the HTTP API and telemetry socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(g, f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "API listen address")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "API base path")
	cmd.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "Prometheus /metrics listen address")
	return cmd
}

func runServe(g *GlobalFlags, f *ServeFlags) error {
	cfg, err := devlane.LoadConfig(g.ConfigPath)
	if err != nil {
		return err
	}
	listen := f.Listen
	basePath := f.BasePath
	if cfg.Server != nil {
		if listen == "" {
			listen = cfg.Server.Listen
		}
		if basePath == "" {
			basePath = cfg.Server.BasePath
		}
	}
	if listen == "" {
		listen = defaultListen
	}
	metricsListen := f.MetricsListen
	if metricsListen == "" && cfg.Metrics.Enabled {
		metricsListen = cfg.Metrics.Listen
	}

	m, err := devlane.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	if metricsListen != "" {
		if err := devlane.RegisterMetricsDefault(); err != nil {
			_ = m.Close()
			return err
		}
		go func() { _ = devlane.ServeMetrics(metricsListen) }()
	}

	srv := devlane.NewHTTPServer(listen, basePath, m)
	fmt.Printf("devlane listening on http://%s%s\n", listen, basePath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	return m.Close()
}
