package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devlane/devlane"
	"github.com/devlane/devlane/pkg/client"
)

func createRootCommand(g *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "devlane",
		Short:         "Control plane for project dev, build and preview workloads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "", "path to TOML config file")
	return root
}

func createDevCommand(g *GlobalFlags, f *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev [root]",
		Short: "Start a development server and stream its output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRootArg(f, args)
			if f.APIUrl != "" {
				api := client.New(f.APIUrl, f.APITimeout)
				addr, err := api.Dev(launchRequest(f))
				if err != nil {
					return err
				}
				fmt.Printf("dev server running at http://%s\n", addr)
				return nil
			}
			return runServeAction(g, f, func(ctx context.Context, m *devlane.Manager) (devlane.Server, error) {
				return m.Dev(ctx, launchOptions(f))
			})
		},
	}
	addLaunchFlags(cmd, f)
	return cmd
}

func createBuildCommand(g *GlobalFlags, f *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [root]",
		Short: "Run a one-shot production build",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRootArg(f, args)
			if f.APIUrl != "" {
				api := client.New(f.APIUrl, f.APITimeout)
				return api.Build(launchRequest(f))
			}
			m, err := buildManager(g)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			if err := m.Build(context.Background(), launchOptions(f)); err != nil {
				return err
			}
			color.Green("build complete")
			return nil
		},
	}
	addLaunchFlags(cmd, f)
	return cmd
}

func createPreviewCommand(g *GlobalFlags, f *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [root]",
		Short: "Serve the last production build",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRootArg(f, args)
			if f.APIUrl != "" {
				api := client.New(f.APIUrl, f.APITimeout)
				addr, err := api.Preview(launchRequest(f))
				if err != nil {
					return err
				}
				fmt.Printf("preview server running at http://%s\n", addr)
				return nil
			}
			return runServeAction(g, f, func(ctx context.Context, m *devlane.Manager) (devlane.Server, error) {
				return m.Preview(ctx, launchOptions(f))
			})
		},
	}
	addLaunchFlags(cmd, f)
	return cmd
}

func createStopCommand(f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a project's workloads on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Project == "" {
				return fmt.Errorf("--project is required")
			}
			api := client.New(f.APIUrl, f.APITimeout)
			if !api.IsReachable() {
				return fmt.Errorf("daemon not reachable at %s - start it with 'devlane serve'", orDefault(f.APIUrl))
			}
			if err := api.Stop(f.Project, f.Action); err != nil {
				return err
			}
			color.Green("stopped %s", f.Project)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Project, "project", "", "project id")
	cmd.Flags().StringVar(&f.Action, "action", "", "workload lane (dev, build, preview); empty stops all")
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")
	return cmd
}

func createStatusCommand(f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project table and live workloads of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New(f.APIUrl, f.APITimeout)
			if !api.IsReachable() {
				return fmt.Errorf("daemon not reachable at %s - start it with 'devlane serve'", orDefault(f.APIUrl))
			}
			projects, err := api.Projects()
			if err != nil {
				return err
			}
			running, err := api.Running()
			if err != nil {
				return err
			}
			printStatus(projects, running)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")
	return cmd
}

func addLaunchFlags(cmd *cobra.Command, f *LaunchFlags) {
	cmd.Flags().StringVar(&f.Host, "host", "", "bind address")
	cmd.Flags().IntVar(&f.Port, "port", 0, "port (0 uses the engine default)")
	cmd.Flags().StringVar(&f.OutDir, "out-dir", "", "build output directory")
	cmd.Flags().StringVar(&f.Engine, "engine", "", "engine type (vite, rsbuild, webpack)")
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "run against a daemon instead of embedded")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")
}

func applyRootArg(f *LaunchFlags, args []string) {
	if len(args) > 0 {
		f.Root = args[0]
	}
}

func launchOptions(f *LaunchFlags) devlane.Options {
	return devlane.Options{
		Root:      f.Root,
		Host:      f.Host,
		Port:      f.Port,
		OutDir:    f.OutDir,
		Overrides: engineOverride(f.Engine),
	}
}

func launchRequest(f *LaunchFlags) client.LaunchRequest {
	return client.LaunchRequest{
		Root:   f.Root,
		Host:   f.Host,
		Port:   f.Port,
		OutDir: f.OutDir,
		Config: engineOverride(f.Engine),
	}
}

func engineOverride(engineType string) map[string]any {
	if engineType == "" {
		return nil
	}
	return map[string]any{"launcher": map[string]any{"engine": engineType}}
}

func orDefault(apiURL string) string {
	if apiURL == "" {
		return client.DefaultBaseURL
	}
	return apiURL
}

func buildManager(g *GlobalFlags) (*devlane.Manager, error) {
	cfg, err := devlane.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	return devlane.NewWithConfig(cfg)
}

// runServeAction launches a serving workload embedded and blocks until
// interrupted, then tears the plane down.
func runServeAction(g *GlobalFlags, f *LaunchFlags, launch func(context.Context, *devlane.Manager) (devlane.Server, error)) error {
	m, err := buildManager(g)
	if err != nil {
		return err
	}
	srv, err := launch(context.Background(), m)
	if err != nil {
		_ = m.Close()
		return err
	}
	fmt.Printf("serving at http://%s (ctrl-c to stop)\n", srv.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return m.Close()
}

func printStatus(projects []client.Project, running []client.Workload) {
	header := color.New(color.FgCyan, color.Bold)
	header.Println("PROJECTS")
	for _, p := range projects {
		fmt.Printf("  %-20s %-10s %s", p.ID, p.Framework, statusColor(p.Status).Sprint(p.Status))
		if p.Port > 0 {
			fmt.Printf("  :%d", p.Port)
		}
		fmt.Println()
	}
	if len(projects) == 0 {
		fmt.Println("  (none)")
	}
	header.Println("WORKLOADS")
	for _, w := range running {
		fmt.Printf("  %-20s %-8s pid=%-7d", w.ProjectID, w.Action, w.PID)
		if w.Port > 0 {
			fmt.Printf(" :%d", w.Port)
		}
		fmt.Println()
	}
	if len(running) == 0 {
		fmt.Println("  (none)")
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case "running":
		return color.New(color.FgGreen)
	case "starting", "building":
		return color.New(color.FgYellow)
	case "error":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}
