package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	devFlags := &LaunchFlags{}
	buildFlags := &LaunchFlags{}
	previewFlags := &LaunchFlags{}
	stopFlags := &StopFlags{}
	statusFlags := &StatusFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createDevCommand(globalFlags, devFlags),
		createBuildCommand(globalFlags, buildFlags),
		createPreviewCommand(globalFlags, previewFlags),
		createStopCommand(stopFlags),
		createStatusCommand(statusFlags),
	)
	return root
}
