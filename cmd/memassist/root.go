package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "memassist",
		Short:         "Voice driven photo memory assistant",
		Long:          `Capture photos with spoken notes and ask questions about them later, answered from a local semantic index.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	setHelpWithExternals(rootCmd)

	if a != nil {
		rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
			a.configure(cmd)
		}
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("data-dir", "", "Data directory (default: nearest directory with memassist.yaml)")
	cmd.PersistentFlags().String("config", "", "Config file (default: <data-dir>/memassist.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command, a *app) {
	svc := servicesFunc(a.services)

	root.AddCommand(
		NewConfigCmd(),
		NewRunCmd(svc),
		NewListenCmd(svc),
		NewSyncCmd(svc),
		NewCaptionCmd(svc),
		NewNoteCmd(svc),
		NewSearchCmd(svc),
		NewAskCmd(svc),
		NewWatchCmd(svc),
		NewHistoryCmd(svc),
	)
}

func setHelpWithExternals(cmd *cobra.Command) {
	defaultHelp := cmd.HelpFunc()

	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		printExternalCommands(c)
	})
}

func printExternalCommands(cmd *cobra.Command) {
	externals := listExternalCommands()
	if len(externals) == 0 {
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nExternal commands (memassist-*):")
	for _, name := range externals {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
}
