package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

func NewRunCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the voice assistant",
		Long: `Listen for wake words and run the capture and question flows until
interrupted or until the classifier can no longer be started.`,
		Args: cobra.NoArgs,
		RunE: makeRunRunner(svc),
	}

	addWakeFlags(cmd)
	cmd.Flags().Bool("no-captions", false, "Never offer to describe photos after a capture")
	return cmd
}

func addWakeFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "", "Wake word backend override (runner|stream)")
	cmd.Flags().String("endpoint", "", "Classifier stream endpoint for the stream backend")
	cmd.Flags().String("model", "", "Classifier model override for the runner backend")
}

// applyWakeFlags lets the command line override the configured classifier.
func applyWakeFlags(cmd *cobra.Command, s *internal.Services) {
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		s.Config.Wake.Backend = backend
	}
	if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
		s.Config.Wake.StreamEndpoint = endpoint
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		s.Config.Wake.Runner.Model = model
	}
}

func makeRunRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		noCaptions, _ := cmd.Flags().GetBool("no-captions")

		s, err := svc()
		if err != nil {
			return err
		}
		applyWakeFlags(cmd, s)
		if err := s.Config.Wake.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, err := s.Controller(ctx, !noCaptions)
		if err != nil {
			return err
		}
		return ctrl.Run(ctx)
	}
}
