package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

func NewListenCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print wake words as they are detected",
		Long:  `Start the classifier and print every accepted label of the chosen vocabulary. Useful for tuning thresholds.`,
		Args:  cobra.NoArgs,
		RunE:  makeListenRunner(svc),
	}

	addWakeFlags(cmd)
	cmd.Flags().String("vocabulary", "command", "Vocabulary to listen for (command|confirm)")
	cmd.Flags().IntP("count", "c", 0, "Stop after this many detections (0 runs until interrupted)")
	return cmd
}

func makeListenRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("vocabulary")
		count, _ := cmd.Flags().GetInt("count")

		s, err := svc()
		if err != nil {
			return err
		}
		applyWakeFlags(cmd, s)

		var vocab internal.Vocabulary
		switch name {
		case "command":
			vocab = internal.VocabularyFromConfig(name, s.Config.Wake.Command)
		case "confirm":
			vocab = internal.VocabularyFromConfig(name, s.Config.Wake.Confirm)
		default:
			return fmt.Errorf("unknown vocabulary %q", name)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		wake := s.WakeSource()
		defer wake.Stop()

		if err := wake.Start(ctx); err != nil {
			return err
		}

		for seen := 0; count == 0 || seen < count; seen++ {
			ev, err := wake.Next(ctx, vocab)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if wantJSON(cmd) {
				if err := writeJSON(cmd, ev); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %.2f\n", ev.At.Format("15:04:05"), ev.Label, ev.Confidence)
		}
		return nil
	}
}
