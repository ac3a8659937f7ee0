package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCaptionCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caption",
		Short: "Describe photos that have no model description yet",
		Args:  cobra.NoArgs,
		RunE:  makeCaptionRunner(svc),
	}

	cmd.Flags().Bool("sync", true, "Sync the index after captioning")
	return cmd
}

func makeCaptionRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		doSync, _ := cmd.Flags().GetBool("sync")

		s, err := svc()
		if err != nil {
			return err
		}

		refresher, err := s.Captions(cmd.Context())
		if err != nil {
			return err
		}

		report, err := refresher.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("caption: %w", err)
		}

		if doSync && report.Captioned > 0 {
			if _, err := s.Pipeline.Sync(cmd.Context()); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
		}

		if wantJSON(cmd) {
			return writeJSON(cmd, report)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d scanned, %d captioned, %d already described, %d ignored, %d failed\n",
			report.Scanned, report.Captioned, report.Processed, report.Ignored, report.Failed)
		return nil
	}
}
