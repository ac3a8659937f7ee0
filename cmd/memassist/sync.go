package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSyncCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge notes and descriptions and update the index",
		Long:  `Merge user notes and model descriptions into the combined store and embed entries the semantic index does not know yet.`,
		Args:  cobra.NoArgs,
		RunE:  makeSyncRunner(svc),
	}
}

func makeSyncRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := svc()
		if err != nil {
			return err
		}

		report, err := s.Pipeline.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}

		if wantJSON(cmd) {
			return writeJSON(cmd, report)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.String())
		return nil
	}
}
