package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewNoteCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <image> <text...>",
		Short: "Attach a note to a photo",
		Long: `Append a user note for a photo. The note takes its timestamp from the
photo's filename when it carries one, otherwise from the current time.`,
		Args: cobra.MinimumNArgs(2),
		RunE: makeNoteRunner(svc),
	}

	cmd.Flags().Bool("sync", false, "Sync the index after saving")
	return cmd
}

func makeNoteRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		doSync, _ := cmd.Flags().GetBool("sync")

		s, err := svc()
		if err != nil {
			return err
		}

		entry, err := s.Pipeline.AppendNote(cmd.Context(), args[0], strings.Join(args[1:], " "), time.Now())
		if err != nil {
			return fmt.Errorf("note: %w", err)
		}

		if doSync {
			if _, err := s.Pipeline.Sync(cmd.Context()); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
		}

		if wantJSON(cmd) {
			return writeJSON(cmd, map[string]any{
				"id":          entry.ID(),
				"timestamp":   entry.Timestamp.String(),
				"description": entry.Description,
				"image_path":  entry.ImagePath,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved note %s\n", entry.Timestamp)
		return nil
	}
}
