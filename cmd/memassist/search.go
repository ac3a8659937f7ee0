package main

import (
	"fmt"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

func NewSearchCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories",
		Long:  `Retrieve the memories closest to the query, balanced between user notes and model descriptions and ordered by time.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeSearchRunner(svc),
	}

	cmd.Flags().IntP("number", "n", 0, "Result budget (default from config)")
	return cmd
}

func makeSearchRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("number")

		s, err := svc()
		if err != nil {
			return err
		}

		entries, err := s.Retriever.Retrieve(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if wantJSON(cmd) {
			return outputEntriesJSON(cmd, entries)
		}
		printEntries(cmd, entries)
		return nil
	}
}

func outputEntriesJSON(cmd *cobra.Command, entries []internal.MemoryEntry) error {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"timestamp":   e.Timestamp.String(),
			"description": e.Description,
			"image_path":  e.ImagePath,
			"source":      e.Source,
			"similarity":  e.Similarity,
		})
	}
	return writeJSON(cmd, out)
}
