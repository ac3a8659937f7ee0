package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

func wantJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntries(cmd *cobra.Command, entries []internal.MemoryEntry) {
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]  %s\n", e.Timestamp, e.Source, e.Description)
		if e.ImagePath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", e.ImagePath)
		}
	}
}
