package main

import (
	"fmt"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

func NewHistoryCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show how the memory documents changed",
		Long:  `Show the journal of changes to the notes, descriptions and combined store.`,
		Args:  cobra.NoArgs,
		RunE:  makeHistoryRunner(svc),
	}

	cmd.Flags().IntP("number", "n", 10, "Limit number of entries")
	cmd.Flags().Bool("oneline", false, "Show each entry on one line")
	cmd.AddCommand(newHistoryShowCmd(svc))
	return cmd
}

func makeHistoryRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("number")
		oneline, _ := cmd.Flags().GetBool("oneline")

		journal, err := openJournal(svc)
		if err != nil {
			return err
		}

		commits, err := journal.Log(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}

		if wantJSON(cmd) {
			return writeJSON(cmd, commits)
		}

		for _, c := range commits {
			if oneline {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c.Hash[:7], c.Message)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", c.Hash)
			fmt.Fprintf(cmd.OutOrStdout(), "Date:   %s\n\n", c.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", c.Message)
		}
		return nil
	}
}

func newHistoryShowCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show the changes of one journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := openJournal(svc)
			if err != nil {
				return err
			}

			patch, err := journal.Patch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show %s: %w", args[0], err)
			}
			fmt.Fprint(cmd.OutOrStdout(), patch)
			return nil
		},
	}
}

func openJournal(svc servicesFunc) (*internal.Journal, error) {
	s, err := svc()
	if err != nil {
		return nil, err
	}
	return s.History()
}
