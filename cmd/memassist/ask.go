package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewAskCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from your memories",
		Long:  `Sync, retrieve related memories and ask the reasoning model to answer from them. This is the query flow without the microphone.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeAskRunner(svc),
	}

	cmd.Flags().Bool("no-sync", false, "Answer from the current index without syncing")
	cmd.Flags().IntP("number", "n", 0, "Memories to consider (default from config)")
	return cmd
}

func makeAskRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		noSync, _ := cmd.Flags().GetBool("no-sync")
		limit, _ := cmd.Flags().GetInt("number")
		question := strings.Join(args, " ")

		s, err := svc()
		if err != nil {
			return err
		}

		if !noSync {
			if _, err := s.Pipeline.Sync(cmd.Context()); err != nil {
				s.Log.Warn().Err(err).Msg("sync failed, answering from the current index")
			}
		}

		entries, err := s.Retriever.Retrieve(cmd.Context(), question, limit)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No related memories found.")
			return nil
		}

		reasoner, err := s.Reasoner(cmd.Context())
		if err != nil {
			return err
		}
		answer, err := reasoner.Answer(cmd.Context(), question, entries)
		if err != nil {
			return fmt.Errorf("answer: %w", err)
		}

		if wantJSON(cmd) {
			return writeJSON(cmd, answer)
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer.Summary)
		for _, ref := range answer.ImageRefs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", ref)
		}
		return nil
	}
}
