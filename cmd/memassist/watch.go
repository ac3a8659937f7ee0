package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/4thel00z/memassist/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Describe new photos and sync as files change",
		Long: `Watch the images directory and the note documents. New photos are
described by the captioning model, and every change is synced into the index.`,
		Args: cobra.NoArgs,
		RunE: makeWatchRunner(svc),
	}

	cmd.Flags().Duration("debounce", 2*time.Second, "Debounce window for batching changes")
	cmd.Flags().Bool("no-captions", false, "Only sync, never describe photos")
	return cmd
}

type watchAction int

const (
	watchIgnore watchAction = iota
	watchSync
	watchCaption
)

func makeWatchRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		noCaptions, _ := cmd.Flags().GetBool("no-captions")

		s, err := svc()
		if err != nil {
			return err
		}
		layout := s.Layout

		var refresher *internal.CaptionRefresher
		if !noCaptions {
			refresher, err = s.Captions(cmd.Context())
			if err != nil {
				return err
			}
		}

		if err := os.MkdirAll(layout.ImagesPath(), 0755); err != nil {
			return fmt.Errorf("create images directory: %w", err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		for _, dir := range watchDirs(layout) {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", layout.Root)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := watchIgnore

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				action := classifyEvent(event, layout, s.Config.Captioning.Patterns)
				if action == watchIgnore {
					continue
				}
				if pending == watchIgnore {
					timer.Reset(debounce)
				}
				pending = max(pending, action)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				action := pending
				pending = watchIgnore

				if action == watchCaption && refresher != nil {
					report, err := refresher.Refresh(cmd.Context())
					if err != nil {
						s.Log.Error().Err(err).Msg("caption refresh failed")
					} else if report.Captioned > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "described %d photo(s)\n", report.Captioned)
					}
				}

				report, err := s.Pipeline.Sync(cmd.Context())
				if err != nil {
					s.Log.Error().Err(err).Msg("sync failed")
					continue
				}
				if report.Indexed > 0 || report.StoreChanged {
					fmt.Fprintln(cmd.OutOrStdout(), report.String())
				}
			}
		}
	}
}

// watchDirs lists the directories holding the watched files.
func watchDirs(layout internal.Layout) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range []string{layout.ImagesPath(), filepath.Dir(layout.UserNotesPath()), filepath.Dir(layout.ModelDescriptionsPath())} {
		if !seen[p] {
			seen[p] = true
			dirs = append(dirs, p)
		}
	}
	return dirs
}

func classifyEvent(event fsnotify.Event, layout internal.Layout, patterns []string) watchAction {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return watchIgnore
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return watchIgnore
	}

	switch filepath.Clean(event.Name) {
	case filepath.Clean(layout.UserNotesPath()), filepath.Clean(layout.ModelDescriptionsPath()):
		return watchSync
	}

	if filepath.Dir(event.Name) != filepath.Clean(layout.ImagesPath()) {
		return watchIgnore
	}
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return watchCaption
		}
	}
	return watchIgnore
}
