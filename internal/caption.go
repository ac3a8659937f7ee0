package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type CaptionReport struct {
	Scanned     int `json:"scanned"`
	Captioned   int `json:"captioned"`
	Processed   int `json:"already_processed"`
	Unparseable int `json:"unparseable"`
	Ignored     int `json:"ignored"`
	Failed      int `json:"failed"`
}

// CaptionRefresher describes photographs that have no model description
// yet and appends the results to the model descriptions document.
type CaptionRefresher struct {
	layout      Layout
	captioner   Captioner
	patterns    []string
	concurrency int
	log         zerolog.Logger
}

func NewCaptionRefresher(layout Layout, captioner Captioner, cfg CaptioningConfig, log zerolog.Logger) *CaptionRefresher {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*.jpg"}
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &CaptionRefresher{
		layout:      layout,
		captioner:   captioner,
		patterns:    patterns,
		concurrency: concurrency,
		log:         log,
	}
}

type captionJob struct {
	path string
	ts   Timestamp
	text string
	err  error
}

// Refresh captions every new photograph in the images directory. Failed
// captions are skipped and retried on the next refresh.
func (r *CaptionRefresher) Refresh(ctx context.Context) (CaptionReport, error) {
	var report CaptionReport

	existing, skipped, err := LoadEntries(r.layout.ModelDescriptionsPath())
	if err != nil {
		return report, fmt.Errorf("load model descriptions: %w", err)
	}
	for _, e := range skipped {
		r.log.Warn().Err(e).Msg("skipping malformed model description")
	}
	processed := processedImages(existing)

	images, ignored, err := r.scan()
	if err != nil {
		return report, err
	}
	report.Scanned = len(images)
	report.Ignored = ignored

	var jobs []*captionJob
	for _, img := range images {
		if processed[filepath.Base(img)] {
			report.Processed++
			continue
		}
		ts, err := TimestampFromFilename(img)
		if err != nil {
			r.log.Warn().Err(err).Str("image", img).Msg("skipping image without timestamp")
			report.Unparseable++
			continue
		}
		jobs = append(jobs, &captionJob{path: img, ts: ts})
	}
	if len(jobs) == 0 {
		return report, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				job.err = err
				return nil
			}
			r.log.Info().Str("image", filepath.Base(job.path)).Msg("captioning image")
			job.text, job.err = r.captioner.Caption(gCtx, job.path, job.ts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	err = WithLock(ctx, r.layout.LockPath(), func() error {
		// Reload: another process may have written in the meantime.
		current, err := LoadDocument(r.layout.ModelDescriptionsPath())
		if err != nil {
			return fmt.Errorf("reload model descriptions: %w", err)
		}
		done := processedImages(current.Entries)

		for _, job := range jobs {
			if job.err != nil {
				r.log.Warn().Err(job.err).Str("image", job.path).Msg("caption failed")
				report.Failed++
				continue
			}
			if done[filepath.Base(job.path)] {
				continue
			}
			entry, err := NewMemoryEntry(job.ts, job.text, job.path, SourceModel)
			if err != nil {
				r.log.Warn().Err(err).Str("image", job.path).Msg("caption rejected")
				report.Failed++
				continue
			}
			current.Entries = append(current.Entries, entry)
			done[filepath.Base(job.path)] = true
			report.Captioned++
		}

		if report.Captioned == 0 {
			return nil
		}
		if _, err := WriteDocument(r.layout.ModelDescriptionsPath(), current); err != nil {
			return fmt.Errorf("write model descriptions: %w", err)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	r.log.Info().
		Int("captioned", report.Captioned).
		Int("failed", report.Failed).
		Int("already", report.Processed).
		Msg("captions refreshed")

	return report, nil
}

// scan lists images matching the configured patterns in filename order,
// leaving out those excluded by the ignore file.
func (r *CaptionRefresher) scan() ([]string, int, error) {
	dir := r.layout.ImagesPath()
	ignore, err := LoadIgnoreList(dir)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool)
	var images []string
	ignored := 0
	for _, pattern := range r.patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, 0, fmt.Errorf("scan images: %w", err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			if ignore.Ignored(m) {
				ignored++
				continue
			}
			images = append(images, m)
		}
	}
	sort.Strings(images)
	return images, ignored, nil
}

func processedImages(entries []MemoryEntry) map[string]bool {
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ImagePath != "" {
			done[filepath.Base(e.ImagePath)] = true
		}
	}
	return done
}
