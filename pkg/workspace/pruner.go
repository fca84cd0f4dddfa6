package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// StartPruner schedules Prune with retention. A non-positive retention disables pruning.
func (w *Workspace) StartPruner(schedule string, retention time.Duration) error {
	if retention <= 0 {
		log.Debug().Msg("Workspace pruning disabled")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("workspace is closed")
	}
	if w.scheduler != nil {
		return errors.New("pruner already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n, err := w.Prune(retention); err != nil {
			log.Error().Err(err).Msg("Workspace prune failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("Workspace pruned")
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	c.Start()
	w.scheduler = c

	log.Info().Str("schedule", schedule).Dur("retention", retention).Msg("Workspace pruner started")
	return nil
}

// Prune removes non-hidden regular files last modified more than retention ago.
func (w *Workspace) Prune(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read workspace: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	var errs []error
	for _, e := range entries {
		if isHidden(e.Name()) || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.root, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		w.invalidate()
	}
	return removed, errors.Join(errs...)
}
