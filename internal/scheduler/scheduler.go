// Package scheduler runs the periodic retention sweep over chunk artifacts.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/logger"
	"github.com/nbeier/meetscribe/internal/store"
	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron     *cron.Cron
	meetings *store.MeetingModel
	files    *store.FileStore
	config   *config.Store
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

func NewScheduler(meetings *store.MeetingModel, files *store.FileStore, cfg *config.Store) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		meetings: meetings,
		files:    files,
		config:   cfg,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if s.config.RetentionDays <= 0 {
		logger.Infof("[Scheduler] retention sweep disabled (RetentionDays=0)")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.CleanupCron, s.runCleanup)
	if err != nil {
		return fmt.Errorf("failed to register retention sweep: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] retention sweep scheduled: %s (keep %d days)", s.config.CleanupCron, s.config.RetentionDays)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] stopped")
}

// runCleanup prunes chunk artifacts of meetings summarized before the
// retention cutoff. Final summaries and transcripts are kept.
func (s *Scheduler) runCleanup() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)
	logger.Infof("[Scheduler] pruning chunk artifacts summarized before %s", cutoff.Format("2006-01-02"))

	ids, err := s.meetings.ListSummarizedBefore(ctx, cutoff)
	if err != nil {
		logger.Errorf("[Scheduler] failed to list meetings for cleanup: %v", err)
		return
	}

	removed := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			logger.Infof("[Scheduler] cleanup canceled")
			return
		default:
		}
		if err := s.files.RemoveChunks(id); err != nil {
			logger.Errorf("[Scheduler] failed to prune chunks of meeting %s: %v", id, err)
			continue
		}
		removed++
	}
	logger.Infof("[Scheduler] cleanup done, pruned chunk artifacts of %d meetings", removed)
}
