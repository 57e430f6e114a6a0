package messaging

import (
	"context"
	"time"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/repository"
	"go.uber.org/zap"
)

// OrphanGracePeriod is how old a conversation must be before the sweeper may
// delete it for missing participants
const OrphanGracePeriod = time.Hour

// OrphanSweeper periodically deletes conversations left with fewer than two
// participants
type OrphanSweeper struct {
	conversations repository.ConversationRepository
	interval      time.Duration
	grace         time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewOrphanSweeper creates a sweeper that runs every interval
func NewOrphanSweeper(conversations repository.ConversationRepository, interval time.Duration) *OrphanSweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &OrphanSweeper{
		conversations: conversations,
		interval:      interval,
		grace:         OrphanGracePeriod,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *OrphanSweeper) Start() {
	logger.InfoWithFields("Starting orphan conversation sweeper", zap.Duration("interval", s.interval))
	go s.run()
}

// Stop stops the sweeper and waits for the current pass to finish
func (s *OrphanSweeper) Stop() {
	s.cancel()
	<-s.done
	logger.InfoWithFields("Orphan conversation sweeper stopped")
}

func (s *OrphanSweeper) run() {
	defer close(s.done)

	s.Sweep(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Sweep runs one pass and returns the number of conversations removed
func (s *OrphanSweeper) Sweep(ctx context.Context) int64 {
	start := time.Now()
	n, err := s.conversations.DeleteOrphanConversations(ctx, now().Add(-s.grace))
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorWithFields("Orphan conversation sweep failed", err)
			metrics.Get().ErrorsTotal.WithLabelValues("sweeper", "delete").Inc()
		}
		return 0
	}
	if n > 0 {
		metrics.Get().OrphansDeletedTotal.Add(float64(n))
		logger.InfoWithFields("Orphan conversations deleted",
			zap.Int64("count", n),
			logger.WithDuration(time.Since(start)),
		)
	}
	return n
}
