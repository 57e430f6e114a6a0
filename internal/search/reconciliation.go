package search

import (
	"context"
	"sync"
	"time"

	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reindexBatchSize = 200

// Indexer is the write side of the search client
type Indexer interface {
	IndexProduct(ctx context.Context, doc ProductDoc) error
	IndexProfile(ctx context.Context, doc ProfileDoc) error
}

// ReconciliationService periodically re-indexes profiles and visible
// listings from Postgres to catch writes whose index call failed
type ReconciliationService struct {
	index     Indexer
	db        *gorm.DB
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

func NewReconciliationService(index Indexer, db *gorm.DB, interval time.Duration) *ReconciliationService {
	return &ReconciliationService{
		index:    index,
		db:       db,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop
func (rs *ReconciliationService) Start() {
	rs.mu.Lock()
	if rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = true
	rs.mu.Unlock()

	logger.Log.Info("Starting search reconciliation", zap.Duration("interval", rs.interval))

	rs.wg.Add(1)
	go rs.loop()
}

// Stop waits for an in-flight pass to finish
func (rs *ReconciliationService) Stop() {
	rs.mu.Lock()
	if !rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = false
	rs.mu.Unlock()

	close(rs.stopChan)
	rs.wg.Wait()
	logger.Log.Info("Search reconciliation stopped")
}

func (rs *ReconciliationService) loop() {
	defer rs.wg.Done()

	rs.runOnce()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-rs.stopChan:
			return
		case <-ticker.C:
			rs.runOnce()
		}
	}
}

func (rs *ReconciliationService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	profiles, products := rs.Reindex(ctx)
	logger.Log.Info("Search reconciliation completed",
		zap.Int("profiles", profiles),
		zap.Int("products", products),
		zap.Duration("duration", time.Since(start)),
	)
}

// Reindex pushes every profile and visible listing to the index and returns
// how many documents of each kind were written
func (rs *ReconciliationService) Reindex(ctx context.Context) (profiles, products int) {
	var profileBatch []*models.Profile
	err := rs.db.WithContext(ctx).FindInBatches(&profileBatch, reindexBatchSize, func(tx *gorm.DB, _ int) error {
		for _, p := range profileBatch {
			if err := rs.index.IndexProfile(ctx, ProfileToDoc(p)); err != nil {
				logger.WarnWithFields("Failed to reindex profile", err, logger.WithUserID(p.ID))
				continue
			}
			profiles++
		}
		return ctx.Err()
	}).Error
	if err != nil {
		logger.WarnWithFields("Profile reindex aborted", err)
	}

	var productBatch []*models.Product
	err = rs.db.WithContext(ctx).
		Where("status IN ?", catalog.VisibleStatuses).
		FindInBatches(&productBatch, reindexBatchSize, func(tx *gorm.DB, _ int) error {
			for _, p := range productBatch {
				if err := rs.index.IndexProduct(ctx, ProductToDoc(p)); err != nil {
					logger.WarnWithFields("Failed to reindex product", err, logger.WithProductID(p.ID))
					continue
				}
				products++
			}
			return ctx.Err()
		}).Error
	if err != nil {
		logger.WarnWithFields("Product reindex aborted", err)
	}
	return profiles, products
}
