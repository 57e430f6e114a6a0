package search

import (
	"context"
	"sync"
	"testing"

	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIndexer struct {
	mu       sync.Mutex
	products []string
	profiles []string
}

func (r *recordingIndexer) IndexProduct(ctx context.Context, doc ProductDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, doc.ID)
	return nil
}

func (r *recordingIndexer) IndexProfile(ctx context.Context, doc ProfileDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, doc.ID)
	return nil
}

func TestReindexSkipsHiddenListings(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	seller := &models.Profile{Email: "seller@example.com", FullName: "Vendeur"}
	require.NoError(t, db.Create(seller).Error)

	for _, status := range []string{"published", "active", "draft", "sold"} {
		p := &models.Product{
			UserID:    seller.ID,
			Title:     "Montre " + status,
			Category:  "Montres",
			Brand:     "Cartier",
			Condition: "excellent",
			Price:     1000,
			Images:    models.StringArray{"a", "b", "c"},
			Status:    status,
		}
		require.NoError(t, db.Omit("Seller").Create(p).Error)
	}

	idx := &recordingIndexer{}
	rs := NewReconciliationService(idx, db, 0)
	profiles, products := rs.Reindex(context.Background())

	assert.Equal(t, 1, profiles)
	assert.Equal(t, 2, products)
	assert.Equal(t, []string{seller.ID}, idx.profiles)
}
