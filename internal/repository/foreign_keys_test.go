package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// ForeignKeyTestSuite runs against a schema with foreign keys created and
// enforced, as on Postgres
type ForeignKeyTestSuite struct {
	suite.Suite
	db            *gorm.DB
	ctx           context.Context
	profiles      ProfileRepository
	products      ProductRepository
	conversations ConversationRepository
}

func (s *ForeignKeyTestSuite) SetupTest() {
	db, err := database.OpenSQLiteWithForeignKeys("foreign_keys")
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.Migrate(db))

	s.db = db
	s.ctx = context.Background()
	s.profiles = NewProfileRepository(db)
	s.products = NewProductRepository(db)
	s.conversations = NewConversationRepository(db)
}

func (s *ForeignKeyTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *ForeignKeyTestSuite) count(model interface{}) int64 {
	var n int64
	require.NoError(s.T(), s.db.Model(model).Count(&n).Error)
	return n
}

func (s *ForeignKeyTestSuite) listingWithThread() (*models.Product, *models.Conversation, *models.Profile, *models.Profile) {
	t := s.T()
	seller := &models.Profile{Email: "vendeuse@example.fr"}
	buyer := &models.Profile{Email: "acheteur@example.fr"}
	require.NoError(t, s.profiles.CreateProfile(s.ctx, seller))
	require.NoError(t, s.profiles.CreateProfile(s.ctx, buyer))

	product := &models.Product{
		UserID:    seller.ID,
		Title:     "Kelly 28",
		Category:  "Sacs",
		Brand:     "Hermès",
		Condition: "excellent",
		Price:     255_000_000,
		Images:    models.StringArray{"a.jpg", "b.jpg", "c.jpg"},
		Status:    "active",
	}
	require.NoError(t, s.products.CreateProduct(s.ctx, product))

	conv := &models.Conversation{ProductID: product.ID}
	require.NoError(t, s.conversations.CreateConversation(s.ctx, conv, []string{buyer.ID, seller.ID}))
	base := time.Now().UTC()
	for i, sender := range []string{buyer.ID, buyer.ID, seller.ID, buyer.ID} {
		msg := &models.Message{ConversationID: conv.ID, SenderID: sender, Content: "Bonjour", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.conversations.CreateMessage(s.ctx, msg))
	}
	return product, conv, seller, buyer
}

func (s *ForeignKeyTestSuite) TestConversationRequiresExistingProduct() {
	buyer := &models.Profile{Email: "acheteur@example.fr"}
	require.NoError(s.T(), s.profiles.CreateProfile(s.ctx, buyer))

	err := s.conversations.CreateConversation(s.ctx, &models.Conversation{ProductID: "3f0c9a5e-0000-4000-8000-000000000000"}, []string{buyer.ID})
	assert.ErrorIs(s.T(), err, ErrProductNotFound)
}

func (s *ForeignKeyTestSuite) TestDeleteProductRemovesItsConversations() {
	t := s.T()
	product, conv, seller, buyer := s.listingWithThread()

	participants, err := s.products.DeleteProduct(s.ctx, product.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{seller.ID, buyer.ID}, participants)

	_, err = s.products.GetProduct(s.ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = s.conversations.GetConversation(s.ctx, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Zero(t, s.count(&models.ConversationParticipant{}))
	assert.Zero(t, s.count(&models.Message{}))
	assert.EqualValues(t, 2, s.count(&models.Profile{}))

	_, err = s.products.DeleteProduct(s.ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func (s *ForeignKeyTestSuite) TestDeleteProductKeepsOtherThreads() {
	t := s.T()
	product, _, seller, buyer := s.listingWithThread()

	other := &models.Product{
		UserID:    seller.ID,
		Title:     "Tank",
		Category:  "Montres",
		Brand:     "Cartier",
		Condition: "good",
		Price:     169_000_000,
		Images:    models.StringArray{"a.jpg", "b.jpg", "c.jpg"},
		Status:    "active",
	}
	require.NoError(t, s.products.CreateProduct(s.ctx, other))
	kept := &models.Conversation{ProductID: other.ID}
	require.NoError(t, s.conversations.CreateConversation(s.ctx, kept, []string{buyer.ID, seller.ID}))

	_, err := s.products.DeleteProduct(s.ctx, product.ID)
	require.NoError(t, err)

	_, err = s.conversations.GetConversation(s.ctx, kept.ID)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, s.count(&models.ConversationParticipant{}))
}

func (s *ForeignKeyTestSuite) TestConcurrentMarkConversationReadReportsEachMessageOnce() {
	t := s.T()
	_, conv, seller, _ := s.listingWithThread()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := s.conversations.MarkConversationRead(s.ctx, conv.ID, seller.ID)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, m := range changed {
				seen[m.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 3)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s reported more than once", id)
	}
}

func (s *ForeignKeyTestSuite) TestMarkConversationReadReturnsFlippedOldestFirst() {
	t := s.T()
	_, conv, seller, _ := s.listingWithThread()

	changed, err := s.conversations.MarkConversationRead(s.ctx, conv.ID, seller.ID)
	require.NoError(t, err)
	require.Len(t, changed, 3)
	for i, m := range changed {
		assert.True(t, m.Read)
		assert.NotEqual(t, seller.ID, m.SenderID)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(changed[i-1].CreatedAt))
		}
	}
}

func TestForeignKeyTestSuite(t *testing.T) {
	suite.Run(t, new(ForeignKeyTestSuite))
}
