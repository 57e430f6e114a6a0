package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	DemoEmail    = "demo@exemple.fr"
	DemoPassword = "password123"
)

// DemoListings are the showcase listings inserted by "seed demo"
var DemoListings = []models.Product{
	{
		Title:       "Montre Vintage Cartier Tank",
		Description: "Authentique montre Cartier Tank en or, excellent état",
		Price:       169_000_000,
		Location:    "Tachkent",
		Category:    "Montres",
		Subcategory: "Montres femme",
		Brand:       "Cartier",
		Model:       "Tank",
		Condition:   catalog.ConditionExcellent,
		Negotiable:  true,
	},
	{
		Title:       "Sac Kelly Hermès",
		Description: "Sac Kelly 28 en cuir Togo noir, état neuf",
		Price:       255_000_000,
		Location:    "Samarcande",
		Category:    "Sacs",
		Subcategory: "Sacs à main",
		Brand:       "Hermès",
		Model:       "Kelly 28",
		Condition:   catalog.ConditionNewWithoutTags,
		Negotiable:  false,
	},
	{
		Title:       "Foulard en Soie Chanel",
		Description: "Foulard vintage en soie, motif camélia",
		Price:       6_100_000,
		Location:    "Boukhara",
		Category:    "Accessoires",
		Subcategory: "Foulards",
		Brand:       "Chanel",
		Condition:   catalog.ConditionGood,
		Negotiable:  true,
	},
}

// Seeder handles database seeding operations
type Seeder struct {
	db            *gorm.DB
	conversations repository.ConversationRepository
	bcryptCost    int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed only fails for invalid sources
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:            db,
		conversations: repository.NewConversationRepository(db),
		bcryptCost:    bcrypt.DefaultCost,
	}
}

// SeedDemo inserts the demo listings under the first existing profile,
// creating the demo account when the database has none. Re-running it
// does not duplicate listings.
func (s *Seeder) SeedDemo(ctx context.Context) ([]models.Product, error) {
	owner, err := s.demoOwner(ctx)
	if err != nil {
		return nil, err
	}

	var inserted []models.Product
	for _, demo := range DemoListings {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Product{}).
			Where("user_id = ? AND title = ?", owner.ID, demo.Title).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check listing %q: %w", demo.Title, err)
		}
		if count > 0 {
			logger.Log.Info("Demo listing already present", zap.String("title", demo.Title))
			continue
		}

		p := demo
		p.UserID = owner.ID
		p.Status = catalog.StatusActive
		p.Images = placeholderImages(catalog.MinImages)
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to insert listing %q: %w", demo.Title, err)
		}
		logger.Log.Info("Inserted demo listing", zap.String("title", p.Title), logger.WithProductID(p.ID))
		inserted = append(inserted, p)
	}
	return inserted, nil
}

func (s *Seeder) demoOwner(ctx context.Context) (*models.Profile, error) {
	var owner models.Profile
	err := s.db.WithContext(ctx).Order("created_at ASC").First(&owner).Error
	if err == nil {
		logger.Log.Info("Using existing profile for demo listings", logger.WithUserID(owner.ID))
		return &owner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up profiles: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash demo password: %w", err)
	}
	h := string(hash)
	username := "demo"
	owner = models.Profile{
		Email:        DemoEmail,
		Username:     &username,
		FullName:     "Compte Démo",
		City:         "Tachkent",
		Country:      "Ouzbékistan",
		PasswordHash: &h,
	}
	if err := s.db.WithContext(ctx).Create(&owner).Error; err != nil {
		return nil, fmt.Errorf("failed to create demo profile: %w", err)
	}
	logger.Log.Info("Created demo profile", logger.WithUserID(owner.ID), zap.String("email", owner.Email))
	return &owner, nil
}

// FakeOptions sizes the gofakeit data set
type FakeOptions struct {
	Users            int
	ListingsPerUser  int
	Conversations    int
	MessagesPerConvo int
}

func (o FakeOptions) withDefaults() FakeOptions {
	if o.Users <= 0 {
		o.Users = 20
	}
	if o.ListingsPerUser <= 0 {
		o.ListingsPerUser = 3
	}
	if o.Conversations < 0 {
		o.Conversations = 0
	}
	if o.MessagesPerConvo <= 0 {
		o.MessagesPerConvo = 4
	}
	return o
}

// FakeResult counts what SeedFake created
type FakeResult struct {
	Users         int
	Listings      int
	Conversations int
	Messages      int
}

// SeedFake fills the database with generated profiles, listings and
// conversations between buyers and sellers.
func (s *Seeder) SeedFake(ctx context.Context, opts FakeOptions) (*FakeResult, error) {
	opts = opts.withDefaults()
	res := &FakeResult{}

	logger.Log.Info("Creating profiles...", zap.Int("count", opts.Users))
	users, err := s.seedProfiles(ctx, opts.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to seed profiles: %w", err)
	}
	res.Users = len(users)

	logger.Log.Info("Creating listings...", zap.Int("per_user", opts.ListingsPerUser))
	listings, err := s.seedListings(ctx, users, opts.ListingsPerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to seed listings: %w", err)
	}
	res.Listings = len(listings)

	logger.Log.Info("Creating conversations...", zap.Int("count", opts.Conversations))
	convos, msgs, err := s.seedConversations(ctx, users, listings, opts.Conversations, opts.MessagesPerConvo)
	if err != nil {
		return nil, fmt.Errorf("failed to seed conversations: %w", err)
	}
	res.Conversations = convos
	res.Messages = msgs

	logger.Log.Info("Seeding complete",
		zap.Int("users", res.Users),
		zap.Int("listings", res.Listings),
		zap.Int("conversations", res.Conversations),
		zap.Int("messages", res.Messages),
	)
	return res, nil
}

func (s *Seeder) seedProfiles(ctx context.Context, count int) ([]models.Profile, error) {
	// Every fake account shares one password
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	h := string(hash)

	users := make([]models.Profile, 0, count)
	for i := 0; i < count; i++ {
		first, last := gofakeit.FirstName(), gofakeit.LastName()
		username := fmt.Sprintf("%s_%d", gofakeit.Username(), i)
		u := models.Profile{
			Email:        fmt.Sprintf("%s.%d@%s", gofakeit.LetterN(8), i, gofakeit.DomainName()),
			Username:     &username,
			FullName:     first + " " + last,
			AvatarURL:    fmt.Sprintf("https://i.pravatar.cc/300?u=%s", username),
			City:         gofakeit.City(),
			Country:      gofakeit.Country(),
			PasswordHash: &h,
		}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Seeder) seedListings(ctx context.Context, users []models.Profile, perUser int) ([]models.Product, error) {
	brands := catalog.Brands[:len(catalog.Brands)-1] // no "Autre"
	var listings []models.Product
	for _, u := range users {
		for i := 0; i < perUser; i++ {
			cat := catalog.Categories[gofakeit.Number(0, len(catalog.Categories)-1)]
			sub := cat.Subcategories[gofakeit.Number(0, len(cat.Subcategories)-1)]
			brand := gofakeit.RandomString(brands)
			cond := catalog.Conditions[gofakeit.Number(0, len(catalog.Conditions)-1)].Value

			p := models.Product{
				UserID:      u.ID,
				Title:       fmt.Sprintf("%s %s", sub, brand),
				Category:    cat.Name,
				Subcategory: sub,
				Brand:       brand,
				Model:       gofakeit.ProductName(),
				Condition:   cond,
				Description: gofakeit.Sentence(18),
				// Round to the nearest 10 000 so' like real asking prices
				Price:      int64(gofakeit.Number(50, 30000)) * 10_000,
				Location:   u.City,
				Negotiable: gofakeit.Bool(),
				Images:     placeholderImages(gofakeit.Number(catalog.MinImages, catalog.MaxImages)),
				Status:     weightedStatus(),
			}
			if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
				return nil, err
			}
			listings = append(listings, p)
		}
	}
	return listings, nil
}

func (s *Seeder) seedConversations(ctx context.Context, users []models.Profile, listings []models.Product, count, perConvo int) (int, int, error) {
	if len(users) < 2 || len(listings) == 0 {
		return 0, 0, nil
	}

	convos, msgs := 0, 0
	for i := 0; i < count; i++ {
		listing := listings[gofakeit.Number(0, len(listings)-1)]
		var buyer models.Profile
		for {
			buyer = users[gofakeit.Number(0, len(users)-1)]
			if buyer.ID != listing.UserID {
				break
			}
		}

		conv := &models.Conversation{ProductID: listing.ID}
		if err := s.conversations.CreateConversation(ctx, conv, []string{buyer.ID, listing.UserID}); err != nil {
			return convos, msgs, err
		}
		convos++

		at := time.Now().UTC().Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour)
		for j := 0; j < perConvo; j++ {
			sender := buyer.ID
			if j%2 == 1 {
				sender = listing.UserID
			}
			at = at.Add(time.Duration(gofakeit.Number(1, 90)) * time.Minute)
			m := &models.Message{
				ConversationID: conv.ID,
				SenderID:       sender,
				Content:        gofakeit.Sentence(gofakeit.Number(4, 14)),
				// The last message stays unread for its recipient
				Read:      j < perConvo-1,
				CreatedAt: at,
			}
			if err := s.conversations.CreateMessage(ctx, m); err != nil {
				return convos, msgs, err
			}
			msgs++
		}
		if err := s.conversations.TouchConversation(ctx, conv.ID, at); err != nil {
			return convos, msgs, err
		}
	}
	return convos, msgs, nil
}

// Clean removes all marketplace data (use with caution!)
func (s *Seeder) Clean(ctx context.Context) error {
	// Reverse order of dependencies
	tables := []string{"messages", "conversation_participants", "conversations", "products", "password_resets", "profiles"}
	for _, table := range tables {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	logger.Log.Info("Cleaned seed data", zap.Strings("tables", tables))
	return nil
}

func placeholderImages(n int) models.StringArray {
	images := make(models.StringArray, n)
	for i := range images {
		images[i] = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.LetterN(10))
	}
	return images
}

// weightedStatus favours buyer-visible listings
func weightedStatus() string {
	switch n := gofakeit.Number(1, 100); {
	case n <= 60:
		return catalog.StatusActive
	case n <= 75:
		return catalog.StatusPublished
	case n <= 85:
		return catalog.StatusSold
	case n <= 93:
		return catalog.StatusDraft
	default:
		return catalog.StatusPaused
	}
}
