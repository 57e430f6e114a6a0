package products

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/search"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const cdn = "https://cdn.example.com/"

type fakeUploader struct {
	deleted []string
}

func (f *fakeUploader) UploadProductImage(ctx context.Context, data []byte, userID, filename string) (*storage.UploadResult, error) {
	if strings.HasSuffix(filename, ".pdf") {
		return nil, storage.ErrUnsupportedImage
	}
	key := "products/" + userID + "/" + filename
	return &storage.UploadResult{Key: key, URL: cdn + key}, nil
}

func (f *fakeUploader) UploadAvatar(ctx context.Context, data []byte, userID, filename string) (*storage.UploadResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeUploader) DeleteFile(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeUploader) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, cdn) {
		return "", false
	}
	return strings.TrimPrefix(url, cdn), true
}

type fakeSearcher struct {
	indexed map[string]bool
	ids     []string
	err     error
}

func (f *fakeSearcher) IndexProduct(ctx context.Context, doc search.ProductDoc) error {
	f.indexed[doc.ID] = true
	return nil
}

func (f *fakeSearcher) DeleteProduct(ctx context.Context, id string) error {
	delete(f.indexed, id)
	return nil
}

func (f *fakeSearcher) SearchProducts(ctx context.Context, q search.ProductQuery) ([]string, int, error) {
	return f.ids, len(f.ids), f.err
}

type ProductsTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ctx      context.Context
	seller   *models.Profile
	uploader *fakeUploader
	searcher *fakeSearcher
	service  *Service
}

func (s *ProductsTestSuite) SetupTest() {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.Migrate(db))
	s.db = db
	s.ctx = context.Background()

	s.seller = &models.Profile{Email: "vendeuse@example.com", FullName: "Sophie"}
	require.NoError(s.T(), repository.NewProfileRepository(db).CreateProfile(s.ctx, s.seller))

	s.uploader = &fakeUploader{}
	s.searcher = &fakeSearcher{indexed: map[string]bool{}}
	s.service = NewService(repository.NewProductRepository(db), s.uploader, s.searcher)
}

func (s *ProductsTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func validInput() CreateInput {
	return CreateInput{
		Title:       "Sac Kelly 28",
		Category:    "Sacs",
		Subcategory: "Sacs à main",
		Brand:       "Hermès",
		Condition:   catalog.ConditionExcellent,
		Price:       250000000,
		Images:      []string{cdn + "a.jpg", cdn + "b.jpg", cdn + "c.jpg"},
	}
}

func (s *ProductsTestSuite) TestCreateProductDefaults() {
	p, err := s.service.CreateProduct(s.ctx, s.seller.ID, validInput())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), catalog.StatusPublished, p.Status)
	assert.True(s.T(), s.searcher.indexed[p.ID])

	stored, err := s.service.GetProduct(s.ctx, p.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), stored.Images, 3)
	require.NotNil(s.T(), stored.Seller)
	assert.Equal(s.T(), "Sophie", stored.Seller.FullName)
}

func (s *ProductsTestSuite) TestCreateProductValidation() {
	cases := map[string]struct {
		mutate func(*CreateInput)
		err    error
	}{
		"too few images":  {func(in *CreateInput) { in.Images = in.Images[:2] }, ErrImageCount},
		"too many images": {func(in *CreateInput) { in.Images = strings.Split("a,b,c,d,e,f,g,h,i", ",") }, ErrImageCount},
		"blank images":    {func(in *CreateInput) { in.Images = []string{"a", " ", "b"} }, ErrImageCount},
		"zero price":      {func(in *CreateInput) { in.Price = 0 }, ErrInvalidPrice},
		"blank title":     {func(in *CreateInput) { in.Title = "  " }, ErrTitleRequired},
		"bad category":    {func(in *CreateInput) { in.Category = "Voitures" }, catalog.ErrUnknownCategory},
		"bad subcategory": {func(in *CreateInput) { in.Subcategory = "Sneakers" }, catalog.ErrUnknownSubcategory},
		"bad brand":       {func(in *CreateInput) { in.Brand = "Zara" }, catalog.ErrUnknownBrand},
		"other no name":   {func(in *CreateInput) { in.Brand = catalog.BrandOther }, catalog.ErrMissingCustomBrand},
		"bad condition":   {func(in *CreateInput) { in.Condition = "mint" }, catalog.ErrUnknownCondition},
		"bad status":      {func(in *CreateInput) { in.Status = "archived" }, catalog.ErrUnknownStatus},
		"created sold":    {func(in *CreateInput) { in.Status = catalog.StatusSold }, catalog.ErrInvalidInitial},
		"created paused":  {func(in *CreateInput) { in.Status = catalog.StatusPaused }, catalog.ErrInvalidInitial},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			in := validInput()
			tc.mutate(&in)
			_, err := s.service.CreateProduct(s.ctx, s.seller.ID, in)
			assert.ErrorIs(s.T(), err, tc.err)
		})
	}
}

func (s *ProductsTestSuite) TestCustomBrand() {
	in := validInput()
	in.Brand = catalog.BrandOther
	in.CustomBrand = " Goyard "
	p, err := s.service.CreateProduct(s.ctx, s.seller.ID, in)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Goyard", p.Brand)
}

func (s *ProductsTestSuite) TestDraftIsNotIndexed() {
	in := validInput()
	in.Status = catalog.StatusDraft
	p, err := s.service.CreateProduct(s.ctx, s.seller.ID, in)
	require.NoError(s.T(), err)
	assert.False(s.T(), s.searcher.indexed[p.ID])
}

func (s *ProductsTestSuite) TestUpdateStatusOwnerOnly() {
	p, err := s.service.CreateProduct(s.ctx, s.seller.ID, validInput())
	require.NoError(s.T(), err)

	_, err = s.service.UpdateProductStatus(s.ctx, p.ID, "someone-else", catalog.StatusPaused)
	assert.ErrorIs(s.T(), err, ErrNotOwner)

	updated, err := s.service.UpdateProductStatus(s.ctx, p.ID, s.seller.ID, catalog.StatusSold)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), catalog.StatusSold, updated.Status)
	assert.False(s.T(), s.searcher.indexed[p.ID])

	_, err = s.service.UpdateProductStatus(s.ctx, p.ID, s.seller.ID, catalog.StatusActive)
	assert.ErrorIs(s.T(), err, catalog.ErrInvalidTransition)

	_, err = s.service.UpdateProductStatus(s.ctx, "missing", s.seller.ID, catalog.StatusPaused)
	assert.ErrorIs(s.T(), err, ErrProductNotFound)
}

func (s *ProductsTestSuite) TestDeleteProductRemovesImages() {
	in := validInput()
	in.Images = append(in.Images, "https://elsewhere.example.com/d.jpg")
	p, err := s.service.CreateProduct(s.ctx, s.seller.ID, in)
	require.NoError(s.T(), err)

	assert.ErrorIs(s.T(), s.service.DeleteProduct(s.ctx, p.ID, "someone-else"), ErrNotOwner)
	require.NoError(s.T(), s.service.DeleteProduct(s.ctx, p.ID, s.seller.ID))

	assert.Equal(s.T(), []string{"a.jpg", "b.jpg", "c.jpg"}, s.uploader.deleted)
	assert.False(s.T(), s.searcher.indexed[p.ID])
	_, err = s.service.GetProduct(s.ctx, p.ID)
	assert.ErrorIs(s.T(), err, ErrProductNotFound)
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) InvalidateUnread(ctx context.Context, userIDs ...string) {
	r.users = append(r.users, userIDs...)
}

func (s *ProductsTestSuite) TestDeleteProductWithConversations() {
	db, err := database.OpenSQLiteWithForeignKeys("products")
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.Migrate(db))
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	profiles := repository.NewProfileRepository(db)
	seller := &models.Profile{Email: "vendeuse@example.com"}
	buyer := &models.Profile{Email: "acheteur@example.com"}
	require.NoError(s.T(), profiles.CreateProfile(s.ctx, seller))
	require.NoError(s.T(), profiles.CreateProfile(s.ctx, buyer))

	unread := &recordingInvalidator{}
	svc := NewService(repository.NewProductRepository(db), nil, nil)
	svc.SetUnreadCache(unread)

	p, err := svc.CreateProduct(s.ctx, seller.ID, validInput())
	require.NoError(s.T(), err)
	conversations := repository.NewConversationRepository(db)
	conv := &models.Conversation{ProductID: p.ID}
	require.NoError(s.T(), conversations.CreateConversation(s.ctx, conv, []string{buyer.ID, seller.ID}))
	require.NoError(s.T(), conversations.CreateMessage(s.ctx, &models.Message{ConversationID: conv.ID, SenderID: buyer.ID, Content: "Bonjour"}))

	require.NoError(s.T(), svc.DeleteProduct(s.ctx, p.ID, seller.ID))

	assert.ElementsMatch(s.T(), []string{buyer.ID, seller.ID}, unread.users)
	_, err = conversations.GetConversation(s.ctx, conv.ID)
	assert.ErrorIs(s.T(), err, repository.ErrConversationNotFound)
}

func (s *ProductsTestSuite) TestListProducts() {
	kelly, err := s.service.CreateProduct(s.ctx, s.seller.ID, validInput())
	require.NoError(s.T(), err)

	watch := validInput()
	watch.Title, watch.Category, watch.Subcategory, watch.Brand = "Tank Must", "Montres", "", "Cartier"
	_, err = s.service.CreateProduct(s.ctx, s.seller.ID, watch)
	require.NoError(s.T(), err)

	hidden := validInput()
	hidden.Status = catalog.StatusDraft
	_, err = s.service.CreateProduct(s.ctx, s.seller.ID, hidden)
	require.NoError(s.T(), err)

	all, err := s.service.ListProducts(s.ctx, ListInput{})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), all.Total)
	assert.Equal(s.T(), 20, all.Limit)

	bags, err := s.service.ListProducts(s.ctx, ListInput{Category: "Sacs"})
	require.NoError(s.T(), err)
	require.Len(s.T(), bags.Products, 1)
	assert.Equal(s.T(), kelly.ID, bags.Products[0].ID)
	assert.Equal(s.T(), "Excellent état", bags.Products[0].ConditionLabel)
	assert.Equal(s.T(), 20000.0, bags.Products[0].Prices.USD)

	capped, err := s.service.ListProducts(s.ctx, ListInput{Limit: 1000})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), MaxPageSize, capped.Limit)
}

func (s *ProductsTestSuite) TestListProductsTextQuery() {
	kelly, err := s.service.CreateProduct(s.ctx, s.seller.ID, validInput())
	require.NoError(s.T(), err)

	s.searcher.ids = []string{kelly.ID}
	res, err := s.service.ListProducts(s.ctx, ListInput{Query: "kely"})
	require.NoError(s.T(), err)
	require.Len(s.T(), res.Products, 1)

	s.searcher.err = errors.New("cluster down")
	res, err = s.service.ListProducts(s.ctx, ListInput{Query: "KELLY"})
	require.NoError(s.T(), err)
	require.Len(s.T(), res.Products, 1, "database fallback matches the title")
	assert.Equal(s.T(), kelly.ID, res.Products[0].ID)
}

func (s *ProductsTestSuite) TestListUserProducts() {
	_, err := s.service.CreateProduct(s.ctx, s.seller.ID, validInput())
	require.NoError(s.T(), err)
	draft := validInput()
	draft.Status = catalog.StatusDraft
	_, err = s.service.CreateProduct(s.ctx, s.seller.ID, draft)
	require.NoError(s.T(), err)

	all, err := s.service.ListUserProducts(s.ctx, s.seller.ID, "")
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 2)

	drafts, err := s.service.ListUserProducts(s.ctx, s.seller.ID, catalog.StatusDraft)
	require.NoError(s.T(), err)
	assert.Len(s.T(), drafts, 1)

	_, err = s.service.ListUserProducts(s.ctx, s.seller.ID, "archived")
	assert.ErrorIs(s.T(), err, catalog.ErrUnknownStatus)
}

func (s *ProductsTestSuite) TestUploadProductImage() {
	url, err := s.service.UploadProductImage(s.ctx, s.seller.ID, []byte("x"), "kelly.jpg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), cdn+"products/"+s.seller.ID+"/kelly.jpg", url)

	_, err = s.service.UploadProductImage(s.ctx, s.seller.ID, []byte("x"), "doc.pdf")
	assert.ErrorIs(s.T(), err, storage.ErrUnsupportedImage)
}

func TestProductsTestSuite(t *testing.T) {
	suite.Run(t, new(ProductsTestSuite))
}
