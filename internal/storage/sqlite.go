package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

// dealRecord is the gorm row for a deal.
type dealRecord struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	ProductID     string    `gorm:"size:64;not null;uniqueIndex:idx_product_source"`
	Source        string    `gorm:"size:16;not null;uniqueIndex:idx_product_source"`
	Title         string    `gorm:"not null"`
	TitleFolded   string    `gorm:"index"`
	Image         string
	Price         float64   `gorm:"index"`
	OriginalPrice float64
	Discount      float64   `gorm:"index"`
	URL           string    `gorm:"not null"`
	Category      string    `gorm:"index"`
	RedditPostID  string    `gorm:"index"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
	Clicks        int64     `gorm:"not null"`
}

// TableName returns the table name for dealRecord.
func (dealRecord) TableName() string {
	return "deals"
}

// Columns written by an update; id, created_at and clicks are never among them.
var mergeColumns = []string{
	"product_id", "title", "title_folded", "image", "price", "original_price", "discount",
	"url", "source", "category", "reddit_post_id",
}

func newDealRecord(in models.DealInput, createdAt time.Time) dealRecord {
	r := dealRecord{CreatedAt: createdAt}
	r.apply(in)
	return r
}

func (r *dealRecord) apply(in models.DealInput) {
	r.ProductID = in.ProductID
	r.Title = in.Title
	// SQLite's LOWER only folds ASCII, so search runs against a Go-folded copy.
	r.TitleFolded = strings.ToLower(in.Title)
	r.Image = in.Image
	r.Price = in.Price
	r.OriginalPrice = in.OriginalPrice
	r.Discount = in.Discount
	r.URL = in.URL
	r.Source = in.Source
	r.Category = in.Category
	r.RedditPostID = in.RedditPostID
}

func (r dealRecord) toDeal() models.Deal {
	return models.Deal{
		ID:            strconv.FormatUint(r.ID, 10),
		ProductID:     r.ProductID,
		Title:         r.Title,
		Image:         r.Image,
		Price:         r.Price,
		OriginalPrice: r.OriginalPrice,
		Discount:      r.Discount,
		URL:           r.URL,
		Source:        r.Source,
		Category:      r.Category,
		RedditPostID:  r.RedditPostID,
		CreatedAt:     r.CreatedAt.UTC(),
		Clicks:        r.Clicks,
	}
}

// SQLiteStore persists deals in a SQLite file through gorm.
type SQLiteStore struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection serialises transactions.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&dealRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return &SQLiteStore{db: db, clock: clk}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseRecordID(id string) (uint64, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Deal, error) {
	n, ok := parseRecordID(id)
	if !ok {
		return nil, nil
	}
	var rec dealRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	d := rec.toDeal()
	return &d, nil
}

func (s *SQLiteStore) FindByNaturalKey(ctx context.Context, productID, source string) (*models.Deal, error) {
	var rec dealRecord
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND source = ?", productID, source).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deal %s/%s: %w", source, productID, err)
	}
	d := rec.toDeal()
	return &d, nil
}

func (s *SQLiteStore) Create(ctx context.Context, in models.DealInput) (*models.Deal, error) {
	rec := newDealRecord(in, s.clock.Now())
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, models.ErrDealExists
		}
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	d := rec.toDeal()
	return &d, nil
}

func (s *SQLiteStore) Update(ctx context.Context, existing *models.Deal, in models.DealInput) (*models.Deal, error) {
	n, ok := parseRecordID(existing.ID)
	if !ok {
		return nil, models.ErrDealNotFound
	}

	var rec dealRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", n).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrDealNotFound
			}
			return err
		}
		if err := checkKey(&models.Deal{ProductID: rec.ProductID, Source: rec.Source}, in); err != nil {
			return err
		}
		rec.apply(in)
		return tx.Model(&rec).Select(mergeColumns).Updates(&rec).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrDealNotFound) || errors.Is(err, ErrKeyMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update deal %s: %w", existing.ID, err)
	}
	d := rec.toDeal()
	return &d, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, in models.DealInput) (*models.Deal, bool, error) {
	var (
		rec     dealRecord
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("product_id = ? AND source = ?", in.ProductID, in.Source).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = newDealRecord(in, s.clock.Now())
			created = true
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}
		rec.apply(in)
		return tx.Model(&rec).Select(mergeColumns).Updates(&rec).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert deal %s/%s: %w", in.Source, in.ProductID, err)
	}
	d := rec.toDeal()
	return &d, created, nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]models.Deal, error) {
	q := s.db.WithContext(ctx).Model(&dealRecord{})
	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}
	if opts.Sort.Field != "" {
		q = q.Order(opts.Sort.Field + " " + opts.Sort.direction())
	}
	q = q.Order("created_at ASC").Order("id ASC")

	limit := opts.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	q = q.Limit(limit)
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}

	var recs []dealRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return toDeals(recs), nil
}

func toDeals(recs []dealRecord) []models.Deal {
	deals := make([]models.Deal, 0, len(recs))
	for _, r := range recs {
		deals = append(deals, r.toDeal())
	}
	return deals
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLiteStore) Search(ctx context.Context, q string, limit int) ([]models.Deal, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
	query := s.db.WithContext(ctx).
		Where(`title_folded LIKE ? ESCAPE '\'`, pattern).
		Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []dealRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to search deals: %w", err)
	}
	return toDeals(recs), nil
}

func (s *SQLiteStore) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	out := []models.CategoryCount{}
	err := s.db.WithContext(ctx).Model(&dealRecord{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").Order("category ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) IncrementClicks(ctx context.Context, id string) (*models.Deal, error) {
	n, ok := parseRecordID(id)
	if !ok {
		return nil, nil
	}

	var rec dealRecord
	found := true
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&dealRecord{}).Where("id = ?", n).UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			found = false
			return nil
		}
		return tx.First(&rec, "id = ?", n).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment clicks for deal %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	d := rec.toDeal()
	return &d, nil
}
