package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

const mongoCollectionName = "deals"

type mongoDeal struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ProductID     string             `bson:"product_id"`
	Title         string             `bson:"title"`
	Image         string             `bson:"image"`
	Price         float64            `bson:"price"`
	OriginalPrice float64            `bson:"original_price"`
	Discount      float64            `bson:"discount"`
	URL           string             `bson:"url"`
	Source        string             `bson:"source"`
	Category      string             `bson:"category"`
	RedditPostID  string             `bson:"reddit_post_id"`
	CreatedAt     time.Time          `bson:"created_at"`
	Clicks        int64              `bson:"clicks"`
}

func (m mongoDeal) toDeal() models.Deal {
	return models.Deal{
		ID:            m.ID.Hex(),
		ProductID:     m.ProductID,
		Title:         m.Title,
		Image:         m.Image,
		Price:         m.Price,
		OriginalPrice: m.OriginalPrice,
		Discount:      m.Discount,
		URL:           m.URL,
		Source:        m.Source,
		Category:      m.Category,
		RedditPostID:  m.RedditPostID,
		CreatedAt:     m.CreatedAt.UTC(),
		Clicks:        m.Clicks,
	}
}

// mergeFields is the $set document for an update.
func mergeFields(in models.DealInput) bson.M {
	return bson.M{
		"product_id":     in.ProductID,
		"title":          in.Title,
		"image":          in.Image,
		"price":          in.Price,
		"original_price": in.OriginalPrice,
		"discount":       in.Discount,
		"url":            in.URL,
		"source":         in.Source,
		"category":       in.Category,
		"reddit_post_id": in.RedditPostID,
	}
}

// MongoStore persists deals in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	clock      clock.Clock
}

// NewMongoStore connects, pings and ensures the collection indexes.
func NewMongoStore(ctx context.Context, uri, dbName string, clk clock.Clock) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	slog.Info("Connected to MongoDB", "database", dbName)

	s := &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(mongoCollectionName),
		clock:      clk,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique natural-key index and the lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "source", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("product_source_unique"),
		},
		{Keys: bson.D{{Key: "reddit_post_id", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create deal indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Deal, error) {
	var m mongoDeal
	if err := s.collection.FindOne(ctx, filter).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	d := m.toDeal()
	return &d, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Deal, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	d, err := s.findOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	return d, nil
}

func (s *MongoStore) FindByNaturalKey(ctx context.Context, productID, source string) (*models.Deal, error) {
	d, err := s.findOne(ctx, bson.M{"product_id": productID, "source": source})
	if err != nil {
		return nil, fmt.Errorf("failed to find deal %s/%s: %w", source, productID, err)
	}
	return d, nil
}

func (s *MongoStore) Create(ctx context.Context, in models.DealInput) (*models.Deal, error) {
	deal := models.NewDeal("", in, s.clock.Now())
	m := mongoDeal{
		ProductID:     deal.ProductID,
		Title:         deal.Title,
		Image:         deal.Image,
		Price:         deal.Price,
		OriginalPrice: deal.OriginalPrice,
		Discount:      deal.Discount,
		URL:           deal.URL,
		Source:        deal.Source,
		Category:      deal.Category,
		RedditPostID:  deal.RedditPostID,
		CreatedAt:     deal.CreatedAt,
	}

	result, err := s.collection.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrDealExists
		}
		return nil, fmt.Errorf("failed to insert deal: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	d := m.toDeal()
	return &d, nil
}

func (s *MongoStore) Update(ctx context.Context, existing *models.Deal, in models.DealInput) (*models.Deal, error) {
	objID, err := primitive.ObjectIDFromHex(existing.ID)
	if err != nil {
		return nil, models.ErrDealNotFound
	}

	// The natural key is part of the filter so a key change matches nothing.
	filter := bson.M{"_id": objID, "product_id": in.ProductID, "source": in.Source}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m mongoDeal
	err = s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": mergeFields(in)}, opts).Decode(&m)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to update deal %s: %w", existing.ID, err)
		}
		current, getErr := s.Get(ctx, existing.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, models.ErrDealNotFound
		}
		return nil, ErrKeyMismatch
	}
	d := m.toDeal()
	return &d, nil
}

func (s *MongoStore) Upsert(ctx context.Context, in models.DealInput) (*models.Deal, bool, error) {
	filter := bson.M{"product_id": in.ProductID, "source": in.Source}
	update := bson.M{
		"$set": mergeFields(in),
		"$setOnInsert": bson.M{
			"created_at": s.clock.Now(),
			"clicks":     int64(0),
		},
	}

	var (
		result *mongo.UpdateResult
		err    error
	)
	// Two concurrent upserts of a new key can race; the loser sees a
	// duplicate key error and succeeds as an update on retry.
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert deal %s/%s: %w", in.Source, in.ProductID, err)
	}

	d, err := s.findOne(ctx, filter)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read upserted deal %s/%s: %w", in.Source, in.ProductID, err)
	}
	if d == nil {
		return nil, false, fmt.Errorf("upserted deal %s/%s disappeared", in.Source, in.ProductID)
	}
	return d, result.UpsertedCount > 0, nil
}

func sortDoc(spec SortSpec) bson.D {
	var doc bson.D
	if spec.Field != "" {
		dir := 1
		if spec.Desc {
			dir = -1
		}
		doc = append(doc, bson.E{Key: spec.Field, Value: dir})
	}
	return append(doc, bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Deal, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mongoDeal
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	deals := make([]models.Deal, 0, len(docs))
	for _, m := range docs {
		deals = append(deals, m.toDeal())
	}
	return deals, nil
}

func (s *MongoStore) List(ctx context.Context, opts ListOptions) ([]models.Deal, error) {
	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	findOptions := options.Find().SetSort(sortDoc(opts.Sort))
	if opts.Skip > 0 {
		findOptions.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(int64(opts.Limit))
	}

	deals, err := s.find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

func (s *MongoStore) Search(ctx context.Context, q string, limit int) ([]models.Deal, error) {
	filter := bson.M{"title": bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}}
	findOptions := options.Find().SetSort(sortDoc(SortSpec{}))
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	deals, err := s.find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to search deals: %w", err)
	}
	return deals, nil
}

func (s *MongoStore) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.CategoryCount{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return out, nil
}

func (s *MongoStore) IncrementClicks(ctx context.Context, id string) (*models.Deal, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m mongoDeal
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, bson.M{"$inc": bson.M{"clicks": 1}}, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to increment clicks for deal %s: %w", id, err)
	}
	d := m.toDeal()
	return &d, nil
}
