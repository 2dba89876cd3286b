package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

var firestoreIDRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FirestoreStore persists deals in a Firestore collection. The document ID is
// derived from the natural key, so a key can only ever map to one document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	clock      clock.Clock
}

func NewFirestoreStore(ctx context.Context, projectID, collection string, clk clock.Clock) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection, clock: clk}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// DocumentID returns the document ID for a natural key.
func DocumentID(productID, source string) string {
	sum := sha256.Sum256([]byte(source + ":" + productID))
	return hex.EncodeToString(sum[:])
}

func (s *FirestoreStore) deals() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func decodeDeal(doc *firestore.DocumentSnapshot) (*models.Deal, error) {
	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deal data: %w", err)
	}
	deal.ID = doc.Ref.ID
	deal.CreatedAt = deal.CreatedAt.UTC()
	return &deal, nil
}

func (s *FirestoreStore) getDoc(ctx context.Context, docRef *firestore.DocumentRef) (*models.Deal, error) {
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", docRef.ID, err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return decodeDeal(doc)
}

// Get retrieves a deal by its Firestore Document ID.
func (s *FirestoreStore) Get(ctx context.Context, id string) (*models.Deal, error) {
	if !firestoreIDRegex.MatchString(id) {
		return nil, nil
	}
	return s.getDoc(ctx, s.deals().Doc(id))
}

func (s *FirestoreStore) FindByNaturalKey(ctx context.Context, productID, source string) (*models.Deal, error) {
	return s.getDoc(ctx, s.deals().Doc(DocumentID(productID, source)))
}

// Create attempts to create a new deal. Returns ErrDealExists if it already exists.
func (s *FirestoreStore) Create(ctx context.Context, in models.DealInput) (*models.Deal, error) {
	docRef := s.deals().Doc(DocumentID(in.ProductID, in.Source))
	deal := models.NewDeal(docRef.ID, in, s.clock.Now())
	// Create fails if the document already exists.
	if _, err := docRef.Create(ctx, deal); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, models.ErrDealExists
		}
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	return &deal, nil
}

// mergeUpdates lists the fields written by an update, never id, created_at or clicks.
func mergeUpdates(in models.DealInput) []firestore.Update {
	return []firestore.Update{
		{Path: "product_id", Value: in.ProductID},
		{Path: "title", Value: in.Title},
		{Path: "image", Value: in.Image},
		{Path: "price", Value: in.Price},
		{Path: "original_price", Value: in.OriginalPrice},
		{Path: "discount", Value: in.Discount},
		{Path: "url", Value: in.URL},
		{Path: "source", Value: in.Source},
		{Path: "category", Value: in.Category},
		{Path: "reddit_post_id", Value: in.RedditPostID},
	}
}

// Update merges in into the stored deal using explicit field paths.
func (s *FirestoreStore) Update(ctx context.Context, existing *models.Deal, in models.DealInput) (*models.Deal, error) {
	if existing.ID != DocumentID(in.ProductID, in.Source) {
		if current, err := s.Get(ctx, existing.ID); err != nil {
			return nil, err
		} else if current == nil {
			return nil, models.ErrDealNotFound
		}
		return nil, ErrKeyMismatch
	}

	docRef := s.deals().Doc(existing.ID)
	if _, err := docRef.Update(ctx, mergeUpdates(in)); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, models.ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to update deal %s: %w", existing.ID, err)
	}
	return s.getDoc(ctx, docRef)
}

func (s *FirestoreStore) Upsert(ctx context.Context, in models.DealInput) (*models.Deal, bool, error) {
	docRef := s.deals().Doc(DocumentID(in.ProductID, in.Source))

	var (
		deal    models.Deal
		created bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && doc.Exists() {
			current, err := decodeDeal(doc)
			if err != nil {
				return err
			}
			current.Apply(in)
			deal, created = *current, false
			return tx.Update(docRef, mergeUpdates(in))
		}
		deal, created = models.NewDeal(docRef.ID, in, s.clock.Now()), true
		return tx.Create(docRef, deal)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert deal %s/%s: %w", in.Source, in.ProductID, err)
	}
	return &deal, created, nil
}

func (s *FirestoreStore) collect(iter *firestore.DocumentIterator, keep func(*models.Deal) bool, limit int) ([]models.Deal, error) {
	defer iter.Stop()
	deals := []models.Deal{}
	for {
		if limit > 0 && len(deals) >= limit {
			break
		}
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		deal, err := decodeDeal(doc)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(deal) {
			deals = append(deals, *deal)
		}
	}
	return deals, nil
}

func (s *FirestoreStore) List(ctx context.Context, opts ListOptions) ([]models.Deal, error) {
	q := s.deals().Query
	if opts.Category != "" {
		q = q.Where("category", "==", opts.Category)
	}
	if opts.Sort.Field != "" {
		dir := firestore.Asc
		if opts.Sort.Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(opts.Sort.Field, dir)
	}
	q = q.OrderBy("created_at", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	deals, err := s.collect(q.Documents(ctx), nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// Search scans the collection in insertion order. Firestore has no substring
// queries, so matching happens client side.
func (s *FirestoreStore) Search(ctx context.Context, q string, limit int) ([]models.Deal, error) {
	needle := strings.ToLower(q)
	iter := s.deals().
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)

	deals, err := s.collect(iter, func(d *models.Deal) bool {
		return strings.Contains(strings.ToLower(d.Title), needle)
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search deals: %w", err)
	}
	return deals, nil
}

func (s *FirestoreStore) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	iter := s.deals().Select("category").Documents(ctx)
	defer iter.Stop()

	counts := make(map[string]int64)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate deals for categories: %w", err)
		}
		category, _ := doc.Data()["category"].(string)
		counts[category]++
	}
	return sortedCategories(counts), nil
}

func (s *FirestoreStore) IncrementClicks(ctx context.Context, id string) (*models.Deal, error) {
	if !firestoreIDRegex.MatchString(id) {
		return nil, nil
	}
	docRef := s.deals().Doc(id)

	var deal *models.Deal
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deal = nil
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		current, err := decodeDeal(doc)
		if err != nil {
			return err
		}
		current.Clicks++
		deal = current
		return tx.Update(docRef, []firestore.Update{{Path: "clicks", Value: firestore.Increment(1)}})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment clicks for deal %s: %w", id, err)
	}
	return deal, nil
}
