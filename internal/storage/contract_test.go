package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

type storeFactory func(t *testing.T, clk clock.Clock) Store

var contractBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// absentID is well-formed for the mongo backend and malformed or unknown for the others.
const absentID = "ffffffffffffffffffffffff"

func testInput(productID, source string) models.DealInput {
	return models.DealInput{
		ProductID:     productID,
		Title:         "Deal " + productID,
		Image:         "https://example.com/" + productID + ".jpg",
		Price:         100,
		OriginalPrice: 200,
		Discount:      50,
		URL:           "https://www.amazon.in/dp/" + productID,
		Source:        source,
		Category:      "electronics",
		RedditPostID:  "t3_" + productID,
	}
}

func ids(deals []models.Deal) []string {
	out := make([]string, 0, len(deals))
	for _, d := range deals {
		out = append(out, d.ID)
	}
	return out
}

// runStoreContract checks the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	setup := func(t *testing.T) (Store, *clock.MockClock) {
		clk := clock.NewMockClock(contractBase)
		return newStore(t, clk), clk
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		s, _ := setup(t)
		in := testInput("B08C4V3228", "amazon")

		d, err := s.Create(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, d.ID)
		assert.Zero(t, d.Clicks)
		assert.True(t, d.CreatedAt.Equal(contractBase), "created_at = %v", d.CreatedAt)

		got, err := s.Get(ctx, d.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, in, got.Input())
		assert.True(t, got.CreatedAt.Equal(contractBase))

		_, err = s.Create(ctx, in)
		assert.ErrorIs(t, err, models.ErrDealExists)

		other, err := s.Create(ctx, testInput("B08C4V3228", "flipkart"))
		require.NoError(t, err)
		assert.NotEqual(t, d.ID, other.ID)
	})

	t.Run("GetAbsent", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.Create(ctx, testInput("P1", "amazon"))
		require.NoError(t, err)

		for _, id := range []string{absentID, "999999", "not-an-id", ""} {
			got, err := s.Get(ctx, id)
			assert.NoError(t, err, "id %q", id)
			assert.Nil(t, got, "id %q", id)
		}
	})

	t.Run("FindByNaturalKey", func(t *testing.T) {
		s, _ := setup(t)
		created, err := s.Create(ctx, testInput("MOBFCT563Y4M2ZJ9", "flipkart"))
		require.NoError(t, err)

		got, err := s.FindByNaturalKey(ctx, "MOBFCT563Y4M2ZJ9", "flipkart")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)

		got, err = s.FindByNaturalKey(ctx, "MOBFCT563Y4M2ZJ9", "amazon")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UpdateMergesFields", func(t *testing.T) {
		s, clk := setup(t)
		d, err := s.Create(ctx, testInput("P1", "amazon"))
		require.NoError(t, err)
		_, err = s.IncrementClicks(ctx, d.ID)
		require.NoError(t, err)
		clk.Advance(time.Hour)

		in := testInput("P1", "amazon")
		in.Title = "Updated title"
		in.Price = 55.5
		in.Image = ""
		in.RedditPostID = "t3_other"

		updated, err := s.Update(ctx, d, in)
		require.NoError(t, err)
		assert.Equal(t, d.ID, updated.ID)
		assert.Equal(t, "Updated title", updated.Title)
		assert.Equal(t, 55.5, updated.Price)
		assert.Empty(t, updated.Image)
		assert.Equal(t, "t3_other", updated.RedditPostID)
		assert.EqualValues(t, 1, updated.Clicks)
		assert.True(t, updated.CreatedAt.Equal(contractBase))

		stored, err := s.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, in, stored.Input())
	})

	t.Run("UpdateErrors", func(t *testing.T) {
		s, _ := setup(t)
		d, err := s.Create(ctx, testInput("P1", "amazon"))
		require.NoError(t, err)

		_, err = s.Update(ctx, &models.Deal{ID: absentID}, testInput("P1", "amazon"))
		assert.ErrorIs(t, err, models.ErrDealNotFound)

		_, err = s.Update(ctx, d, testInput("P2", "amazon"))
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})

	t.Run("Upsert", func(t *testing.T) {
		s, clk := setup(t)
		in := testInput("B08C4V3228", "amazon")

		first, created, err := s.Upsert(ctx, in)
		require.NoError(t, err)
		assert.True(t, created)
		_, err = s.IncrementClicks(ctx, first.ID)
		require.NoError(t, err)

		clk.Advance(time.Minute)
		in.Price = 42
		second, created, err := s.Upsert(ctx, in)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 42.0, second.Price)
		assert.EqualValues(t, 1, second.Clicks)
		assert.True(t, second.CreatedAt.Equal(contractBase))

		all, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ConcurrentUpsert", func(t *testing.T) {
		s, _ := setup(t)
		const workers = 8

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			creates int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := s.Upsert(ctx, testInput("RACE000001", "amazon"))
				assert.NoError(t, err)
				if created {
					mu.Lock()
					creates++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, creates)
		all, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ListSortAndPaginate", func(t *testing.T) {
		s, clk := setup(t)
		fixtures := []struct {
			price, discount float64
			category        string
		}{
			{300, 10, "electronics"},
			{100, 40, "books"},
			{200, 20, "electronics"},
			{100, 40, "home"},
			{500, 5, "electronics"},
		}
		var inserted []string
		for i, f := range fixtures {
			in := testInput(string(rune('A'+i))+"00000000", "amazon")
			in.Price, in.Discount, in.Category = f.price, f.discount, f.category
			d, err := s.Create(ctx, in)
			require.NoError(t, err)
			inserted = append(inserted, d.ID)
			clk.Advance(time.Second)
		}

		all, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, inserted, ids(all))

		byPrice, err := s.List(ctx, ListOptions{Sort: SortSpec{Field: "price"}})
		require.NoError(t, err)
		assert.Equal(t, []string{inserted[1], inserted[3], inserted[2], inserted[0], inserted[4]}, ids(byPrice))

		byDiscount, err := s.List(ctx, ListOptions{Sort: SortSpec{Field: "discount", Desc: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{inserted[1], inserted[3], inserted[2], inserted[0], inserted[4]}, ids(byDiscount))

		latest, err := s.List(ctx, ListOptions{Sort: SortSpec{Field: "created_at", Desc: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{inserted[4], inserted[3], inserted[2], inserted[1], inserted[0]}, ids(latest))

		page, err := s.List(ctx, ListOptions{Skip: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, inserted[1:3], ids(page))

		tail, err := s.List(ctx, ListOptions{Skip: 3, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, inserted[3:], ids(tail))

		beyond, err := s.List(ctx, ListOptions{Skip: 10, Limit: 10})
		require.NoError(t, err)
		assert.NotNil(t, beyond)
		assert.Empty(t, beyond)

		electronics, err := s.List(ctx, ListOptions{Category: "electronics", Sort: SortSpec{Field: "price"}})
		require.NoError(t, err)
		assert.Equal(t, []string{inserted[2], inserted[0], inserted[4]}, ids(electronics))

		none, err := s.List(ctx, ListOptions{Category: "grocery"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("Search", func(t *testing.T) {
		s, clk := setup(t)
		titles := []string{"Echo Dot", "Kindle Paperwhite", "echo show 8", "100% Cotton_Shirt", "Cotton Towel", "ÉCLAIR Café Maker"}
		for i, title := range titles {
			in := testInput(string(rune('A'+i))+"00000000", "amazon")
			in.Title = title
			_, err := s.Create(ctx, in)
			require.NoError(t, err)
			clk.Advance(time.Second)
		}

		titlesOf := func(deals []models.Deal) []string {
			out := []string{}
			for _, d := range deals {
				out = append(out, d.Title)
			}
			return out
		}

		got, err := s.Search(ctx, "ECHO", 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"Echo Dot", "echo show 8"}, titlesOf(got))

		got, err = s.Search(ctx, "echo", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"Echo Dot"}, titlesOf(got))

		got, err = s.Search(ctx, "% Cotton_", 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"100% Cotton_Shirt"}, titlesOf(got))

		got, err = s.Search(ctx, "éclair café", 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"ÉCLAIR Café Maker"}, titlesOf(got))

		got, err = s.Search(ctx, "nothing matches", 50)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("Categories", func(t *testing.T) {
		s, _ := setup(t)
		categories := []string{"home", "electronics", "books", "electronics", "fashion", "home", "electronics"}
		for i, c := range categories {
			in := testInput(string(rune('A'+i))+"00000000", "flipkart")
			in.Category = c
			_, err := s.Create(ctx, in)
			require.NoError(t, err)
		}

		got, err := s.Categories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.CategoryCount{
			{Category: "electronics", Count: 3},
			{Category: "home", Count: 2},
			{Category: "books", Count: 1},
			{Category: "fashion", Count: 1},
		}, got)
	})

	t.Run("IncrementClicksConcurrent", func(t *testing.T) {
		s, _ := setup(t)
		d, err := s.Create(ctx, testInput("CLICK00001", "amazon"))
		require.NoError(t, err)

		const n = 10
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := s.IncrementClicks(ctx, d.ID)
				assert.NoError(t, err)
				assert.NotNil(t, got)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.EqualValues(t, n, got.Clicks)

		next, err := s.IncrementClicks(ctx, d.ID)
		require.NoError(t, err)
		assert.EqualValues(t, n+1, next.Clicks)

		missing, err := s.IncrementClicks(ctx, absentID)
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}
