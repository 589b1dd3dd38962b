package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"testing"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/internal/ratelimit"
	"github.com/abgdnv/shopassist/pkg/cache"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestShopifyClient_GetFullInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("joins product, inventory item and level", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		p := shop.seed("A1", "Strat", "19.99", 5)
		client := shop.client()

		// when
		record, err := client.GetFullInfo(ctx, "A1")

		// then
		require.NoError(t, err)
		assert.Equal(t, "A1", record.SKU)
		assert.Equal(t, "Strat", record.Title)
		assert.Equal(t, "19.99", record.Price)
		assert.Nil(t, record.CompareAtPrice)
		assert.Equal(t, ptr("5.00"), record.Cost)
		assert.Equal(t, ptr(5), record.Available)
		assert.Equal(t, p.ID, record.ProductID)
		assert.Equal(t, int64(fakeLocationID), record.LocationID)
	})

	t.Run("unknown sku is not found", func(t *testing.T) {
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)

		_, err := shop.client().GetFullInfo(ctx, "ZZ")

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestShopifyClient_FindBySKU_Paginates(t *testing.T) {
	// given
	shop := newFakeShop(t)
	shop.pageSize = 2
	for _, sku := range []string{"S1", "S2", "S3", "S4", "S5"} {
		shop.seed(sku, "Product "+sku, "10.00", 1)
	}
	client := shop.client()

	// when
	_, variant, err := client.FindBySKU(context.Background(), "S5")

	// then
	require.NoError(t, err)
	assert.Equal(t, "S5", variant.SKU)
	assert.Equal(t, 3, shop.countCalls("GET /products.json"))
}

func TestShopifyClient_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown sku fails at lookup", func(t *testing.T) {
		shop := newFakeShop(t)

		res, err := shop.client().Update(ctx, "ZZ", ProductUpdate{Price: ptr("1.00")})

		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, StageLookup, res.Stage)
		assert.ErrorIs(t, res.Cause, apperrors.ErrNotFound)
		assert.Equal(t, "Could not find product with SKU 'ZZ'", res.Message)
	})

	t.Run("only provided fields change", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)

		// when
		res, err := shop.client().Update(ctx, "A1", ProductUpdate{Title: ptr("Strat Deluxe"), Price: ptr("24.99"), Cost: ptr("7.50")})

		// then
		require.NoError(t, err)
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, "Strat Deluxe", res.Product.Title)
		assert.Equal(t, "24.99", res.Product.Price)
		assert.Equal(t, ptr("7.50"), res.Product.Cost)
		assert.Equal(t, "Fender", res.Product.Vendor)
		assert.Equal(t, ptr(5), res.Product.Available)
		assert.Zero(t, shop.countCalls("POST /inventory_levels/set.json"))
	})

	t.Run("availability enables management and tracking first", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)

		// when
		res, err := shop.client().Update(ctx, "A1", ProductUpdate{Available: ptr(12)})

		// then
		require.NoError(t, err)
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, ptr(12), res.Product.Available)
		assert.Equal(t, "shopify", res.Product.InventoryManagement)
		assert.True(t, res.Product.Tracked)

		calls := shop.recorded()
		flip := slices.Index(calls, "PUT /variants/{id}.json")
		track := slices.Index(calls, "PUT /inventory_items/{id}.json")
		set := slices.Index(calls, "POST /inventory_levels/set.json")
		require.NotEqual(t, -1, flip)
		assert.Less(t, flip, track)
		assert.Less(t, track, set)
	})

	t.Run("failed management flip never sets availability", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)
		shop.fail("PUT /variants/{id}.json", fakeFailure{status: http.StatusUnprocessableEntity, body: `{"errors":{"inventory_management":["is not allowed"]}}`})

		// when
		res, err := shop.client().Update(ctx, "A1", ProductUpdate{Available: ptr(12)})

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, StageInventoryManagement, res.Stage)
		assert.Equal(t, []string{"inventory_management is not allowed"}, res.Errors)
		assert.Contains(t, res.Message, "Failed to enable Shopify inventory management.")
		assert.Zero(t, shop.countCalls("POST /inventory_levels/set.json"))
	})

	t.Run("product stage failure stops later stages", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)
		shop.fail("PUT /products/{id}.json", fakeFailure{status: http.StatusUnprocessableEntity, body: `{"errors":{"title":["can't be blank"]}}`})

		// when
		res, err := shop.client().Update(ctx, "A1", ProductUpdate{Title: ptr(""), Cost: ptr("1.00")})

		// then
		require.NoError(t, err)
		assert.Equal(t, StageProduct, res.Stage)
		assert.Zero(t, shop.countCalls("PUT /inventory_items/{id}.json"))
	})
}

func TestShopifyClient_StatusMapping(t *testing.T) {
	testCases := []struct {
		name    string
		failure fakeFailure
		check   func(t *testing.T, err error)
	}{
		{
			name:    "429 carries retry after",
			failure: fakeFailure{status: http.StatusTooManyRequests, retryAfter: "3.0"},
			check: func(t *testing.T, err error) {
				rl, ok := apperrors.IsRateLimited(err)
				require.True(t, ok)
				assert.Equal(t, 3*time.Second, rl.RetryAfter)
			},
		},
		{
			name:    "429 without header uses default",
			failure: fakeFailure{status: http.StatusTooManyRequests},
			check: func(t *testing.T, err error) {
				rl, ok := apperrors.IsRateLimited(err)
				require.True(t, ok)
				assert.Equal(t, 2*time.Second, rl.RetryAfter)
			},
		},
		{
			name:    "5xx is unavailable",
			failure: fakeFailure{status: http.StatusBadGateway},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)
			},
		},
		{
			name:    "403 is unavailable",
			failure: fakeFailure{status: http.StatusForbidden},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			shop := newFakeShop(t)
			shop.seed("A1", "Strat", "19.99", 5)
			shop.fail("GET /products.json", tc.failure)

			// when
			_, err := shop.client().GetFullInfo(context.Background(), "A1")

			// then
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestShopifyClient_RateLimitedUpdatePropagates(t *testing.T) {
	shop := newFakeShop(t)
	shop.seed("A1", "Strat", "19.99", 5)
	shop.fail("PUT /products/{id}.json", fakeFailure{status: http.StatusTooManyRequests, retryAfter: "1"})

	res, err := shop.client().Update(context.Background(), "A1", ProductUpdate{Title: ptr("X")})

	assert.Nil(t, res)
	_, ok := apperrors.IsRateLimited(err)
	assert.True(t, ok)
}

func TestShopifyClient_WrongTokenIsUnavailable(t *testing.T) {
	shop := newFakeShop(t)
	cfg := shop.config()
	cfg.AccessToken = "wrong"

	_, err := NewShopifyClient(cfg, shop.server.Client()).GetFullInfo(context.Background(), "A1")

	assert.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)
}

func TestShopifyClient_CircuitBreakerOpens(t *testing.T) {
	// given
	shop := newFakeShop(t)
	shop.fail("GET /products.json", fakeFailure{status: http.StatusInternalServerError})
	client := shop.client(WithCircuitBreaker(config.CircuitBreakerConfig{
		ConsecutiveFailures: 2,
		ErrorRatePercent:    50,
		OpenTimeout:         time.Minute,
	}))

	// when
	for range 3 {
		_, err := client.GetFullInfo(context.Background(), "A1")
		require.ErrorIs(t, err, apperrors.ErrRemoteUnavailable)
	}

	// then
	assert.Equal(t, 2, shop.countCalls("GET /products.json"))
}

func TestShopifyClient_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and inventory", func(t *testing.T) {
		// given
		shop := newFakeShop(t)

		// when
		res, err := shop.client().Create(ctx, "N1", ProductFields{Cost: ptr("3.00"), Available: ptr(4)})

		// then
		require.NoError(t, err)
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, "The product was successfully created.", res.Message)
		assert.Equal(t, "New Product", res.Product.Title)
		assert.Equal(t, "0.00", res.Product.Price)
		assert.Equal(t, "shopify", res.Product.InventoryManagement)
		assert.True(t, res.Product.Tracked)
		assert.Equal(t, ptr("3.00"), res.Product.Cost)
		assert.Equal(t, ptr(4), res.Product.Available)
	})

	t.Run("sku is required", func(t *testing.T) {
		shop := newFakeShop(t)

		res, err := shop.client().Create(ctx, "  ", ProductFields{})

		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, "SKU is required", res.Message)
		assert.Empty(t, shop.recorded())
	})
}

func TestShopifyClient_CreateUnderRetry(t *testing.T) {
	ctx := context.Background()
	noSleep := func(context.Context, time.Duration) error { return nil }
	executor := ratelimit.NewExecutor(config.RetryConfig{MaxRetries: 3}, noSleep, slog.New(slog.DiscardHandler))

	t.Run("throttle after the product is posted is not retried", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.fail("GET /inventory_items/{id}.json", fakeFailure{status: http.StatusTooManyRequests, retryAfter: "1", remaining: 1})
		client := shop.client()

		// when
		res, err := ratelimit.Do(ctx, executor, func(ctx context.Context) (*Result, error) {
			return client.Create(ctx, "NEW1", ProductFields{Available: ptr(2)})
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, StageTracking, res.Stage)
		assert.Equal(t, 1, shop.countCalls("POST /products.json"))
		shop.mu.Lock()
		defer shop.mu.Unlock()
		carrying := 0
		for _, p := range shop.products {
			if variantBySKU(p, "NEW1") != nil {
				carrying++
			}
		}
		assert.Equal(t, 1, carrying)
	})

	t.Run("throttled sku check is retried before posting", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.fail("GET /products.json", fakeFailure{status: http.StatusTooManyRequests, retryAfter: "1", remaining: 1})
		client := shop.client()

		// when
		res, err := ratelimit.Do(ctx, executor, func(ctx context.Context) (*Result, error) {
			return client.Create(ctx, "NEW2", ProductFields{})
		})

		// then
		require.NoError(t, err)
		assert.True(t, res.OK(), res.Message)
		assert.Equal(t, 1, shop.countCalls("POST /products.json"))
	})

	t.Run("existing sku is rejected without posting", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.seed("A1", "Strat", "19.99", 5)

		// when
		res, err := shop.client().Create(ctx, "A1", ProductFields{Title: ptr("Dup")})

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, StageValidation, res.Stage)
		assert.Equal(t, "Product with SKU 'A1' already exists.", res.Message)
		assert.Zero(t, shop.countCalls("POST /products.json"))
	})
}

func TestShopifyClient_SaleRoundTrip(t *testing.T) {
	// given
	ctx := context.Background()
	shop := newFakeShop(t)
	shop.seed("A1", "Strat", "19.99", 5)
	client := shop.client()
	before, err := client.GetFullInfo(ctx, "A1")
	require.NoError(t, err)

	// when
	onSale, err := client.PutOnSale(ctx, "A1", "14.99", "19.99", nil)
	require.NoError(t, err)
	require.True(t, onSale.OK(), onSale.Message)
	assert.Equal(t, "14.99", onSale.Product.Price)
	assert.Equal(t, ptr("19.99"), onSale.Product.CompareAtPrice)
	assert.Equal(t, "strings, summer, on-sale", onSale.Product.Tags)

	offSale, err := client.TakeOffSale(ctx, "A1", nil)

	// then
	require.NoError(t, err)
	require.True(t, offSale.OK(), offSale.Message)
	after := offSale.Product
	assert.Equal(t, "19.99", after.Price)
	assert.Nil(t, after.CompareAtPrice)
	assert.Equal(t, before.Tags, after.Tags)
	assert.Equal(t, before.Title, after.Title)
	assert.Equal(t, before.Vendor, after.Vendor)
	assert.Equal(t, before.BodyHTML, after.BodyHTML)
	assert.Equal(t, before.Cost, after.Cost)
	assert.Equal(t, before.Available, after.Available)
}

func TestShopifyClient_TakeOffSaleTwiceIsNoop(t *testing.T) {
	// given
	ctx := context.Background()
	shop := newFakeShop(t)
	shop.seed("A1", "Strat", "19.99", 5)
	client := shop.client()

	// when
	first, err := client.TakeOffSale(ctx, "A1", nil)
	require.NoError(t, err)
	second, err := client.TakeOffSale(ctx, "A1", nil)
	require.NoError(t, err)

	// then
	assert.True(t, first.OK())
	assert.True(t, second.OK())
	assert.Equal(t, "19.99", second.Product.Price)
	assert.Zero(t, shop.countCalls("PUT /variants/{id}.json"))
	assert.Zero(t, shop.countCalls("PUT /products/{id}.json"))
}

func TestShopifyClient_PutOnSaleRejectsHigherSalePrice(t *testing.T) {
	shop := newFakeShop(t)
	shop.seed("A1", "Strat", "19.99", 5)

	res, err := shop.client().PutOnSale(context.Background(), "A1", "25.00", "", nil)

	require.NoError(t, err)
	assert.Equal(t, StageValidation, res.Stage)
	assert.Zero(t, shop.countCalls("PUT /variants/{id}.json"))
}

func TestShopifyClient_DisableIsNotDoubled(t *testing.T) {
	// given
	ctx := context.Background()
	shop := newFakeShop(t)
	shop.seed("A1", "Strat", "19.99", 5)
	client := shop.client()

	// when
	_, err := client.Disable(ctx, "A1")
	require.NoError(t, err)
	res, err := client.Disable(ctx, "A1")

	// then
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, "Unavailable – Strat", res.Product.Title)
	assert.Equal(t, "", res.Product.Tags)
	assert.Equal(t, "Unavailable", res.Product.ProductType)
	assert.Equal(t, "deny", res.Product.InventoryPolicy)
	assert.Equal(t, unavailableNotice+"<p>Nice</p>", res.Product.BodyHTML)
}

func TestCachedLocator(t *testing.T) {
	ctx := context.Background()

	t.Run("second lookup reads the product directly", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		shop.pageSize = 1
		shop.seed("S1", "One", "1.00", 1)
		shop.seed("S2", "Two", "2.00", 1)
		client := shop.client(WithSKUIndex(cache.NewMemoryCache(), time.Hour))

		// when
		_, _, err := client.FindBySKU(ctx, "S2")
		require.NoError(t, err)
		_, v, err := client.FindBySKU(ctx, "S1")

		// then
		require.NoError(t, err)
		assert.Equal(t, "S1", v.SKU)
		assert.Equal(t, 2, shop.countCalls("GET /products.json"))
		assert.Equal(t, 1, shop.countCalls("GET /products/{id}.json"))
	})

	t.Run("stale entry falls back to a scan", func(t *testing.T) {
		// given
		shop := newFakeShop(t)
		p := shop.seed("S1", "One", "1.00", 1)
		index := cache.NewMemoryCache()
		require.NoError(t, index.Set(ctx, indexKey("S1"), "999999", 0))
		client := shop.client(WithSKUIndex(index, time.Hour))

		// when
		found, _, err := client.FindBySKU(ctx, "S1")

		// then
		require.NoError(t, err)
		assert.Equal(t, p.ID, found.ID)
		assert.Equal(t, 1, shop.countCalls("GET /products.json"))
	})
}

func TestParseNextPageInfo(t *testing.T) {
	testCases := []struct {
		name     string
		header   string
		expected string
		ok       bool
	}{
		{"next only", `<https://s.myshopify.com/admin/api/2024-10/products.json?limit=250&page_info=abc>; rel="next"`, "abc", true},
		{"previous and next", `<https://s/products.json?page_info=prev>; rel="previous", <https://s/products.json?page_info=nxt>; rel="next"`, "nxt", true},
		{"previous only", `<https://s/products.json?page_info=prev>; rel="previous"`, "", false},
		{"empty", "", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseNextPageInfo(tc.header)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected []string
	}{
		{"string", `{"errors":"Not Found"}`, []string{"Not Found"}},
		{"list", `{"errors":["a","b"]}`, []string{"a", "b"}},
		{"field map", `{"errors":{"title":["can't be blank"],"price":["must be a number"]}}`, []string{"price must be a number", "title can't be blank"}},
		{"plain body", `oops`, []string{"oops"}},
		{"empty body", ``, []string{"unexpected status 400"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseErrors([]byte(tc.body), http.StatusBadRequest))
		})
	}
}

func TestTags(t *testing.T) {
	tags, changed := addTags("a, on-sale,b", []string{"on-sale", "c"})
	assert.True(t, changed)
	assert.Equal(t, "a, on-sale, b, c", tags)

	tags, changed = addTags("a, b", []string{"A"})
	assert.False(t, changed)
	assert.Equal(t, "a, b", tags)

	tags, changed = removeTags("a, On-Sale, b", []string{"on-sale"})
	assert.True(t, changed)
	assert.Equal(t, "a, b", tags)

	_, changed = removeTags("a, b", []string{"on-sale"})
	assert.False(t, changed)
}
