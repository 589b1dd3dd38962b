package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/go-chi/chi/v5"
)

const (
	fakeToken      = "shpat_test"
	fakeAPIVersion = "2024-10"
	fakeLocationID = 77
)

type fakeFailure struct {
	status     int
	body       string
	retryAfter string
	remaining  int // 0 means every call fails
}

// fakeShop is an in-memory Admin REST API good enough for the client's call sequences.
type fakeShop struct {
	mu       sync.Mutex
	products []*Product
	items    map[int64]*inventoryItem
	levels   map[int64]*inventoryLevel
	nextID   int64
	pageSize int
	calls    []string
	failures map[string]*fakeFailure
	server   *httptest.Server
}

func newFakeShop(t *testing.T) *fakeShop {
	t.Helper()
	s := &fakeShop{
		items:    map[int64]*inventoryItem{},
		levels:   map[int64]*inventoryLevel{},
		nextID:   1000,
		pageSize: 250,
		failures: map[string]*fakeFailure{},
	}
	r := chi.NewRouter()
	r.Route("/admin/api/"+fakeAPIVersion, func(r chi.Router) {
		r.Get("/products.json", s.handle(s.listProducts))
		r.Post("/products.json", s.handle(s.createProduct))
		r.Get("/products/{id}.json", s.handle(s.getProduct))
		r.Put("/products/{id}.json", s.handle(s.putProduct))
		r.Put("/variants/{id}.json", s.handle(s.putVariant))
		r.Get("/inventory_items/{id}.json", s.handle(s.getItem))
		r.Put("/inventory_items/{id}.json", s.handle(s.putItem))
		r.Get("/inventory_levels.json", s.handle(s.getLevels))
		r.Post("/inventory_levels/set.json", s.handle(s.setLevel))
	})
	s.server = httptest.NewServer(r)
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeShop) config() config.ShopifyConfig {
	return config.ShopifyConfig{
		BaseURL:           s.server.URL,
		AccessToken:       fakeToken,
		APIVersion:        fakeAPIVersion,
		Timeout:           5 * time.Second,
		PageSize:          s.pageSize,
		RequestsPerSecond: 1000,
	}
}

func (s *fakeShop) client(opts ...Option) *ShopifyClient {
	return NewShopifyClient(s.config(), s.server.Client(), opts...)
}

// seed adds a product with a single variant stocked at the fake location.
func (s *fakeShop) seed(sku, title, price string, available int) *Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Product{ID: s.id(), Title: title, ProductType: "Guitar", Vendor: "Fender", Tags: "strings, summer", BodyHTML: "<p>Nice</p>"}
	v := Variant{ID: s.id(), ProductID: p.ID, SKU: sku, Price: price, InventoryItemID: s.id(), InventoryPolicy: "continue"}
	p.Variants = []Variant{v}
	s.products = append(s.products, p)
	cost := "5.00"
	s.items[v.InventoryItemID] = &inventoryItem{ID: v.InventoryItemID, Cost: &cost}
	s.levels[v.InventoryItemID] = &inventoryLevel{InventoryItemID: v.InventoryItemID, LocationID: fakeLocationID, Available: &available}
	return p
}

func (s *fakeShop) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeShop) fail(route string, f fakeFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &f
}

func (s *fakeShop) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeShop) countCalls(route string) int {
	n := 0
	for _, c := range s.recorded() {
		if c == route {
			n++
		}
	}
	return n
}

func (s *fakeShop) product(sku string) (*Product, *Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findSKU(sku)
}

func (s *fakeShop) findSKU(sku string) (*Product, *Variant) {
	for _, p := range s.products {
		for i := range p.Variants {
			if p.Variants[i].SKU == sku {
				return p, &p.Variants[i]
			}
		}
	}
	return nil, nil
}

func (s *fakeShop) handle(fn func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(chi.RouteContext(r.Context()).RoutePattern(), "/admin/api/"+fakeAPIVersion)
		s.mu.Lock()
		s.calls = append(s.calls, route)
		f, failing := s.failures[route]
		if failing && f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				delete(s.failures, route)
			}
		}
		s.mu.Unlock()

		if r.Header.Get(accessTokenHeader) != fakeToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": "[API] Invalid API key or access token"})
			return
		}
		if failing {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (s *fakeShop) listProducts(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("page_info"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	end := min(offset+limit, len(s.products))
	page := make([]Product, 0, end-offset)
	for _, p := range s.products[offset:end] {
		page = append(page, *p)
	}
	if end < len(s.products) {
		next := fmt.Sprintf("%s/admin/api/%s/products.json?limit=%d&page_info=%d", s.server.URL, fakeAPIVersion, limit, end)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": page})
}

func (s *fakeShop) getProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	for _, p := range s.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"product": p})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
}

func (s *fakeShop) createProduct(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Product map[string]json.RawMessage `json:"product"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": err.Error()})
		return
	}
	p := &Product{ID: s.id()}
	applyProduct(p, in.Product)
	var variants []map[string]json.RawMessage
	_ = json.Unmarshal(in.Product["variants"], &variants)
	for _, raw := range variants {
		v := Variant{ID: s.id(), ProductID: p.ID, InventoryItemID: s.id(), InventoryPolicy: "deny"}
		applyVariant(&v, raw)
		p.Variants = append(p.Variants, v)
		zero := 0
		s.items[v.InventoryItemID] = &inventoryItem{ID: v.InventoryItemID}
		s.levels[v.InventoryItemID] = &inventoryLevel{InventoryItemID: v.InventoryItemID, LocationID: fakeLocationID, Available: &zero}
	}
	s.products = append(s.products, p)
	writeJSON(w, http.StatusCreated, map[string]any{"product": p})
}

func (s *fakeShop) putProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var in struct {
		Product map[string]json.RawMessage `json:"product"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	for _, p := range s.products {
		if p.ID != id {
			continue
		}
		applyProduct(p, in.Product)
		var variants []map[string]json.RawMessage
		_ = json.Unmarshal(in.Product["variants"], &variants)
		for _, raw := range variants {
			var vid int64
			_ = json.Unmarshal(raw["id"], &vid)
			for i := range p.Variants {
				if p.Variants[i].ID == vid {
					applyVariant(&p.Variants[i], raw)
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": p})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
}

func (s *fakeShop) putVariant(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var in struct {
		Variant map[string]json.RawMessage `json:"variant"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	for _, p := range s.products {
		for i := range p.Variants {
			if p.Variants[i].ID == id {
				applyVariant(&p.Variants[i], in.Variant)
				writeJSON(w, http.StatusOK, map[string]any{"variant": p.Variants[i]})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
}

func (s *fakeShop) getItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.items[pathID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory_item": item})
}

func (s *fakeShop) putItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.items[pathID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
		return
	}
	var in struct {
		InventoryItem map[string]json.RawMessage `json:"inventory_item"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if raw, ok := in.InventoryItem["cost"]; ok {
		item.Cost = nullableString(raw)
	}
	if raw, ok := in.InventoryItem["tracked"]; ok {
		_ = json.Unmarshal(raw, &item.Tracked)
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory_item": item})
}

func (s *fakeShop) getLevels(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.URL.Query().Get("inventory_item_ids"), 10, 64)
	levels := []inventoryLevel{}
	if l, ok := s.levels[id]; ok {
		levels = append(levels, *l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory_levels": levels})
}

func (s *fakeShop) setLevel(w http.ResponseWriter, r *http.Request) {
	var in inventoryLevel
	_ = json.NewDecoder(r.Body).Decode(&in)
	item, ok := s.items[in.InventoryItemID]
	if !ok || !item.Tracked {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": []string{"Inventory item does not have inventory tracking enabled"}})
		return
	}
	level := s.levels[in.InventoryItemID]
	level.LocationID = in.LocationID
	level.Available = in.Available
	writeJSON(w, http.StatusOK, map[string]any{"inventory_level": level})
}

func applyProduct(p *Product, raw map[string]json.RawMessage) {
	set := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	set("title", &p.Title)
	set("product_type", &p.ProductType)
	set("vendor", &p.Vendor)
	set("tags", &p.Tags)
	set("body_html", &p.BodyHTML)
}

func applyVariant(v *Variant, raw map[string]json.RawMessage) {
	set := func(key string, dst *string) {
		if val, ok := raw[key]; ok {
			_ = json.Unmarshal(val, dst)
		}
	}
	set("sku", &v.SKU)
	set("price", &v.Price)
	set("inventory_management", &v.InventoryManagement)
	set("inventory_policy", &v.InventoryPolicy)
	if val, ok := raw["compare_at_price"]; ok {
		v.CompareAtPrice = nullableString(val)
	}
}

func nullableString(raw json.RawMessage) *string {
	var s *string
	_ = json.Unmarshal(raw, &s)
	return s
}
