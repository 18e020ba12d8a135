package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/embedding/embeddingtest"
	"Giorgio/backend/go/internal/models"
	pkghttp "Giorgio/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 32

func record(id, content string, cat models.MemoryCategory) *models.MemoryRecord {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.MemoryRecord{
		ID: id, OwnerID: "42", Content: content, Category: cat,
		Importance: 7, Source: models.SourceManual, CreatedAt: now, LastAccessed: now,
	}
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "user_memories_42", CollectionName("42"))
	assert.Equal(t, "user_memories_MarioRossi", CollectionName("MarioRossi"))

	names := map[string]string{}
	for _, owner := range []string{"mario.rossi", "mario_rossi", "mario-rossi", "h_mario", "", "a.b", "a_b"} {
		name := CollectionName(owner)
		assert.Regexp(t, `^user_memories_h_[0-9a-f]{64}$`, name)
		if prev, dup := names[name]; dup {
			t.Fatalf("'%s' 与 '%s' 映射到同一集合", owner, prev)
		}
		names[name] = owner
	}
	assert.Equal(t, CollectionName("a.b"), CollectionName("a.b"))
}

func TestPayloadRoundTrip(t *testing.T) {
	rec := record("m1", "Vive a Torino", models.CategoryPersonal)
	got := fromPayload("m1", toPayload(rec))
	assert.Equal(t, *rec, got)

	empty := fromPayload("m2", map[string]string{})
	assert.Equal(t, models.CategoryOther, empty.Category)
	assert.Equal(t, models.DefaultImportance, empty.Importance)
}

func TestChromemStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("")
	require.NoError(t, err)
	coll := CollectionName("42")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureCollection(ctx, coll, dim))
		}()
	}
	wg.Wait()

	recs := []*models.MemoryRecord{
		record("m1", "mi chiamo Marco", models.CategoryPersonal),
		record("m2", "lavoro come ingegnere a Milano", models.CategoryWork),
		record("m3", "mi piace il caffè amaro", models.CategoryPreferences),
	}
	for _, r := range recs {
		require.NoError(t, s.Upsert(ctx, coll, r, embeddingtest.Vector(r.Content, dim)))
	}

	hits, err := s.Search(ctx, coll, embeddingtest.Vector("come mi chiamo Marco", dim), Query{OwnerID: "42", Limit: 10, Threshold: 0.3})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].ID)
	assert.Equal(t, "mi chiamo Marco", hits[0].Content)

	hits, err = s.Search(ctx, coll, embeddingtest.Vector("mi chiamo Marco", dim), Query{OwnerID: "42", Limit: 10, Category: models.CategoryWork})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, models.CategoryWork, h.Category)
	}

	all, err := s.Scroll(ctx, coll, "42", 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.ErrorIs(t, s.Delete(ctx, coll, "7", "m2"), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, coll, "42", "missing"), ErrNotFound)
	require.NoError(t, s.Delete(ctx, coll, "42", "m2"))
	all, err = s.Scroll(ctx, coll, "42", 100)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestChromemStoreFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore("")
	require.NoError(t, err)
	coll := "shared"
	require.NoError(t, s.EnsureCollection(ctx, coll, dim))

	mine := record("m1", "il conto corrente è 12345", models.CategoryPersonal)
	theirs := record("m2", "il conto corrente è 12345", models.CategoryPersonal)
	theirs.OwnerID = "7"
	for _, r := range []*models.MemoryRecord{mine, theirs} {
		require.NoError(t, s.Upsert(ctx, coll, r, embeddingtest.Vector(r.Content, dim)))
	}

	hits, err := s.Search(ctx, coll, embeddingtest.Vector(mine.Content, dim), Query{OwnerID: "7", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].ID)

	all, err := s.Scroll(ctx, coll, "42", 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m1", all[0].ID)

	assert.ErrorIs(t, s.Delete(ctx, coll, "42", "m2"), ErrNotFound)
	all, err = s.Scroll(ctx, coll, "7", 100)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestChromemStoreMissingCollection(t *testing.T) {
	s, err := NewChromemStore("")
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "nope", make([]float32, dim), Query{OwnerID: "42", Limit: 1})
	assert.Error(t, err)
}

func TestQdrantStore(t *testing.T) {
	var (
		mu      sync.Mutex
		created bool
		points  = map[string]qdrantPoint{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/user_memories_42":
			if !created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"result":{}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/user_memories_42":
			created = true
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/user_memories_42/points":
			var ps []qdrantPoint
			_ = json.Unmarshal(body["points"], &ps)
			for _, p := range ps {
				points[p.ID] = p
			}
			_, _ = w.Write([]byte(`{"result":{}}`))
		case r.URL.Path == "/collections/user_memories_42/points/search":
			filter := decodeFilter(t, body["filter"])
			var res []qdrantPoint
			for _, p := range points {
				if !filter.matches(p) {
					continue
				}
				p.Vector = nil
				p.Score = 0.9
				res = append(res, p)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": res})
		case r.URL.Path == "/collections/user_memories_42/points/scroll":
			filter := decodeFilter(t, body["filter"])
			res := []qdrantPoint{}
			for _, p := range points {
				if !filter.matches(p) {
					continue
				}
				p.Vector = nil
				res = append(res, p)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"points": res}})
		case r.URL.Path == "/collections/user_memories_42/points/delete":
			var ids []string
			_ = json.Unmarshal(body["points"], &ids)
			for _, id := range ids {
				delete(points, id)
			}
			_, _ = w.Write([]byte(`{"result":{}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{}, pkghttp.WithHeader("api-key", "secret"))
	require.NoError(t, err)
	s := NewQdrantStore(client, srv.URL+"/")
	ctx := context.Background()
	coll := CollectionName("42")

	require.NoError(t, s.EnsureCollection(ctx, coll, dim))
	require.NoError(t, s.EnsureCollection(ctx, coll, dim))
	rec := record("7c6f", "preferisce il tè", models.CategoryPreferences)
	require.NoError(t, s.Upsert(ctx, coll, rec, embeddingtest.Vector(rec.Content, dim)))

	hits, err := s.Search(ctx, coll, embeddingtest.Vector("tè", dim), Query{OwnerID: "42", Limit: 5, Threshold: 0.6, Category: models.CategoryPreferences})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, *rec, hits[0].MemoryRecord)

	hits, err = s.Search(ctx, coll, embeddingtest.Vector("tè", dim), Query{OwnerID: "7", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)

	all, err := s.Scroll(ctx, coll, "42", 100)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, s.Delete(ctx, coll, "7", "7c6f"), ErrNotFound)
	require.NoError(t, s.Delete(ctx, coll, "42", "7c6f"))
	all, err = s.Scroll(ctx, coll, "42", 100)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func decodeFilter(t *testing.T, raw json.RawMessage) qdrantFilter {
	var f qdrantFilter
	if len(raw) > 0 {
		assert.NoError(t, json.Unmarshal(raw, &f))
	}
	return f
}

func (f qdrantFilter) matches(p qdrantPoint) bool {
	for _, c := range f.Must {
		if c.Match != nil && p.Payload[c.Key] != c.Match.Value {
			return false
		}
		if len(c.HasID) > 0 && !slices.Contains(c.HasID, p.ID) {
			return false
		}
	}
	return true
}
