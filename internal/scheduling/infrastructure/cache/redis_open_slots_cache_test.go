package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/application/queries"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps cached pages in a map and can simulate a Redis outage.
type fakeStore struct {
	data    map[string]string
	getErr  error
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if s.getErr != nil {
		return redis.NewStringResult("", s.getErr)
	}
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *fakeStore) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	s.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(s.data, k)
		s.deleted = append(s.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type stubReader struct {
	page  *queries.OpenSlotsPageDTO
	err   error
	calls int
}

func (r *stubReader) Handle(ctx context.Context, query queries.GetOpenSlotsQuery) (*queries.OpenSlotsPageDTO, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.page, nil
}

func pageFixture(token string, expiresAt time.Time) *queries.OpenSlotsPageDTO {
	return &queries.OpenSlotsPageDTO{
		Title:     "Kickoff",
		Token:     token,
		ExpiresAt: expiresAt,
		Slots: []queries.OpenSlotDTO{
			{ID: uuid.New(), Start: time.Now().UTC(), End: time.Now().UTC().Add(time.Hour)},
		},
	}
}

func seed(t *testing.T, store *fakeStore, page *queries.OpenSlotsPageDTO) {
	t.Helper()
	raw, err := json.Marshal(page)
	require.NoError(t, err)
	store.data[pageKey(page.Token)] = string(raw)
}

func newCacheLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisOpenSlotsCache_ReadThrough(t *testing.T) {
	store := newFakeStore()
	reader := &stubReader{page: pageFixture("tok-cache", time.Now().UTC().Add(time.Hour))}
	cache := NewRedisOpenSlotsCache(store, reader, DefaultPageTTL, newCacheLogger())
	ctx := context.Background()

	first, err := cache.Handle(ctx, queries.GetOpenSlotsQuery{PageToken: "tok-cache"})
	require.NoError(t, err)
	assert.Equal(t, "tok-cache", first.Token)
	assert.Equal(t, 1, reader.calls)

	// Second read is served from the cache.
	second, err := cache.Handle(ctx, queries.GetOpenSlotsQuery{PageToken: "tok-cache"})
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, 1, reader.calls)
}

func TestRedisOpenSlotsCache_ExpiredHitFallsThrough(t *testing.T) {
	store := newFakeStore()
	seed(t, store, pageFixture("tok-stale", time.Now().UTC().Add(-time.Minute)))
	reader := &stubReader{err: domain.ErrPageExpired}
	cache := NewRedisOpenSlotsCache(store, reader, DefaultPageTTL, newCacheLogger())

	_, err := cache.Handle(context.Background(), queries.GetOpenSlotsQuery{PageToken: "tok-stale"})

	// The expired entry must not be served; the reader decides the outcome.
	assert.ErrorIs(t, err, domain.ErrPageExpired)
	assert.Equal(t, 1, reader.calls)
	assert.Contains(t, store.deleted, pageKey("tok-stale"))
}

func TestRedisOpenSlotsCache_UnreadableEntryDropped(t *testing.T) {
	store := newFakeStore()
	store.data[pageKey("tok-garbled")] = "{not json"
	reader := &stubReader{page: pageFixture("tok-garbled", time.Now().UTC().Add(time.Hour))}
	cache := NewRedisOpenSlotsCache(store, reader, DefaultPageTTL, newCacheLogger())

	page, err := cache.Handle(context.Background(), queries.GetOpenSlotsQuery{PageToken: "tok-garbled"})

	require.NoError(t, err)
	assert.Equal(t, "tok-garbled", page.Token)
	assert.Equal(t, 1, reader.calls)
	assert.Contains(t, store.deleted, pageKey("tok-garbled"))
}

func TestRedisOpenSlotsCache_DegradesWhenRedisDown(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	reader := &stubReader{page: pageFixture("tok-down", time.Now().UTC().Add(time.Hour))}
	cache := NewRedisOpenSlotsCache(store, reader, DefaultPageTTL, newCacheLogger())

	page, err := cache.Handle(context.Background(), queries.GetOpenSlotsQuery{PageToken: "tok-down"})

	require.NoError(t, err)
	assert.Equal(t, "tok-down", page.Token)
}

func TestRedisOpenSlotsCache_Invalidate(t *testing.T) {
	store := newFakeStore()
	seed(t, store, pageFixture("tok-claimed", time.Now().UTC().Add(time.Hour)))
	reader := &stubReader{page: pageFixture("tok-claimed", time.Now().UTC().Add(time.Hour))}
	cache := NewRedisOpenSlotsCache(store, reader, DefaultPageTTL, newCacheLogger())

	cache.Invalidate(context.Background(), "tok-claimed")

	_, cached := store.data[pageKey("tok-claimed")]
	assert.False(t, cached)
}
