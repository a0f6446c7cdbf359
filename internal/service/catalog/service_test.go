package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository/memory"
	"github.com/mamadbah2/provisioning/pkg/apperr"
	catalogclient "github.com/mamadbah2/provisioning/pkg/clients/catalog"
)

var (
	cereals     = models.Group{ID: 4, Name: "Cereals"}
	genericRice = models.GenericProductRef{ID: 10, Code: "GEN-RICE", Name: "Generic rice", Unit: "kg", GroupID: 4}
	genericOats = models.GenericProductRef{ID: 11, Code: "GEN-OATS", Name: "Generic oats", Unit: "kg", GroupID: 4}
	rice        = models.OriginProduct{ID: 1, Name: "Rice", Unit: "kg", GroupID: 4, GroupName: "Cereals", DefaultGeneric: &genericRice}
)

func seededCatalog() *memory.Catalog {
	c := memory.NewCatalog()
	c.PutGroup(cereals)
	c.PutGeneric(genericRice)
	c.PutGeneric(genericOats)
	c.PutOrigin(rice)
	return c
}

func TestResolveGroupCandidates_FallbackEquivalence(t *testing.T) {
	ctx := context.Background()
	mirror := seededCatalog()
	upstream := seededCatalog()
	upstream.Err = &catalogclient.Error{Kind: catalogclient.KindTimeout, Path: "/groups/4/generic-products"}

	svc := NewService(upstream, mirror, NewMemoryCache(time.Hour), nil)

	direct, err := mirror.GenericProductsByGroup(ctx, cereals.ID)
	require.NoError(t, err)

	assert.Equal(t, direct, svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: cereals.ID}))
	assert.Equal(t, direct, svc.ResolveGroupCandidates(ctx, models.GroupKey{Name: "cereals"}))
}

func TestResolveGroupCandidates_CachesUpstreamSuccess(t *testing.T) {
	ctx := context.Background()
	upstream := seededCatalog()
	mirror := seededCatalog()
	svc := NewService(upstream, mirror, NewMemoryCache(time.Hour), nil)

	first := svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4})
	calls := upstream.Calls()
	second := svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4})

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.Equal(t, calls, upstream.Calls(), "second lookup must be served from cache")
	assert.Zero(t, mirror.Calls())
}

func TestResolveGroupCandidates_DoesNotCacheFailuresOrEmpty(t *testing.T) {
	ctx := context.Background()
	upstream := seededCatalog()
	upstream.Err = &catalogclient.Error{Kind: catalogclient.KindServerError, Status: 503}
	mirror := seededCatalog()
	cache := NewMemoryCache(time.Hour)
	svc := NewService(upstream, mirror, cache, nil)

	assert.Len(t, svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4}), 2)
	assert.Zero(t, cache.Len(), "fallback answers are not cached")

	upstream.Err = nil
	assert.Empty(t, svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 99}))
	assert.Zero(t, cache.Len(), "empty answers are not cached")

	assert.Len(t, svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4}), 2)
	assert.Equal(t, 1, cache.Len())
}

func TestResolveGroupID_CachesNameSeparately(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Hour)
	svc := NewService(seededCatalog(), seededCatalog(), cache, nil)

	id, ok := svc.ResolveGroupID(ctx, models.GroupKey{Name: " Cereals "})
	require.True(t, ok)
	assert.Equal(t, int64(4), id)

	_, hit := cache.Get(ctx, "group-name:cereals")
	assert.True(t, hit)
	_, hit = cache.Get(ctx, "group:4")
	assert.False(t, hit, "name resolution must not populate the candidates entry")

	_, ok = svc.ResolveGroupID(ctx, models.GroupKey{Name: "Unknown"})
	assert.False(t, ok)
	_, ok = svc.ResolveGroupID(ctx, models.GroupKey{})
	assert.False(t, ok)
}

func TestResolveDefaultSubstitute(t *testing.T) {
	ctx := context.Background()
	upstream := seededCatalog()
	upstream.Err = &catalogclient.Error{Kind: catalogclient.KindMalformed}
	svc := NewService(upstream, seededCatalog(), NewMemoryCache(time.Hour), nil)

	got := svc.ResolveDefaultSubstitute(ctx, rice.ID)
	require.NotNil(t, got)
	assert.Equal(t, genericRice, *got)

	assert.Nil(t, svc.ResolveDefaultSubstitute(ctx, 404))
}

func TestLookups_BothSourcesDown(t *testing.T) {
	ctx := context.Background()
	upstream := seededCatalog()
	upstream.Err = &catalogclient.Error{Kind: catalogclient.KindTransport}
	mirror := seededCatalog()
	mirror.Err = assert.AnError
	svc := NewService(upstream, mirror, NewMemoryCache(time.Hour), nil)

	assert.Empty(t, svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4}))
	assert.Nil(t, svc.ResolveDefaultSubstitute(ctx, rice.ID))

	_, err := svc.ResolveGenericProduct(ctx, genericRice.ID)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestResolveGenericProduct_NotFound(t *testing.T) {
	svc := NewService(nil, seededCatalog(), NewMemoryCache(time.Hour), nil)

	_, err := svc.ResolveGenericProduct(context.Background(), 12345)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := svc.ResolveGenericProduct(context.Background(), genericOats.ID)
	require.NoError(t, err)
	assert.Equal(t, genericOats, got)
}

func TestSearchCandidates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seededCatalog(), seededCatalog(), NewMemoryCache(time.Hour), nil)

	byOrigin := svc.SearchCandidates(ctx, rice.ID, "", "rice")
	require.Len(t, byOrigin, 1)
	assert.Equal(t, genericRice.ID, byOrigin[0].ID)

	byCode := svc.SearchCandidates(ctx, 0, "Cereals", "gen-oats")
	require.Len(t, byCode, 1)
	assert.Equal(t, genericOats.ID, byCode[0].ID)

	assert.Len(t, svc.SearchCandidates(ctx, 0, "4", ""), 2)
	assert.Empty(t, svc.SearchCandidates(ctx, 0, "", "rice"))
}

func TestFlush_ForcesUpstreamRefresh(t *testing.T) {
	ctx := context.Background()
	upstream := seededCatalog()
	svc := NewService(upstream, seededCatalog(), NewMemoryCache(time.Hour), nil)

	svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4})
	before := upstream.Calls()
	require.NoError(t, svc.Flush(ctx))
	svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4})

	assert.Equal(t, before+1, upstream.Calls())
}

func TestResolveGroupCandidates_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seededCatalog(), seededCatalog(), NewMemoryCache(time.Hour), nil)

	var wg sync.WaitGroup
	results := make([][]models.GenericProductRef, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.ResolveGroupCandidates(ctx, models.GroupKey{ID: 4})
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Len(t, r, 2)
	}
}

// gatedSource holds GenericProduct calls until release is closed.
type gatedSource struct {
	*memory.Catalog
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) GenericProduct(ctx context.Context, id int64) (models.GenericProductRef, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return models.GenericProductRef{}, err
	}
	return g.Catalog.GenericProduct(ctx, id)
}

func TestResolveGenericProduct_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	upstream := &gatedSource{Catalog: seededCatalog(), started: make(chan struct{}), release: make(chan struct{})}
	mirror := seededCatalog()
	mirror.Err = errors.New("mirror down")
	svc := NewService(upstream, mirror, NewMemoryCache(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		product models.GenericProductRef
		err     error
	}
	first := make(chan result, 1)
	go func() {
		p, err := svc.ResolveGenericProduct(ctx, genericRice.ID)
		first <- result{p, err}
	}()
	<-upstream.started

	second := make(chan result, 1)
	go func() {
		p, err := svc.ResolveGenericProduct(context.Background(), genericRice.ID)
		second <- result{p, err}
	}()

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(upstream.release)

	for _, ch := range []chan result{first, second} {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, genericRice, r.product)
	}
}
