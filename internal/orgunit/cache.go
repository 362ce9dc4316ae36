package orgunit

import (
	"context"
	"errors"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// ErrChildrenUnsupported is returned when the wrapped repository cannot list children.
var ErrChildrenUnsupported = errors.New("orgunit: children listing not supported")

// DefaultLookupTimeout bounds a shared unit lookup.
const DefaultLookupTimeout = 5 * time.Second

// CachedRepository memoizes successful unit lookups for a bounded time and
// collapses concurrent lookups of the same id. Misses and errors are never stored.
//
// A shared lookup is detached from the cancellation of whichever caller started
// it and runs under lookupTimeout instead. Each caller still stops waiting when
// its own context ends.
type CachedRepository struct {
	inner         Repository
	cache         *lru.LRU[int64, Unit]
	group         singleflight.Group
	lookupTimeout time.Duration
}

// NewCachedRepository wraps inner with an expiring LRU of the given size.
func NewCachedRepository(inner Repository, size int, ttl time.Duration) *CachedRepository {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedRepository{
		inner:         inner,
		cache:         lru.NewLRU[int64, Unit](size, nil, ttl),
		lookupTimeout: DefaultLookupTimeout,
	}
}

// Unit returns the cached unit or loads it from the wrapped repository.
func (c *CachedRepository) Unit(ctx context.Context, id int64) (Unit, error) {
	if unit, ok := c.cache.Get(id); ok {
		return unit, nil
	}
	ch := c.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()
		unit, err := c.inner.Unit(lookupCtx, id)
		if err != nil {
			return Unit{}, err
		}
		c.cache.Add(id, unit)
		return unit, nil
	})
	select {
	case <-ctx.Done():
		return Unit{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Unit{}, res.Err
		}
		return res.Val.(Unit), nil
	}
}

// Children delegates to the wrapped repository without caching.
func (c *CachedRepository) Children(ctx context.Context, parentID int64) ([]Unit, error) {
	lister, ok := c.inner.(Lister)
	if !ok {
		return nil, ErrChildrenUnsupported
	}
	return lister.Children(ctx, parentID)
}

// Purge drops every cached unit.
func (c *CachedRepository) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached units.
func (c *CachedRepository) Len() int {
	return c.cache.Len()
}

var _ Lister = (*CachedRepository)(nil)
