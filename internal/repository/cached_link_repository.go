package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"golang.org/x/sync/singleflight"
)

const (
	linkCachePrefix = "link:"
	// lookupTimeout bounds a shared database lookup, which no longer
	// follows any single caller's deadline.
	lookupTimeout = 5 * time.Second
)

// LinkStore is the persistence contract shared by LinkRepository and its
// cached decorator.
type LinkStore interface {
	Create(ctx context.Context, link *model.Link) error
	GetByAlias(ctx context.Context, alias string) (*model.Link, error)
	DeleteByAlias(ctx context.Context, alias string) error
}

var (
	_ LinkStore = (*LinkRepository)(nil)
	_ LinkStore = (*CachedLinkRepository)(nil)
)

// CachedLinkRepository puts a Redis cache-aside layer in front of
// LinkRepository. Redis calls go through a circuit breaker; any cache
// failure falls back to the database and never fails the request.
//
// Cached entries are only used to locate a link (id, target, expiry). The
// click count they carry goes stale after the first click; callers must not report it.
type CachedLinkRepository struct {
	db      LinkStore
	cache   *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
}

// NewCachedLinkRepository wraps db with a cache. A nil cache disables caching.
func NewCachedLinkRepository(db LinkStore, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLinkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &CachedLinkRepository{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "link-cache",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return r
}

func cacheKey(alias string) string {
	return linkCachePrefix + alias
}

// Create writes through: the link is inserted, then cached.
func (r *CachedLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.Create(ctx, link); err != nil {
		return err
	}
	r.set(ctx, link)
	return nil
}

// GetByAlias with cache-aside pattern. Concurrent misses for the same alias
// share one database query. Not-found results are not cached, so a link
// created right after a failed lookup is visible immediately.
//
// The shared query runs detached from the caller that started it; each
// caller still gives up when its own context is done.
func (r *CachedLinkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	if link, ok := r.get(ctx, alias); ok {
		return link, nil
	}

	ch := r.group.DoChan(alias, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		link, err := r.db.GetByAlias(lookupCtx, alias)
		if err != nil {
			return nil, err
		}
		r.set(lookupCtx, link)
		return link, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers may mutate the result; hand each one its own copy.
		link := *res.Val.(*model.Link)
		return &link, nil
	}
}

// RefreshByAlias drops the cached entry for alias and reloads the link from
// the database. A lookup that read a row just before it was deleted can
// still fill the cache afterwards; callers that find the cached link gone
// use this to replace it with the current row, if any.
func (r *CachedLinkRepository) RefreshByAlias(ctx context.Context, alias string) (*model.Link, error) {
	r.invalidate(ctx, alias)

	link, err := r.db.GetByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	r.set(ctx, link)
	return link, nil
}

// DeleteByAlias deletes from the database first, then drops the cache entry.
func (r *CachedLinkRepository) DeleteByAlias(ctx context.Context, alias string) error {
	if err := r.db.DeleteByAlias(ctx, alias); err != nil {
		return err
	}
	r.invalidate(ctx, alias)
	return nil
}

func (r *CachedLinkRepository) get(ctx context.Context, alias string) (*model.Link, bool) {
	if r.cache == nil {
		return nil, false
	}

	res, err := r.breaker.Execute(func() (interface{}, error) {
		data, err := r.cache.Get(ctx, cacheKey(alias)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		r.logger.WarnContext(ctx, "cache read failed",
			slog.String("alias", alias),
			slog.String("error", err.Error()))
		return nil, false
	}
	data, _ := res.([]byte)
	if data == nil {
		return nil, false
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		r.logger.WarnContext(ctx, "discarding malformed cache entry",
			slog.String("alias", alias),
			slog.String("error", err.Error()))
		r.invalidate(ctx, alias)
		return nil, false
	}
	return &link, true
}

func (r *CachedLinkRepository) set(ctx context.Context, link *model.Link) {
	if r.cache == nil {
		return
	}

	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.cache.Set(ctx, cacheKey(link.Alias), data, r.ttl).Err()
	})
	if err != nil {
		r.logger.WarnContext(ctx, "cache write failed",
			slog.String("alias", link.Alias),
			slog.String("error", err.Error()))
	}
}

func (r *CachedLinkRepository) invalidate(ctx context.Context, alias string) {
	if r.cache == nil {
		return
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.cache.Del(ctx, cacheKey(alias)).Err()
	})
	if err != nil {
		r.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("alias", alias),
			slog.String("error", err.Error()))
	}
}
