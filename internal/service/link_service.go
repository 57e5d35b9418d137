package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
)

// ClickRecorder atomically counts a click and stores its event
type ClickRecorder interface {
	RecordClick(ctx context.Context, linkID uuid.UUID, ip string, at time.Time) (int64, error)
}

// AnalyticsReader answers read-only link queries
type AnalyticsReader interface {
	GetInfo(ctx context.Context, alias string) (*model.LinkInfo, error)
	GetAnalytics(ctx context.Context, alias string, limit int) (*model.Analytics, error)
}

// linkRefresher is implemented by stores that can hand out a link whose row
// is gone, such as a cache in front of the database.
type linkRefresher interface {
	RefreshByAlias(ctx context.Context, alias string) (*model.Link, error)
}

// LinkServiceInterface defines the contract for link lifecycle operations
type LinkServiceInterface interface {
	CreateShortURL(ctx context.Context, req *model.CreateLinkRequest) (*model.Link, error)
	Resolve(ctx context.Context, alias, ip string) (*model.Link, error)
	GetInfo(ctx context.Context, alias string) (*model.LinkInfo, error)
	GetAnalytics(ctx context.Context, alias string) (*model.Analytics, error)
	DeleteByAlias(ctx context.Context, alias string) error
	ShortURL(alias string) string
}

// Config holds the tunables of LinkService
type Config struct {
	BaseURL           string
	AliasLength       int
	AliasRetries      int
	RecentClicksLimit int
}

// Option customises a LinkService
type Option func(*LinkService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *LinkService) { s.now = now }
}

// WithAliasGenerator replaces the random alias generator
func WithAliasGenerator(g AliasGenerator) Option {
	return func(s *LinkService) { s.generator = g }
}

// WithPublisher sets the event publisher. The default discards events.
func WithPublisher(p events.Publisher) Option {
	return func(s *LinkService) { s.publisher = p }
}

// LinkService creates, resolves and deletes links. It holds no state of its
// own: every operation goes to the store, and every operation reads the
// clock exactly once.
type LinkService struct {
	store     repository.LinkStore
	recorder  ClickRecorder
	reader    AnalyticsReader
	generator AliasGenerator
	publisher events.Publisher
	metrics   *serviceMetrics
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

// NewLinkService creates a new link service
func NewLinkService(store repository.LinkStore, recorder ClickRecorder, reader AnalyticsReader, logger *slog.Logger, cfg Config, opts ...Option) *LinkService {
	s := &LinkService{
		store:     store,
		recorder:  recorder,
		reader:    reader,
		generator: NewRandomAliasGenerator(cfg.AliasLength),
		publisher: events.NoopPublisher{},
		metrics:   newServiceMetrics(),
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShortURL stores a new link under the requested alias, or under a
// generated one when none is given. A taken requested alias fails with
// ErrConflict; generated aliases are retried up to AliasRetries times.
func (s *LinkService) CreateShortURL(ctx context.Context, req *model.CreateLinkRequest) (*model.Link, error) {
	now := s.now()

	if req.Alias != "" {
		if err := ValidateAlias(req.Alias); err != nil {
			return nil, err
		}
		link := newLink(req, req.Alias, now)
		if err := s.store.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrAliasConflict) {
				return nil, ErrConflict
			}
			s.logger.ErrorContext(ctx, "failed to create link",
				slog.String("alias", req.Alias),
				slog.String("error", err.Error()))
			return nil, storageError("create link", err)
		}
		s.linkCreated(ctx, link, false)
		return link, nil
	}

	for attempt := 1; attempt <= s.cfg.AliasRetries; attempt++ {
		candidate, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAliasGeneration, err)
		}
		if ValidateAlias(candidate) != nil {
			continue
		}

		link := newLink(req, candidate, now)
		err = s.store.Create(ctx, link)
		if err == nil {
			s.linkCreated(ctx, link, true)
			return link, nil
		}
		if !errors.Is(err, repository.ErrAliasConflict) {
			s.logger.ErrorContext(ctx, "failed to create link",
				slog.String("alias", candidate),
				slog.String("error", err.Error()))
			return nil, storageError("create link", err)
		}
		s.logger.WarnContext(ctx, "generated alias collided, retrying",
			slog.String("alias", candidate),
			slog.Int("attempt", attempt))
	}

	return nil, ErrAliasGeneration
}

// Resolve looks up alias and records a click for it. Unknown and expired
// aliases both yield ErrNotFound so callers cannot tell them apart. The
// returned link carries the click count produced by this very click.
func (s *LinkService) Resolve(ctx context.Context, alias, ip string) (*model.Link, error) {
	now := s.now()

	link, err := s.store.GetByAlias(ctx, alias)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.resolved(ctx, resultNotFound)
			return nil, ErrNotFound
		}
		s.metrics.resolved(ctx, resultError)
		return nil, storageError("look up link", err)
	}

	if link.IsExpired(now) {
		if link, err = s.reload(ctx, link, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.metrics.resolved(ctx, resultExpired)
				s.logger.DebugContext(ctx, "link expired", slog.String("alias", alias))
				return nil, ErrNotFound
			}
			s.metrics.resolved(ctx, resultError)
			return nil, storageError("look up link", err)
		}
	}

	count, err := s.recorder.RecordClick(ctx, link.ID, ip, now)
	if errors.Is(err, repository.ErrNotFound) {
		if link, err = s.reload(ctx, link, now); err == nil {
			count, err = s.recorder.RecordClick(ctx, link.ID, ip, now)
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.resolved(ctx, resultNotFound)
			return nil, ErrNotFound
		}
		s.metrics.resolved(ctx, resultError)
		s.logger.ErrorContext(ctx, "failed to record click",
			slog.String("alias", alias),
			slog.String("error", err.Error()))
		return nil, storageError("record click", err)
	}
	link.ClickCount = count

	s.metrics.resolved(ctx, resultRedirected)
	s.logger.DebugContext(ctx, "link resolved",
		slog.String("alias", alias),
		slog.Int64("click_count", count))
	s.publish(ctx, events.Event{
		Type:       events.LinkClicked,
		Alias:      link.Alias,
		LinkID:     link.ID.String(),
		IP:         ip,
		ClickCount: count,
		OccurredAt: now,
	})

	return link, nil
}

// reload fetches the current row behind a link that may have come from a
// cache entry outliving its row. The alias may have been created again since,
// so the result is ErrNotFound unless the alias now names a different,
// unexpired link.
func (s *LinkService) reload(ctx context.Context, stale *model.Link, now time.Time) (*model.Link, error) {
	refresher, ok := s.store.(linkRefresher)
	if !ok {
		return nil, repository.ErrNotFound
	}

	link, err := refresher.RefreshByAlias(ctx, stale.Alias)
	if err != nil {
		return nil, err
	}
	if link.ID == stale.ID || link.IsExpired(now) {
		return nil, repository.ErrNotFound
	}
	s.logger.DebugContext(ctx, "replaced stale link", slog.String("alias", link.Alias))
	return link, nil
}

// GetInfo returns link metadata. Expired links are still reported.
func (s *LinkService) GetInfo(ctx context.Context, alias string) (*model.LinkInfo, error) {
	info, err := s.reader.GetInfo(ctx, alias)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("read link info", err)
	}
	return info, nil
}

// GetAnalytics returns the click total and most recent clicks of a link
func (s *LinkService) GetAnalytics(ctx context.Context, alias string) (*model.Analytics, error) {
	analytics, err := s.reader.GetAnalytics(ctx, alias, s.cfg.RecentClicksLimit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("read link analytics", err)
	}
	return analytics, nil
}

// DeleteByAlias permanently removes a link and its click history
func (s *LinkService) DeleteByAlias(ctx context.Context, alias string) error {
	now := s.now()

	if err := s.store.DeleteByAlias(ctx, alias); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete link", err)
	}

	s.metrics.linkDeleted(ctx)
	s.logger.InfoContext(ctx, "link deleted", slog.String("alias", alias))
	s.publish(ctx, events.Event{
		Type:       events.LinkDeleted,
		Alias:      alias,
		OccurredAt: now,
	})
	return nil
}

// ShortURL returns the public URL of alias
func (s *LinkService) ShortURL(alias string) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + alias
}

func (s *LinkService) linkCreated(ctx context.Context, link *model.Link, generated bool) {
	s.metrics.linkCreated(ctx, generated)
	s.logger.InfoContext(ctx, "link created",
		slog.String("alias", link.Alias),
		slog.Bool("generated", generated))
	s.publish(ctx, events.Event{
		Type:        events.LinkCreated,
		Alias:       link.Alias,
		LinkID:      link.ID.String(),
		OriginalURL: link.OriginalURL,
		OccurredAt:  link.CreatedAt,
	})
}

// publish is best effort; the committed database state is authoritative.
func (s *LinkService) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", evt.Type),
			slog.String("alias", evt.Alias),
			slog.String("error", err.Error()))
	}
}

func newLink(req *model.CreateLinkRequest, alias string, now time.Time) *model.Link {
	return &model.Link{
		ID:          uuid.New(),
		Alias:       alias,
		OriginalURL: req.OriginalURL,
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
	}
}

// Ensure LinkService implements LinkServiceInterface at compile time
var _ LinkServiceInterface = (*LinkService)(nil)
