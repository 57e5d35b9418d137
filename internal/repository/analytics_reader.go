package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
)

// AnalyticsReader answers read-only queries about links and their clicks.
// It always reads the database, never the link cache, so click counts are
// current.
type AnalyticsReader struct {
	db *pgxpool.Pool
}

// NewAnalyticsReader creates a new analytics reader
func NewAnalyticsReader(db *pgxpool.Pool) *AnalyticsReader {
	return &AnalyticsReader{db: db}
}

// GetInfo returns the metadata of a link
func (r *AnalyticsReader) GetInfo(ctx context.Context, alias string) (*model.LinkInfo, error) {
	ctx, span := startDBSpan(ctx, "db.select_info", "SELECT", "links", alias)
	defer span.End()

	var info model.LinkInfo
	err := r.db.QueryRow(ctx,
		`SELECT original_url, created_at, click_count FROM links WHERE alias = $1`,
		alias,
	).Scan(&info.OriginalURL, &info.CreatedAt, &info.ClickCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return &info, nil
}

// clickRow is one click_events row; ip is NULL for clicks without an address.
type clickRow struct {
	IP         *string
	OccurredAt time.Time
}

// GetAnalytics returns the click total and the limit most recent click
// events of a link, newest first. Both come from one repeatable-read
// snapshot so the total and the history agree with each other.
func (r *AnalyticsReader) GetAnalytics(ctx context.Context, alias string, limit int) (*model.Analytics, error) {
	ctx, span := startDBSpan(ctx, "db.select_analytics", "SELECT", "click_events", alias)
	defer span.End()

	analytics := &model.Analytics{RecentClicks: []model.RecentClick{}}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

	err := pgx.BeginTxFunc(ctx, r.db, opts, func(tx pgx.Tx) error {
		var linkID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id, click_count FROM links WHERE alias = $1`,
			alias,
		).Scan(&linkID, &analytics.TotalClicks)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT ip, occurred_at
			FROM click_events
			WHERE link_id = $1
			ORDER BY occurred_at DESC, id DESC
			LIMIT $2
		`, linkID, limit)
		if err != nil {
			return err
		}

		events, err := pgx.CollectRows(rows, pgx.RowToStructByPos[clickRow])
		if err != nil {
			return err
		}
		if len(events) > 0 {
			analytics.RecentClicks = lo.Map(events, func(e clickRow, _ int) model.RecentClick {
				return model.RecentClick{IP: lo.FromPtr(e.IP), Time: e.OccurredAt}
			})
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}

	return analytics, nil
}
