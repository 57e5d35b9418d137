package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// ClickRecorder counts visits to a link and stores their click events
type ClickRecorder struct {
	db *pgxpool.Pool
}

// NewClickRecorder creates a new click recorder
func NewClickRecorder(db *pgxpool.Pool) *ClickRecorder {
	return &ClickRecorder{db: db}
}

// RecordClick increments the link's counter and, when ip is non-empty,
// appends a click event stamped with at. Both writes share one transaction.
// The UPDATE takes the row lock, so concurrent clicks on the same link
// serialize and each sees the count its own increment produced.
//
// It returns the click count after the increment, or ErrNotFound if the
// link no longer exists.
func (r *ClickRecorder) RecordClick(ctx context.Context, linkID uuid.UUID, ip string, at time.Time) (int64, error) {
	ctx, span := startDBSpan(ctx, "db.record_click", "UPDATE", "links", "")
	defer span.End()
	span.SetAttributes(
		attribute.String("link.id", linkID.String()),
		attribute.Bool("click.has_ip", ip != ""),
	)

	var count int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE links SET click_count = click_count + 1 WHERE id = $1 RETURNING click_count`,
			linkID,
		).Scan(&count)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if ip == "" {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO click_events (link_id, ip, occurred_at) VALUES ($1, $2, $3)`,
			linkID, ip, at,
		)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return 0, err
	}

	return count, nil
}
