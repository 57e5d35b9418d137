package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
)

var (
	ErrNotFound      = errors.New("link not found")
	ErrAliasConflict = errors.New("alias already exists")
)

const (
	uniqueViolation       = "23505"
	aliasUniqueConstraint = "links_alias_key"
)

// LinkRepository handles database operations for links
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a new link. Alias uniqueness is enforced by the
// links_alias_key constraint, so two concurrent inserts of the same alias
// cannot both succeed; the loser gets ErrAliasConflict.
func (r *LinkRepository) Create(ctx context.Context, link *model.Link) error {
	ctx, span := startDBSpan(ctx, "db.insert", "INSERT", "links", link.Alias)
	defer span.End()

	query := `
		INSERT INTO links (id, alias, original_url, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, click_count
	`
	err := r.db.QueryRow(
		ctx,
		query,
		link.ID,
		link.Alias,
		link.OriginalURL,
		link.CreatedAt,
		link.ExpiresAt,
	).Scan(&link.CreatedAt, &link.ClickCount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == aliasUniqueConstraint {
			return ErrAliasConflict
		}
		span.RecordError(err)
		return err
	}

	return nil
}

// GetByAlias retrieves a link by its alias
func (r *LinkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	ctx, span := startDBSpan(ctx, "db.select", "SELECT", "links", alias)
	defer span.End()

	query := `
		SELECT id, alias, original_url, created_at, expires_at, click_count
		FROM links
		WHERE alias = $1
	`
	var link model.Link
	err := r.db.QueryRow(ctx, query, alias).Scan(
		&link.ID,
		&link.Alias,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return &link, nil
}

// DeleteByAlias removes a link by its alias. Its click events go with it
// through the ON DELETE CASCADE foreign key.
func (r *LinkRepository) DeleteByAlias(ctx context.Context, alias string) error {
	ctx, span := startDBSpan(ctx, "db.delete", "DELETE", "links", alias)
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM links WHERE alias = $1`, alias)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
