package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/locale"
)

const getLocaleSQL = `SELECT code, icu, currency_code, currency_numeric
	FROM locales WHERE code = $1`

var _ locale.Repository = (*LocaleRepository)(nil)

// LocaleRepository implements locale.Repository backed by PostgreSQL.
type LocaleRepository struct {
	pool *pgxpool.Pool
}

// NewLocaleRepository returns a LocaleRepository that uses the given pool.
func NewLocaleRepository(pool *pgxpool.Pool) *LocaleRepository {
	return &LocaleRepository{pool: pool}
}

// FindByCode returns locale.ErrNotFound for unknown codes.
func (r *LocaleRepository) FindByCode(ctx context.Context, code string) (*locale.Locale, error) {
	var l locale.Locale
	err := r.pool.QueryRow(ctx, getLocaleSQL, code).Scan(
		&l.Code, &l.ICU, &l.Currency.Code, &l.Currency.Numeric,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, locale.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find locale %q", code)
	}
	return &l, nil
}
