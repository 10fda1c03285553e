package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTemplateNotFound is returned when the template cart rule does not exist.
var ErrTemplateNotFound = errors.New("template cart rule not found")

const (
	templateExistsSQL = `SELECT EXISTS (SELECT 1 FROM cart_rules WHERE code = $1)`

	// Cloned rules are always active and single use, everything else is taken
	// from the template.
	cloneCartRulesSQL = `INSERT INTO cart_rules
			(code, name, discount_type, value, min_items, valid_from, valid_until, max_uses, max_discount, active)
		SELECT c.code, t.name, t.discount_type, t.value, t.min_items, t.valid_from, t.valid_until, 1, t.max_discount, TRUE
		FROM cart_rules t
		CROSS JOIN unnest($2::text[]) AS c(code)
		WHERE t.code = $1
		ON CONFLICT (code) DO NOTHING`
)

// CartRuleRepository manages voucher rows.
type CartRuleRepository struct {
	pool *pgxpool.Pool
}

// NewCartRuleRepository returns a CartRuleRepository that uses the given pool.
func NewCartRuleRepository(pool *pgxpool.Pool) *CartRuleRepository {
	return &CartRuleRepository{pool: pool}
}

// CloneFromTemplate inserts one single-use rule per code, copying the discount
// settings of the rule identified by template. Codes that already exist are
// skipped. It returns the number of inserted rules.
func (r *CartRuleRepository) CloneFromTemplate(ctx context.Context, template string, codes []string) (int64, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, templateExistsSQL, template).Scan(&exists); err != nil {
		return 0, errors.Wrap(err, "check template")
	}
	if !exists {
		return 0, errors.Wrapf(ErrTemplateNotFound, "code %q", template)
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, cloneCartRulesSQL, template, codes)
		if err != nil {
			return errors.Wrap(err, "clone cart rules")
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
