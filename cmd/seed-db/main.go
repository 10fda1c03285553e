// Command seed-db creates the schema and loads the demo catalog, carts and
// vouchers together with an API key for the storefront BFF.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront-orders/db"
	"github.com/xenking/storefront-orders/internal/domain/auth"
	"github.com/xenking/storefront-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		fixtureFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or SHOP_DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "", "fixture JSON file, the embedded demo data when empty")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("SHOP_DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}
	switch {
	case databaseURL == "":
		lg.Fatal("Database URL is required: set -database-url or SHOP_DATABASE_URL")
	case apiKey == "":
		lg.Fatal("API key is required: set -api-key or SHOP_SEED_API_KEY")
	case apiKeyPepper == "":
		lg.Fatal("API key pepper is required: set -api-key-pepper or SHOP_API_KEY_PEPPER")
	}

	data := db.Fixture
	if fixtureFile != "" {
		if data, err = os.ReadFile(fixtureFile); err != nil {
			lg.Fatal("Read fixture", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, data, apiKey, apiKeyPepper); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, data []byte, apiKey, pepper string) error {
	f, err := parseFixture(data)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return err
	}

	if err := seedTables(ctx, lg, pool, f); err != nil {
		return errors.Wrap(err, "seed tables")
	}

	key := auth.APIKeyInfo{
		ID:      "storefront",
		KeyHash: auth.HashKeyHex(apiKey, []byte(pepper)),
		Name:    "Storefront BFF",
		Scopes:  []string{"orders"},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", key.ID))

	return nil
}

// seedTables inserts all fixture rows in one transaction and moves the id
// sequences past the explicit ids.
func seedTables(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, f *fixture) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, t := range f.Tables {
			if len(t.Rows) == 0 {
				continue
			}
			query, args, err := t.insertSQL()
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, query, args...)
			if err != nil {
				return errors.Wrapf(err, "insert %s", t.Name)
			}
			if t.hasID() {
				if _, err := tx.Exec(ctx, resetSequenceSQL(t.Name)); err != nil {
					return errors.Wrapf(err, "reset %s sequence", t.Name)
				}
			}
			lg.Info("Seeded table",
				zap.String("table", t.Name),
				zap.Int64("inserted", tag.RowsAffected()),
				zap.Int("rows", len(t.Rows)),
			)
		}
		return nil
	})
}

func resetSequenceSQL(name string) string {
	ident := pgx.Identifier{name}.Sanitize()
	return "SELECT setval(pg_get_serial_sequence('" + name + "', 'id'), " +
		"COALESCE((SELECT MAX(id) FROM " + ident + "), 1))"
}
