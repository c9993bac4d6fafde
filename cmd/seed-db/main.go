package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/storage/postgres"
)

type seedJSON struct {
	Charges []struct {
		ID     string          `json:"id"`
		Label  string          `json:"label"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"charges"`
	Tables []struct {
		UID  string `json:"uid"`
		Name string `json:"name"`
	} `json:"tables"`
}

func main() {
	var (
		databaseURL  string
		seedFile     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/seed.json", "path to charges and tables JSON file")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or QRDINE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or QRDINE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("QRDINE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or QRDINE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("QRDINE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedSchedule(ctx, pool, seedFile); err != nil {
		return errors.Wrap(err, "seed charges and tables")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedSchedule(ctx context.Context, pool *pgxpool.Pool, seedFile string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedJSON
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	charges := postgres.NewChargeRepository(pool)
	for _, c := range seed.Charges {
		if c.Amount.IsNegative() {
			return errors.Errorf("charge %s: %v", c.ID, pricing.ErrNegativeAmount)
		}
		if err := charges.Upsert(ctx, pricing.Charge{ID: c.ID, Label: c.Label, Amount: c.Amount}); err != nil {
			return err
		}
		slog.Info("upserted charge", slog.String("id", c.ID), slog.String("amount", c.Amount.StringFixed(2)))
	}

	for _, t := range seed.Tables {
		if err := charges.UpsertTable(ctx, t.UID, t.Name); err != nil {
			return err
		}
		slog.Info("upserted table", slog.String("uid", t.UID), slog.String("name", t.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding staff API key")

	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "staff",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Counter staff",
		Scopes:  []string{auth.ScopeOrders},
	}); err != nil {
		return errors.Wrap(err, "upsert staff API key")
	}

	slog.Info("upserted API key", slog.String("id", "staff"), slog.String("name", "Counter staff"))

	return nil
}
