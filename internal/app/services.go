package app

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/review"
	"github.com/xenking/qrdine/internal/gateway/esewa"
	"github.com/xenking/qrdine/internal/storage/postgres"
)

// Services are the domain services built on one database pool.
type Services struct {
	Orders   *order.Service
	Payments *payment.Service
	Reviews  *review.Service
	Charges  *postgres.ChargeRepository
	Auth     *auth.Authenticator
}

// NewServices wires repositories into domain services.
func NewServices(pool *pgxpool.Pool, cfg *Config, mp metric.MeterProvider) (*Services, error) {
	gateway, err := esewa.New(esewa.Config{
		ProductCode: cfg.Gateway.ProductCode,
		SecretKey:   cfg.Gateway.SecretKey,
		FormURL:     cfg.Gateway.FormURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway")
	}

	orderRepo := postgres.NewOrderRepository(pool)
	txRepo := postgres.NewTransactionRepository(pool)

	orders := order.NewService(orderRepo, txRepo, order.WithMeterProvider(mp))
	return &Services{
		Orders:   orders,
		Payments: payment.NewService(payment.Config{PublicBaseURL: cfg.PublicBaseURL}, txRepo, orders, gateway),
		Reviews:  review.NewService(postgres.NewReviewRepository(pool), orders),
		Charges:  postgres.NewChargeRepository(pool),
		Auth:     auth.NewAuthenticator(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper)),
	}, nil
}
