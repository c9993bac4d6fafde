// Command table-client stands in for the table's browser: it checks out
// carts, runs the gateway round trip, watches orders and submits reviews.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/storage/redis"
)

// Config is the table client configuration (QRDINE_CLIENT_ prefix).
type Config struct {
	ServerURL      string        `default:"http://localhost:8080" usage:"API server base URL"`
	TableUID       string        `default:"t1" usage:"Table this client sits at"`
	PublicBaseURL  string        `default:"http://localhost:5173" usage:"Frontend origin used when simulating a gateway return"`
	GatewaySecret  string        `usage:"eSewa secret, only for simulate-return"`
	GatewayProduct string        `default:"EPAYTEST" usage:"eSewa product code, only for simulate-return"`
	Redis          redis.Config
	IntentTTL      time.Duration `default:"24h" usage:"How long a payment intent is kept"`
	PollInterval   time.Duration `default:"60s" usage:"Order status poll period"`
	WaiterCooldown time.Duration `default:"2m" usage:"Minimum time between waiter calls"`
	RequestTimeout time.Duration `default:"10s" usage:"Per-request timeout"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "QRDINE_CLIENT",
		Files:     []string{"client.yaml", "/etc/qrdine/client.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if !cfg.Redis.Enabled() {
		cfg.Redis.URL = os.Getenv("REDIS_URL")
	}
	return &cfg, nil
}

const usage = `usage: table-client <command> [flags]

commands:
  charges                      list the extra-charge schedule
  cash -cart cart.json         place a cash order
  pay -cart cart.json          start a gateway payment, write the redirect page
  return <url>                 finish a gateway payment from its return URL
  simulate-return <txid>       print a signed return URL as the gateway would
  watch <order-id>             poll an order until it is completed or cancelled
  review <order-id> <rating>   review a completed order
  call-waiter                  call a waiter, at most once per cooldown
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	cfg, err := loadConfig()
	if err != nil {
		lg.Fatal("Config", zap.Error(err))
	}

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		lg.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}
