package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/checkout"
	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/gateway/esewa"
	"github.com/xenking/qrdine/internal/storage/redis"
	"github.com/xenking/qrdine/internal/watch"
	"github.com/xenking/qrdine/internal/wire"
)

var errUsage = errors.New("usage")

type env struct {
	cfg *Config
	api *client.Client
	rdb *redis.Client
}

func run(ctx context.Context, cfg *Config, cmd string, args []string) error {
	api, err := client.New(cfg.ServerURL, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	e := &env{cfg: cfg, api: api}

	if cfg.Redis.Enabled() {
		rdb, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()
		e.rdb = rdb
	}

	switch cmd {
	case "charges":
		return e.charges(ctx)
	case "cash":
		return e.cash(ctx, args)
	case "pay":
		return e.pay(ctx, args)
	case "return":
		return e.resume(ctx, args)
	case "simulate-return":
		return e.simulateReturn(ctx, args)
	case "watch":
		return e.watch(ctx, args)
	case "review":
		return e.review(ctx, args)
	case "call-waiter":
		return e.callWaiter(ctx)
	default:
		return errUsage
	}
}

func (e *env) flow(ctx context.Context) *checkout.Flow {
	var intents checkout.IntentStore
	if e.rdb != nil {
		intents = redis.NewIntentStore(e.rdb, e.cfg.IntentTTL)
	} else {
		zctx.From(ctx).Warn("Redis not configured, payment intents live in memory only")
		intents = checkout.NewMemoryIntents()
	}
	return checkout.New(e.api, intents)
}

// loadCart reads a cart file in the order body format and snapshots the
// current charge schedule into it.
func (e *env) loadCart(ctx context.Context, path string) (checkout.Cart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return checkout.Cart{}, errors.Wrap(err, "read cart")
	}
	var draft wire.CreateOrder
	if err := wire.Unmarshal(data, &draft); err != nil {
		return checkout.Cart{}, errors.Wrap(err, "decode cart")
	}
	charges, err := e.api.Charges(ctx)
	if err != nil {
		return checkout.Cart{}, errors.Wrap(err, "load charges")
	}
	table := draft.Table
	if table == "" {
		table = e.cfg.TableUID
	}
	return checkout.Cart{
		Table:               table,
		Items:               draft.Items,
		Charges:             charges,
		CustomerName:        draft.CustomerName,
		SpecialInstructions: draft.SpecialInstructions,
		DiningOption:        draft.DiningOption,
	}, nil
}

func (e *env) charges(ctx context.Context) error {
	charges, err := e.api.Charges(ctx)
	if err != nil {
		return err
	}
	for _, c := range charges {
		fmt.Printf("%-12s %-24s %s\n", c.ID, c.Label, c.Amount.StringFixed(2))
	}
	return nil
}

func (e *env) cash(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cash", flag.ContinueOnError)
	cartFile := fs.String("cart", "cart.json", "cart file")
	retries := fs.Int("retries", 2, "resubmissions of the same order on transport errors")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cart, err := e.loadCart(ctx, *cartFile)
	if err != nil {
		return err
	}
	f := e.flow(ctx)
	draft, err := f.PrepareCash(cart)
	if err != nil {
		return err
	}

	// Resubmitting the same draft reuses its transaction id.
	var o *wire.Order
	for attempt := 0; ; attempt++ {
		o, err = f.Submit(ctx, draft)
		if err == nil || !client.IsRetryable(err) || attempt >= *retries {
			break
		}
		zctx.From(ctx).Warn("Retrying order", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		return err
	}
	printOrder(o)
	return nil
}

func (e *env) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	cartFile := fs.String("cart", "cart.json", "cart file")
	method := fs.String("method", string(order.MethodEsewa), "gateway payment method")
	out := fs.String("out", "redirect.html", "where to write the gateway redirect page")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cart, err := e.loadCart(ctx, *cartFile)
	if err != nil {
		return err
	}
	r, err := e.flow(ctx).BeginGateway(ctx, cart, order.PaymentMethod(*method))
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return errors.Wrap(err, "create redirect page")
	}
	defer func() { _ = f.Close() }()
	if err := checkout.RenderRedirect(f, r.Form); err != nil {
		return errors.Wrap(err, "render redirect page")
	}
	fmt.Printf("transaction %s\nopen %s to pay %s\n", r.TransactionID, *out, r.Form.Field("total_amount"))
	return nil
}

func (e *env) resume(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	res, err := e.flow(ctx).Resume(ctx, args[0])
	switch {
	case errors.Is(err, checkout.ErrPaymentPending):
		fmt.Println("payment not confirmed yet, run return again later")
		return nil
	case errors.Is(err, checkout.ErrGatewayDeclined):
		fmt.Println("payment declined, start a new checkout")
		return err
	case errors.Is(err, checkout.ErrOrderNotRecoverable):
		fmt.Println("order not found for this transaction, contact support")
		return err
	case err != nil:
		return err
	}
	printOrder(res.Order)
	if res.Recovered {
		fmt.Println("(recovered from the server)")
	}
	return nil
}

func (e *env) simulateReturn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate-return", flag.ContinueOnError)
	status := fs.String("status", "COMPLETE", "gateway status to report")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	id := fs.Arg(0)

	gw, err := esewa.New(esewa.Config{ProductCode: e.cfg.GatewayProduct, SecretKey: e.cfg.GatewaySecret})
	if err != nil {
		return err
	}
	tx, err := e.api.PaymentStatus(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get transaction")
	}
	data := gw.EncodeCallback(payment.Callback{
		TransactionID: tx.TransactionID,
		Status:        *status,
		TotalAmount:   tx.Amount.Truncate(0).String(),
		RefID:         "SIM" + strconv.FormatInt(tx.CreatedAt.Unix(), 36),
	})
	// The gateway appends its own "?data=" to a success URL that already
	// has a query.
	fmt.Printf("%s/menu/order-status/temp?%s?data=%s\n",
		strings.TrimRight(e.cfg.PublicBaseURL, "/"),
		url.Values{"transaction_uuid": {tx.TransactionID}}.Encode(),
		data,
	)
	return nil
}

func (e *env) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	w := watch.New(e.api, args[0],
		watch.WithInterval(e.cfg.PollInterval),
		watch.OnUpdate(func(o *wire.Order) {
			fmt.Printf("order %s: %s, payment %s\n", o.ID, o.Status, o.PaymentStatus)
		}),
	)
	last, err := w.Run(ctx)
	if err != nil {
		return err
	}
	if last.Status != string(order.StatusCompleted) {
		return nil
	}
	ok, err := checkout.NewReviewGate(e.api).CanReview(ctx, last)
	if err == nil && ok {
		fmt.Printf("enjoyed it? table-client review %s <1-5>\n", last.ID)
	}
	return nil
}

func (e *env) review(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return errUsage
	}
	r, err := checkout.NewReviewGate(e.api).Submit(ctx, args[0], rating, strings.Join(args[2:], " "))
	if errors.Is(err, checkout.ErrAlreadyReviewed) {
		fmt.Println("this order already has a review")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("review %s saved: %d/5\n", r.ID, r.Rating)
	return nil
}

func (e *env) callWaiter(ctx context.Context) error {
	if e.rdb == nil {
		return errors.New("call-waiter needs redis: set QRDINE_CLIENT_REDIS_URL")
	}
	ok, remaining, err := redis.NewCooldown(e.rdb, e.cfg.WaiterCooldown).Acquire(ctx, e.cfg.TableUID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("a waiter was called recently, try again in %s\n", remaining.Round(time.Second))
		return nil
	}
	fmt.Printf("waiter called to table %s\n", e.cfg.TableUID)
	return nil
}

func printOrder(o *wire.Order) {
	fmt.Printf("order %s (%s) table %s total %s status %s payment %s\n",
		o.ID, o.TransactionID, o.Table, o.Total.StringFixed(2), o.Status, o.PaymentStatus)
}
