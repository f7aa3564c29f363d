package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/cart"
	"github.com/xenking/easyeat/internal/domain/order"
	"github.com/xenking/easyeat/internal/storage/postgres"
)

const orderWorkers = 8

type seedFile struct {
	Keys   []keyJSON   `json:"keys"`
	Orders []orderJSON `json:"orders"`
}

type keyJSON struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	SubjectID string `json:"subjectId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

type orderJSON struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customerId"`
	CustomerName string          `json:"customerName"`
	Address      string          `json:"address"`
	Phone        string          `json:"phone"`
	Notes        string          `json:"notes"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee"`
	Status       string          `json:"status"`
	Items        []itemJSON      `json:"items"`
}

type itemJSON struct {
	ItemID     string          `json:"itemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Image      string          `json:"image"`
	SellerID   string          `json:"sellerId"`
	SellerName string          `json:"sellerName"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/demo.json", "path to seed JSON file, optionally gzip compressed (.gz)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or EASYEAT_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("EASYEAT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedKeys(ctx, lg, postgres.NewAPIKeyRepository(pool), seed.Keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}
	if err := seedOrders(ctx, lg, postgres.NewOrderRepository(pool), seed.Orders); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	return nil
}

func readSeed(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

func seedKeys(ctx context.Context, lg *zap.Logger, repo *postgres.APIKeyRepository, keys []keyJSON, pepper string) error {
	for _, k := range keys {
		role, err := auth.ParseRole(k.Role)
		if err != nil {
			return errors.Wrapf(err, "key %s", k.ID)
		}
		if err := repo.Upsert(ctx, auth.APIKeyInfo{
			ID:        k.ID,
			KeyHash:   auth.HashKey([]byte(pepper), k.Key),
			SubjectID: k.SubjectID,
			Name:      k.Name,
			Role:      role,
		}); err != nil {
			return err
		}
		lg.Info("Upserted API key", zap.String("id", k.ID), zap.String("role", string(role)))
	}
	return nil
}

func seedOrders(ctx context.Context, lg *zap.Logger, repo *postgres.OrderRepository, orders []orderJSON) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(orderWorkers)

	for _, oj := range orders {
		o, err := oj.order()
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := repo.Create(ctx, o); err != nil {
				return err
			}
			lg.Debug("Created order", zap.String("id", o.ID), zap.String("seller", o.SellerID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Orders seeded", zap.Int("count", len(orders)))
	return nil
}

func (oj orderJSON) order() (*order.Order, error) {
	status := order.StatusNew
	if oj.Status != "" {
		st, err := order.ParseStatus(oj.Status)
		if err != nil {
			return nil, errors.Wrapf(err, "order %s", oj.ID)
		}
		status = st
	}

	snap := cart.Snapshot{Lines: make([]cart.Line, 0, len(oj.Items))}
	for _, it := range oj.Items {
		if it.Quantity < 1 {
			return nil, errors.Errorf("order %s: item %s has quantity %d", oj.ID, it.ItemID, it.Quantity)
		}
		snap.Lines = append(snap.Lines, cart.Line{
			ItemID:     it.ItemID,
			Name:       it.Name,
			UnitPrice:  it.Price,
			Quantity:   it.Quantity,
			ImageRef:   it.Image,
			SellerID:   it.SellerID,
			SellerName: it.SellerName,
		})
	}
	if snap.IsEmpty() {
		return nil, errors.Errorf("order %s has no items", oj.ID)
	}

	seller := snap.DominantSeller()
	return &order.Order{
		ID:            oj.ID,
		Lines:         snap.Lines,
		ItemsSubtotal: snap.Subtotal(),
		DeliveryFee:   oj.DeliveryFee,
		Address:       oj.Address,
		Phone:         oj.Phone,
		Notes:         oj.Notes,
		Status:        status,
		CustomerID:    oj.CustomerID,
		CustomerName:  oj.CustomerName,
		SellerID:      seller.ID,
		SellerName:    seller.Name,
	}, nil
}
