package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bank is one entry from the provider's bank directory. Clients need it to
// render the USSD payment options on the checkout form.
type Bank struct {
	ID   json.Number `json:"id"`
	Code string      `json:"code"`
	Name string      `json:"name"`
}

// BankLister fetches the provider's bank directory for a country.
type BankLister interface {
	ListBanks(ctx context.Context, country string) ([]Bank, error)
}

const (
	bankCacheKeyPrefix = "flutterwave:banks:"
	bankCacheTTL       = time.Hour
)

// BankCache is the slice of the Redis API the catalog needs. *redis.Client
// satisfies it.
type BankCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
}

// BankCatalog serves the bank directory with a Redis cache in front of the
// provider. The directory changes rarely; one provider call per country per
// hour is plenty.
type BankCatalog struct {
	lister BankLister
	cache  BankCache
	log    *slog.Logger
}

// NewBankCatalog creates a bank catalog. A nil cache sends every call to the
// provider.
func NewBankCatalog(lister BankLister, cache BankCache, log *slog.Logger) *BankCatalog {
	if lister == nil {
		panic("billing: bank lister is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BankCatalog{lister: lister, cache: cache, log: log}
}

// List returns the banks for a country, serving from cache when possible.
// Cache failures degrade to a provider call, never to an error.
func (b *BankCatalog) List(ctx context.Context, country string) ([]Bank, error) {
	key := bankCacheKeyPrefix + country

	if b.cache != nil {
		raw, err := b.cache.Get(ctx, key).Bytes()
		if err == nil {
			var banks []Bank
			if err := json.Unmarshal(raw, &banks); err == nil {
				return banks, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			b.log.WarnContext(ctx, "bank cache read failed", slog.Any("error", err))
		}
	}

	banks, err := b.lister.ListBanks(ctx, country)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if raw, err := json.Marshal(banks); err == nil {
			if err := b.cache.Set(ctx, key, raw, bankCacheTTL).Err(); err != nil {
				b.log.WarnContext(ctx, "bank cache write failed", slog.Any("error", err))
			}
		}
	}
	return banks, nil
}
