package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// InvoiceCache keeps invoice detail payloads in Redis. Each invoice has its
// own version counter; bumping it orphans every payload cached under the old
// version, so writers never have to know which keys exist.
type InvoiceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewInvoiceCache instantiates the cache helper. A nil client disables caching.
func NewInvoiceCache(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *InvoiceCache {
	return &InvoiceCache{client: client, ttl: ttl, logger: logger}
}

func versionKey(id uint) string {
	return fmt.Sprintf("invoice:%d:version", id)
}

// Version returns the current cache version of an invoice, starting at 1.
func (c *InvoiceCache) Version(ctx context.Context, id uint) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the payload key with the invoice's current version.
func (c *InvoiceCache) BuildKey(ctx context.Context, id uint) (string, error) {
	ver, err := c.Version(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("invoice:%d:v%d", id, ver), nil
}

// Fetch loads the cached invoice into dest or populates it using the loader.
// Redis failures are logged and served from the loader; only loader errors
// reach the caller.
func (c *InvoiceCache) Fetch(ctx context.Context, id uint, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loadInto(ctx, dest, loader)
	}

	key, err := c.BuildKey(ctx, id)
	if err != nil {
		c.warn(err, id, "read invoice cache version")
		return loadInto(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(payload, dest); err == nil {
			return nil
		}
		c.warn(err, id, "decode cached invoice")
	case !errors.Is(err, redis.Nil):
		c.warn(err, id, "read invoice cache")
		return loadInto(ctx, dest, loader)
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn(err, id, "write invoice cache")
	}
	return json.Unmarshal(raw, dest)
}

func (c *InvoiceCache) warn(err error, id uint, op string) {
	if c.logger == nil {
		return
	}
	c.logger.WithError(err).WithField("invoice_id", id).Warn(op + " failed, serving from database")
}

// Invalidate bumps the invoice's version. Call it only after the write committed.
func (c *InvoiceCache) Invalidate(ctx context.Context, id uint) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := versionKey(id)
	pipe := c.client.TxPipeline()
	// first bump moves an unset counter from implicit 1 to 2
	pipe.SetNX(ctx, key, 1, 0)
	pipe.Incr(ctx, key)
	_, err := pipe.Exec(ctx)
	return err
}

func loadInto(ctx context.Context, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
