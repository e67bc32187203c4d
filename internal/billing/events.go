package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PaidChannel carries one message per invoice transition into Paid.
	PaidChannel = "billing.invoice.paid"
	// LedgerVersionKey versions the read-side aggregates; every commit that
	// changes the ledger bumps it.
	LedgerVersionKey = "billing.ledger.version"
	// LedgerBumpChannel notifies subscribers of version bumps.
	LedgerBumpChannel = "billing.ledger.bump"
)

// PaidEvent is the payload published on PaidChannel.
type PaidEvent struct {
	InvoiceID int64     `json:"invoice_id"`
	Number    string    `json:"number"`
	PaidAt    time.Time `json:"paid_at"`
}

// RedisEvents publishes ledger events over redis pub/sub. A nil client
// degrades to a no-op so tests and drawer-less deployments need no redis.
type RedisEvents struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisEvents builds the publisher.
func NewRedisEvents(client *redis.Client) *RedisEvents {
	return &RedisEvents{client: client, now: time.Now}
}

// InvoicePaid publishes the settled gate event.
func (e *RedisEvents) InvoicePaid(ctx context.Context, inv Invoice) error {
	if e == nil || e.client == nil {
		return nil
	}
	payload, err := json.Marshal(PaidEvent{
		InvoiceID: inv.ID,
		Number:    inv.Number,
		PaidAt:    e.now(),
	})
	if err != nil {
		return err
	}
	return e.client.Publish(ctx, PaidChannel, payload).Err()
}

// LedgerChanged bumps the aggregate version and announces it.
func (e *RedisEvents) LedgerChanged(ctx context.Context) error {
	if e == nil || e.client == nil {
		return nil
	}
	ver, err := e.client.Incr(ctx, LedgerVersionKey).Result()
	if err != nil {
		return err
	}
	return e.client.Publish(ctx, LedgerBumpChannel, strconv.FormatInt(ver, 10)).Err()
}
