// Package resolver turns a raw telegram username into a verified fragment
// recipient id and moves orders between UNPROCESSED, WAITING_FOR_USERNAME and
// READY accordingly.
package resolver

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"StarsAutoFill/internal/fragment"
	"StarsAutoFill/internal/metrics"
	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/store"
)

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_]{4,32}$`)

// RecipientLookup is implemented by the fragment client.
type RecipientLookup interface {
	SearchStarsRecipient(ctx context.Context, username string) (string, error)
}

type Resolver struct {
	Lookup   RecipientLookup
	Cache    *Cache
	Metrics  *metrics.Metrics
	Attempts int
	Backoff  time.Duration
}

func New(lookup RecipientLookup) *Resolver {
	return &Resolver{
		Lookup:   lookup,
		Attempts: 3,
		Backoff:  time.Second,
	}
}

// ValidUsername reports whether the handle passes the basic syntax check:
// alphanumeric/underscore, 4-32 chars, optional leading @.
func ValidUsername(username string) bool {
	return usernameRE.MatchString(strings.TrimPrefix(username, "@"))
}

// Resolve runs the resolution algorithm on a copy of the order and returns
// the updated order. Orders with an empty or malformed username go straight
// to WAITING_FOR_USERNAME without a network call. A lookup rejection is a
// data problem: WAITING_FOR_USERNAME, retry budget untouched. Transient
// faults are retried up to Attempts times with a fixed backoff; exhaustion is
// a terminal UNABLE_TO_FETCH_USERNAME.
func (r *Resolver) Resolve(ctx context.Context, order models.Order) models.Order {
	if !ValidUsername(order.TelegramUsername) {
		order.Status = models.OrderWaitingForUsername
		r.Metrics.ResolutionOutcome("invalid_username")
		return order
	}

	username := strings.TrimPrefix(order.TelegramUsername, "@")
	if r.Cache != nil {
		if recipient, ok := r.Cache.Get(ctx, username); ok {
			order.Status = models.OrderReady
			order.RecipientID = &recipient
			r.Metrics.ResolutionOutcome("cache_hit")
			return order
		}
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.Backoff):
			}
			if ctx.Err() != nil {
				break
			}
		}

		recipient, err := r.Lookup.SearchStarsRecipient(ctx, username)
		if err == nil {
			order.Status = models.OrderReady
			order.RecipientID = &recipient
			if r.Cache != nil {
				r.Cache.Set(ctx, username, recipient)
			}
			r.Metrics.ResolutionOutcome("resolved")
			return order
		}
		if fragment.IsResponseError(err) {
			log.Printf("username %s not found for order %s", username, order.OrderID)
			order.Status = models.OrderWaitingForUsername
			r.Metrics.ResolutionOutcome("not_found")
			return order
		}
		log.Printf("recipient lookup failed for order %s (attempt %d): %v", order.OrderID, attempt+1, err)
	}

	order.SetError(models.ErrUnableToFetchUsername)
	order.RetriesLeft = 0
	r.Metrics.ResolutionOutcome("fetch_failed")
	return order
}

// ResolveBatch resolves every order concurrently, then persists the whole
// batch in one atomic store write.
func (r *Resolver) ResolveBatch(ctx context.Context, st store.Store, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	resolved := make([]*models.Order, len(orders))
	var wg sync.WaitGroup
	for i, order := range orders {
		wg.Add(1)
		go func(i int, order models.Order) {
			defer wg.Done()
			out := r.Resolve(ctx, order)
			resolved[i] = &out
		}(i, *order)
	}
	wg.Wait()

	return st.AddOrUpdateBatch(ctx, resolved)
}
