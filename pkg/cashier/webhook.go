package cashier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SignatureHeader is the request header carrying the processor's webhook
// signature.
const SignatureHeader = "Stripe-Signature"

// EventSubscriptionDeleted marks a subscription ended or deleted on the
// processor side.
const EventSubscriptionDeleted = "customer.subscription.deleted"

// Event is the processor's webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// EventDeduper suppresses duplicate webhook deliveries. Seen marks the event
// as processed and reports whether it had been seen before.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// HandleWebhook reconciles an asynchronous processor notification against
// local state. The event is the source of truth for which row to touch: the
// subscription is looked up by the processor's reference, never by customer.
//
// Unmatched subscriptions and unrecognized event types return nil — the
// processor retries on any failure signal, and raising for stale or foreign
// events would cause retry storms. Only an unparseable envelope raises
// ErrMalformedEvent.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte) error {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	if event.Type == "" {
		return ErrMalformedEvent
	}

	if s.deduper != nil && event.ID != "" {
		// Dedup failures fall through to the idempotent transition path.
		if seen, err := s.deduper.Seen(ctx, event.ID); err == nil && seen {
			s.log.DebugContext(ctx, "duplicate webhook event skipped",
				slog.String("event_id", event.ID),
			)
			return nil
		}
	}

	switch event.Type {
	case EventSubscriptionDeleted:
		return s.markSubscriptionEnded(ctx, event.Data.Object.ID)
	default:
		s.log.DebugContext(ctx, "unhandled webhook event type",
			slog.String("event_type", event.Type),
		)
		return nil
	}
}

// markSubscriptionEnded stamps ends_at = now on the subscription identified
// by the processor reference. Re-applying to an already-ended subscription
// is a no-op, so duplicate deliveries converge on the same final state.
func (s *Service) markSubscriptionEnded(ctx context.Context, processorID string) error {
	// Write conflicts with a racing user-initiated transition are resolved by
	// reloading: all transitions are idempotent and timestamp-based, so
	// last-confirmed-write-wins is safe.
	for {
		sub, err := s.subscriptions.FindByProcessorID(ctx, processorID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			// Already deleted locally or foreign data; not an error.
			return nil
		}
		if err != nil {
			return err
		}

		now := s.clock()
		if sub.Cancelled() && sub.EndedAt(now) {
			return nil
		}

		sub.EndsAt = &now
		sub.UpdatedAt = now
		err = s.subscriptions.Save(ctx, sub)
		if errors.Is(err, ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return err
		}

		s.log.InfoContext(ctx, "subscription ended by processor event",
			slog.String("subscription_id", sub.ID.String()),
		)
		return nil
	}
}

// WebhookHandler returns the HTTP ingress for processor webhooks. When the
// processor implements WebhookVerifier the delivery signature is checked
// first. Responses follow the acknowledgment contract: 400 for malformed or
// unsigned payloads, 500 for local persistence failures (safe to retry),
// 200 for everything else including unmatched and unrecognized events.
func (s *Service) WebhookHandler() http.Handler {
	verifier, _ := s.processor.(WebhookVerifier)

	r := chi.NewRouter()
	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "unreadable payload", http.StatusBadRequest)
			return
		}

		if verifier != nil {
			if err := verifier.VerifyWebhook(payload, req.Header.Get(SignatureHeader)); err != nil {
				http.Error(w, "invalid signature", http.StatusBadRequest)
				return
			}
		}

		switch err := s.HandleWebhook(req.Context(), payload); {
		case errors.Is(err, ErrMalformedEvent):
			http.Error(w, "malformed event", http.StatusBadRequest)
		case err != nil:
			s.log.ErrorContext(req.Context(), "webhook reconciliation failed",
				slog.Any("error", err),
			)
			http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	return r
}
