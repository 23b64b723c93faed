// Package consumer implements the Consumer Registry (C4): consumer
// records, their delivery-binding variants, and durable storage backed by
// SQLite (spec.md §4.4, §4.9 — projections reuse the InProcess variant).
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// Kind identifies a consumer's delivery-binding variant.
type Kind string

const (
	KindHTTP            Kind = "http"
	KindInProcess       Kind = "inprocess"
	KindAzureEventGrid  Kind = "azure-event-grid"
)

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Success       bool
	ErrorCategory string
}

// Handler is the function signature for an InProcess consumer's delivery
// callback (used by projections, spec.md §4.9).
type Handler func(ctx context.Context, events []*eventstore.Event) error

// Consumer is the fold of a registration: an id, a delivery binding, and a
// per-topic cursor map. Topics must be non-empty (spec.md §3 invariant).
type Consumer struct {
	ID                string
	Kind              Kind
	CallbackURL       string           // HTTP
	EventGridEndpoint string           // AzureEventGrid
	EventGridKey      string           // AzureEventGrid
	Handler           Handler          `json:"-"` // InProcess, never persisted
	Topics            map[string]int64 // fully-qualified topic -> cursor sequence (0 = from beginning)
}

// WithUpdatedLastEventID returns a new Consumer value with topic's cursor
// advanced to sequence. This is type-independent: it works the same for
// every delivery-binding variant (Design Notes §9).
func (c Consumer) WithUpdatedLastEventID(topic string, sequence int64) Consumer {
	next := make(map[string]int64, len(c.Topics))
	for k, v := range c.Topics {
		next[k] = v
	}
	next[topic] = sequence
	c.Topics = next
	return c
}

// webhookClient is shared across HTTP deliveries; spec.md §5 mandates a 30s
// per-callback timeout.
var webhookClient = &http.Client{Timeout: 30 * time.Second}

// webhookPayload is the body POSTed to a consumer's callback (spec.md §6
// webhook delivery contract).
type webhookPayload struct {
	ConsumerID string             `json:"consumerId"`
	Events     []*eventstore.Event `json:"events"`
}

// Deliver dispatches events to the consumer via its bound variant. A 2xx
// HTTP response is success; anything else — including a connect failure,
// timeout, or body-read failure — is failure.
func (c Consumer) Deliver(ctx context.Context, events []*eventstore.Event) Outcome {
	switch c.Kind {
	case KindInProcess:
		return c.deliverInProcess(ctx, events)
	case KindHTTP:
		return c.deliverHTTP(ctx, events)
	case KindAzureEventGrid:
		return c.deliverEventGrid(ctx, events)
	default:
		return Outcome{Success: false, ErrorCategory: "unknown_kind"}
	}
}

func (c Consumer) deliverInProcess(ctx context.Context, events []*eventstore.Event) Outcome {
	if c.Handler == nil {
		return Outcome{Success: false, ErrorCategory: "no_handler"}
	}
	if err := c.Handler(ctx, events); err != nil {
		return Outcome{Success: false, ErrorCategory: "handler_error"}
	}
	return Outcome{Success: true}
}

func (c Consumer) deliverHTTP(ctx context.Context, events []*eventstore.Event) Outcome {
	body, err := json.Marshal(webhookPayload{ConsumerID: c.ID, Events: events})
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "encode_error"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "invalid_request"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "transport_error"}
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err != nil {
		return Outcome{Success: false, ErrorCategory: "body_read_error"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Success: false, ErrorCategory: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
	return Outcome{Success: true}
}

// deliverEventGrid is a thin variant over the same HTTP contract with an
// access-key header, matching the future event-grid endpoint+key binding
// spec.md §4.4 anticipates.
func (c Consumer) deliverEventGrid(ctx context.Context, events []*eventstore.Event) Outcome {
	body, err := json.Marshal(webhookPayload{ConsumerID: c.ID, Events: events})
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "encode_error"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EventGridEndpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "invalid_request"}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.EventGridKey != "" {
		req.Header.Set("aeg-sas-key", c.EventGridKey)
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return Outcome{Success: false, ErrorCategory: "transport_error"}
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err != nil {
		return Outcome{Success: false, ErrorCategory: "body_read_error"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Success: false, ErrorCategory: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
	return Outcome{Success: true}
}
