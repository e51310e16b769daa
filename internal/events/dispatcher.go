// Package events delivers domain events to registered webhook endpoints.
// Delivery is fire-and-forget: the core never blocks on, or fails because of,
// a notification.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Domain event kinds.
const (
	ProjectActivated   = "PROJECT_ACTIVATED"
	ProjectCompleted   = "PROJECT_COMPLETED"
	ProjectCancelled   = "PROJECT_CANCELLED"
	MilestoneStarted   = "MILESTONE_STARTED"
	MilestoneSubmitted = "MILESTONE_SUBMITTED"
	MilestoneApproved  = "MILESTONE_APPROVED"
	RevisionRequested  = "REVISION_REQUESTED"
	PaymentReleased    = "PAYMENT_RELEASED"
	RefundIssued       = "REFUND_ISSUED"
	DisputeRaised      = "DISPUTE_RAISED"
	DisputeResolved    = "DISPUTE_RESOLVED"
	PayoutRequested    = "PAYOUT_REQUESTED"
	PayoutCompleted    = "PAYOUT_COMPLETED"
	PayoutFailed       = "PAYOUT_FAILED"
)

const deliveryTimeout = 5 * time.Second

type Event struct {
	Kind      string         `json:"kind"`
	ProjectID uuid.UUID      `json:"project_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// EndpointSource lists webhook endpoints subscribed to events.
type EndpointSource interface {
	ListEndpoints(ctx context.Context) ([]string, error)
}

// Dispatcher posts events to every subscribed endpoint. Failures are logged
// and dropped; there is no retry and no feedback into the core.
type Dispatcher struct {
	Endpoints  EndpointSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewDispatcher(endpoints EndpointSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Endpoints:  endpoints,
		HTTPClient: &http.Client{Timeout: deliveryTimeout},
		Logger:     logger,
	}
}

// Emit delivers the event asynchronously.
func (d *Dispatcher) Emit(kind string, projectID uuid.UUID, payload map[string]any) {
	ev := Event{Kind: kind, ProjectID: projectID, Payload: payload, EmittedAt: time.Now()}
	go d.deliver(ev)
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	endpoints, err := d.Endpoints.ListEndpoints(ctx)
	if err != nil {
		d.Logger.Warn("event delivery: endpoint lookup failed", "kind", ev.Kind, "error", err)
		return
	}
	if len(endpoints) == 0 {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		d.Logger.Error("event delivery: marshal failed", "kind", ev.Kind, "error", err)
		return
	}
	for _, url := range endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			d.Logger.Warn("event delivery: bad endpoint", "url", url, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			d.Logger.Warn("event delivery failed", "kind", ev.Kind, "url", url, "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			d.Logger.Warn("event delivery non-2xx", "kind", ev.Kind, "url", url, "status", resp.StatusCode)
		}
	}
}
