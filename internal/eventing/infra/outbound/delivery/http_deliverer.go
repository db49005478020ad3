package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
)

// StatusError se devuelve cuando el suscriptor responde fuera de 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

type envelope struct {
	SubscriptionID string                   `json:"subscriptionId"`
	Event          eventDomain.EventMessage `json:"event"`
}

// HTTPDeliverer hace POST de los eventos a los webhooks de los suscriptores.
type HTTPDeliverer struct {
	client *http.Client
}

func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDeliverer{client: client}
}

// Deliver hace un intento limitado por el timeout de la suscripción.
func (d *HTTPDeliverer) Deliver(ctx context.Context, sub eventDomain.Subscription, msg eventDomain.EventMessage) error {
	body, err := json.Marshal(envelope{SubscriptionID: sub.ID, Event: msg})
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	if sub.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.Timeout())
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", msg.ID)
	req.Header.Set("X-Event-Type", msg.EventType)
	req.Header.Set("X-Subscription-Id", sub.ID)
	if msg.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", msg.CorrelationID)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ eventDomain.Deliverer = (*HTTPDeliverer)(nil)
