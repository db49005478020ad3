package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
)

const maxResultBytes = 1 << 20

// StepError is returned for a non-2xx service response.
type StepError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPStepClient POSTs step requests to the resolved service URL.
type HTTPStepClient struct {
	client   *http.Client
	resolver sagaDomain.ServiceResolver
}

func NewHTTPStepClient(client *http.Client, resolver sagaDomain.ServiceResolver) *HTTPStepClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPStepClient{client: client, resolver: resolver}
}

// Invoke makes one attempt. A 2xx JSON body is returned as the step result.
func (c *HTTPStepClient) Invoke(ctx context.Context, service string, req sagaDomain.StepRequest, timeout time.Duration) (json.RawMessage, error) {
	url, err := c.resolver.Resolve(service)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode step request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build step request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Saga-Instance-Id", req.SagaInstanceID)
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-Id", req.CorrelationID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StepError{Service: service, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

var _ sagaDomain.StepClient = (*HTTPStepClient)(nil)
