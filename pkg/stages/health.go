package stages

import (
	"context"
	"net/http"
)

// Health is the backend /health payload.
type Health struct {
	Status string            `json:"status"`
	Models map[string]string `json:"models"`
}

// HealthClient probes GET /health.
type HealthClient struct {
	base
}

func NewHealthClient(opts Options) *HealthClient {
	return &HealthClient{base: newBase(opts)}
}

func (c *HealthClient) Check(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.do("health", req)
	if err != nil {
		return Health{}, err
	}
	var out Health
	if err := c.decodeJSON("health", resp, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}
