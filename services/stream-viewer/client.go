package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// APIClient zapouzdřuje HTTP volání na query API bridge (nebo home-api).
type APIClient struct {
	BaseURL    string
	httpClient *http.Client
}

// NewAPIClient - vždy s timeoutem, defaultní http.Client žádný nemá.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Latest zavolá GET /latest: poslední záznam každého zařízení.
func (c *APIClient) Latest(ctx context.Context) ([]telemetry.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/latest", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chyba sítě při volání API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API vrátilo chybný status: %d", resp.StatusCode)
	}

	var records []telemetry.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("chyba při parsování JSONu: %w", err)
	}
	return records, nil
}
