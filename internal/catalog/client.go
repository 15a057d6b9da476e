package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mediconsult/pkg/models"
)

// Client talks to the hospital catalog service over HTTP. Requests are
// rate-limited so triage bursts cannot overload the catalog.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a catalog client. ratePerSecond bounds outbound request
// rate; timeout applies per request.
func NewClient(baseURL string, ratePerSecond float64, timeout time.Duration) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}

// Departments lists all departments.
func (c *Client) Departments(ctx context.Context) ([]models.Department, error) {
	departments := []models.Department{}
	if err := c.getJSON(ctx, "/api/departments", &departments); err != nil {
		return nil, err
	}
	return departments, nil
}

// Doctors lists all doctors.
func (c *Client) Doctors(ctx context.Context) ([]models.Doctor, error) {
	doctors := []models.Doctor{}
	if err := c.getJSON(ctx, "/api/doctors", &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}
