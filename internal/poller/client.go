package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lumen/internal/domain"
)

// Client reads test state over the HTTP API, implementing TestGetter for
// callers outside the server process.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

type testStatusResponse struct {
	ID               int64         `json:"id"`
	DomainID         int64         `json:"domainId"`
	Status           domain.Status `json:"status"`
	PerformanceScore *int          `json:"performanceScore"`
	FCP              *float64      `json:"fcp"`
	LCP              *float64      `json:"lcp"`
	TBT              *float64      `json:"tbt"`
	CLS              *float64      `json:"cls"`
	Error            string        `json:"error,omitempty"`
}

func (c *Client) GetByID(ctx context.Context, testID int64) (domain.Test, error) {
	url := fmt.Sprintf("%s/api/tests/%d/status", c.BaseURL, testID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Test{}, err
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Test{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Test{}, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Test{}, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Test{}, err
	}
	var out testStatusResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Test{}, err
	}
	return domain.Test{
		ID:               out.ID,
		DomainID:         out.DomainID,
		Status:           out.Status,
		PerformanceScore: out.PerformanceScore,
		FCP:              out.FCP,
		LCP:              out.LCP,
		TBT:              out.TBT,
		CLS:              out.CLS,
		Error:            out.Error,
	}, nil
}
