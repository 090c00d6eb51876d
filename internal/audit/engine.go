package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lumen/internal/domain"
)

// RemoteEngine drives an external Lighthouse runner service over HTTP. The
// runner connects to the browser's debugging port on this host and returns
// the raw report JSON.
type RemoteEngine struct {
	BaseURL string
	Client  *http.Client
}

type engineRequest struct {
	URL        string            `json:"url"`
	Port       int               `json:"port"`
	FormFactor domain.Device     `json:"formFactor"`
	Categories []string          `json:"onlyCategories"`
	Throttling ThrottlingProfile `json:"throttling"`
}

type engineResponse struct {
	Success bool            `json:"success"`
	Report  json.RawMessage `json:"report"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (e *RemoteEngine) Audit(ctx context.Context, targetURL string, opts Options) (json.RawMessage, error) {
	body, err := json.Marshal(engineRequest{
		URL:        targetURL,
		Port:       opts.Port,
		FormFactor: opts.FormFactor,
		Categories: opts.Categories,
		Throttling: opts.Throttling,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/audit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out engineResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("engine returned %d: unreadable body", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("engine returned status %d", resp.StatusCode)
		}
		return nil, errors.New(msg)
	}
	return out.Report, nil
}
