package tags

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Registrar creates a new tag with the affiliate network and returns its name.
type Registrar interface {
	RegisterTag(ctx context.Context, country string) (string, error)
}

// HTTPRegistrar drives the browser-automation service that owns the
// Associates session.
type HTTPRegistrar struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRegistrar(baseURL string) *HTTPRegistrar {
	return &HTTPRegistrar{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Tag creation walks several pages of the Associates console.
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

type registerResponse struct {
	OK      bool   `json:"ok"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func (r *HTTPRegistrar) RegisterTag(ctx context.Context, country string) (string, error) {
	body, err := json.Marshal(map[string]string{"country": country})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/tags", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tag automation: %w", err)
	}
	defer resp.Body.Close()

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode tag automation response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !out.OK {
		return "", fmt.Errorf("tag automation failed (status %d): %s", resp.StatusCode, out.Message)
	}
	if out.Tag == "" {
		return "", fmt.Errorf("tag automation returned no tag")
	}
	return out.Tag, nil
}
