package earnings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"affiliate-tracking-system/internal/models"
)

// Source yields the orders of the current earnings report.
type Source interface {
	FetchOrders(ctx context.Context) ([]models.Order, error)
}

// NewSource picks an HTTP or file source from location. An empty location
// yields a source with no orders.
func NewSource(location string) Source {
	switch {
	case location == "":
		return StaticSource{}
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location)
	default:
		return FileSource{Path: location}
	}
}

// HTTPSource fetches the report page rendered by the browser-automation
// collaborator.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url: url,
		// The collaborator logs in and waits for the report to render.
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *HTTPSource) FetchOrders(ctx context.Context) ([]models.Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch earnings report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(body, resp.Header.Get("Content-Type"))
}

// FileSource reads a saved report. JSON files hold an order array.
type FileSource struct {
	Path string
}

func (s FileSource) FetchOrders(_ context.Context) ([]models.Order, error) {
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read earnings report: %w", err)
	}
	contentType := "text/html"
	if strings.HasSuffix(strings.ToLower(s.Path), ".json") {
		contentType = "application/json"
	}
	return decode(body, contentType)
}

// StaticSource returns a fixed order list.
type StaticSource struct {
	Orders []models.Order
}

func (s StaticSource) FetchOrders(context.Context) ([]models.Order, error) {
	return s.Orders, nil
}

func decode(body []byte, contentType string) ([]models.Order, error) {
	if strings.Contains(contentType, "json") {
		var orders []models.Order
		if err := json.Unmarshal(body, &orders); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
		return orders, nil
	}
	return ParseReport(bytes.NewReader(body))
}
