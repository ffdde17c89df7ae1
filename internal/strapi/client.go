// Package strapi talks to the headless CMS that holds tags, leads,
// purchases and the commission table.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"affiliate-tracking-system/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize = 100
	requestTimeout  = 15 * time.Second
	// pagePacing spaces out paginated reads so a sync run never hammers the CMS.
	pagePacing = 150 * time.Millisecond
)

// APIError is a non-2xx response from the CMS.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strapi %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Pagination pagination `json:"pagination"`
	} `json:"meta"`
}

type itemResponse[T any] struct {
	Data T `json:"data"`
}

type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *logrus.Logger
	pageSize       int
	tagCollections map[string]string
}

// DefaultTagCollections maps a country partition to its tag collection.
var DefaultTagCollections = map[string]string{
	"USA":    "taguses",
	"Canada": "tagcas",
}

func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	if token != "" && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		httpClient:     &http.Client{Timeout: requestTimeout},
		limiter:        rate.NewLimiter(rate.Every(pagePacing), 1),
		logger:         logger,
		pageSize:       defaultPageSize,
		tagCollections: DefaultTagCollections,
	}
}

// SetTagCollections overrides the country to collection mapping.
func (c *Client) SetTagCollections(collections map[string]string) {
	c.tagCollections = collections
}

// SetPacing changes the minimum interval between paginated reads.
func (c *Client) SetPacing(every time.Duration) {
	c.limiter = rate.NewLimiter(rate.Every(every), 1)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("strapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", repository.ErrNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// listAll walks every page of a collection query.
func listAll[T any](ctx context.Context, c *Client, collection string, query url.Values) ([]T, error) {
	var all []T
	page, pageCount := 1, 1

	for page <= pageCount {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		q := cloneValues(query)
		q.Set("pagination[page]", strconv.Itoa(page))
		q.Set("pagination[pageSize]", strconv.Itoa(c.pageSize))

		var resp listResponse[T]
		if err := c.do(ctx, http.MethodGet, "/api/"+collection, q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		pageCount = resp.Meta.Pagination.PageCount
		page++
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(all),
		"pages":      pageCount,
	}).Debug("Loaded collection from CMS")

	return all, nil
}

// listFirst fetches a single page of at most limit entries.
func listFirst[T any](ctx context.Context, c *Client, collection string, query url.Values, limit int) ([]T, error) {
	q := cloneValues(query)
	q.Set("pagination[page]", "1")
	q.Set("pagination[pageSize]", strconv.Itoa(limit))

	var resp listResponse[T]
	if err := c.do(ctx, http.MethodGet, "/api/"+collection, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func getOne[T any](ctx context.Context, c *Client, collection, docID string) (T, error) {
	var resp itemResponse[T]
	err := c.do(ctx, http.MethodGet, "/api/"+collection+"/"+url.PathEscape(docID), nil, nil, &resp)
	return resp.Data, err
}

func create[T any](ctx context.Context, c *Client, collection string, data any) (T, error) {
	var resp itemResponse[T]
	err := c.do(ctx, http.MethodPost, "/api/"+collection, nil, map[string]any{"data": data}, &resp)
	return resp.Data, err
}

func (c *Client) update(ctx context.Context, collection, docID string, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/"+collection+"/"+url.PathEscape(docID), nil, map[string]any{"data": data}, nil)
}

// writable turns a model into a CMS payload, dropping the fields the CMS owns.
func writable(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	for _, key := range []string{"id", "documentId", "createdAt", "updatedAt", "publishedAt"} {
		delete(out, key)
	}
	return out, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
