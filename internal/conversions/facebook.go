package conversions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"affiliate-tracking-system/internal/models"
)

const (
	defaultGraphURL = "https://graph.facebook.com"
	currencyUSD     = "USD"
)

// Facebook sends events to the Conversions API of one pixel.
type Facebook struct {
	graphURL    string
	apiVersion  string
	pixelID     string
	accessToken string
	httpClient  *http.Client
	now         func() time.Time
}

func NewFacebook(pixelID, accessToken, apiVersion string) *Facebook {
	if apiVersion == "" {
		apiVersion = "v18.0"
	}
	return &Facebook{
		graphURL:    defaultGraphURL,
		apiVersion:  apiVersion,
		pixelID:     pixelID,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
	}
}

// SetGraphURL points the client at another host.
func (f *Facebook) SetGraphURL(u string) {
	f.graphURL = strings.TrimRight(u, "/")
}

type fbUserData struct {
	Fbc             string   `json:"fbc,omitempty"`
	Fbp             string   `json:"fbp,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ExternalID      []string `json:"external_id,omitempty"`
}

type fbContent struct {
	ID        string  `json:"id"`
	Quantity  int     `json:"quantity"`
	ItemPrice float64 `json:"item_price"`
}

type fbCustomData struct {
	Currency string      `json:"currency,omitempty"`
	Value    float64     `json:"value"`
	OrderID  string      `json:"order_id,omitempty"`
	Contents []fbContent `json:"contents,omitempty"`
}

type fbEvent struct {
	EventName      string        `json:"event_name"`
	EventTime      int64         `json:"event_time"`
	ActionSource   string        `json:"action_source"`
	EventSourceURL string        `json:"event_source_url,omitempty"`
	EventID        string        `json:"event_id,omitempty"`
	UserData       fbUserData    `json:"user_data"`
	CustomData     *fbCustomData `json:"custom_data,omitempty"`
}

func (f *Facebook) Network() models.Network {
	return models.NetworkFacebook
}

func (f *Facebook) Eligible(p models.Purchase) bool {
	return p.Fbc != "" || p.Fbp != ""
}

// Submit sends one Purchase event for the group. The first purchase
// supplies the click data and the dedup ids.
func (f *Facebook) Submit(ctx context.Context, group Group) error {
	if len(group.Purchases) == 0 {
		return nil
	}
	first := group.Purchases[0]

	eventTime := int64(first.EventTime)
	if eventTime == 0 {
		eventTime = f.now().Unix()
	}
	actionSource := first.ActionSource
	if actionSource == "" {
		actionSource = "website"
	}

	contents := make([]fbContent, 0, len(group.Purchases))
	for _, p := range group.Purchases {
		contents = append(contents, fbContent{
			ID:        p.ASIN,
			Quantity:  p.OrderedCount,
			ItemPrice: float64(p.Price),
		})
	}

	return f.send(ctx, fbEvent{
		EventName:      "Purchase",
		EventTime:      eventTime,
		ActionSource:   actionSource,
		EventSourceURL: first.EventSourceURL,
		EventID:        first.EventID,
		UserData: fbUserData{
			Fbc:             first.Fbc,
			Fbp:             first.Fbp,
			ClientUserAgent: first.ClientUserAgent,
			ClientIPAddress: first.ClientIPAddress,
		},
		CustomData: &fbCustomData{
			Currency: currencyUSD,
			Value:    group.TotalValue,
			OrderID:  first.OrderID,
			Contents: contents,
		},
	})
}

// SendLead reports the click itself as a Lead event.
func (f *Facebook) SendLead(ctx context.Context, lead models.Lead, sourceURL string) error {
	actionSource := lead.ActionSource
	if actionSource == "" {
		actionSource = "website"
	}
	user := fbUserData{
		Fbc:             lead.Fbc,
		Fbp:             lead.Fbp,
		ClientUserAgent: lead.ClientUserAgent,
		ClientIPAddress: lead.ClientIPAddress,
	}
	if lead.ExternalID != "" {
		user.ExternalID = []string{hashIdentifier(lead.ExternalID)}
	}
	return f.send(ctx, fbEvent{
		EventName:      "Lead",
		EventTime:      lead.CreatedAt.Unix(),
		ActionSource:   actionSource,
		EventSourceURL: sourceURL,
		EventID:        lead.EventID,
		UserData:       user,
	})
}

func (f *Facebook) send(ctx context.Context, event fbEvent) error {
	body, err := json.Marshal(map[string]any{"data": []fbEvent{event}})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		f.graphURL, f.apiVersion, url.PathEscape(f.pixelID), url.QueryEscape(f.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facebook %s event: %w", event.EventName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("facebook %s event: status %d: %s", event.EventName, resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}

// hashIdentifier normalizes and hashes personal identifiers the way the
// Conversions API expects them.
func hashIdentifier(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}
