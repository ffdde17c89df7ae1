package conversions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"affiliate-tracking-system/internal/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleAdsURL = "https://googleads.googleapis.com"
	googleTokenURL      = "https://oauth2.googleapis.com/token"
	googleAuthURL       = "https://accounts.google.com/o/oauth2/auth"

	// Google Ads wants "yyyy-mm-dd hh:mm:ss+|-hh:mm".
	googleTimeLayout = "2006-01-02 15:04:05-07:00"
)

type GoogleAdsConfig struct {
	DeveloperToken     string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	CustomerID         string
	LoginCustomerID    string
	ConversionActionID string
	APIVersion         string
}

// GoogleAds uploads offline click conversions through the Google Ads REST
// interface.
type GoogleAds struct {
	baseURL          string
	apiVersion       string
	developerToken   string
	customerID       string
	loginCustomerID  string
	conversionAction string
	tokens           oauth2.TokenSource
	httpClient       *http.Client
	now              func() time.Time
	newID            func() string
}

func NewGoogleAds(cfg GoogleAdsConfig) *GoogleAds {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}
	tokens := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return newGoogleAds(cfg, tokens)
}

func newGoogleAds(cfg GoogleAdsConfig, tokens oauth2.TokenSource) *GoogleAds {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v17"
	}
	customerID := strings.ReplaceAll(cfg.CustomerID, "-", "")
	return &GoogleAds{
		baseURL:          defaultGoogleAdsURL,
		apiVersion:       apiVersion,
		developerToken:   cfg.DeveloperToken,
		customerID:       customerID,
		loginCustomerID:  strings.ReplaceAll(cfg.LoginCustomerID, "-", ""),
		conversionAction: fmt.Sprintf("customers/%s/conversionActions/%s", customerID, cfg.ConversionActionID),
		tokens:           oauth2.ReuseTokenSource(nil, tokens),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// SetBaseURL points the client at another host.
func (g *GoogleAds) SetBaseURL(u string) {
	g.baseURL = strings.TrimRight(u, "/")
}

type clickConversion struct {
	ConversionAction   string  `json:"conversionAction"`
	ConversionDateTime string  `json:"conversionDateTime"`
	ConversionValue    float64 `json:"conversionValue"`
	CurrencyCode       string  `json:"currencyCode"`
	OrderID            string  `json:"orderId"`
	Gclid              string  `json:"gclid,omitempty"`
	Wbraid             string  `json:"wbraid,omitempty"`
	Gbraid             string  `json:"gbraid,omitempty"`
}

type uploadRequest struct {
	Conversions    []clickConversion `json:"conversions"`
	PartialFailure bool              `json:"partialFailure"`
}

type uploadResponse struct {
	PartialFailureError *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"partialFailureError"`
}

func (g *GoogleAds) Network() models.Network {
	return models.NetworkGoogle
}

func (g *GoogleAds) Eligible(p models.Purchase) bool {
	return p.Gclid != "" || p.Wbraid != "" || p.Gbraid != ""
}

// Submit uploads one click conversion for the group, identified by the
// first purchase's click id (gclid, then wbraid, then gbraid).
func (g *GoogleAds) Submit(ctx context.Context, group Group) error {
	if len(group.Purchases) == 0 {
		return nil
	}
	first := group.Purchases[0]

	conversion := clickConversion{
		ConversionAction:   g.conversionAction,
		ConversionDateTime: g.conversionTime(first),
		ConversionValue:    group.TotalValue,
		CurrencyCode:       currencyUSD,
		OrderID:            first.OrderID,
	}
	if conversion.OrderID == "" {
		conversion.OrderID = g.newID()
	}
	switch {
	case first.Gclid != "":
		conversion.Gclid = first.Gclid
	case first.Wbraid != "":
		conversion.Wbraid = first.Wbraid
	case first.Gbraid != "":
		conversion.Gbraid = first.Gbraid
	}

	token, err := g.tokens.Token()
	if err != nil {
		return fmt.Errorf("google ads token: %w", err)
	}

	body, err := json.Marshal(uploadRequest{
		Conversions:    []clickConversion{conversion},
		PartialFailure: true,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/customers/%s:uploadClickConversions", g.baseURL, g.apiVersion, g.customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", g.developerToken)
	if g.loginCustomerID != "" {
		req.Header.Set("login-customer-id", g.loginCustomerID)
	}
	token.SetAuthHeader(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google ads upload: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("google ads upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode google ads response: %w", err)
	}
	if out.PartialFailureError != nil && (out.PartialFailureError.Code != 0 || out.PartialFailureError.Message != "") {
		return errors.New("google ads partial failure: " + out.PartialFailureError.Message)
	}
	return nil
}

func (g *GoogleAds) conversionTime(p models.Purchase) string {
	t := g.now()
	if p.EventTime > 0 {
		t = time.Unix(int64(p.EventTime), 0)
	}
	return t.UTC().Format(googleTimeLayout)
}
