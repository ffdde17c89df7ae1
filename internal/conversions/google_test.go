package conversions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"affiliate-tracking-system/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestGoogleAds(t *testing.T, handler http.HandlerFunc) *GoogleAds {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := newGoogleAds(GoogleAdsConfig{
		DeveloperToken:     "dev-token",
		CustomerID:         "123-456-7890",
		LoginCustomerID:    "111-222-3333",
		ConversionActionID: "987",
	}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access", TokenType: "Bearer"}))
	g.SetBaseURL(srv.URL)
	g.newID = func() string { return "generated" }
	return g
}

func TestGoogleAdsSubmit(t *testing.T) {
	var (
		req  *http.Request
		body uploadRequest
	)
	g := newTestGoogleAds(t, func(w http.ResponseWriter, r *http.Request) {
		req = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"results":[{}]}`))
	})

	err := g.Submit(context.Background(), Group{
		TrackingID: "tag-1",
		TotalValue: 1.23,
		Purchases: []models.Purchase{
			{EventTime: 1700000000, Wbraid: "wb", Gbraid: "gb"},
			{Gclid: "ignored"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v17/customers/1234567890:uploadClickConversions", req.URL.Path)
	assert.Equal(t, "Bearer access", req.Header.Get("Authorization"))
	assert.Equal(t, "dev-token", req.Header.Get("developer-token"))
	assert.Equal(t, "1112223333", req.Header.Get("login-customer-id"))

	assert.True(t, body.PartialFailure)
	require.Len(t, body.Conversions, 1)
	c := body.Conversions[0]
	assert.Equal(t, "customers/1234567890/conversionActions/987", c.ConversionAction)
	assert.Equal(t, "2023-11-14 22:13:20+00:00", c.ConversionDateTime)
	assert.Equal(t, 1.23, c.ConversionValue)
	assert.Equal(t, "USD", c.CurrencyCode)
	assert.Equal(t, "generated", c.OrderID)
	assert.Equal(t, "wb", c.Wbraid, "first purchase decides the identifier")
	assert.Empty(t, c.Gclid)
	assert.Empty(t, c.Gbraid)
}

func TestGoogleAdsPartialFailure(t *testing.T) {
	g := newTestGoogleAds(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"partialFailureError":{"code":3,"message":"The click is too old"}}`))
	})

	err := g.Submit(context.Background(), Group{Purchases: []models.Purchase{{Gclid: "g", OrderID: "o"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")
}

func TestGoogleAdsHTTPError(t *testing.T) {
	g := newTestGoogleAds(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := g.Submit(context.Background(), Group{Purchases: []models.Purchase{{Gclid: "g"}}})
	assert.Error(t, err)
}

func TestGoogleAdsEligible(t *testing.T) {
	g := newGoogleAds(GoogleAdsConfig{}, oauth2.StaticTokenSource(&oauth2.Token{}))
	assert.True(t, g.Eligible(models.Purchase{Gclid: "x"}))
	assert.True(t, g.Eligible(models.Purchase{Wbraid: "x"}))
	assert.True(t, g.Eligible(models.Purchase{Gbraid: "x"}))
	assert.False(t, g.Eligible(models.Purchase{Fbc: "x"}))
}
