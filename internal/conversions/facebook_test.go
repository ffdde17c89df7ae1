package conversions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"affiliate-tracking-system/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacebookSubmit(t *testing.T) {
	var (
		path    string
		token   string
		payload struct {
			Data []fbEvent `json:"data"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		token = r.URL.Query().Get("access_token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"events_received":1}`))
	}))
	defer srv.Close()

	fb := NewFacebook("pixel-1", "tok", "")
	fb.SetGraphURL(srv.URL)

	err := fb.Submit(context.Background(), Group{
		TrackingID: "tag-1",
		TotalValue: 0.75,
		Purchases: []models.Purchase{
			{EventID: "ev-1", OrderID: "ord-1", EventTime: 1700000000, Fbc: "fbc", Fbp: "fbp",
				ClientIPAddress: "1.2.3.4", ASIN: "A", OrderedCount: 1, Price: 4.96,
				EventSourceURL: "https://nice-advice.info/product/3"},
			{EventID: "ev-2", OrderID: "ord-2", ASIN: "B", OrderedCount: 2, Price: 1.5},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v18.0/pixel-1/events", path)
	assert.Equal(t, "tok", token)
	require.Len(t, payload.Data, 1)
	event := payload.Data[0]
	assert.Equal(t, "Purchase", event.EventName)
	assert.Equal(t, int64(1700000000), event.EventTime)
	assert.Equal(t, "website", event.ActionSource)
	assert.Equal(t, "ev-1", event.EventID)
	assert.Equal(t, "fbc", event.UserData.Fbc)
	assert.Equal(t, "1.2.3.4", event.UserData.ClientIPAddress)
	require.NotNil(t, event.CustomData)
	assert.Equal(t, "USD", event.CustomData.Currency)
	assert.Equal(t, 0.75, event.CustomData.Value)
	assert.Equal(t, "ord-1", event.CustomData.OrderID)
	assert.Equal(t, []fbContent{{ID: "A", Quantity: 1, ItemPrice: 4.96}, {ID: "B", Quantity: 2, ItemPrice: 1.5}}, event.CustomData.Contents)
}

func TestFacebookSubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter"}}`))
	}))
	defer srv.Close()

	fb := NewFacebook("pixel-1", "tok", "v18.0")
	fb.SetGraphURL(srv.URL)

	err := fb.Submit(context.Background(), Group{Purchases: []models.Purchase{{Fbc: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid parameter")
}

func TestFacebookSendLead(t *testing.T) {
	var payload struct {
		Data []fbEvent `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	fb := NewFacebook("pixel-1", "tok", "")
	fb.SetGraphURL(srv.URL)

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	err := fb.SendLead(context.Background(), models.Lead{
		EventID: "lead-1", Fbp: "fbp", ExternalID: " User@Example.com ", CreatedAt: created,
	}, "https://nice-advice.info/product/1")
	require.NoError(t, err)

	require.Len(t, payload.Data, 1)
	event := payload.Data[0]
	assert.Equal(t, "Lead", event.EventName)
	assert.Equal(t, created.Unix(), event.EventTime)
	assert.Nil(t, event.CustomData)
	assert.Equal(t, []string{hashIdentifier("user@example.com")}, event.UserData.ExternalID)
	assert.Len(t, event.UserData.ExternalID[0], 64)
}

func TestFacebookEligible(t *testing.T) {
	fb := NewFacebook("p", "t", "")
	assert.True(t, fb.Eligible(models.Purchase{Fbp: "x"}))
	assert.True(t, fb.Eligible(models.Purchase{Fbc: "x"}))
	assert.False(t, fb.Eligible(models.Purchase{Gclid: "x"}))
}

func TestFacebookSubmitKeepsZeroValue(t *testing.T) {
	var payload struct {
		Data []struct {
			CustomData map[string]json.RawMessage `json:"custom_data"`
		} `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	fb := NewFacebook("pixel-1", "tok", "")
	fb.SetGraphURL(srv.URL)

	err := fb.Submit(context.Background(), Group{
		TrackingID: "tag-1",
		Purchases:  []models.Purchase{{EventID: "ev-1", Fbc: "fbc", ASIN: "A", OrderedCount: 1}},
	})
	require.NoError(t, err)

	require.Len(t, payload.Data, 1)
	value, ok := payload.Data[0].CustomData["value"]
	require.True(t, ok, "value must be sent even when the commission is zero")
	assert.JSONEq(t, "0", string(value))
}
