package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{`4.96`, 4.96},
		{`"4.96"`, 4.96},
		{`"$1,024.50"`, 1024.5},
		{`null`, 0},
		{`"abc"`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a Amount
			require.NoError(t, json.Unmarshal([]byte(tt.in), &a))
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestFlexStringAndUnixSeconds(t *testing.T) {
	var p struct {
		ProductID FlexString  `json:"productId"`
		EventTime UnixSeconds `json:"event_time"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"productId":42,"event_time":"1700000000"}`), &p))
	assert.Equal(t, "42", p.ProductID.String())
	assert.Equal(t, UnixSeconds(1700000000), p.EventTime)

	require.NoError(t, json.Unmarshal([]byte(`{"productId":"abc","event_time":null}`), &p))
	assert.Equal(t, FlexString("abc"), p.ProductID)
	assert.Zero(t, p.EventTime)
}

func TestReportedTo(t *testing.T) {
	p := Purchase{IsUsed: true}
	assert.True(t, p.ReportedTo(NetworkFacebook))
	assert.False(t, p.ReportedTo(NetworkGoogle))
	assert.False(t, p.ReportedTo(Network("other")))
}
