package earnings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = `<html><body>
<div id="ac-report-earning-summary-tbl">
  <table class="a-dtt-table">
    <thead><tr><th>Name</th></tr></thead>
    <tbody class="a-dtt-tbody">
      <tr>
        <td><span class="item-id">1</span><a href="https://www.amazon.com/dp/B0TEST0001">  Green Tea 100ct </a></td>
        <td>Grocery &amp; Gourmet Food</td>
        <td>Amazon.com</td>
        <td>2</td>
        <td>niceadvice01-20</td>
        <td>$1,024.50</td>
      </tr>
      <tr>
        <td><span class="item-id">2</span><a href="/gp/product/B0TEST0002?ref=x">Mug</a></td>
        <td>Home &amp; Kitchen</td>
        <td>Third party</td>
        <td>n/a</td>
        <td>niceadvice02-20</td>
        <td>--</td>
      </tr>
    </tbody>
  </table>
</div>
</body></html>`

func TestParseReport(t *testing.T) {
	orders, err := ParseReport(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, "1", first.Index)
	assert.Equal(t, "Green Tea 100ct", first.Title)
	assert.Equal(t, "B0TEST0001", first.ASIN)
	assert.Equal(t, "Grocery & Gourmet Food", first.Category)
	assert.Equal(t, "Amazon.com", first.Merchant)
	assert.Equal(t, 2, first.OrderedCount)
	assert.Equal(t, "niceadvice01-20", first.TrackingID)
	require.NotNil(t, first.Price)
	assert.Equal(t, 1024.5, *first.Price)

	second := orders[1]
	assert.Equal(t, "B0TEST0002", second.ASIN)
	assert.Zero(t, second.OrderedCount, "non-numeric count degrades to zero")
	assert.Nil(t, second.Price, "unparseable price is absent")
}

func TestParseReportMissingTable(t *testing.T) {
	_, err := ParseReport(strings.NewReader("<html><body>login</body></html>"))
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(report))
	}))
	defer srv.Close()

	orders, err := NewSource(srv.URL).FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"ASIN":"A","trackingId":"t-20","price":3,"orderedCount":1}]`), 0o600))
	orders, err = NewSource(jsonPath).FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "t-20", orders[0].TrackingID)

	htmlPath := filepath.Join(dir, "report.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte(report), 0o600))
	orders, err = NewSource(htmlPath).FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	orders, err = NewSource("").FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}
