// Package earnings reads ordered items out of the Associates earnings report.
package earnings

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"affiliate-tracking-system/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	tableSelector = "#ac-report-earning-summary-tbl table.a-dtt-table"
	rowSelector   = "tbody.a-dtt-tbody tr"
)

// Columns of the orders table, left to right.
const (
	colTitle = iota
	colCategory
	colMerchant
	colOrdered
	colTrackingID
	colPrice
)

// ParseReport extracts one order per table row. Cells that fail to parse
// degrade to zero values instead of failing the report.
func ParseReport(r io.Reader) ([]models.Order, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("earnings table %q not found", tableSelector)
	}

	var orders []models.Order
	table.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		cell := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		titleCell := cells.Eq(colTitle)
		link := titleCell.Find("a").First()
		itemURL, _ := link.Attr("href")

		orders = append(orders, models.Order{
			Index:        strings.TrimSpace(titleCell.Find(".item-id").First().Text()),
			Title:        strings.TrimSpace(link.Text()),
			ItemURL:      itemURL,
			ASIN:         asinFromURL(itemURL),
			Category:     cell(colCategory),
			Merchant:     cell(colMerchant),
			OrderedCount: parseCount(cell(colOrdered)),
			TrackingID:   cell(colTrackingID),
			Price:        parsePrice(cell(colPrice)),
		})
	})
	return orders, nil
}

func asinFromURL(itemURL string) string {
	if itemURL == "" {
		return ""
	}
	if i := strings.IndexAny(itemURL, "?#"); i >= 0 {
		itemURL = itemURL[:i]
	}
	parts := strings.Split(itemURL, "/")
	return parts[len(parts)-1]
}

func parsePrice(raw string) *float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
