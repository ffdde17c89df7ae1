package content

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"affiliate-tracking-system/internal/logger"
	"affiliate-tracking-system/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productJSON = `{
  "title": "**Unbeatable Deals on Kettles!**",
  "descriptionfield1": "☕ Boils fast: two minutes flat\nignored",
  "descriptionfield2": "💰 Save big today",
  "descriptionfield3": "🏠 Fits any kitchen",
  "descriptionfield4": "👉 Grab yours now"
}`

type productRecorder struct {
	products []map[string]any
	err      error
}

func (r *productRecorder) CreateProduct(_ context.Context, product map[string]any) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.products = append(r.products, product)
	return "prod-1", nil
}

type claimRecorder struct {
	tag       *models.Tag
	err       error
	claims    []string
	backfills []string
}

func (c *claimRecorder) ClaimTag(_ context.Context, country string, _ models.TagClaim) (*models.Tag, error) {
	c.claims = append(c.claims, country)
	if c.err != nil {
		return nil, c.err
	}
	return c.tag, nil
}

func (c *claimRecorder) TriggerBackfill(country string) {
	c.backfills = append(c.backfills, country)
}

func TestPublishProduct(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Sure!\n" + productJSON}}
	products := &productRecorder{}
	claimer := &claimRecorder{tag: &models.Tag{Name: "site07-20", DocumentID: "doc-7"}}
	pub := NewProductPublisher(gen, products, claimer, logger.Discard())

	resp, err := pub.PublishProduct(context.Background(), models.ProductRequest{
		Query: "electric kettle",
		Link:  "https://www.amazon.com/dp/B0KETTLE?tag=old-20&th=1",
	})
	require.NoError(t, err)

	assert.Equal(t, "prod-1", resp.ID)
	assert.Equal(t, "site07-20", resp.TrackingID)
	assert.Equal(t, "Unbeatable Deals on Kettles!", resp.Title)
	assert.Equal(t, []string{"USA"}, claimer.claims)
	assert.Equal(t, []string{"USA"}, claimer.backfills)
	assert.Contains(t, gen.prompts[0], `"electric kettle"`)

	u, err := url.Parse(resp.Link)
	require.NoError(t, err)
	assert.Equal(t, "site07-20", u.Query().Get("tag"))
	assert.Equal(t, "1", u.Query().Get("th"))

	require.Len(t, products.products, 1)
	saved := products.products[0]
	assert.Equal(t, "site07-20", saved["tag"])
	assert.Equal(t, resp.Link, saved["link"])
	assert.Equal(t, "☕ Boils fast: two minutes flat", saved["descriptionfield1"])
	assert.Equal(t, "👉 Grab yours now", saved["descriptionfield4"])
}

func TestPublishProductFailures(t *testing.T) {
	ctx := context.Background()
	req := models.ProductRequest{Query: "kettle", Link: "https://www.amazon.com/dp/B0", Country: "Canada"}

	t.Run("bad link claims nothing", func(t *testing.T) {
		gen := &scriptedGenerator{}
		claimer := &claimRecorder{}
		pub := NewProductPublisher(gen, &productRecorder{}, claimer, logger.Discard())

		_, err := pub.PublishProduct(ctx, models.ProductRequest{Query: "kettle", Link: "amazon.com/dp/B0"})
		assert.ErrorIs(t, err, ErrInvalidProductLink)
		assert.Empty(t, gen.prompts)
		assert.Empty(t, claimer.claims)
	})

	t.Run("generator error claims nothing", func(t *testing.T) {
		claimer := &claimRecorder{}
		pub := NewProductPublisher(&scriptedGenerator{err: errors.New("overloaded")}, &productRecorder{}, claimer, logger.Discard())

		_, err := pub.PublishProduct(ctx, req)
		assert.ErrorContains(t, err, "overloaded")
		assert.Empty(t, claimer.claims)
	})

	t.Run("pool exhausted", func(t *testing.T) {
		errEmpty := errors.New("no available tags")
		claimer := &claimRecorder{err: errEmpty}
		products := &productRecorder{}
		pub := NewProductPublisher(&scriptedGenerator{replies: []string{productJSON}}, products, claimer, logger.Discard())

		_, err := pub.PublishProduct(ctx, req)
		assert.ErrorIs(t, err, errEmpty)
		assert.Equal(t, []string{"Canada"}, claimer.claims)
		assert.Empty(t, products.products)
	})

	t.Run("store error", func(t *testing.T) {
		claimer := &claimRecorder{tag: &models.Tag{Name: "ca-20"}}
		pub := NewProductPublisher(&scriptedGenerator{replies: []string{productJSON}}, &productRecorder{err: errors.New("cms down")}, claimer, logger.Discard())

		_, err := pub.PublishProduct(ctx, req)
		assert.ErrorContains(t, err, "cms down")
	})
}

func TestParseProductCopy(t *testing.T) {
	card, err := ParseProductCopy("```json\n" + productJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Unbeatable Deals on Kettles!", card.Title)
	assert.Equal(t, "💰 Save big today", card.Description2)

	_, err = ParseProductCopy(`{"title": "  "}`)
	assert.Error(t, err)

	_, err = ParseProductCopy("no json here")
	assert.Error(t, err)
}

func TestRefLink(t *testing.T) {
	link, err := RefLink(" https://www.amazon.ca/dp/B0X ", "ca-20")
	require.NoError(t, err)
	assert.Equal(t, "https://www.amazon.ca/dp/B0X?tag=ca-20", link)

	for _, raw := range []string{"", "ftp://amazon.com/x", "/dp/B0", "https://"} {
		_, err := RefLink(raw, "t-20")
		assert.ErrorIs(t, err, ErrInvalidProductLink, raw)
	}
}
