package strapi

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	leadsCollection       = "leads"
	purchasesCollection   = "purchases"
	commissionsCollection = "amzn-comissions"
	postsCollection       = "posts"
	productsCollection    = "products"
)

var _ repository.Store = (*Client)(nil)

func (c *Client) tagCollection(country string) (string, error) {
	collection, ok := c.tagCollections[country]
	if !ok {
		return "", fmt.Errorf("no tag collection configured for country %q", country)
	}
	return collection, nil
}

func withCountry(tags []models.Tag, country string) []models.Tag {
	for i := range tags {
		tags[i].Country = country
	}
	return tags
}

func (c *Client) GetTag(ctx context.Context, country, docID string) (*models.Tag, error) {
	collection, err := c.tagCollection(country)
	if err != nil {
		return nil, err
	}
	tag, err := getOne[models.Tag](ctx, c, collection, docID)
	if err != nil {
		if isNotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	tag.Country = country
	return &tag, nil
}

func (c *Client) GetTagByName(ctx context.Context, country, name string) (*models.Tag, error) {
	collection, err := c.tagCollection(country)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("filters[name][$eq]", name)
	tags, err := listFirst[models.Tag](ctx, c, collection, q, 1)
	if err != nil {
		return nil, fmt.Errorf("get tag by name: %w", err)
	}
	if len(tags) == 0 {
		return nil, repository.ErrNotFound
	}
	return &withCountry(tags, country)[0], nil
}

func (c *Client) ListUnusedTags(ctx context.Context, country string, limit int) ([]models.Tag, error) {
	collection, err := c.tagCollection(country)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("filters[isUsed][$eq]", "false")
	q.Set("sort[0]", "createdAt:asc")

	var tags []models.Tag
	if limit > 0 {
		tags, err = listFirst[models.Tag](ctx, c, collection, q, limit)
	} else {
		tags, err = listAll[models.Tag](ctx, c, collection, q)
	}
	if err != nil {
		return nil, fmt.Errorf("list unused tags: %w", err)
	}
	return withCountry(tags, country), nil
}

func (c *Client) ListUsedTagsBefore(ctx context.Context, country string, cutoff time.Time) ([]models.Tag, error) {
	collection, err := c.tagCollection(country)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("filters[isUsed][$eq]", "true")
	q.Set("filters[updatedAt][$lt]", isoTime(cutoff))
	q.Set("sort[0]", "updatedAt:asc")

	tags, err := listAll[models.Tag](ctx, c, collection, q)
	if err != nil {
		return nil, fmt.Errorf("list used tags: %w", err)
	}
	return withCountry(tags, country), nil
}

// ClaimTag re-reads the tag before writing. The CMS has no conditional
// update, so callers serialize claims within the process.
func (c *Client) ClaimTag(ctx context.Context, country, docID string, claim models.TagClaim) error {
	tag, err := c.GetTag(ctx, country, docID)
	if err != nil {
		return err
	}
	if tag.IsUsed {
		return repository.ErrTagTaken
	}

	collection, _ := c.tagCollection(country)
	data := map[string]any{
		"isUsed":    true,
		"productId": claim.ProductID,
	}
	if claim.Fbclid != "" {
		data["fbclid"] = claim.Fbclid
	}
	if err := c.update(ctx, collection, docID, data); err != nil {
		return fmt.Errorf("claim tag: %w", err)
	}
	return nil
}

func (c *Client) ResetTag(ctx context.Context, country, docID string) error {
	collection, err := c.tagCollection(country)
	if err != nil {
		return err
	}
	err = c.update(ctx, collection, docID, map[string]any{
		"isUsed":    false,
		"fbclid":    nil,
		"productId": nil,
	})
	if err != nil {
		if isNotFound(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("reset tag: %w", err)
	}
	return nil
}

func (c *Client) SetTagFbclid(ctx context.Context, country, docID, fbclid, productID string) error {
	collection, err := c.tagCollection(country)
	if err != nil {
		return err
	}
	data := map[string]any{"fbclid": fbclid}
	if productID != "" {
		data["productId"] = productID
	}
	if err := c.update(ctx, collection, docID, data); err != nil {
		if isNotFound(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("set tag fbclid: %w", err)
	}
	return nil
}

func (c *Client) CreateTag(ctx context.Context, tag models.Tag) (*models.Tag, error) {
	collection, err := c.tagCollection(tag.Country)
	if err != nil {
		return nil, err
	}
	created, err := create[models.Tag](ctx, c, collection, map[string]any{
		"name":   tag.Name,
		"isUsed": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	created.Country = tag.Country
	return &created, nil
}

func (c *Client) CreateLead(ctx context.Context, lead models.Lead) error {
	data, err := writable(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	if _, err := create[models.Lead](ctx, c, leadsCollection, data); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (c *Client) ListLeadsSince(ctx context.Context, since time.Time) ([]models.Lead, error) {
	q := url.Values{}
	q.Set("filters[createdAt][$gte]", isoTime(since))
	q.Set("sort[0]", "createdAt:desc")

	leads, err := listAll[models.Lead](ctx, c, leadsCollection, q)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

func (c *Client) CreatePurchase(ctx context.Context, purchase models.Purchase) (*models.Purchase, error) {
	data, err := writable(purchase)
	if err != nil {
		return nil, fmt.Errorf("encode purchase: %w", err)
	}
	created, err := create[models.Purchase](ctx, c, purchasesCollection, data)
	if err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"purchase_id": created.ID,
		"tracking_id": purchase.TrackingID,
		"asin":        purchase.ASIN,
	}).Info("Purchase saved")
	return &created, nil
}

func (c *Client) ListPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error) {
	q := url.Values{}
	q.Set("filters[createdAt][$gte]", isoTime(since))
	q.Set("sort[0]", "createdAt:desc")

	purchases, err := listAll[models.Purchase](ctx, c, purchasesCollection, q)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

func reportedField(network models.Network) (string, error) {
	switch network {
	case models.NetworkFacebook:
		return "isUsed", nil
	case models.NetworkGoogle:
		return "isGoogleUsed", nil
	}
	return "", fmt.Errorf("unknown network %q", network)
}

func (c *Client) ListUnreportedPurchases(ctx context.Context, network models.Network) ([]models.Purchase, error) {
	field, err := reportedField(network)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("filters["+field+"][$eq]", "false")
	q.Set("sort[0]", "createdAt:asc")

	purchases, err := listAll[models.Purchase](ctx, c, purchasesCollection, q)
	if err != nil {
		return nil, fmt.Errorf("list unreported purchases: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"network": network,
		"count":   len(purchases),
	}).Info("Unreported purchases loaded")
	return purchases, nil
}

func (c *Client) MarkPurchaseReported(ctx context.Context, key string, network models.Network) error {
	field, err := reportedField(network)
	if err != nil {
		return err
	}
	if err := c.update(ctx, purchasesCollection, key, map[string]any{field: true}); err != nil {
		return fmt.Errorf("mark purchase reported: %w", err)
	}
	return nil
}

func (c *Client) ListCommissions(ctx context.Context) ([]models.CommissionRate, error) {
	rates, err := listAll[models.CommissionRate](ctx, c, commissionsCollection, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return rates, nil
}

// CreatePost publishes a blog post and returns its document id.
func (c *Client) CreatePost(ctx context.Context, post map[string]any) (string, error) {
	created, err := create[struct {
		DocumentID string `json:"documentId"`
	}](ctx, c, postsCollection, post)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return created.DocumentID, nil
}

func (c *Client) CreateProduct(ctx context.Context, product map[string]any) (string, error) {
	created, err := create[struct {
		DocumentID string `json:"documentId"`
	}](ctx, c, productsCollection, product)
	if err != nil {
		return "", fmt.Errorf("create product: %w", err)
	}
	return created.DocumentID, nil
}
