package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"affiliate-tracking-system/internal/models"

	"github.com/sirupsen/logrus"
)

const defaultProductCountry = "USA"

var ErrInvalidProductLink = errors.New("product link must be an absolute http(s) URL")

type ProductStore interface {
	CreateProduct(ctx context.Context, product map[string]any) (string, error)
}

// TagClaimer hands out a tag under the same lock the lead path uses.
type TagClaimer interface {
	ClaimTag(ctx context.Context, country string, claim models.TagClaim) (*models.Tag, error)
	TriggerBackfill(country string)
}

// ProductCopy is the marketing text the model writes for one product card.
type ProductCopy struct {
	Title        string `json:"title"`
	Description1 string `json:"descriptionfield1"`
	Description2 string `json:"descriptionfield2"`
	Description3 string `json:"descriptionfield3"`
	Description4 string `json:"descriptionfield4"`
}

type ProductPublisher struct {
	generator TextGenerator
	products  ProductStore
	tags      TagClaimer
	logger    *logrus.Logger
}

func NewProductPublisher(generator TextGenerator, products ProductStore, tags TagClaimer, logger *logrus.Logger) *ProductPublisher {
	return &ProductPublisher{
		generator: generator,
		products:  products,
		tags:      tags,
		logger:    logger,
	}
}

// PublishProduct writes a deal card for the query, binds a fresh tag to the
// store link and saves the card. The copy is generated before the claim so a
// slow model never holds the tag lock. A card that fails to save leaves its
// tag claimed until the reset window returns it.
func (p *ProductPublisher) PublishProduct(ctx context.Context, req models.ProductRequest) (*models.ProductResponse, error) {
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = defaultProductCountry
	}
	if _, err := storeURL(req.Link); err != nil {
		return nil, err
	}
	log := p.logger.WithFields(logrus.Fields{
		"query":   req.Query,
		"country": country,
	})

	card, err := p.productCopy(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	tag, err := p.tags.ClaimTag(ctx, country, models.TagClaim{})
	if err != nil {
		return nil, fmt.Errorf("claim tag: %w", err)
	}
	p.tags.TriggerBackfill(country)

	link, err := RefLink(req.Link, tag.Name)
	if err != nil {
		return nil, err
	}

	docID, err := p.products.CreateProduct(ctx, map[string]any{
		"title":             card.Title,
		"descriptionfield1": card.Description1,
		"descriptionfield2": card.Description2,
		"descriptionfield3": card.Description3,
		"descriptionfield4": card.Description4,
		"link":              link,
		"tag":               tag.Name,
	})
	if err != nil {
		log.WithError(err).WithField("tracking_id", tag.Name).Error("Failed to save product")
		return nil, fmt.Errorf("publish product: %w", err)
	}

	log.WithFields(logrus.Fields{
		"document_id": docID,
		"tracking_id": tag.Name,
	}).Info("Product published")
	return &models.ProductResponse{
		ID:         docID,
		Title:      card.Title,
		Link:       link,
		TrackingID: tag.Name,
	}, nil
}

func (p *ProductPublisher) productCopy(ctx context.Context, query string) (*ProductCopy, error) {
	text, err := p.generator.Generate(ctx, productPrompt(query))
	if err != nil {
		return nil, fmt.Errorf("generate product: %w", err)
	}
	card, err := ParseProductCopy(text)
	if err != nil {
		return nil, fmt.Errorf("generate product: %w", err)
	}
	return card, nil
}

func productPrompt(query string) string {
	return fmt.Sprintf(`Return ONLY a valid raw JSON object with no markdown and no commentary.
Write a deal card for the product %q with this structure:
{
  "title": "Short catchy headline that mentions deals, e.g. Unbeatable Deals on Women's Puffer Jackets!",
  "descriptionfield1": "One short line starting with an emoji about the main benefit",
  "descriptionfield2": "One short line starting with an emoji about the savings",
  "descriptionfield3": "One short line starting with an emoji about everyday use",
  "descriptionfield4": "One short call to action starting with an emoji"
}
Do not use * or similar symbols.`, query)
}

// ParseProductCopy decodes the model reply and keeps one clean line per field.
func ParseProductCopy(text string) (*ProductCopy, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("reply holds no JSON object")
	}

	var card ProductCopy
	if err := json.Unmarshal([]byte(text[start:end+1]), &card); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	for _, field := range []*string{&card.Title, &card.Description1, &card.Description2, &card.Description3, &card.Description4} {
		*field = cleanLine(*field)
	}
	if card.Title == "" {
		return nil, errors.New("product has no title")
	}
	return &card, nil
}

func cleanLine(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// RefLink sets the affiliate tag on a store URL, replacing any tag it
// already carries.
func RefLink(raw, tag string) (string, error) {
	u, err := storeURL(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("tag", tag)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func storeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidProductLink
	}
	return u, nil
}
