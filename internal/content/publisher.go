// Package content generates blog posts with an LLM and publishes them to the CMS.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"affiliate-tracking-system/internal/notify"

	"github.com/sirupsen/logrus"
)

// Category is a CMS blog category.
type Category struct {
	Name string
	ID   int
}

var DefaultCategories = []Category{
	{Name: "Lifestyle and Wellness", ID: 18},
	{Name: "Your Health", ID: 20},
	{Name: "Family", ID: 22},
	{Name: "Diseases and Conditions", ID: 3},
}

const (
	defaultAuthorID = 1
	paragraphCount  = 2
)

type PostStore interface {
	CreatePost(ctx context.Context, post map[string]any) (string, error)
}

type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Paragraph struct {
	Subtitle    string   `json:"subtitle"`
	Description []string `json:"description"`
	Ads         []Link   `json:"ads"`
}

// Article is the JSON shape the model is asked to produce.
type Article struct {
	Title       string      `json:"title"`
	Description []string    `json:"description"`
	IsPopular   bool        `json:"isPopular"`
	Paragraphs  []Paragraph `json:"paragraphs"`
	Ads         []Link      `json:"ads"`
}

// Published identifies a post created in the CMS.
type Published struct {
	DocumentID string
	Title      string
	URL        string
	Category   string
}

type Publisher struct {
	generator  TextGenerator
	posts      PostStore
	notifier   notify.Notifier
	logger     *logrus.Logger
	siteURL    string
	categories []Category
	authorID   int
	pick       func(n int) int
}

func NewPublisher(generator TextGenerator, posts PostStore, notifier notify.Notifier, siteURL string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		generator:  generator,
		posts:      posts,
		notifier:   notifier,
		logger:     logger,
		siteURL:    strings.TrimRight(siteURL, "/"),
		categories: DefaultCategories,
		authorID:   defaultAuthorID,
		pick:       rand.Intn,
	}
}

func (p *Publisher) SetCategories(categories []Category) {
	if len(categories) > 0 {
		p.categories = categories
	}
}

// Publish runs one generate-and-post cycle.
func (p *Publisher) Publish(ctx context.Context) (*Published, error) {
	category := p.categories[p.pick(len(p.categories))]
	log := p.logger.WithField("category", category.Name)

	topic, err := p.topic(ctx, category)
	if err != nil {
		return nil, err
	}
	log = log.WithField("topic", topic)

	article, err := p.article(ctx, topic)
	if err != nil {
		return nil, err
	}

	docID, err := p.posts.CreatePost(ctx, p.postBody(article, category))
	if err != nil {
		return nil, fmt.Errorf("publish post: %w", err)
	}

	published := &Published{
		DocumentID: docID,
		Title:      article.Title,
		URL:        fmt.Sprintf("%s/post/%s", p.siteURL, docID),
		Category:   category.Name,
	}
	log.WithField("document_id", docID).Info("Post published")

	msg := fmt.Sprintf("⭐️⭐️⭐️NEW POST⭐️⭐️⭐️\n\nTitle: %s\n\n%s", published.Title, published.URL)
	if err := p.notifier.Notify(ctx, msg); err != nil {
		log.WithError(err).Warn("Failed to send post notification")
	}
	return published, nil
}

func (p *Publisher) topic(ctx context.Context, category Category) (string, error) {
	prompt := fmt.Sprintf("Come up with an interesting topic for a post in the category %s. "+
		"Reply with a simple subject line of a few words and nothing else, on one line.", category.Name)
	text, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate topic: %w", err)
	}
	topic := strings.Trim(strings.TrimSpace(firstLine(text)), `"`)
	if topic == "" {
		return "", errors.New("generate topic: empty reply")
	}
	return topic, nil
}

func (p *Publisher) article(ctx context.Context, topic string) (*Article, error) {
	text, err := p.generator.Generate(ctx, articlePrompt(topic))
	if err != nil {
		return nil, fmt.Errorf("generate article: %w", err)
	}
	article, err := ParseArticle(text)
	if err != nil {
		return nil, fmt.Errorf("generate article: %w", err)
	}
	return article, nil
}

func articlePrompt(topic string) string {
	return fmt.Sprintf(`You are a CMS content generator. Return ONLY a valid raw JSON object with no markdown and no commentary.
Write an article on the topic %q with this structure:
{
  "title": "SEO-optimized title, 55-65 characters",
  "description": ["Intro of at least 700 characters"],
  "isPopular": false,
  "paragraphs": [
    {"subtitle": "Subheading", "description": ["Section of at least 700 characters"], "ads": [{"title": "Helpful product", "url": "https://..."}]}
  ],
  "ads": [{"title": "...", "url": "https://..."}]
}
The "paragraphs" array must contain exactly %d objects.`, topic, paragraphCount)
}

// ParseArticle decodes the model reply, tolerating code fences and text
// around the JSON object.
func ParseArticle(text string) (*Article, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("reply holds no JSON object")
	}

	var article Article
	if err := json.Unmarshal([]byte(text[start:end+1]), &article); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	if strings.TrimSpace(article.Title) == "" {
		return nil, errors.New("article has no title")
	}
	if len(article.Paragraphs) != paragraphCount {
		return nil, fmt.Errorf("article has %d paragraphs, want %d", len(article.Paragraphs), paragraphCount)
	}
	return &article, nil
}

// richText converts plain strings into CMS paragraph blocks.
func richText(texts []string) []map[string]any {
	blocks := make([]map[string]any, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, map[string]any{
			"type": "paragraph",
			"children": []map[string]any{
				{"type": "text", "text": text},
			},
		})
	}
	return blocks
}

func (p *Publisher) postBody(article *Article, category Category) map[string]any {
	paragraphs := make([]map[string]any, 0, len(article.Paragraphs))
	for _, para := range article.Paragraphs {
		paragraphs = append(paragraphs, map[string]any{
			"subtitle":    para.Subtitle,
			"description": richText(para.Description),
			"ads":         nonNil(para.Ads),
		})
	}
	return map[string]any{
		"title":       article.Title,
		"description": richText(article.Description),
		"isPopular":   article.IsPopular,
		"paragraphs":  paragraphs,
		"ads":         nonNil(article.Ads),
		"author":      p.authorID,
		"category":    category.ID,
	}
}

func nonNil(links []Link) []Link {
	if links == nil {
		return []Link{}
	}
	return links
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
