package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"affiliate-tracking-system/internal/logger"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleJSON = `{
  "title": "Morning Walks That Actually Help Your Heart",
  "description": ["Walking every morning is easy."],
  "isPopular": false,
  "paragraphs": [
    {"subtitle": "Start slow", "description": ["Ten minutes is enough.", "Then add more."], "ads": [{"title": "Shoes", "url": "https://example.com/shoes"}]},
    {"subtitle": "Keep going", "description": ["Consistency wins."]}
  ],
  "ads": [{"title": "Tracker", "url": "https://example.com/tracker"}]
}`

type scriptedGenerator struct {
	replies []string
	prompts []string
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type postRecorder struct {
	posts []map[string]any
	err   error
}

func (r *postRecorder) CreatePost(_ context.Context, post map[string]any) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.posts = append(r.posts, post)
	return "post-1", nil
}

type chatLog struct {
	mu       sync.Mutex
	messages []string
}

func (c *chatLog) Notify(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

func newTestPublisher(gen TextGenerator, posts PostStore, chat *chatLog) *Publisher {
	p := NewPublisher(gen, posts, chat, "https://nice-advice.info/", logger.Discard())
	p.pick = func(int) int { return 1 }
	return p
}

func TestPublish(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"\"Morning walks\"\nextra line", "```json\n" + articleJSON + "\n```"}}
	posts := &postRecorder{}
	chat := &chatLog{}

	published, err := newTestPublisher(gen, posts, chat).Publish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "post-1", published.DocumentID)
	assert.Equal(t, "https://nice-advice.info/post/post-1", published.URL)
	assert.Equal(t, "Your Health", published.Category)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "Your Health")
	assert.Contains(t, gen.prompts[1], `"Morning walks"`)

	require.Len(t, posts.posts, 1)
	post := posts.posts[0]
	assert.Equal(t, 1, post["author"])
	assert.Equal(t, 20, post["category"])
	assert.Equal(t, "Morning Walks That Actually Help Your Heart", post["title"])

	description := post["description"].([]map[string]any)
	require.Len(t, description, 1)
	assert.Equal(t, "paragraph", description[0]["type"])
	assert.Equal(t, []map[string]any{{"type": "text", "text": "Walking every morning is easy."}}, description[0]["children"])

	paragraphs := post["paragraphs"].([]map[string]any)
	require.Len(t, paragraphs, 2)
	assert.Len(t, paragraphs[0]["description"], 2)
	assert.Equal(t, []Link{}, paragraphs[1]["ads"])

	require.Len(t, chat.messages, 1)
	assert.Contains(t, chat.messages[0], "Morning Walks That Actually Help Your Heart")
	assert.Contains(t, chat.messages[0], published.URL)
}

func TestPublishFailures(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		chat := &chatLog{}
		_, err := newTestPublisher(&scriptedGenerator{err: errors.New("overloaded")}, &postRecorder{}, chat).Publish(context.Background())
		assert.ErrorContains(t, err, "generate topic")
		assert.Empty(t, chat.messages)
	})

	t.Run("wrong paragraph count", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"Topic", `{"title":"T","paragraphs":[{"subtitle":"only"}]}`}}
		posts := &postRecorder{}
		_, err := newTestPublisher(gen, posts, &chatLog{}).Publish(context.Background())
		assert.ErrorContains(t, err, "1 paragraphs")
		assert.Empty(t, posts.posts)
	})

	t.Run("cms error", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"Topic", articleJSON}}
		chat := &chatLog{}
		_, err := newTestPublisher(gen, &postRecorder{err: errors.New("401")}, chat).Publish(context.Background())
		assert.ErrorContains(t, err, "publish post")
		assert.Empty(t, chat.messages)
	})
}

func TestParseArticle(t *testing.T) {
	_, err := ParseArticle("sorry, I can't")
	assert.Error(t, err)

	_, err = ParseArticle(`{"paragraphs":[{},{}]}`)
	assert.ErrorContains(t, err, "no title")

	article, err := ParseArticle("Here you go: " + articleJSON + " enjoy")
	require.NoError(t, err)
	assert.Len(t, article.Paragraphs, 2)
}

func TestAnthropicGenerator(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "Heart healthy breakfasts"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	gen := NewAnthropicGenerator("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	text, err := gen.Generate(context.Background(), "give me a topic")
	require.NoError(t, err)
	assert.Equal(t, "Heart healthy breakfasts", text)

	assert.Equal(t, "claude-test", body["model"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	encoded, _ := json.Marshal(messages[0])
	assert.True(t, strings.Contains(string(encoded), "give me a topic"))
}
