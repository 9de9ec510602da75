package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrInvalidPlan means the oracle never produced a parseable plan within the
// retry budget. With no plan there is no way to make progress, so callers
// treat this as fatal to the run.
var ErrInvalidPlan = errors.New("oracle returned no parseable plan")

const safeHTMLLimit = 60000

// Client talks to the OpenAI-backed decision oracle.
type Client struct {
	client  *openai.Client
	model   string
	retries int

	// sleep and rng are injectable so retry backoff is deterministic
	// under test.
	sleep func(time.Duration)
	rng   *rand.Rand
}

type Option func(*Client)

func WithSleep(f func(time.Duration)) Option {
	return func(c *Client) { c.sleep = f }
}

func WithRand(r *rand.Rand) Option {
	return func(c *Client) { c.rng = r }
}

func NewClient(apiKey, model string, planRetries int, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if planRetries <= 0 {
		planRetries = 3
	}
	c := &Client{
		client:  openai.NewClient(apiKey),
		model:   model,
		retries: planRetries,
		sleep:   time.Sleep,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends one system+user exchange and returns the raw text answer.
// 429s are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt < 5; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0,
		})
		if err == nil {
			break
		}
		if strings.Contains(err.Error(), "429") {
			c.sleep(time.Duration(3*(1<<attempt)) * time.Second)
			continue
		}
		return "", err
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NextPlan builds the per-iteration prompt, asks the oracle, and parses the
// strict-JSON answer. Malformed answers are retried a bounded number of
// times with a short jittered backoff; exhaustion yields ErrInvalidPlan.
func (c *Client) NextPlan(ctx context.Context, pc PageContext) (*Plan, error) {
	userPrompt := buildPlanPrompt(pc)

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.sleep(500*time.Millisecond + time.Duration(c.rng.Intn(500))*time.Millisecond)
		}

		content, err := c.Complete(ctx, planSystemPrompt, userPrompt)
		if err != nil {
			return nil, fmt.Errorf("oracle request failed: %w", err)
		}

		plan, err := parsePlan(content)
		if err != nil {
			lastErr = err
			continue
		}
		return plan, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrInvalidPlan, c.retries, lastErr)
}

func buildPlanPrompt(pc PageContext) string {
	var sb strings.Builder
	sb.WriteString("URL: " + pc.URL + "\n")

	if pc.PriorOutcome != "" {
		sb.WriteString("\nPREVIOUS ROUND:\n" + pc.PriorOutcome + "\n")
	}

	html := pc.HTML
	if len(html) > safeHTMLLimit {
		html = html[:safeHTMLLimit] + "\n...[TRUNCATED]"
	}
	sb.WriteString("\nPAGE HTML:\n" + html)

	return sb.String()
}

// parsePlan accepts the oracle's raw text and extracts a Plan. Stray code
// fences are tolerated; anything else non-JSON is an error.
func parsePlan(content string) (*Plan, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var plan Plan
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		return nil, fmt.Errorf("plan JSON parse error: %w | content: %.200s", err, content)
	}
	return &plan, nil
}
