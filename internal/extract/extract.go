package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/unsubkit/unsubkit/internal/engine"
)

// Completer is the slice of the oracle client extraction needs: one raw
// text completion.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const extractSystemPrompt = `
You extract unsubscribe links from email content.

Given the raw body of an email (text or HTML), find every link a recipient
could use to unsubscribe or manage email preferences.

Respond with a SINGLE JSON object and nothing else:
{
  "links": [
    { "url": "https://...", "text": "link text", "method": "GET" | "POST" | "MAILTO" }
  ]
}

Use "MAILTO" for mailto: addresses, "POST" only when the link clearly posts a
form, otherwise "GET". Return {"links": []} when there are none.
`

const maxEmailPromptLen = 50000

var (
	anchorRe = regexp.MustCompile(`(?is)<a\s+[^>]*href=["']([^"']+)["'][^>]*>(.*?)</a>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	unsubRe  = regexp.MustCompile(`(?i)unsubscribe|opt[ -]?out|email preference|manage preference|remove me`)
	// List-Unsubscribe style header values embedded in the content.
	listUnsubRe = regexp.MustCompile(`(?im)^list-unsubscribe:\s*(.+)$`)
	bracketRe   = regexp.MustCompile(`<(mailto:[^>]+|https?://[^>]+)>`)
	bareURLRe   = regexp.MustCompile(`(?i)https?://\S*unsubscribe\S*`)
)

// Extractor finds unsubscribe candidates in email content: the oracle does
// the reading, a regex scan covers oracle failures and plain-text emails.
type Extractor struct {
	oracle Completer
	zlog   *zap.Logger
}

func New(oracle Completer, zlog *zap.Logger) *Extractor {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Extractor{oracle: oracle, zlog: zlog}
}

// Links returns the de-duplicated unsubscribe candidates in the email.
func (e *Extractor) Links(ctx context.Context, emailContent string) []engine.Link {
	if links := e.oracleLinks(ctx, emailContent); len(links) > 0 {
		return links
	}
	return dedupe(fallbackLinks(emailContent))
}

func (e *Extractor) oracleLinks(ctx context.Context, emailContent string) []engine.Link {
	if e.oracle == nil {
		return nil
	}

	content := emailContent
	if len(content) > maxEmailPromptLen {
		content = content[:maxEmailPromptLen] + "\n...[TRUNCATED]"
	}

	answer, err := e.oracle.Complete(ctx, extractSystemPrompt, "EMAIL CONTENT:\n"+content)
	if err != nil {
		e.zlog.Warn("link extraction oracle failed, using regex fallback", zap.Error(err))
		return nil
	}

	var parsed struct {
		Links []engine.Link `json:"links"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &parsed); err != nil {
		e.zlog.Warn("link extraction answer unparseable, using regex fallback", zap.Error(err))
		return nil
	}

	out := make([]engine.Link, 0, len(parsed.Links))
	for _, l := range parsed.Links {
		if l.URL == "" {
			continue
		}
		out = append(out, normalize(l))
	}
	return dedupe(out)
}

func normalize(l engine.Link) engine.Link {
	switch strings.ToUpper(string(l.Method)) {
	case string(engine.MethodPost):
		l.Method = engine.MethodPost
	case string(engine.MethodMailto):
		l.Method = engine.MethodMailto
	default:
		l.Method = engine.MethodGet
	}
	if strings.HasPrefix(strings.ToLower(l.URL), "mailto:") {
		l.Method = engine.MethodMailto
	}
	return l
}

// fallbackLinks is the oracle-free scan: unsubscribe-looking anchors,
// List-Unsubscribe header values, and bare unsubscribe URLs.
func fallbackLinks(content string) []engine.Link {
	var links []engine.Link

	for _, m := range anchorRe.FindAllStringSubmatch(content, -1) {
		href, inner := m[1], m[2]
		text := strings.TrimSpace(tagRe.ReplaceAllString(inner, " "))
		if !unsubRe.MatchString(href) && !unsubRe.MatchString(text) {
			continue
		}
		links = append(links, normalize(engine.Link{URL: href, Text: text}))
	}

	for _, m := range listUnsubRe.FindAllStringSubmatch(content, -1) {
		for _, b := range bracketRe.FindAllStringSubmatch(m[1], -1) {
			links = append(links, normalize(engine.Link{URL: b[1], Text: "List-Unsubscribe"}))
		}
	}

	for _, u := range bareURLRe.FindAllString(content, -1) {
		u = strings.TrimRight(u, `.,;)>"'`)
		links = append(links, normalize(engine.Link{URL: u, Text: "unsubscribe link"}))
	}

	return links
}

func dedupe(links []engine.Link) []engine.Link {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		key := strings.ToLower(l.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
