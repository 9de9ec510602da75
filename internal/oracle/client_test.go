package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantErr     bool
		wantActions int
		wantFinish  bool
	}{
		{
			name:        "plain json",
			content:     `{"actions":[{"action":"click","selector":"#confirm"}],"finish":false}`,
			wantActions: 1,
		},
		{
			name:        "fenced json",
			content:     "```json\n{\"actions\":[],\"finish\":true}\n```",
			wantActions: 0,
			wantFinish:  true,
		},
		{
			name:        "bare fence",
			content:     "```\n{\"actions\":[{\"action\":\"type\",\"selector\":\"#email\",\"value\":\"a@b.c\"}],\"finish\":false}\n```",
			wantActions: 1,
		},
		{
			name:    "prose",
			content: "Sure! I would click the confirm button.",
			wantErr: true,
		},
		{
			name:    "empty",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parsePlan(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, plan.Actions, tt.wantActions)
			assert.Equal(t, tt.wantFinish, plan.Finish)
		})
	}
}

func TestBuildPlanPromptTruncatesHTML(t *testing.T) {
	big := make([]byte, safeHTMLLimit+1000)
	for i := range big {
		big[i] = 'x'
	}

	prompt := buildPlanPrompt(PageContext{
		HTML:         string(big),
		URL:          "https://example.com/unsub",
		PriorOutcome: "2 actions executed, no outcome phrase yet",
	})

	assert.Contains(t, prompt, "https://example.com/unsub")
	assert.Contains(t, prompt, "PREVIOUS ROUND")
	assert.Contains(t, prompt, "[TRUNCATED]")
	assert.Less(t, len(prompt), safeHTMLLimit+500)
}
