package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/valentinpelus/posturewatch/pkg/types"
)

// topLabels is how many issue labels a summary lists
const topLabels = 5

// Message is an incoming-webhook payload
// Reference: https://api.slack.com/messaging/webhooks
type Message struct {
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is a Block Kit element
type Block struct {
	Type   string       `json:"type"`
	Text   *TextObject  `json:"text,omitempty"`
	Fields []TextObject `json:"fields,omitempty"`
}

// TextObject is text within a block
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client posts clip summaries to a Slack incoming webhook
type Client struct {
	webhookURL string
	client     *http.Client
}

// NewClient creates a new Slack client
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured checks if Slack notifications are configured
func (c *Client) IsConfigured() bool {
	return c.webhookURL != ""
}

// NotifyClipAnalyzed posts a summary of a finished clip analysis
func (c *Client) NotifyClipAnalyzed(ctx context.Context, clipName string, entries []types.FeedbackEntry) error {
	if !c.IsConfigured() {
		return nil
	}

	jsonData, err := json.Marshal(buildSummary(clipName, entries))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send to Slack: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack API returned status %d: %s", resp.StatusCode, string(body))
	}

	// Incoming webhooks answer with a plain "ok"
	if strings.TrimSpace(string(body)) != "ok" {
		log.Printf("Warning: unexpected Slack response: %s", string(body))
	}

	log.Printf("Clip summary for %s sent to Slack", clipName)
	return nil
}

type labelCount struct {
	label string
	count int
}

func buildSummary(clipName string, entries []types.FeedbackEntry) Message {
	withIssues := 0
	counts := make(map[string]int)
	for _, entry := range entries {
		if entry.Good() {
			continue
		}
		withIssues++
		for _, issue := range entry.Issues() {
			counts[issue]++
		}
	}

	ranked := make([]labelCount, 0, len(counts))
	for label, count := range counts {
		ranked = append(ranked, labelCount{label, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].label < ranked[j].label
	})
	if len(ranked) > topLabels {
		ranked = ranked[:topLabels]
	}

	emoji := ":white_check_mark:"
	if withIssues > 0 {
		emoji = ":warning:"
	}
	title := fmt.Sprintf("%s Posture analysis finished: %s", emoji, clipName)

	blocks := []Block{
		{
			Type: "header",
			Text: &TextObject{Type: "plain_text", Text: fmt.Sprintf("Posture analysis: %s", clipName)},
		},
		{
			Type: "section",
			Fields: []TextObject{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Frames analyzed:*\n%d", len(entries))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Frames with issues:*\n%d", withIssues)},
			},
		},
	}

	if len(ranked) > 0 {
		var sb strings.Builder
		sb.WriteString("*Most frequent issues:*\n")
		for _, lc := range ranked {
			sb.WriteString(fmt.Sprintf("• %s (%d)\n", lc.label, lc.count))
		}
		blocks = append(blocks, Block{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: strings.TrimSuffix(sb.String(), "\n")},
		})
	} else {
		blocks = append(blocks, Block{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: "Good posture in every frame."},
		})
	}

	return Message{Text: title, Blocks: blocks}
}
