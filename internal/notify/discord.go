package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tickguard/internal/model"
)

// Discord rejects embeds with more fields than this.
const discordMaxFields = 25

// DiscordSink posts notifications to a Discord webhook as a single embed.
// Resolution actions are listed in the embed so moderators can submit them
// through the resolution endpoint.
type DiscordSink struct {
	url    string
	client *http.Client
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func NewDiscordSink(url string, timeout time.Duration) *DiscordSink {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DiscordSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{buildEmbed(n)}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, nil, body)
}

func (s *DiscordSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func buildEmbed(n model.Notification) discordEmbed {
	e := discordEmbed{
		Title:       n.Title,
		Description: n.Description,
		Color:       n.SeverityColor,
		Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
	}
	for _, f := range n.Fields {
		if len(e.Fields) == discordMaxFields-1 {
			break
		}
		e.Fields = append(e.Fields, discordField{Name: f.Name, Value: nonEmpty(f.Value), Inline: f.Inline})
	}
	if len(n.Actions) > 0 {
		lines := make([]string, 0, len(n.Actions))
		for _, a := range n.Actions {
			lines = append(lines, fmt.Sprintf("%s: `%s`", a.Label, a.ID))
		}
		e.Fields = append(e.Fields, discordField{Name: "Actions", Value: strings.Join(lines, "\n")})
	}
	footer := "tickguard"
	if n.FindingID != "" {
		footer += " | " + n.FindingID
	}
	e.Footer = &discordFooter{Text: footer}
	return e
}

func nonEmpty(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
