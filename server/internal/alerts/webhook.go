package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sensorhub/sensorhub/server/internal/config"
)

// fact is one labelled value shown in a chat notification.
type fact struct {
	Name  string
	Value string
}

// facts lists the reading-level details of a: where, what and when.
func facts(a *Alert) []fact {
	out := []fact{
		{"Group", a.Group},
		{"Rule", a.RuleName},
		{"Value", strconv.FormatFloat(a.Value, 'f', -1, 64)},
		{"Fired", a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		out = append(out, fact{"Resolved", a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	return out
}

// headline is the one-line summary used as chat text.
func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("Group %s back to normal (%s)", a.Group, a.RuleName)
	}
	return fmt.Sprintf("Group %s: %s", a.Group, a.Message)
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackBody(a *Alert) ([]byte, error) {
	att := slackAttachment{Color: "#" + stateColor(a)}
	for _, f := range facts(a) {
		att.Fields = append(att.Fields, slackField{Title: f.Name, Value: f.Value, Short: true})
	}
	return json.Marshal(slackPayload{
		Text:        headline(a),
		Attachments: []slackAttachment{att},
	})
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

func teamsBody(a *Alert) ([]byte, error) {
	sec := teamsSection{ActivityTitle: headline(a)}
	for _, f := range facts(a) {
		sec.Facts = append(sec.Facts, teamsFact{Name: f.Name, Value: f.Value})
	}
	return json.Marshal(teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: stateColor(a),
		Summary:    headline(a),
		Title:      fmt.Sprintf("%s %s on %s", severityTag(a.Severity), a.RuleName, a.Group),
		Sections:   []teamsSection{sec},
	})
}

// httpBody is the generic JSON body: an event name plus the alert itself.
func httpBody(a *Alert) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Alert *Alert `json:"alert"`
	}{Event: "alert." + a.State, Alert: a})
}

// deliver sends a to every webhook with a resolved URL.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(hooks []config.WebhookConfig, a *Alert) {
	for _, wh := range hooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var encode func(*Alert) ([]byte, error)
		switch wh.Type {
		case "slack":
			encode = slackBody
		case "teams":
			encode = teamsBody
		case "http":
			encode = httpBody
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		body, err := encode(a)
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "group", a.Group, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "group", a.Group, "state", a.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityTag(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// stateColor is green for resolved alerts, otherwise by severity.
func stateColor(a *Alert) string {
	if a.State == "resolved" {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "E01E5A"
	case "warning":
		return "ECB22E"
	default:
		return "36C5F0"
	}
}
