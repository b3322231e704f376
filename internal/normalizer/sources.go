package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// searchPayload is an OpenSearch alerting monitor webhook rendered with a JSON message template.
type searchPayload struct {
	AlertID     string `json:"alert_id"`
	MonitorName string `json:"monitor_name"`
	TriggerName string `json:"trigger_name"`
	Severity    string `json:"severity"`
	Application string `json:"application"`
	Message     string `json:"message"`
	PeriodEnd   string `json:"period_end"`
}

func (n *Normalizer) searchPlatform(body []byte, now time.Time) ([]*alert.Record, error) {
	var p searchPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Application) == "" {
		return nil, malformed("application is required")
	}
	if strings.TrimSpace(p.MonitorName) == "" {
		return nil, malformed("monitor_name is required")
	}
	originAt, err := parseTimestamp(p.PeriodEnd, now)
	if err != nil {
		return nil, err
	}

	title := p.MonitorName
	if p.TriggerName != "" {
		title += ": " + p.TriggerName
	}
	if p.Severity != "" {
		title = fmt.Sprintf("[%s] %s", strings.ToUpper(p.Severity), title)
	}

	return []*alert.Record{{
		ID:        n.idOr(SourceSearchPlatform, p.AlertID),
		Kind:      alert.KindSearchPlatform,
		Title:     title,
		Message:   p.Message,
		AppName:   strings.TrimSpace(p.Application),
		OriginAt:  originAt,
		CreatedAt: now,
	}}, nil
}

// pipelinePayload is a CI/CD run notification.
type pipelinePayload struct {
	Pipeline    string `json:"pipeline"`
	RunID       string `json:"run_id"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`
	Application string `json:"application"`
	URL         string `json:"url"`
	FinishedAt  string `json:"finished_at"`
	Type        string `json:"type"`
}

func (p *pipelinePayload) kind() alert.Kind {
	switch strings.ToLower(p.Type) {
	case "cd":
		return alert.KindCD
	case "ci":
		return alert.KindCI
	}
	if strings.Contains(strings.ToLower(p.Stage), "deploy") {
		return alert.KindCD
	}
	return alert.KindCI
}

func (n *Normalizer) pipeline(body []byte, now time.Time) ([]*alert.Record, error) {
	var p pipelinePayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Application) == "" {
		return nil, malformed("application is required")
	}
	if strings.TrimSpace(p.Pipeline) == "" {
		return nil, malformed("pipeline is required")
	}
	if strings.TrimSpace(p.Status) == "" {
		return nil, malformed("status is required")
	}
	originAt, err := parseTimestamp(p.FinishedAt, now)
	if err != nil {
		return nil, err
	}

	kind := p.kind()
	title := fmt.Sprintf("%s %s %s", strings.ToUpper(string(kind)), p.Pipeline, strings.ToLower(p.Status))
	message := firstNonEmpty(p.Stage)
	if message != "" {
		message = "stage: " + message
	}
	if p.URL != "" {
		message = strings.TrimSpace(message + "\n" + p.URL)
	}

	id := ""
	if p.RunID != "" {
		id = p.Pipeline + "-" + p.RunID
	}

	return []*alert.Record{{
		ID:        n.idOr(SourceCI, id),
		Kind:      kind,
		Title:     title,
		Message:   message,
		AppName:   strings.TrimSpace(p.Application),
		OriginAt:  originAt,
		CreatedAt: now,
	}}, nil
}

// issuePayload is an issue filed by hand through the console.
type issuePayload struct {
	IssueID     string `json:"issue_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Application string `json:"application"`
	Reporter    string `json:"reporter"`
	CreatedAt   string `json:"created_at"`
}

func (n *Normalizer) issue(body []byte, now time.Time) ([]*alert.Record, error) {
	var p issuePayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, malformed("title is required")
	}
	if strings.TrimSpace(p.Application) == "" {
		return nil, malformed("application is required")
	}
	originAt, err := parseTimestamp(p.CreatedAt, now)
	if err != nil {
		return nil, err
	}

	message := p.Body
	if p.Reporter != "" {
		message = strings.TrimSpace(message + "\n\nreported by " + p.Reporter)
	}

	return []*alert.Record{{
		ID:        n.idOr(SourceManualIssue, p.IssueID),
		Kind:      alert.KindIssue,
		Title:     strings.TrimSpace(p.Title),
		Message:   message,
		AppName:   strings.TrimSpace(p.Application),
		OriginAt:  originAt,
		CreatedAt: now,
	}}, nil
}
