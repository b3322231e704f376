package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// dashboardPayload is a Grafana-style alerting webhook.
type dashboardPayload struct {
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	Title             string            `json:"title"`
	Message           string            `json:"message"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	Alerts            []dashboardAlert  `json:"alerts"`
}

type dashboardAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	Fingerprint  string            `json:"fingerprint"`
	DashboardURL string            `json:"dashboardURL"`
	ValueString  string            `json:"valueString"`
}

var appLabels = []string{"application", "app", "service", "job"}

func (n *Normalizer) dashboard(body []byte, now time.Time) ([]*alert.Record, error) {
	var p dashboardPayload
	if err := decode(body, &p); err != nil {
		return nil, err
	}

	records := make([]*alert.Record, 0, len(p.Alerts))
	for i, a := range p.Alerts {
		rec, err := n.dashboardAlert(&p, a, now)
		if err != nil {
			return nil, fmt.Errorf("alert %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (n *Normalizer) dashboardAlert(p *dashboardPayload, a dashboardAlert, now time.Time) (*alert.Record, error) {
	appName := labelValue(a.Labels, p.CommonLabels, appLabels...)
	if appName == "" {
		return nil, malformed("no application label (one of %s)", strings.Join(appLabels, ", "))
	}

	originAt, err := parseTimestamp(a.StartsAt, now)
	if err != nil {
		return nil, err
	}

	title := firstNonEmpty(
		a.Annotations["summary"],
		a.Labels["alertname"],
		p.CommonAnnotations["summary"],
		p.Title,
	)
	if title == "" {
		return nil, malformed("alert has no summary or alertname")
	}

	message := firstNonEmpty(
		a.Annotations["description"],
		a.Annotations["message"],
		p.CommonAnnotations["description"],
		p.Message,
		a.ValueString,
	)
	if a.DashboardURL != "" {
		message = strings.TrimSpace(message + "\n" + a.DashboardURL)
	}

	// A fingerprint identifies the rule, not the firing; the start time separates firings.
	id := ""
	if a.Fingerprint != "" {
		id = fmt.Sprintf("%s:%d", a.Fingerprint, originAt.Unix())
	}

	return &alert.Record{
		ID:        n.idOr(SourceDashboard, id),
		Kind:      alert.KindDashboard,
		Title:     title,
		Message:   message,
		AppName:   appName,
		OriginAt:  originAt,
		CreatedAt: now,
	}, nil
}

// labelValue looks keys up in labels first, then in common.
func labelValue(labels, common map[string]string, keys ...string) string {
	for _, m := range []map[string]string{labels, common} {
		for _, k := range keys {
			if v := strings.TrimSpace(m[k]); v != "" {
				return v
			}
		}
	}
	return ""
}
