package zones

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tidewatch/tidewatch/internal/config"
	"github.com/tidewatch/tidewatch/pkg/types"
)

var errUnknownHook = errors.New("unknown webhook type")

// deliver sends a to every webhook target. Errors are logged and do not
// affect the caller.
func (e *Engine) deliver(hooks []config.WebhookConfig, a *Alert) {
	for _, wh := range hooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := payload(wh.Type, a)
		if errors.Is(err, errUnknownHook) {
			slog.Warn("zones: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("zones: webhook delivery failed",
				"type", wh.Type, "path", a.Path, "err", err)
			continue
		}
		slog.Debug("zones: webhook delivered",
			"type", wh.Type, "path", a.Path, "state", a.State)
	}
}

// payload renders a in the body format of the given webhook kind.
func payload(kind string, a *Alert) ([]byte, error) {
	var v any
	switch kind {
	case "slack":
		v = map[string]string{"text": summary(a)}
	case "teams":
		v = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a),
			"summary":    a.Path,
			"title":      fmt.Sprintf("Tidewatch zone %s: %s", a.State, a.Path),
			"text":       detail(a),
		}
	case "http":
		v = map[string]any{"alert": a}
	default:
		return nil, errUnknownHook
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return body, nil
}

// summary is the one-line chat form, e.g. "*[ALARM]* self.rpm 3600 over limit".
func summary(a *Alert) string {
	return fmt.Sprintf("*%s* %s %s", severityLabel(a), a.Path, detail(a))
}

func detail(a *Alert) string {
	v := strconv.FormatFloat(a.Value, 'f', -1, 64)
	if a.Message == "" {
		return v
	}
	return v + " " + a.Message
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

func severityLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case types.SeverityEmergency:
		return "[EMERGENCY]"
	case types.SeverityAlarm:
		return "[ALARM]"
	case types.SeverityWarn:
		return "[WARN]"
	}
	return "[ALERT]"
}

// severityColor is the Teams card accent.
func severityColor(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case types.SeverityEmergency, types.SeverityAlarm:
		return "FF4F6A"
	case types.SeverityWarn:
		return "FFAB40"
	}
	return "00D4FF"
}
