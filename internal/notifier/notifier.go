// Package notifier reports job outcomes to the web application so users see
// failures without tailing scheduler logs.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
)

// Notification describes a job outcome event
type Notification struct {
	JobID      int64  `json:"jobId"`
	Scope      string `json:"scope"`
	ConfigType string `json:"configType"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Notifier delivers job outcome notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// WebappNotifier logs the notification and, when a webapp URL is configured,
// POSTs it as JSON. Delivery is best effort.
type WebappNotifier struct {
	webappURL string
	client    *http.Client
}

// NewWebappNotifier creates a notifier targeting the given webapp URL. An
// empty URL degrades to log-only.
func NewWebappNotifier(webappURL string) *WebappNotifier {
	return &WebappNotifier{
		webappURL: strings.TrimSuffix(webappURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify logs the event and forwards it to the webapp when configured
func (n *WebappNotifier) Notify(ctx context.Context, notification Notification) {
	logging.Log.WithField("job_id", notification.JobID).
		WithField("status", notification.Status).
		WithField("reason", notification.Reason).
		Info("Job notification")

	if n.webappURL == "" {
		return
	}

	body, err := json.Marshal(notification)
	if err != nil {
		errorutils.LogOnErr(nil, "failed to marshal notification", err)
		return
	}

	url := n.webappURL + "/api/v1/notifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		errorutils.LogOnErr(nil, "failed to build notification request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		errorutils.LogOnErr(nil, "failed to deliver notification", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		errorutils.LogOnErr(nil, "notification rejected", fmt.Errorf("webapp returned status %d", resp.StatusCode))
	}
}

var _ Notifier = (*WebappNotifier)(nil)
