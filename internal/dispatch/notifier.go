package dispatch

import (
	"context"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/httputil"
)

// WebhookNotifier posts failed jobs to an HTTP endpoint
type WebhookNotifier struct {
	client *httputil.Client
	url    string
}

// NewWebhookNotifier returns nil when url is empty
func NewWebhookNotifier(client *httputil.Client, url string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{client: client, url: url}
}

type failurePayload struct {
	Text     string    `json:"text"`
	JobID    string    `json:"job_id"`
	Mode     string    `json:"mode"`
	Actor    string    `json:"actor,omitempty"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// JobFailed delivers one warning for the failed job
func (n *WebhookNotifier) JobFailed(ctx context.Context, job *contracts.Job) error {
	if n == nil {
		return nil
	}
	payload := failurePayload{
		Text:  "Forecast retraining failed; the latest forecasts may be stale.",
		JobID: job.ID.String(),
		Mode:  string(job.Mode),
		Actor: job.Actor,
		Error: job.Error,
	}
	if job.FinishedAt != nil {
		payload.FailedAt = *job.FinishedAt
	}
	_, err := n.client.PostJSON(ctx, n.url, payload)
	return err
}
