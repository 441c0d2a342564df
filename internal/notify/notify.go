// Package notify delivers dependency violation events to an external
// webhook. Delivery is best effort: failures are logged and never surfaced
// to the request that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/logging"
)

// EventDependencyViolation names the event sent when a task is assigned
// while its dependencies are incomplete.
const EventDependencyViolation = "dependency_violation"

// Violation is the webhook payload.
type Violation struct {
	Event         string    `json:"event"`
	DeliveryID    string    `json:"delivery_id"`
	ProjectID     string    `json:"project_id,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	TaskID        string    `json:"task_id"`
	BlockingTasks []string  `json:"blocking_tasks"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier posts violation events to a configured URL. An empty URL disables
// delivery entirely.
type Notifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
	log     *logging.Logger
	wg      sync.WaitGroup
}

// New returns a notifier for the given webhook URL. A zero timeout falls
// back to ten seconds.
func New(url string, timeout time.Duration, log *logging.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Notifier{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log.WithComponent("notify"),
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// DependencyViolation delivers one event synchronously, bounded by the
// configured timeout. It returns the delivery id, or empty when delivery is
// disabled. Errors are logged, never returned.
func (n *Notifier) DependencyViolation(ctx context.Context, v Violation) string {
	if !n.Enabled() {
		return ""
	}
	v.Event = EventDependencyViolation
	if v.DeliveryID == "" {
		v.DeliveryID = uuid.NewString()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	if v.BlockingTasks == nil {
		v.BlockingTasks = []string{}
	}

	body, err := json.Marshal(v)
	if err != nil {
		n.log.Warn("webhook payload marshal failed", "error", err)
		return v.DeliveryID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("webhook request build failed", "error", err)
		return v.DeliveryID
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Skein-Event", v.Event)
	req.Header.Set("X-Skein-Delivery", v.DeliveryID)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("webhook delivery failed",
			"delivery_id", v.DeliveryID,
			"task_id", v.TaskID,
			"error", err,
		)
		return v.DeliveryID
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		n.log.Warn("webhook delivery rejected",
			"delivery_id", v.DeliveryID,
			"task_id", v.TaskID,
			"status", resp.StatusCode,
		)
		return v.DeliveryID
	}
	n.log.Debug("webhook delivered",
		"delivery_id", v.DeliveryID,
		"task_id", v.TaskID,
		"status", resp.StatusCode,
	)
	return v.DeliveryID
}

// Dispatch delivers one event in the background so request handlers never
// wait on the webhook endpoint. The returned delivery id is assigned before
// the goroutine starts.
func (n *Notifier) Dispatch(v Violation) string {
	if !n.Enabled() {
		return ""
	}
	if v.DeliveryID == "" {
		v.DeliveryID = uuid.NewString()
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.DependencyViolation(ctx, v)
	}()
	return v.DeliveryID
}

// Close waits for in-flight background deliveries to finish.
func (n *Notifier) Close() {
	n.wg.Wait()
}
