// Package notify posts daemon lifecycle events to a webhook.
//
// Each event is a small JSON document sent with retries. A [Notifier] with
// no URL is a no-op, so callers never need to check whether notifications
// are configured.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Kind names a lifecycle event.
type Kind string

const (
	Started Kind = "started"
	Reload  Kind = "reload"
	Stats   Kind = "stats"
	Stop    Kind = "stop"
)

// Event is the JSON body of a notification.
type Event struct {
	Kind Kind      `json:"event"`
	PID  int       `json:"pid"`
	Time time.Time `json:"time"`
	// Detail carries event-specific fields, e.g. the reload outcome.
	Detail map[string]any `json:"detail,omitempty"`
}

// NewEvent returns an Event for the current process, stamped now.
func NewEvent(kind Kind) Event {
	return Event{Kind: kind, PID: os.Getpid(), Time: time.Now().UTC()}
}

// Options configures [New].
type Options struct {
	// URL receives the POSTs. Empty disables the notifier.
	URL string
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin, RetryWaitMax time.Duration
	// Logger receives retry diagnostics. Nil silences them.
	Logger *slog.Logger
}

// Notifier sends lifecycle events.
type Notifier struct {
	url    string
	client *retryablehttp.Client
}

// New returns a Notifier for opts.
func New(opts Options) *Notifier {
	if opts.URL == "" {
		return &Notifier{}
	}
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Logger != nil {
		client.Logger = opts.Logger
	} else {
		client.Logger = nil
	}
	return &Notifier{url: opts.URL, client: client}
}

// Enabled reports whether events are actually sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Send POSTs ev. Any status outside 2xx after the final retry is an error.
func (n *Notifier) Send(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", ev.Kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sigdemo")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s event: %w", ev.Kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s event: status %d", ev.Kind, resp.StatusCode)
	}
	return nil
}
