// Package notify fans out rate-monitor events — zoom-in, fold
// pressure, memory-cap hits — to operator-configured destinations.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Config lists alert destinations. Any subset may be set; Enabled
// reports whether at least one is.
type Config struct {
	Webhook      string
	Command      string
	SlackWebhook string
}

// Event is one notable monitor occurrence, reported as structured JSON
// to every configured destination.
type Event struct {
	Kind    string `json:"kind"` // "zoom_in", "fold", "memmax_exceeded"
	Prefix  string `json:"prefix,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Tick    uint64 `json:"tick"`
	Allocd  int64  `json:"allocated_bytes,omitempty"`
	MemMax  int64  `json:"memmax_bytes,omitempty"`
	Evicted int    `json:"evicted,omitempty"`
}

// Notifier dispatches Events to the configured destinations.
type Notifier struct {
	cfg    Config
	client *http.Client
}

// New creates a Notifier from cfg.
func New(cfg Config) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether any destination is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Webhook != "" || n.cfg.Command != "" || n.cfg.SlackWebhook != ""
}

// Notify dispatches ev to every configured destination asynchronously.
// It is safe to call on every monitor event regardless of whether any
// destination is configured; a disabled Notifier is a no-op.
func (n *Notifier) Notify(ev Event) {
	if !n.Enabled() {
		return
	}
	go n.dispatch(ev)
}

func (n *Notifier) dispatch(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ratemon: notify: marshal error: %v", err)
		return
	}

	if n.cfg.Webhook != "" {
		n.post(n.cfg.Webhook, data)
	}
	if n.cfg.Command != "" {
		n.runCommand(ev.Kind, data)
	}
	if n.cfg.SlackWebhook != "" {
		n.post(n.cfg.SlackWebhook, mustMarshal(map[string]string{
			"text": fmt.Sprintf("*ratemon: %s*\n```\n%s\n```", ev.Kind, string(data)),
		}))
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func (n *Notifier) post(rawURL string, body []byte) {
	if err := validateWebhookURL(rawURL); err != nil {
		log.Printf("ratemon: notify: webhook blocked: %v", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("ratemon: notify: send error: %v", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (n *Notifier) runCommand(kind string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", n.cfg.Command)
	cmd.Env = append(os.Environ(), "RATEMON_EVENT="+kind, "RATEMON_PAYLOAD="+string(data))
	if err := cmd.Run(); err != nil {
		log.Printf("ratemon: notify: command error: %v", err)
	}
}

// validateWebhookURL rejects destinations that could be used to reach
// loopback or cloud metadata endpoints via an operator-supplied URL.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	blocked := []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1", "::1", "[::1]"}
	for _, b := range blocked {
		if host == b {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}
