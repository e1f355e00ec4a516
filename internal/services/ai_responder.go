package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crmdesk_backend/internal/config"
)

// HistoryRole tags who authored a history entry handed to the responder.
type HistoryRole string

const (
	HistoryRoleUser  HistoryRole = "user"
	HistoryRoleAI    HistoryRole = "ai"
	HistoryRoleAgent HistoryRole = "agent"
)

type HistoryEntry struct {
	Role      HistoryRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// AutoReply is the responder's answer. A nil *AutoReply means "no reply":
// the core synthesizes no message.
type AutoReply struct {
	Message string `json:"message"`
	Service string `json:"service"`
	Model   string `json:"model"`
}

// AutoResponder is the optional AI collaborator for guest conversations.
// The core treats it as a black box: latest guest message plus ordered
// history in, either a reply or nil out.
type AutoResponder interface {
	Reply(ctx context.Context, latestGuestMessage string, history []HistoryEntry) (*AutoReply, error)
}

// --- Disabled responder ---

type noopResponder struct{}

func (noopResponder) Reply(ctx context.Context, latest string, history []HistoryEntry) (*AutoReply, error) {
	return nil, nil
}

// NewNoopResponder returns a responder that never replies; used when the
// feature is disabled in config.
func NewNoopResponder() AutoResponder {
	return noopResponder{}
}

// --- HTTP responder ---

type httpResponder struct {
	endpoint string
	client   *http.Client
}

// NewHTTPResponder builds the production responder: a JSON POST to the
// configured endpoint.
func NewHTTPResponder(cfg config.ChatConfig) AutoResponder {
	return &httpResponder{
		endpoint: cfg.AIResponder.Endpoint,
		client: &http.Client{
			Timeout: time.Duration(cfg.AIResponder.TimeoutSeconds) * time.Second,
		},
	}
}

type responderRequest struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history"`
}

func (r *httpResponder) Reply(ctx context.Context, latest string, history []HistoryEntry) (*AutoReply, error) {
	body, err := json.Marshal(responderRequest{Message: latest, History: history})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 204 is the responder's "no reply" signal.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai responder returned status %d", resp.StatusCode)
	}

	var reply AutoReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, err
	}
	if reply.Message == "" {
		return nil, nil
	}
	return &reply, nil
}
