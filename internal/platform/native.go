package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"proofbench/internal/models"
	"proofbench/internal/secrets"
)

// NativeAdapter talks to in-house agent endpoints over plain JSON HTTP.
type NativeAdapter struct {
	Secrets    secrets.Store
	HTTPClient *http.Client
}

// NewNativeAdapter creates a native adapter with a default HTTP client.
// Per-call deadlines come from the caller's context.
func NewNativeAdapter(store secrets.Store) *NativeAdapter {
	return &NativeAdapter{
		Secrets:    store,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type nativeRequest struct {
	Message        string  `json:"message"`
	ConversationID string  `json:"conversation_id,omitempty"`
	SystemPrompt   string  `json:"system_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
}

type nativeResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
}

// Send implements Adapter.
func (a *NativeAdapter) Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error) {
	if agent.Endpoint == "" {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: "missing endpoint"}
	}
	apiKey, err := resolveKey(a.Secrets, agent)
	if err != nil {
		return nil, err
	}

	payload := nativeRequest{
		Message:        message,
		ConversationID: conversationRef,
		SystemPrompt:   agent.SystemPrompt,
		Model:          agent.ModelName,
		Temperature:    agent.Temperature,
		MaxTokens:      agent.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode native request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Platform: models.PlatformNative, Body: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Platform: models.PlatformNative, StatusCode: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Platform: models.PlatformNative, StatusCode: resp.StatusCode, Body: string(data)}
	}

	var parsed nativeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &UpstreamError{Platform: models.PlatformNative, StatusCode: resp.StatusCode, Body: fmt.Sprintf("unparseable response: %v", err)}
	}

	reply := &Reply{
		Text:       parsed.Response,
		TokensUsed: parsed.TokensUsed,
		Metadata: map[string]interface{}{
			"platform": string(models.PlatformNative),
		},
	}
	if parsed.ConversationID != "" {
		reply.Metadata["conversation_ref"] = parsed.ConversationID
	}
	return reply, nil
}
