package platform

import (
	"context"
	"fmt"
	"time"

	"proofbench/internal/models"
	"proofbench/internal/secrets"
)

// Reply is the normalized response of any platform.
type Reply struct {
	Text       string                 `json:"text"`
	TokensUsed int                    `json:"tokens_used"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Adapter sends one message to an agent's platform and normalizes the
// response. Implementations resolve credentials from the secret store at
// call time and never cache them beyond the single call.
type Adapter interface {
	Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error)
}

// ConfigurationError indicates a missing or invalid connection
// descriptor. It is fatal for the call and never retried.
type ConfigurationError struct {
	AgentID uint
	Detail  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent %d misconfigured: %s", e.AgentID, e.Detail)
}

// UpstreamError indicates a platform-side HTTP failure. Batches record
// it as a failed execution and continue.
type UpstreamError struct {
	Platform   models.Platform
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s platform error (status %d): %s", e.Platform, e.StatusCode, e.Body)
}

// Registry maps platforms to their adapters. Orchestration code never
// branches on platform outside of it.
type Registry struct {
	store    secrets.Store
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry with all supported platform adapters
// wired against the given secret store.
func NewRegistry(store secrets.Store) *Registry {
	if store == nil {
		store = secrets.Default()
	}
	return &Registry{
		store: store,
		adapters: map[models.Platform]Adapter{
			models.PlatformAzure:     &AzureAdapter{Secrets: store},
			models.PlatformOpenAI:    &OpenAIAdapter{Secrets: store},
			models.PlatformAnthropic: &AnthropicAdapter{Secrets: store},
			models.PlatformNative:    NewNativeAdapter(store),
		},
	}
}

// Register installs or replaces the adapter for a platform.
func (r *Registry) Register(p models.Platform, adapter Adapter) {
	r.adapters[p] = adapter
}

// ForPlatform returns the adapter for the given platform.
func (r *Registry) ForPlatform(p models.Platform) (Adapter, error) {
	adapter, ok := r.adapters[p]
	if !ok {
		return nil, &ConfigurationError{Detail: fmt.Sprintf("unsupported platform %q", p)}
	}
	return adapter, nil
}

// Send dispatches a message to the agent through its platform adapter.
func (r *Registry) Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error) {
	adapter, err := r.ForPlatform(agent.Platform)
	if err != nil {
		return nil, err
	}
	return adapter.Send(ctx, agent, message, conversationRef)
}

// ConnectivityResult reports the outcome of a test-mode call.
type ConnectivityResult struct {
	OK         bool                   `json:"ok"`
	LatencyMS  int64                  `json:"latency_ms"`
	RawPayload map[string]interface{} `json:"raw_payload,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

const connectivityPrompt = "Reply with the single word OK."

// TestConnection performs a synthetic call against the agent to validate
// connectivity independent of test-case execution.
func (r *Registry) TestConnection(ctx context.Context, agent *models.Agent) *ConnectivityResult {
	start := time.Now()
	reply, err := r.Send(ctx, agent, connectivityPrompt, "")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &ConnectivityResult{OK: false, LatencyMS: latency, Error: err.Error()}
	}
	payload := map[string]interface{}{"text": reply.Text}
	for k, v := range reply.Metadata {
		payload[k] = v
	}
	return &ConnectivityResult{OK: true, LatencyMS: latency, RawPayload: payload}
}

// resolveKey fetches the agent's credential from the secret store,
// translating a missing secret into a ConfigurationError.
func resolveKey(store secrets.Store, agent *models.Agent) (string, error) {
	if agent.APIKeyReference == "" {
		return "", &ConfigurationError{AgentID: agent.ID, Detail: "missing api key reference"}
	}
	key, err := store.Resolve(agent.APIKeyReference)
	if err != nil {
		return "", &ConfigurationError{AgentID: agent.ID, Detail: fmt.Sprintf("credential %q not resolvable", agent.APIKeyReference)}
	}
	return key, nil
}
