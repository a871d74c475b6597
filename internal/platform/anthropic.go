package platform

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"

	"proofbench/internal/models"
	"proofbench/internal/secrets"
)

// AnthropicAdapter sends messages to Anthropic-hosted agents.
type AnthropicAdapter struct {
	Secrets secrets.Store
}

// Send implements Adapter.
func (a *AnthropicAdapter) Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error) {
	apiKey, err := resolveKey(a.Secrets, agent)
	if err != nil {
		return nil, err
	}

	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if agent.ModelName != "" {
		opts = append(opts, anthropic.WithModel(agent.ModelName))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: fmt.Sprintf("anthropic client: %v", err)}
	}

	content := buildMessages(agent, message)
	response, err := client.GenerateContent(ctx, content, callOptions(agent)...)
	if err != nil {
		return nil, &UpstreamError{Platform: models.PlatformAnthropic, Body: err.Error()}
	}
	return replyFromContent(models.PlatformAnthropic, agent, response, conversationRef)
}
