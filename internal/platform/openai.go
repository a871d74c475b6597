package platform

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"proofbench/internal/models"
	"proofbench/internal/secrets"
)

// OpenAIAdapter sends messages to OpenAI and OpenAI-compatible endpoints
// (a custom Endpoint overrides the default base URL, which covers hosted
// gateways that speak the same wire format).
type OpenAIAdapter struct {
	Secrets secrets.Store
}

// Send implements Adapter.
func (a *OpenAIAdapter) Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error) {
	apiKey, err := resolveKey(a.Secrets, agent)
	if err != nil {
		return nil, err
	}

	opts := []openai.Option{openai.WithToken(apiKey)}
	if agent.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(agent.Endpoint))
	}
	if agent.ModelName != "" {
		opts = append(opts, openai.WithModel(agent.ModelName))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: fmt.Sprintf("openai client: %v", err)}
	}

	content := buildMessages(agent, message)
	response, err := client.GenerateContent(ctx, content, callOptions(agent)...)
	if err != nil {
		return nil, &UpstreamError{Platform: models.PlatformOpenAI, Body: err.Error()}
	}
	return replyFromContent(models.PlatformOpenAI, agent, response, conversationRef)
}

// buildMessages assembles the system and user messages for a langchaingo
// backed platform.
func buildMessages(agent *models.Agent, message string) []llms.MessageContent {
	content := []llms.MessageContent{}
	if agent.SystemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, agent.SystemPrompt))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, message))
	return content
}

func callOptions(agent *models.Agent) []llms.CallOption {
	opts := []llms.CallOption{}
	if agent.ModelName != "" {
		opts = append(opts, llms.WithModel(agent.ModelName))
	}
	if agent.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(agent.Temperature))
	}
	if agent.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(agent.MaxTokens))
	}
	return opts
}

func replyFromContent(p models.Platform, agent *models.Agent, response *llms.ContentResponse, conversationRef string) (*Reply, error) {
	if response == nil || len(response.Choices) == 0 {
		return nil, &UpstreamError{Platform: p, Body: "empty completion"}
	}
	choice := response.Choices[0]
	reply := &Reply{
		Text: choice.Content,
		Metadata: map[string]interface{}{
			"platform": string(p),
			"model":    agent.ModelName,
		},
	}
	if conversationRef != "" {
		reply.Metadata["conversation_ref"] = conversationRef
	}
	if choice.GenerationInfo != nil {
		if total, ok := choice.GenerationInfo["TotalTokens"].(int); ok {
			reply.TokensUsed = total
		}
	}
	return reply, nil
}
