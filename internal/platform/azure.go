package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"

	"proofbench/internal/models"
	"proofbench/internal/secrets"
)

// AzureAdapter sends messages through Azure OpenAI deployments.
type AzureAdapter struct {
	Secrets secrets.Store
}

// Send implements Adapter.
func (a *AzureAdapter) Send(ctx context.Context, agent *models.Agent, message, conversationRef string) (*Reply, error) {
	if agent.Endpoint == "" {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: "missing endpoint"}
	}
	if agent.Deployment == "" {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: "missing deployment name"}
	}
	apiKey, err := resolveKey(a.Secrets, agent)
	if err != nil {
		return nil, err
	}

	// The client is rebuilt per call so the credential never outlives it.
	client, err := azopenai.NewClientWithKeyCredential(agent.Endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, &ConfigurationError{AgentID: agent.ID, Detail: fmt.Sprintf("azure client: %v", err)}
	}

	messages := []azopenai.ChatRequestMessageClassification{}
	if agent.SystemPrompt != "" {
		messages = append(messages, &azopenai.ChatRequestSystemMessage{
			Content: azopenai.NewChatRequestSystemMessageContent(agent.SystemPrompt),
		})
	}
	messages = append(messages, &azopenai.ChatRequestUserMessage{
		Content: azopenai.NewChatRequestUserMessageContent(message),
	})

	opts := azopenai.ChatCompletionsOptions{
		Messages:       messages,
		DeploymentName: to.Ptr(agent.Deployment),
	}
	if agent.Temperature > 0 {
		opts.Temperature = to.Ptr(float32(agent.Temperature))
	}
	if agent.MaxTokens > 0 {
		opts.MaxTokens = to.Ptr(int32(agent.MaxTokens))
	}

	resp, err := client.GetChatCompletions(ctx, opts, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return nil, &UpstreamError{Platform: models.PlatformAzure, StatusCode: respErr.StatusCode, Body: respErr.ErrorCode}
		}
		return nil, &UpstreamError{Platform: models.PlatformAzure, Body: err.Error()}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, &UpstreamError{Platform: models.PlatformAzure, Body: "empty completion"}
	}

	reply := &Reply{
		Text: *resp.Choices[0].Message.Content,
		Metadata: map[string]interface{}{
			"platform":   string(models.PlatformAzure),
			"deployment": agent.Deployment,
		},
	}
	if conversationRef != "" {
		reply.Metadata["conversation_ref"] = conversationRef
	}
	if resp.Usage != nil && resp.Usage.TotalTokens != nil {
		reply.TokensUsed = int(*resp.Usage.TotalTokens)
	}
	return reply, nil
}
