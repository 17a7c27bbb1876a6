package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/oceanmonitor/dashboard/internal/config"
)

// Service answers dashboard chat questions on the server, so the model
// credential never reaches the browser.
type Service struct {
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.SystemPrompt)
}

// NewServiceWithModel builds the completion chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		systemPrompt: systemPrompt,
		chain:        runnable,
	}, nil
}

// GenerateResponse runs a single non-streaming completion for question.
func (s *Service) GenerateResponse(ctx context.Context, question string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(question))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	if response != nil {
		log.Printf("[ai] generated response length=%d", len(response.Content))
	}
	return response, nil
}

// StreamResponse streams completion chunks for question.
func (s *Service) StreamResponse(ctx context.Context, question string) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, s.buildChainInput(question))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func (s *Service) buildChainInput(question string) map[string]any {
	return map[string]any{
		"system": s.systemPrompt,
		"query":  question,
	}
}
