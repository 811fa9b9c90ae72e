package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"forumai/config"
	"forumai/markdown"
	"forumai/models"
	"forumai/repository"

	openai "github.com/sashabaranov/go-openai"
	"gorm.io/datatypes"
)

// ChatReply is what the frontend receives for one chatbot turn: the
// rendered HTML (markdown converted, citations resolved to anchors) plus
// the raw source list.
type ChatReply struct {
	ConversationUID string       `json:"conversation_uid"`
	ContentHTML     string       `json:"content_html"`
	Sources         []ChatSource `json:"sources,omitempty"`
}

// ChatService handles chatbot conversations: storage, the LLM call, and
// rendering the reply through the markdown/citation pipeline.
type ChatService interface {
	SendMessage(ctx context.Context, userID, conversationUID, text string) (*ChatReply, error)
	History(userID, conversationUID string) ([]*models.Message, error)
	ListConversations(userID string) ([]*models.Conversation, error)
}

type chatService struct {
	convRepo repository.ConversationRepository
	client   AIClient
	resolver markdown.PermalinkResolver
}

// NewChatService creates a chat service. resolver maps cited post IDs to
// permalinks when rendering assistant replies.
func NewChatService(convRepo repository.ConversationRepository, client AIClient, resolver markdown.PermalinkResolver) ChatService {
	return &chatService{convRepo: convRepo, client: client, resolver: resolver}
}

func (s *chatService) SendMessage(ctx context.Context, userID, conversationUID, text string) (*ChatReply, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if text == "" {
		return nil, errors.New("message cannot be empty")
	}

	conv, err := s.loadOrCreateConversation(userID, conversationUID, text)
	if err != nil {
		return nil, err
	}

	history, err := s.convRepo.GetMessages(conv.ID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleUser,
		Content:        text,
	}
	if err := s.convRepo.AppendMessage(userMsg); err != nil {
		return nil, err
	}

	reply, sources, err := s.callLLM(ctx, history, text)
	if err != nil {
		log.Printf("ERROR: [ChatService] LLM call failed for user %s: %v", userID, err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	assistantMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleAssistant,
		Content:        reply,
	}
	if len(sources) > 0 {
		if raw, mErr := json.Marshal(sources); mErr == nil {
			assistantMsg.Sources = datatypes.JSON(raw)
		}
	}
	if err := s.convRepo.AppendMessage(assistantMsg); err != nil {
		return nil, err
	}

	rendered := markdown.ToHTML(reply, markdown.ModeFrontend, markdown.Options{})
	rendered = markdown.ConvertCitations(rendered, s.resolver, markdown.CitationOptions{Style: markdown.CitationStyleSuperscript})

	return &ChatReply{
		ConversationUID: conv.UID,
		ContentHTML:     rendered,
		Sources:         sources,
	}, nil
}

func (s *chatService) loadOrCreateConversation(userID, conversationUID, firstMessage string) (*models.Conversation, error) {
	if conversationUID != "" {
		conv, err := s.convRepo.GetConversationByUID(conversationUID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			if conv.UserID != userID {
				log.Printf("WARN: [ChatService] User %s attempted to use conversation %s owned by %s.", userID, conversationUID, conv.UserID)
				return nil, errors.New("conversation does not belong to this user")
			}
			return conv, nil
		}
		log.Printf("INFO: [ChatService] Conversation %s not found for user %s, starting a new one.", conversationUID, userID)
	}
	title := firstMessage
	if len(title) > 60 {
		title = title[:60]
	}
	return s.convRepo.CreateConversation(userID, title)
}

// callLLM routes the chat turn either through a configured
// OpenAI-compatible provider or, when none is configured, through the AI
// API's /chat/message endpoint (which also returns source citations).
func (s *chatService) callLLM(ctx context.Context, history []*models.Message, text string) (string, []ChatSource, error) {
	model := config.AppConfig.Chat.Model
	providerKey, modelRouted := config.AppConfig.LLMModels[model]
	provider, providerOK := config.AppConfig.LLMProviders[providerKey]

	if model == "" || !modelRouted || !providerOK || provider.APIKey == "" || provider.BaseURL == "" {
		// Fall back to the shared AI API, which does its own RAG and
		// returns citations.
		wire := make([]map[string]string, 0, len(history))
		for _, m := range history {
			wire = append(wire, map[string]string{"role": string(m.Role), "content": m.Content})
		}
		result, err := s.client.ChatMessage(ctx, wire, text)
		if err != nil {
			return "", nil, err
		}
		return result.Content, result.Sources, nil
	}

	openaiConfig := openai.DefaultConfig(provider.APIKey)
	openaiConfig.BaseURL = provider.BaseURL
	client := openai.NewClientWithConfig(openaiConfig)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if config.AppConfig.Chat.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: config.AppConfig.Chat.SystemPrompt,
		})
	}
	// Cap history to keep token usage bounded.
	historyLimit := 10
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.MessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	completion, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", nil, fmt.Errorf("chat completion for model %s failed: %w", model, err)
	}
	if len(completion.Choices) == 0 {
		return "", nil, errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil, nil
}

func (s *chatService) History(userID, conversationUID string) ([]*models.Message, error) {
	conv, err := s.convRepo.GetConversationByUID(conversationUID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	if conv.UserID != userID {
		return nil, errors.New("conversation does not belong to this user")
	}
	return s.convRepo.GetMessages(conv.ID)
}

func (s *chatService) ListConversations(userID string) ([]*models.Conversation, error) {
	return s.convRepo.ListConversationsByUser(userID)
}
