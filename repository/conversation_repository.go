package repository

import (
	"errors"
	"fmt"
	"log"

	"forumai/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository defines the interface for chatbot conversation
// and message storage.
type ConversationRepository interface {
	CreateConversation(userID, title string) (*models.Conversation, error)
	GetConversationByUID(uid string) (*models.Conversation, error)
	ListConversationsByUser(userID string) ([]*models.Conversation, error)
	AppendMessage(message *models.Message) error
	GetMessages(conversationID uint) ([]*models.Message, error)
}

type conversationRepository struct {
	db               *gorm.DB
	maxConversations int
}

// NewConversationRepository creates a new instance of
// ConversationRepository. maxPerUser caps conversations per user; the
// oldest conversation (by last activity) is evicted when the cap is
// exceeded.
func NewConversationRepository(db *gorm.DB, maxPerUser int) ConversationRepository {
	if maxPerUser <= 0 {
		maxPerUser = 10
	}
	return &conversationRepository{db: db, maxConversations: maxPerUser}
}

// CreateConversation creates a conversation for the user, evicting the
// oldest one if the per-user cap would be exceeded.
func (r *conversationRepository) CreateConversation(userID, title string) (*models.Conversation, error) {
	if userID == "" {
		log.Printf("ERROR: [ConversationRepository] CreateConversation: userID cannot be empty")
		return nil, errors.New("user ID cannot be empty")
	}
	conv := &models.Conversation{
		UID:    uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Conversation{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) <= r.maxConversations {
			return nil
		}
		// Evict the least recently active conversations beyond the cap.
		var stale []models.Conversation
		if err := tx.Where("user_id = ?", userID).
			Order("updated_at asc").
			Limit(int(count) - r.maxConversations).
			Find(&stale).Error; err != nil {
			return err
		}
		for _, c := range stale {
			if err := tx.Unscoped().Where("conversation_id = ?", c.ID).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(&models.Conversation{}, c.ID).Error; err != nil {
				return err
			}
			log.Printf("INFO: [ConversationRepository] Evicted conversation %s for user %s (over cap of %d).", c.UID, userID, r.maxConversations)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR: [ConversationRepository] Failed to create conversation for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to create conversation for user %s: %w", userID, err)
	}
	log.Printf("INFO: [ConversationRepository] Created conversation %s for user %s.", conv.UID, userID)
	return conv, nil
}

// GetConversationByUID retrieves a conversation by its public UID.
// Returns (nil, nil) when not found.
func (r *conversationRepository) GetConversationByUID(uid string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.First(&conv, "uid = ?", uid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("ERROR: [ConversationRepository] Failed to retrieve conversation %s: %v", uid, err)
		return nil, fmt.Errorf("failed to retrieve conversation %s: %w", uid, err)
	}
	return &conv, nil
}

// ListConversationsByUser returns the user's conversations, most recently
// active first.
func (r *conversationRepository) ListConversationsByUser(userID string) ([]*models.Conversation, error) {
	var convs []*models.Conversation
	err := r.db.Where("user_id = ?", userID).Order("updated_at desc").Find(&convs).Error
	if err != nil {
		log.Printf("ERROR: [ConversationRepository] Failed to list conversations for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to list conversations for user %s: %w", userID, err)
	}
	return convs, nil
}

// AppendMessage stores a message and bumps the conversation's activity
// timestamp so eviction ordering stays correct.
func (r *conversationRepository) AppendMessage(message *models.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.ConversationID == 0 {
		return errors.New("message must reference a conversation")
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", message.ConversationID).
			Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		log.Printf("ERROR: [ConversationRepository] Failed to append message to conversation %d: %v", message.ConversationID, err)
		return fmt.Errorf("failed to append message to conversation %d: %w", message.ConversationID, err)
	}
	return nil
}

// GetMessages returns a conversation's messages ordered by creation time.
func (r *conversationRepository) GetMessages(conversationID uint) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		log.Printf("ERROR: [ConversationRepository] Failed to fetch messages for conversation %d: %v", conversationID, err)
		return nil, fmt.Errorf("failed to fetch messages for conversation %d: %w", conversationID, err)
	}
	return messages, nil
}
