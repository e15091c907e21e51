// Package store persists conversations and their ordered messages.
package store

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"

	"github.com/voicebridge/voicebridge/pkg/transcript"
)

// Repository provides CRUD operations for conversations and messages.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a new transcript repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// CreateConversation persists a new conversation.
func (r *Repository) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db(ctx, false).Create(c).Error
}

// GetConversation returns a conversation by ID.
func (r *Repository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := r.db(ctx, true).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendMessages inserts a batch of utterances in arrival order, continuing
// the conversation's sequence numbering.
func (r *Repository) AppendMessages(ctx context.Context, conversationID string, batch []transcript.Utterance) error {
	if len(batch) == 0 {
		return nil
	}

	db := r.db(ctx, false)

	var next int64
	if err := db.Model(&Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&next).Error; err != nil {
		return err
	}

	rows := make([]Message, 0, len(batch))
	for i, u := range batch {
		m := Message{
			ConversationID: conversationID,
			Seq:            int(next) + i,
			Role:           string(u.Role),
			Content:        u.Content,
		}
		if u.StartMs != 0 || u.EndMs != 0 {
			m.StartMs = sql.NullInt64{Int64: u.StartMs, Valid: true}
			m.EndMs = sql.NullInt64{Int64: u.EndMs, Valid: true}
		}
		rows = append(rows, m)
	}

	return db.Create(&rows).Error
}

// ListMessages returns a conversation's messages in arrival order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var messages []Message
	err := r.db(ctx, true).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}

// EndConversation stamps the conversation as ended.
func (r *Repository) EndConversation(ctx context.Context, id string) error {
	return r.db(ctx, false).
		Model(&Conversation{}).
		Where("id = ?", id).
		Update("ended_at", sql.NullTime{Time: time.Now().UTC(), Valid: true}).Error
}
