package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/db/models"
	"github.com/localvakil/vakil/pkg/verr"
)

// ListConversations returns the user's conversations, newest first,
// optionally narrowed to one topic.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, topicID *int64) ([]models.Conversation, error) {
	var convs []models.Conversation
	q := s.db.NewSelect().
		Model(&convs).
		Where("owner_id = ?", userID)
	if topicID != nil {
		q = q.Where("topic_id = ?", *topicID)
	}
	if err := q.Order("created_at DESC", "id DESC").Scan(ctx); err != nil {
		return nil, verr.New(verr.CodePersistence, err)
	}
	return convs, nil
}

// Messages returns a conversation's messages in the order they were
// written, after checking that userID owns it.
func (s *Service) Messages(ctx context.Context, userID uuid.UUID, conversationID int64) ([]models.Message, error) {
	if err := s.checkOwnership(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := s.db.NewSelect().
		Model(&msgs).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, verr.New(verr.CodePersistence, err)
	}
	return msgs, nil
}
