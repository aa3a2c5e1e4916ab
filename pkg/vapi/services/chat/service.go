// Package chat coordinates a conversation exchange: the user's message, the
// Gemini reply and their persistence succeed or fail as one unit.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/db/models"
	"github.com/localvakil/vakil/pkg/gemini"
	"github.com/localvakil/vakil/pkg/vcrypt"
	"github.com/localvakil/vakil/pkg/verr"
	"github.com/localvakil/vakil/pkg/vlog"
	"github.com/uptrace/bun"
)

const (
	// TitleLength is the number of characters of the first message kept
	// as the conversation title.
	TitleLength = 50

	DefaultGenerationTimeout = 60 * time.Second
)

type Service struct {
	db      *bun.DB
	keys    vcrypt.Decrypter
	gen     gemini.Generator
	timeout time.Duration
	logger  *vlog.Logger
	now     func() time.Time
}

func NewService(db *bun.DB, keys vcrypt.Decrypter, gen gemini.Generator, timeout time.Duration, logger *vlog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	if logger == nil {
		logger = vlog.NewDefault()
	}
	return &Service{
		db:      db,
		keys:    keys,
		gen:     gen,
		timeout: timeout,
		logger:  logger,
		now: func() time.Time {
			// Postgres keeps microseconds; compensation compares timestamps.
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

type SubmitInput struct {
	UserID         uuid.UUID
	ConversationID *int64
	TopicID        *int64
	Text           string
}

type SubmitResult struct {
	ConversationID int64
	Reply          string
	// NewTitle is set only when this exchange created the conversation.
	NewTitle string
}

// DeriveTitle returns the first TitleLength characters of text, with an
// ellipsis when text is longer.
func DeriveTitle(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= TitleLength {
		return string(runes)
	}
	return string(runes[:TitleLength]) + "..."
}

// exchange records what phase one wrote so it can be undone.
type exchange struct {
	conversationID int64
	created        bool
	prevUpdatedAt  time.Time
	bumpedAt       time.Time
	userMessageID  int64
}

// Submit sends text to Gemini within a conversation owned by the user and
// persists both sides of the exchange. On any failure after the user's
// message is written, that write is undone, so the database is left as it
// was before the call.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, verr.WithPublic(verr.CodeInvalidRequest, "Message cannot be empty.", errors.New("empty message"))
	}

	if in.ConversationID != nil {
		if err := s.checkOwnership(ctx, in.UserID, *in.ConversationID); err != nil {
			return nil, err
		}
	}

	apiKey, err := s.apiKey(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	// The client going away must not leave half an exchange behind.
	ctx = context.WithoutCancel(ctx)

	title := DeriveTitle(text)
	ex, err := s.begin(ctx, in, title, text)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.gen.Generate(genCtx, apiKey, text)
	cancel()
	if err != nil {
		s.logger.Error("generation failed", "user_id", in.UserID, "conversation_id", ex.conversationID, "error", err)
		s.compensate(ctx, ex)
		return nil, err
	}

	if err := s.finish(ctx, ex, reply); err != nil {
		s.logger.Error("failed to store reply", "conversation_id", ex.conversationID, "error", err)
		s.compensate(ctx, ex)
		return nil, verr.New(verr.CodePersistence, err)
	}

	res := &SubmitResult{ConversationID: ex.conversationID, Reply: reply}
	if ex.created {
		res.NewTitle = title
	}
	return res, nil
}

func (s *Service) checkOwnership(ctx context.Context, userID uuid.UUID, conversationID int64) error {
	exists, err := s.db.NewSelect().
		Model((*models.Conversation)(nil)).
		Where("id = ?", conversationID).
		Where("owner_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return verr.New(verr.CodePersistence, err)
	}
	if !exists {
		return verr.Errorf(verr.CodeNotFoundOrForbidden, "conversation %d is not owned by %s", conversationID, userID)
	}
	return nil
}

// apiKey loads and decrypts the user's Gemini key.
func (s *Service) apiKey(ctx context.Context, userID uuid.UUID) (string, error) {
	var user models.User
	err := s.db.NewSelect().
		Model(&user).
		Column("id", "encrypted_api_key").
		Where("id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", verr.Errorf(verr.CodeAuthenticationRequired, "user %s no longer exists", userID)
	}
	if err != nil {
		return "", verr.New(verr.CodePersistence, err)
	}
	if !user.HasAPIKey() {
		return "", verr.Errorf(verr.CodeCredentialUnavailable, "user %s has no api key", userID)
	}

	key, err := s.keys.Decrypt(*user.EncryptedAPIKey)
	if err != nil {
		return "", fmt.Errorf("decrypting api key for user %s: %w", userID, err)
	}
	return key, nil
}

// begin is phase one: make sure the conversation exists and record the
// user's message.
func (s *Service) begin(ctx context.Context, in SubmitInput, title, text string) (*exchange, error) {
	ex := &exchange{}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()

		if in.ConversationID == nil {
			conv := &models.Conversation{
				OwnerID:   in.UserID,
				TopicID:   in.TopicID,
				Title:     title,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(conv).Exec(ctx); err != nil {
				return verr.New(verr.CodePersistence, err)
			}
			ex.conversationID = conv.ID
			ex.created = true
		} else {
			var conv models.Conversation
			err := tx.NewSelect().
				Model(&conv).
				Column("id", "updated_at").
				Where("id = ?", *in.ConversationID).
				Where("owner_id = ?", in.UserID).
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return verr.Errorf(verr.CodeNotFoundOrForbidden, "conversation %d disappeared", *in.ConversationID)
			}
			if err != nil {
				return verr.New(verr.CodePersistence, err)
			}

			res, err := tx.NewUpdate().
				Model((*models.Conversation)(nil)).
				Set("updated_at = ?", now).
				Where("id = ?", conv.ID).
				Where("owner_id = ?", in.UserID).
				Exec(ctx)
			if err != nil {
				return verr.New(verr.CodePersistence, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return verr.Errorf(verr.CodeNotFoundOrForbidden, "conversation %d disappeared", conv.ID)
			}

			ex.conversationID = conv.ID
			ex.prevUpdatedAt = conv.UpdatedAt
			ex.bumpedAt = now
		}

		msg := &models.Message{
			ConversationID: ex.conversationID,
			Role:           models.RoleUser,
			Content:        text,
			CreatedAt:      now,
		}
		if _, err := tx.NewInsert().Model(msg).Exec(ctx); err != nil {
			return verr.New(verr.CodePersistence, err)
		}
		ex.userMessageID = msg.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// finish is phase two: record the reply.
func (s *Service) finish(ctx context.Context, ex *exchange, reply string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		msg := &models.Message{
			ConversationID: ex.conversationID,
			Role:           models.RoleAssistant,
			Content:        reply,
			CreatedAt:      s.now(),
		}
		_, err := tx.NewInsert().Model(msg).Exec(ctx)
		return err
	})
}

// compensate undoes phase one. A concurrent exchange that bumped the same
// conversation afterwards keeps its timestamp.
func (s *Service) compensate(ctx context.Context, ex *exchange) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Message)(nil)).
			Where("id = ?", ex.userMessageID).
			Exec(ctx); err != nil {
			return err
		}

		if ex.created {
			_, err := tx.NewDelete().
				Model((*models.Conversation)(nil)).
				Where("id = ?", ex.conversationID).
				Exec(ctx)
			return err
		}

		_, err := tx.NewUpdate().
			Model((*models.Conversation)(nil)).
			Set("updated_at = ?", ex.prevUpdatedAt).
			Where("id = ?", ex.conversationID).
			Where("updated_at = ?", ex.bumpedAt).
			Exec(ctx)
		return err
	})
	if err != nil {
		s.logger.Error("failed to roll back exchange", "conversation_id", ex.conversationID,
			"message_id", ex.userMessageID, "error", err)
	}
}
