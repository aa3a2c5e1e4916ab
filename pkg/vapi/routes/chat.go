package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/localvakil/vakil/pkg/vapi/schemas"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/vapi/services/chat"
	"github.com/localvakil/vakil/pkg/verr"
)

type ChatInput struct {
	Body schemas.ChatRequest
}

type ChatOutput struct {
	Status int `json:"-"`
	Body   schemas.ChatResult
}

type ListChatsInput struct {
	SubjectID int64 `query:"subject_id" doc:"Only list conversations under this topic"`
}

type ListChatsOutput struct {
	Body []schemas.Conversation
}

type ChatMessagesInput struct {
	ChatID int64 `path:"chat_id" minimum:"1" doc:"Conversation id"`
}

type ChatMessagesOutput struct {
	Body []schemas.Message
}

func chatFailure(err error) *ChatOutput {
	return &ChatOutput{
		Status: verr.HTTPStatus(err),
		Body:   schemas.ChatResult{Success: false, Message: verr.PublicMessage(err)},
	}
}

func RegisterChat(api huma.API, svcs *services.Container) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-chat",
		Method:      http.MethodPost,
		Path:        "/api/chat",
		Summary:     "Send a chat message",
		Description: "Sends the message to Gemini with the user's key and stores both sides of the exchange",
		Tags:        []string{TagChat.String()},
		Security:    SessionAuth,
	}, func(ctx context.Context, input *ChatInput) (*ChatOutput, error) {
		st, uid, err := currentUser(ctx)
		if err != nil {
			return chatFailure(err), nil
		}
		if err := svcs.CSRF.Check(st, input.Body.CSRFToken); err != nil {
			svcs.Logger.Warn("chat request blocked", "user_id", uid, "error", err)
			return chatFailure(err), nil
		}

		res, err := svcs.Chat.Submit(ctx, chat.SubmitInput{
			UserID:         uid,
			ConversationID: input.Body.ChatID,
			TopicID:        input.Body.SubjectID,
			Text:           input.Body.Message,
		})
		if err != nil {
			svcs.Logger.Error("chat exchange failed", "user_id", uid, "code", verr.CodeOf(err), "error", err)
			return chatFailure(err), nil
		}

		return &ChatOutput{
			Status: http.StatusOK,
			Body: schemas.ChatResult{
				Success:      true,
				AIMessage:    res.Reply,
				ChatID:       res.ConversationID,
				NewChatTitle: res.NewTitle,
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chats",
		Method:      http.MethodGet,
		Path:        "/api/chats",
		Summary:     "List conversations",
		Description: "Lists the user's conversations, newest first",
		Tags:        []string{TagChat.String()},
		Security:    SessionAuth,
	}, func(ctx context.Context, input *ListChatsInput) (*ListChatsOutput, error) {
		_, uid, err := currentUser(ctx)
		if err != nil {
			return nil, apiError(err)
		}

		var topic *int64
		if input.SubjectID > 0 {
			topic = &input.SubjectID
		}

		convs, err := svcs.Chat.ListConversations(ctx, uid, topic)
		if err != nil {
			svcs.Logger.Error("failed to list conversations", "user_id", uid, "error", err)
			return nil, apiError(err)
		}

		out := &ListChatsOutput{Body: make([]schemas.Conversation, 0, len(convs))}
		for _, c := range convs {
			out.Body = append(out.Body, schemas.Conversation{
				ID:        c.ID,
				Title:     c.Title,
				SubjectID: c.TopicID,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chat-messages",
		Method:      http.MethodGet,
		Path:        "/api/chats/{chat_id}/messages",
		Summary:     "List messages",
		Description: "Lists the messages of a conversation owned by the user, oldest first",
		Tags:        []string{TagChat.String()},
		Security:    SessionAuth,
	}, func(ctx context.Context, input *ChatMessagesInput) (*ChatMessagesOutput, error) {
		_, uid, err := currentUser(ctx)
		if err != nil {
			return nil, apiError(err)
		}

		msgs, err := svcs.Chat.Messages(ctx, uid, input.ChatID)
		if err != nil {
			if !verr.IsCode(err, verr.CodeNotFoundOrForbidden) {
				svcs.Logger.Error("failed to list messages", "user_id", uid, "chat_id", input.ChatID, "error", err)
			}
			return nil, apiError(err)
		}

		out := &ChatMessagesOutput{Body: make([]schemas.Message, 0, len(msgs))}
		for _, m := range msgs {
			out.Body = append(out.Body, schemas.Message{
				Sender:    string(m.Role),
				Text:      m.Content,
				Timestamp: m.CreatedAt,
			})
		}
		return out, nil
	})
}
