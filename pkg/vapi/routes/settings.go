package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/localvakil/vakil/pkg/vapi/schemas"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/vapi/services/credentials"
	"github.com/localvakil/vakil/pkg/verr"
)

type SaveAPIKeyInput struct {
	Body schemas.SaveAPIKeyRequest
}

type SaveAPIKeyOutput struct {
	Status int `json:"-"`
	Body   schemas.Result
}

func settingsFailure(err error) *SaveAPIKeyOutput {
	return &SaveAPIKeyOutput{
		Status: verr.HTTPStatus(err),
		Body:   schemas.Result{Success: false, Message: verr.PublicMessage(err)},
	}
}

func RegisterSettings(api huma.API, svcs *services.Container) {
	huma.Register(api, huma.Operation{
		OperationID: "save-api-key",
		Method:      http.MethodPost,
		Path:        "/api/settings/api-key",
		Summary:     "Save Gemini API key",
		Description: "Encrypts and stores the user's Google AI API key",
		Tags:        []string{TagSettings.String()},
		Security:    SessionAuth,
	}, func(ctx context.Context, input *SaveAPIKeyInput) (*SaveAPIKeyOutput, error) {
		st, uid, err := currentUser(ctx)
		if err != nil {
			return settingsFailure(err), nil
		}
		if err := svcs.CSRF.Check(st, input.Body.CSRFToken); err != nil {
			svcs.Logger.Warn("api key update blocked", "user_id", uid, "error", err)
			return settingsFailure(err), nil
		}

		changed, err := svcs.Credentials.SaveAPIKey(ctx, uid, input.Body.APIKey)
		if err != nil {
			svcs.Logger.Error("failed to save api key", "user_id", uid, "code", verr.CodeOf(err), "error", err)
			return settingsFailure(err), nil
		}

		msg := credentials.MessageUnchanged
		if changed {
			msg = credentials.MessageSaved
		}
		return &SaveAPIKeyOutput{
			Status: http.StatusOK,
			Body:   schemas.Result{Success: true, Message: msg},
		}, nil
	})
}
