package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/localvakil/vakil/pkg/session"
	"github.com/localvakil/vakil/pkg/vapi/schemas"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/verr"
)

func RegisterSession(api huma.API, svcs *services.Container) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Get session summary",
		Description: "Returns the login state, the CSRF token and any pending flash messages",
		Tags:        []string{TagSession.String()},
	}, func(ctx context.Context, input *struct{}) (*schemas.SessionResponse, error) {
		st := session.FromContext(ctx)

		token, err := svcs.CSRF.Issue(ctx, st)
		if err != nil {
			svcs.Logger.Error("failed to issue csrf token", "error", err)
			return nil, apiError(verr.New(verr.CodePersistence, err))
		}

		resp := &schemas.SessionResponse{}
		resp.Body.CSRFToken = token
		resp.Body.Messages = []schemas.Flash{}
		for _, f := range st.DrainFlash() {
			resp.Body.Messages = append(resp.Body.Messages, schemas.Flash{Category: f.Category, Message: f.Message})
		}

		if _, ok := st.CurrentUserID(); ok {
			resp.Body.Authenticated = true
			resp.Body.User = &schemas.User{
				ID:      st.UserID,
				Name:    st.UserName,
				Email:   st.UserEmail,
				Picture: st.UserPicture,
			}
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/api/me",
		Summary:     "Get current user",
		Description: "Retrieves the logged-in user and whether an API key is stored",
		Tags:        []string{TagSession.String()},
		Security:    SessionAuth,
	}, func(ctx context.Context, input *struct{}) (*schemas.MeResponse, error) {
		_, uid, err := currentUser(ctx)
		if err != nil {
			return nil, apiError(err)
		}

		user, err := svcs.Credentials.User(ctx, uid)
		if err != nil {
			svcs.Logger.Error("failed to load user", "user_id", uid, "error", err)
			return nil, apiError(verr.New(verr.CodePersistence, err))
		}

		resp := &schemas.MeResponse{}
		resp.Body.User.ID = user.ID.String()
		resp.Body.User.Name = user.Name
		resp.Body.User.Email = user.Email
		if user.AvatarURL != nil {
			resp.Body.User.Picture = *user.AvatarURL
		}
		resp.Body.HasAPIKey = user.HasAPIKey()
		return resp, nil
	})
}
