package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/localvakil/vakil/pkg/session"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/vapi/services/identity"
	"github.com/localvakil/vakil/pkg/verr"
)

type RedirectOutput struct {
	Status   int    `json:"-" doc:"HTTP status code"`
	Location string `header:"Location" doc:"Where the browser goes next"`
}

type CallbackInput struct {
	Code  string `query:"code" doc:"Authorization code from Google"`
	State string `query:"state" doc:"Signed state issued by /auth/google"`
	Error string `query:"error" doc:"Error reported by Google, e.g. access_denied"`
}

func redirect(location string) *RedirectOutput {
	return &RedirectOutput{Status: http.StatusFound, Location: location}
}

func RegisterAuth(api huma.API, svcs *services.Container) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-google",
		Method:      http.MethodGet,
		Path:        "/auth/google",
		Summary:     "Start Google login",
		Description: "Redirects to Google's consent screen",
		Tags:        []string{TagAuth.String()},
	}, func(ctx context.Context, input *struct{}) (*RedirectOutput, error) {
		st := session.FromContext(ctx)

		authorizeURL, err := svcs.Identity.AuthorizeURL(ctx, st.ID)
		if err != nil {
			svcs.Logger.Error("failed to start google login", "error", err)
			if errors.Is(err, identity.ErrNotConfigured) {
				st.AddFlash("error", "Google login is not available.")
			} else {
				st.AddFlash("error", "Google login failed or was cancelled.")
			}
			return redirect(svcs.LandingURL), nil
		}

		return redirect(authorizeURL), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-callback",
		Method:      http.MethodGet,
		Path:        "/oauth2callback",
		Summary:     "Google OAuth callback",
		Description: "Exchanges the authorization code, resolves the local user and logs the session in",
		Tags:        []string{TagAuth.String()},
	}, func(ctx context.Context, input *CallbackInput) (*RedirectOutput, error) {
		st := session.FromContext(ctx)

		user, err := svcs.Identity.Login(ctx, st.ID, identity.Callback{
			Code:  input.Code,
			State: input.State,
			Error: input.Error,
		})
		if err != nil {
			step := identity.Step("")
			var le *identity.LoginError
			if errors.As(err, &le) {
				step = le.Step
			}
			svcs.Logger.Error("google login failed", "step", step, "code", verr.CodeOf(err), "error", err)
			st.AddFlash("error", verr.PublicMessage(err))
			return redirect(svcs.LandingURL), nil
		}

		picture := ""
		if user.AvatarURL != nil {
			picture = *user.AvatarURL
		}
		st.SetUser(session.User{
			ID:      user.ID,
			Name:    user.Name,
			Email:   user.Email,
			Picture: picture,
		})
		st.AddFlash("success", "Successfully logged in with Google!")

		if err := svcs.Sessions.Regenerate(ctx, st); err != nil {
			svcs.Logger.Error("failed to establish session", "user_id", user.ID, "error", err)
			return nil, apiError(verr.New(verr.CodePersistence, err))
		}

		svcs.Logger.Info("user logged in", "user_id", user.ID, "step", identity.StepSessionEstablished)
		return redirect(svcs.LandingURL), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-logout",
		Method:      http.MethodGet,
		Path:        "/auth/logout",
		Summary:     "Log out",
		Description: "Destroys the session and expires its cookie",
		Tags:        []string{TagAuth.String()},
	}, func(ctx context.Context, input *struct{}) (*RedirectOutput, error) {
		st := session.FromContext(ctx)
		if err := svcs.Sessions.Destroy(ctx, st); err != nil {
			svcs.Logger.Error("failed to destroy session", "error", err)
		}
		return redirect(svcs.LandingURL), nil
	})
}
