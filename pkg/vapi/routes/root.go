package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/session"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/verr"
)

func RegisterRoutes(api huma.API, svcs *services.Container) {
	if svcs == nil {
		svcs = services.EmptyServices()
	}
	RegisterIndex(api)
	RegisterHealth(api)
	RegisterAuth(api, svcs)
	RegisterSession(api, svcs)
	RegisterChat(api, svcs)
	RegisterSettings(api, svcs)
}

// currentUser returns the request's session and its logged-in user id.
func currentUser(ctx context.Context) (*session.State, uuid.UUID, error) {
	st := session.FromContext(ctx)
	id, ok := st.CurrentUserID()
	if !ok {
		return st, uuid.Nil, verr.WithPublic(verr.CodeAuthenticationRequired,
			"Authentication required. Please login.", nil)
	}
	return st, id, nil
}

// apiError converts err to a huma error carrying only the public message.
func apiError(err error) error {
	return huma.NewError(verr.HTTPStatus(err), verr.PublicMessage(err))
}
