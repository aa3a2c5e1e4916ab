package session

import (
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// Middleware attaches the session to the request context. Pending changes
// are saved and the cookie is written just before the response headers go
// out, so handlers only ever mutate the State.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := m.start(r.Context(), r)
		if err != nil {
			m.logger.Error("session store unavailable", "error", err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		flushed := false
		flush := func() {
			if flushed {
				return
			}
			flushed = true
			if st.changed {
				if err := m.Save(r.Context(), st); err != nil {
					m.logger.Error("failed to save session", "error", err)
				}
			}
			if st.cookie {
				http.SetCookie(w, m.Cookie(r, st))
			}
		}

		hooked := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					flush()
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					flush()
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					flush()
					return next(src)
				}
			},
			Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
				return func() {
					flush()
					next()
				}
			},
		})

		next.ServeHTTP(hooked, r.WithContext(WithState(r.Context(), st)))

		// Handlers that never write still get their changes persisted.
		flush()
	})
}
