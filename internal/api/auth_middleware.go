package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	auth "github.com/isqad/firebase-auth-service/pkg/service"
	"google.golang.org/grpc"
)

type ctxKey string

const (
	// UserIDContextKey is used for extract uid from request context
	UserIDContextKey ctxKey = "userID"

	// StaffSessionNameKey is the cookie session shared with the admin panel.
	StaffSessionNameKey = "_school_staff"
)

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
)

// TokenAuth verifies the X-Auth token of every request against the platform's
// auth service and binds the resolved user id into the request context. Staff
// already signed into the admin panel pass on their cookie session instead.
type TokenAuth struct {
	Addr         string
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler

	cookieStore *sessions.CookieStore
}

func NewTokenAuth(addr string, sessionSecret string) *TokenAuth {
	m := &TokenAuth{Addr: addr}
	if sessionSecret != "" {
		m.cookieStore = sessions.NewCookieStore([]byte(sessionSecret))
	}
	return m
}

func (m *TokenAuth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *TokenAuth) defaultMiddleware() AuthHandler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.cookieStore != nil {
				staffSession, _ := m.cookieStore.Get(r, StaffSessionNameKey)
				staffID, ok := staffSession.Values["user_id"].(string)
				if ok && staffID != "" {
					ctx := context.WithValue(r.Context(), UserIDContextKey, staffID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			conn, err := grpc.Dial(m.Addr, []grpc.DialOption{
				grpc.WithInsecure(),
				grpc.WithBlock(),
			}...)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}
			defer conn.Close()

			authClient := auth.NewAuthClient(conn)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			t, err := authClient.Verify(ctx, &auth.Token{Token: token})
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserIDContextKey, t.GetUserId())
			next.ServeHTTP(w, r.WithContext(reqCtx))
		})
	}
}

func (m *TokenAuth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
}

// extractUserID pulls the authenticated user id from the request context.
func extractUserID(r *http.Request) (string, error) {
	userID, ok := r.Context().Value(UserIDContextKey).(string)
	if !ok || userID == "" {
		return "", errors.New("can't get user ID from request context")
	}

	return userID, nil
}
