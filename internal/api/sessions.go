package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"

	nnerrs "github.com/Shangzhi-shi/newsnow-fork/internal/errors"
	"github.com/Shangzhi-shi/newsnow-fork/internal/server"
)

const sessionCookieName = "newsnow_session"

// TokenVerifier resolves a bearer token to a user id. The static
// implementation covers self-hosted deployments with a shared token list.
type TokenVerifier interface {
	Verify(token string) (userID string, ok bool)
}

// StaticTokens verifies against a fixed token-to-user mapping.
type StaticTokens map[string]string

func (t StaticTokens) Verify(token string) (string, bool) {
	id, ok := t[token]
	return id, ok
}

// Describes a user's sessionState that's persisted to their cookie.
type sessionState struct {
	UserID string
}

// Fetches the current session tied to the request.
func session(r *http.Request, secureCookie *securecookie.SecureCookie) sessionState {
	cookie, err := r.Cookie(sessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return sessionState{}
	}
	if err != nil {
		slog.Error("error fetching cookie", "err", err)
		return sessionState{}
	}

	value := sessionState{}
	if err := secureCookie.Decode(sessionCookieName, cookie.Value, &value); err != nil {
		slog.Error("error decoding cookie", "err", err)
		return sessionState{}
	}

	return value
}

// Sets the session on the request.
func setSession(w http.ResponseWriter, secureCookie *securecookie.SecureCookie, https bool, sess sessionState) {
	encoded, err := secureCookie.Encode(sessionCookieName, sess)
	if err != nil {
		slog.Error("error encoding cookie", "err", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   https,
		HttpOnly: true,
	})
}

type userIDKey struct{}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// identify resolves the caller: a bearer token first, then the session
// cookie. Empty means anonymous.
func (s *Server) identify(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if id, ok := s.verifier.Verify(strings.TrimPrefix(h, "Bearer ")); ok {
			return id
		}
	}
	return session(r, s.secureCookie).UserID
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.identify(r)
		if id == "" {
			sErr := nnerrs.E("authentication required", nnerrs.CodeAuthRequired, http.StatusUnauthorized)
			if err := server.WriteJSON(w, sErr.Status, sErr); err != nil {
				slog.Error("error writing response", "error", err)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, id)))
	})
}

type debugLoginReq struct {
	UserID string `json:"user_id"`
}

func (d debugLoginReq) Validate() error {
	if d.UserID == "" {
		return nnerrs.E("user_id is required", nnerrs.CodeValidationFailure, http.StatusBadRequest)
	}
	return nil
}

// handleDebugLogin starts a session without any identity provider. Only
// routed when debug endpoints are enabled.
func (s *Server) handleDebugLogin(w http.ResponseWriter, r *http.Request) error {
	req, err := server.DecodeValid[debugLoginReq](r.Body)
	if err != nil {
		return err
	}

	setSession(w, s.secureCookie, s.httpsCookies, sessionState{UserID: req.UserID})
	return server.WriteJSON(w, http.StatusOK, struct{}{})
}
