package controllers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"

	"gitea.com/go-chi/session"

	"github.com/blogem/wiki-sso/authenticator"
	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/services"
)

// Session keys owned by the login flow. The state and returnto pair is
// written at initiation and consumed by the callback; state is single-use.
const (
	sessionKeyState     = "oauth2_state"
	sessionKeyReturnTo  = "returnto"
	sessionKeyUserID    = "user_id"
	sessionKeyUsername  = "user_name"
	sessionKeyUserEmail = "user_email"
)

// AuthTokenCookie is the long-lived remember-token cookie.
const AuthTokenCookie = "wiki_sso_token"

// authTokenMaxAge is the remember-token cookie lifetime in seconds (30 days).
const authTokenMaxAge = 30 * 24 * 3600

type AuthController struct {
	services *services.Services
	cfg      *config.Config
}

func NewAuthController(services *services.Services, cfg *config.Config) *AuthController {
	return &AuthController{
		services: services,
		cfg:      cfg,
	}
}

// Login initiates the authorization-code flow. An optional returnto query
// parameter names the local path to land on after a successful login.
func (ac *AuthController) Login(auth authenticator.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := generateRandomState()
		if err != nil {
			http.Error(w, "Failed to start login", http.StatusInternalServerError)
			return
		}

		// Save the state in the session to validate in the callback. Any
		// prior unconsumed state is replaced.
		sess := session.GetSession(r)
		if err := sess.Set(sessionKeyState, state); err != nil {
			http.Error(w, "Failed to start login", http.StatusInternalServerError)
			return
		}
		if returnTo := r.URL.Query().Get("returnto"); returnTo != "" {
			if err := sess.Set(sessionKeyReturnTo, returnTo); err != nil {
				http.Error(w, "Failed to start login", http.StatusInternalServerError)
				return
			}
		} else {
			sess.Delete(sessionKeyReturnTo)
		}

		http.Redirect(w, r, auth.AuthCodeURL(state), http.StatusTemporaryRedirect)
	}
}

// Callback handles the provider redirect: it validates the CSRF state,
// exchanges the code, fetches the resource-owner claims and reconciles them
// to a local account.
func (ac *AuthController) Callback(auth authenticator.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.GetSession(r)

		storedState := sess.Get(sessionKeyState)
		if storedState == nil {
			http.Error(w, "No login in progress", http.StatusBadRequest)
			return
		}

		// The stored state is single-use: consume it on every callback
		// attempt, so a replay or a guessed retry always fails here.
		sess.Delete(sessionKeyState)

		queryState := r.URL.Query().Get("state")
		if queryState == "" || queryState != storedState.(string) {
			sess.Delete(sessionKeyReturnTo)
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		token, err := auth.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			log.Printf("token exchange failed: %v", err)
			sess.Delete(sessionKeyReturnTo)
			http.Error(w, "Failed to exchange authorization code for a token", http.StatusBadGateway)
			return
		}

		doc, err := auth.FetchResourceOwner(r.Context(), token)
		if err != nil {
			log.Printf("resource owner fetch failed: %v", err)
			sess.Delete(sessionKeyReturnTo)
			http.Error(w, "Failed to fetch user information", http.StatusBadGateway)
			return
		}

		user, err := ac.services.Identity.Reconcile(r.Context(), doc)
		if err != nil {
			sess.Delete(sessionKeyReturnTo)
			if errors.Is(err, services.ErrPolicyDenied) {
				http.Error(w, ac.cfg.AuthzFailureMessage, http.StatusForbidden)
				return
			}
			log.Printf("identity reconciliation failed: %v", err)
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		if user == nil {
			// Valid account, but not permitted here. No session, no error.
			sess.Delete(sessionKeyReturnTo)
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		authToken, err := ac.services.Identity.IssueAuthToken(r.Context(), user)
		if err != nil {
			log.Printf("auth token issue failed: %v", err)
			sess.Delete(sessionKeyReturnTo)
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		if err := sess.Set(sessionKeyUserID, user.ID); err != nil {
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}
		if err := sess.Set(sessionKeyUsername, user.Username); err != nil {
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}
		if err := sess.Set(sessionKeyUserEmail, user.Email); err != nil {
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     AuthTokenCookie,
			Value:    authToken,
			Path:     "/",
			MaxAge:   authTokenMaxAge,
			HttpOnly: true,
			Secure:   ac.cfg.UseHTTPS,
			SameSite: http.SameSiteLaxMode,
		})

		target := resolveReturnTo(sess)
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// Logout clears the session user and the remember-token cookie
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	// Revoke the remember token server-side so the cookie cannot be reused.
	if cookie, err := r.Cookie(AuthTokenCookie); err == nil && cookie.Value != "" {
		user, err := ac.services.Identity.UserByAuthToken(r.Context(), cookie.Value)
		if err == nil && user != nil {
			if err := ac.services.Identity.ClearAuthToken(r.Context(), user); err != nil {
				log.Printf("failed to revoke auth token: %v", err)
			}
		}
	}

	sess.Delete(sessionKeyUserID)
	sess.Delete(sessionKeyUsername)
	sess.Delete(sessionKeyUserEmail)
	sess.Delete(sessionKeyState)
	sess.Delete(sessionKeyReturnTo)

	http.SetCookie(w, &http.Cookie{
		Name:     AuthTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ac.cfg.UseHTTPS,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// resolveReturnTo consumes the stored returnto value and resolves the
// post-login redirect target. Only rooted local paths are honored.
func resolveReturnTo(sess session.Store) string {
	stored := sess.Get(sessionKeyReturnTo)
	sess.Delete(sessionKeyReturnTo)

	target, ok := stored.(string)
	if !ok {
		return "/"
	}
	if !isLocalPath(target) {
		return "/"
	}
	return target
}

// isLocalPath reports whether target is a path on this host: rooted, not
// scheme-relative and free of backslash tricks.
func isLocalPath(target string) bool {
	if target == "" || target[0] != '/' {
		return false
	}
	if strings.HasPrefix(target, "//") {
		return false
	}
	if strings.Contains(target, "\\") {
		return false
	}
	return true
}

// generateRandomState generates a random state value for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
