package middleware

import (
	"net/http"
	"net/url"

	"gitea.com/go-chi/session"

	"github.com/blogem/wiki-sso/services"
	"github.com/blogem/wiki-sso/userctx"
)

const authTokenCookie = "wiki_sso_token"

// RequireAuth ensures the user is authenticated, either via the session or
// via a valid remember-token cookie. Unauthenticated requests are redirected
// to /login with the intended destination as returnto.
func RequireAuth(identity services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.GetSession(r)

			if userID, ok := sess.Get("user_id").(int); ok {
				ctx := userctx.SetUserID(r.Context(), userID)
				if name, ok := sess.Get("user_name").(string); ok {
					ctx = userctx.SetUsername(ctx, name)
				}
				if email, ok := sess.Get("user_email").(string); ok {
					ctx = userctx.SetUserEmail(ctx, email)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// No session user; try the remember-token cookie.
			if cookie, err := r.Cookie(authTokenCookie); err == nil && cookie.Value != "" {
				user, err := identity.UserByAuthToken(r.Context(), cookie.Value)
				if err == nil && user != nil {
					sess.Set("user_id", user.ID)
					sess.Set("user_name", user.Username)
					sess.Set("user_email", user.Email)

					ctx := userctx.SetUserID(r.Context(), user.ID)
					ctx = userctx.SetUsername(ctx, user.Username)
					ctx = userctx.SetUserEmail(ctx, user.Email)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			login := "/login?returnto=" + url.QueryEscape(r.URL.Path)
			http.Redirect(w, r, login, http.StatusSeeOther)
		})
	}
}
