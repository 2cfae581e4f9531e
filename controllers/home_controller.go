package controllers

import (
	"net/http"

	"gitea.com/go-chi/session"

	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/userctx"
)

// HomeController handles the landing and profile pages
type HomeController struct {
	cfg *config.Config
}

// NewHomeController creates a new home controller
func NewHomeController(cfg *config.Config) *HomeController {
	return &HomeController{cfg: cfg}
}

// Index handles GET /. It shows a login link for anonymous visitors and a
// greeting for signed-in users.
func (c *HomeController) Index(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	var username string
	if name, ok := sess.Get("user_name").(string); ok {
		username = name
	}

	templateData := struct {
		Title       string
		ServiceName string
		LoggedIn    bool
		Username    string
	}{
		Title:       "Login with " + c.cfg.ServiceName,
		ServiceName: c.cfg.ServiceName,
		LoggedIn:    username != "",
		Username:    username,
	}

	renderTemplate(w, "home", "templates/home.html", templateData)
}

// Profile handles GET /profile (authentication required)
func (c *HomeController) Profile(w http.ResponseWriter, r *http.Request) {
	templateData := struct {
		Title    string
		Username string
		Email    string
	}{
		Title:    "Your profile",
		Username: userctx.GetUsername(r.Context()),
		Email:    userctx.GetUserEmail(r.Context()),
	}

	renderTemplate(w, "profile", "templates/profile.html", templateData)
}
