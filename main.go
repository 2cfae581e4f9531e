package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"gitea.com/go-chi/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blogem/wiki-sso/authenticator"
	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/controllers"
	"github.com/blogem/wiki-sso/database"
	authmiddleware "github.com/blogem/wiki-sso/middleware"
	"github.com/blogem/wiki-sso/repositories"
	"github.com/blogem/wiki-sso/services"
)

func main() {
	// Load environment variables from .env file, if present
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	if err := database.InitializeDatabase(cfg.DatabasePath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	db := database.GetDB()

	// Initialize repositories and services
	repos := repositories.NewRepositories(db)
	srvs := services.NewServices(repos, cfg, nil)

	// Initialize controllers
	ctrl := controllers.NewControllers(srvs, cfg)

	// Initialize the OAuth provider. When an issuer URL is configured the
	// endpoints come from OIDC discovery, otherwise they must be explicit.
	auth, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize OAuth provider: %v", err)
	}

	r, err := setupRouter(ctrl, srvs, auth, cfg)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	fmt.Printf("wiki-sso starting on port %s\n", cfg.Port)
	fmt.Printf("Provider: %s\n", cfg.ServiceName)
	fmt.Printf("Database: %s\n", cfg.DatabasePath)

	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

// newProvider selects the provider implementation based on configuration
func newProvider(cfg *config.Config) (authenticator.Provider, error) {
	if cfg.IssuerURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return authenticator.NewOpenIDProvider(ctx, cfg)
	}
	return authenticator.NewGenericProvider(cfg)
}

// setupRouter configures all routes
func setupRouter(ctrl *controllers.Controllers, srvs *services.Services, auth authenticator.Provider, cfg *config.Config) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second)) // generous timeout for OAuth callbacks
	r.Use(middleware.Compress(5))

	// Session middleware
	sessionHandler, err := session.Sessioner(session.Options{
		Provider:    "memory",
		CookieName:  "wiki_sso_session",
		Secure:      cfg.UseHTTPS,
		Gclifetime:  3600,
		Maxlifetime: 3600,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	r.Use(sessionHandler)

	// PUBLIC ROUTES (no authentication required)
	r.Get("/", ctrl.Home.Index)
	r.Get("/login", ctrl.Auth.Login(auth))
	r.Get("/callback", ctrl.Auth.Callback(auth))
	r.Get("/logout", ctrl.Auth.Logout)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "service": "wiki-sso"}`)
	})

	// PROTECTED ROUTES (authentication required)
	r.Group(func(r chi.Router) {
		r.Use(authmiddleware.RequireAuth(srvs.Identity))

		r.Get("/profile", ctrl.Home.Profile)
	})

	return r, nil
}
