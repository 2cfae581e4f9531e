package services

import (
	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/repositories"
)

// Services holds all service instances
type Services struct {
	Identity IdentityService
}

// NewServices creates and initializes all service instances
func NewServices(repos *repositories.Repositories, cfg *config.Config, policy AuthorizationPolicy, hooks ...BeforeUserSaveHook) *Services {
	return &Services{
		Identity: NewIdentityService(repos.User, cfg, policy, hooks...),
	}
}
