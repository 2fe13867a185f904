package git

import (
	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/git/gitea"
	"github.com/eust-w/volatile/internal/git/github"
	"github.com/eust-w/volatile/internal/git/gitlab"
	"github.com/eust-w/volatile/internal/models"
)

// Platform is the forge abstraction used by the bot
type Platform = models.GitPlatform

func createGitHubClient(cfg *config.Config) (models.GitPlatform, error) {
	return github.NewClient(cfg)
}

func createGitLabClient(cfg *config.Config) (models.GitPlatform, error) {
	return gitlab.NewClient(cfg)
}

func createGiteaClient(cfg *config.Config) (models.GitPlatform, error) {
	return gitea.NewClient(cfg)
}
