package git

import (
	"fmt"
	"strings"

	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/models"
	"github.com/sirupsen/logrus"
)

// Factory creates platform clients based on configuration
type Factory struct {
	config *config.Config
}

// NewFactory creates a new platform factory
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config: cfg,
	}
}

// PlatformType represents the type of git platform
type PlatformType string

// Values accepted by the PLATFORM variable
const (
	// GitHubPlatform targets github.com or a GitHub Enterprise server
	GitHubPlatform PlatformType = "github"
	// GitLabPlatform targets GITLAB_URL, the default
	GitLabPlatform PlatformType = "gitlab"
	// GiteaPlatform targets a Gitea server at GITEA_BASE_URL
	GiteaPlatform PlatformType = "gitea"
)

// CreatePlatform creates a platform client based on configuration
func (f *Factory) CreatePlatform() (models.GitPlatform, error) {
	platform := strings.ToLower(f.config.Platform)

	switch PlatformType(platform) {
	case GitHubPlatform:
		logrus.Info("Creating GitHub platform client")
		return createGitHubClient(f.config)
	case GitLabPlatform:
		logrus.Info("Creating GitLab platform client")
		return createGitLabClient(f.config)
	case GiteaPlatform:
		logrus.Info("Creating Gitea platform client")
		return createGiteaClient(f.config)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}
