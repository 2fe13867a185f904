package gitea

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"code.gitea.io/sdk/gitea"
	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/models"
	"github.com/sirupsen/logrus"
)

const pageSize = 50

// Client implements the models.GitPlatform interface for Gitea
type Client struct {
	client *gitea.Client
	config *config.Config
}

// NewClient creates a new Gitea client
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.GiteaToken == "" {
		return nil, errors.New("Gitea token is required when using Gitea platform")
	}

	if cfg.GiteaBaseURL == "" {
		return nil, errors.New("Gitea base URL is required when using Gitea platform")
	}

	client, err := gitea.NewClient(
		cfg.GiteaBaseURL,
		gitea.SetToken(cfg.GiteaToken),
		gitea.SetHTTPClient(&http.Client{Timeout: cfg.GitlabTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gitea client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Connect checks the token by reading the authenticated user
func (c *Client) Connect(ctx context.Context) error {
	user, _, err := c.client.GetMyUserInfo()
	if err != nil {
		return fmt.Errorf("unable to connect on gitea: %w", err)
	}

	logrus.Debugf("Authenticated on Gitea as %s", user.UserName)
	return nil
}

// ListProjects lists repositories of the organisation named group, or the
// repositories matching search
func (c *Client) ListProjects(ctx context.Context, search, group string) ([]*models.Project, error) {
	var repos []*gitea.Repository

	for page := 1; ; page++ {
		listOptions := gitea.ListOptions{Page: page, PageSize: pageSize}

		var batch []*gitea.Repository
		var err error
		if group != "" {
			batch, _, err = c.client.ListOrgRepos(group, gitea.ListOrgReposOptions{ListOptions: listOptions})
		} else {
			batch, _, err = c.client.SearchRepos(gitea.SearchRepoOptions{ListOptions: listOptions, Keyword: search})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}

		// servers may cap the page size below ours, only an empty page ends the listing
		if len(batch) == 0 {
			break
		}
		repos = append(repos, batch...)
	}

	projects := make([]*models.Project, 0, len(repos))
	for _, repo := range repos {
		projects = append(projects, &models.Project{
			ID:            repo.FullName,
			Name:          repo.Name,
			FullName:      repo.FullName,
			DefaultBranch: repo.DefaultBranch,
			WebURL:        repo.HTMLURL,
		})
	}

	return projects, nil
}

// GetFile reads a file from the default branch
func (c *Client) GetFile(ctx context.Context, project *models.Project, path string) (*models.File, error) {
	if project.DefaultBranch == "" {
		// empty repository
		return nil, models.ErrNotFound
	}

	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return nil, err
	}

	contents, resp, err := c.client.GetContents(owner, repo, project.DefaultBranch, path)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	if contents == nil || contents.Content == nil {
		return nil, models.ErrNotFound
	}

	content := *contents.Content
	if contents.Encoding != nil && *contents.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file %s: %w", path, err)
		}
		content = string(decoded)
	}

	return &models.File{
		Path:    contents.Path,
		Ref:     project.DefaultBranch,
		Content: content,
		SHA:     contents.SHA,
	}, nil
}

// UpdateFile commits the file content on branch
func (c *Client) UpdateFile(ctx context.Context, project *models.Project, file *models.File, branch, message string) error {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return err
	}

	_, _, err = c.client.UpdateFile(owner, repo, file.Path, gitea.UpdateFileOptions{
		FileOptions: gitea.FileOptions{
			Message:    message,
			BranchName: branch,
		},
		SHA:     file.SHA,
		Content: base64.StdEncoding.EncodeToString([]byte(file.Content)),
	})
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", file.Path, err)
	}
	return nil
}

// DeleteBranch deletes a branch
func (c *Client) DeleteBranch(ctx context.Context, project *models.Project, branch string) error {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return err
	}

	deleted, resp, err := c.client.DeleteRepoBranch(owner, repo, branch)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	if !deleted {
		return models.ErrNotFound
	}
	return nil
}

// CreateBranch creates branch from ref
func (c *Client) CreateBranch(ctx context.Context, project *models.Project, branch, ref string) error {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return err
	}

	_, _, err = c.client.CreateBranch(owner, repo, gitea.CreateBranchOption{
		BranchName:    branch,
		OldBranchName: ref,
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// ListMergeRequests lists pull requests opened from sourceBranch
func (c *Client) ListMergeRequests(ctx context.Context, project *models.Project, sourceBranch string) ([]*models.MergeRequest, error) {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return nil, err
	}

	var result []*models.MergeRequest
	for page := 1; ; page++ {
		prs, _, err := c.client.ListRepoPullRequests(owner, repo, gitea.ListPullRequestsOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: pageSize},
			State:       gitea.StateAll,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}

		if len(prs) == 0 {
			break
		}
		for _, pr := range prs {
			mr := convertPullRequest(pr)
			if mr.SourceBranch == sourceBranch {
				result = append(result, mr)
			}
		}
	}

	return result, nil
}

// CreateMergeRequest opens a pull request
func (c *Client) CreateMergeRequest(ctx context.Context, project *models.Project, input models.MergeRequestInput) (*models.MergeRequest, error) {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.client.CreatePullRequest(owner, repo, gitea.CreatePullRequestOption{
		Head:  input.SourceBranch,
		Base:  input.TargetBranch,
		Title: input.Title,
		Body:  input.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	return convertPullRequest(pr), nil
}

func convertPullRequest(pr *gitea.PullRequest) *models.MergeRequest {
	state := models.StateOpened
	if pr.State == gitea.StateClosed {
		state = models.StateClosed
		if pr.HasMerged {
			state = models.StateMerged
		}
	}

	mr := &models.MergeRequest{
		ID:     int(pr.Index),
		Title:  pr.Title,
		State:  state,
		WebURL: pr.HTMLURL,
	}
	if pr.Head != nil {
		mr.SourceBranch = pr.Head.Ref
	}
	if pr.Base != nil {
		mr.TargetBranch = pr.Base.Ref
	}
	return mr
}

func splitFullName(fullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid repository name: %s", fullName)
	}
	return owner, repo, nil
}
