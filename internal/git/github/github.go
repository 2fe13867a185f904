package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/models"
	"github.com/google/go-github/v60/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const perPage = 100

// Client implements the models.GitPlatform interface for GitHub
type Client struct {
	client *github.Client
	config *config.Config
}

// NewClient creates a new GitHub client
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.GithubToken == "" {
		return nil, errors.New("GitHub token is required when using GitHub platform")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.GithubToken},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = cfg.GitlabTimeout

	client := github.NewClient(tc)
	if cfg.GithubBaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.GithubBaseURL, cfg.GithubBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Connect checks the token by reading the authenticated user
func (c *Client) Connect(ctx context.Context) error {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("unable to connect on github: %w", err)
	}

	logrus.Debugf("Authenticated on GitHub as %s", user.GetLogin())
	return nil
}

// ListProjects lists repositories of the organisation named group, or the
// repositories matching search, or those of the authenticated user
func (c *Client) ListProjects(ctx context.Context, search, group string) ([]*models.Project, error) {
	var repos []*github.Repository

	switch {
	case group != "":
		opt := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: perPage}}
		for {
			page, resp, err := c.client.Repositories.ListByOrg(ctx, group, opt)
			if err != nil {
				return nil, fmt.Errorf("failed to list repositories of %s: %w", group, err)
			}
			repos = append(repos, page...)
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	case search != "":
		opt := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: perPage}}
		for {
			result, resp, err := c.client.Search.Repositories(ctx, search, opt)
			if err != nil {
				return nil, fmt.Errorf("failed to search repositories: %w", err)
			}
			repos = append(repos, result.Repositories...)
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	default:
		opt := &github.RepositoryListByAuthenticatedUserOptions{ListOptions: github.ListOptions{PerPage: perPage}}
		for {
			page, resp, err := c.client.Repositories.ListByAuthenticatedUser(ctx, opt)
			if err != nil {
				return nil, fmt.Errorf("failed to list repositories: %w", err)
			}
			repos = append(repos, page...)
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}

	projects := make([]*models.Project, 0, len(repos))
	for _, repo := range repos {
		projects = append(projects, &models.Project{
			ID:            repo.GetFullName(),
			Name:          repo.GetName(),
			FullName:      repo.GetFullName(),
			DefaultBranch: repo.GetDefaultBranch(),
			WebURL:        repo.GetHTMLURL(),
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

	content, _, resp, err := c.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{
		Ref: project.DefaultBranch,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	if content == nil {
		// path is a directory
		return nil, models.ErrNotFound
	}

	text, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode file %s: %w", path, err)
	}

	return &models.File{
		Path:    content.GetPath(),
		Ref:     project.DefaultBranch,
		Content: text,
		SHA:     content.GetSHA(),
	}, nil
}

// UpdateFile commits the file content on branch
func (c *Client) UpdateFile(ctx context.Context, project *models.Project, file *models.File, branch, message string) error {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return err
	}

	_, _, err = c.client.Repositories.UpdateFile(ctx, owner, repo, file.Path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(file.Content),
		SHA:     github.String(file.SHA),
		Branch:  github.String(branch),
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

	resp, err := c.client.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

// CreateBranch creates branch pointing at the head of ref
func (c *Client) CreateBranch(ctx context.Context, project *models.Project, branch, ref string) error {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return err
	}

	base, _, err := c.client.Git.GetRef(ctx, owner, repo, "heads/"+ref)
	if err != nil {
		return fmt.Errorf("failed to get ref %s: %w", ref, err)
	}

	_, _, err = c.client.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: base.GetObject().SHA},
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

	opt := &github.PullRequestListOptions{
		State:       "all",
		Head:        owner + ":" + sourceBranch,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var result []*models.MergeRequest
	for {
		prs, resp, err := c.client.PullRequests.List(ctx, owner, repo, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}
		for _, pr := range prs {
			result = append(result, convertPullRequest(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return result, nil
}

// CreateMergeRequest opens a pull request. GitHub deletes head branches
// according to the repository settings, RemoveSourceBranch is ignored.
func (c *Client) CreateMergeRequest(ctx context.Context, project *models.Project, input models.MergeRequestInput) (*models.MergeRequest, error) {
	owner, repo, err := splitFullName(project.ID)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(input.Title),
		Head:  github.String(input.SourceBranch),
		Base:  github.String(input.TargetBranch),
		Body:  github.String(input.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	return convertPullRequest(pr), nil
}

func convertPullRequest(pr *github.PullRequest) *models.MergeRequest {
	state := models.StateOpened
	if pr.GetState() == "closed" {
		state = models.StateClosed
		if pr.MergedAt != nil {
			state = models.StateMerged
		}
	}

	return &models.MergeRequest{
		ID:           pr.GetNumber(),
		Title:        pr.GetTitle(),
		State:        state,
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		WebURL:       pr.GetHTMLURL(),
	}
}

func splitFullName(fullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid repository name: %s", fullName)
	}
	return owner, repo, nil
}
