package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/xanzy/go-gitlab"
)

const perPage = 100

// Client implements the models.GitPlatform interface for GitLab
type Client struct {
	client *gitlab.Client
	config *config.Config
}

// NewClient creates a new GitLab client
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.GitlabToken == "" {
		return nil, errors.New("GitLab token is required when using GitLab platform")
	}

	baseURL := cfg.GitlabURL
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}

	client, err := gitlab.NewClient(
		cfg.GitlabToken,
		gitlab.WithBaseURL(baseURL),
		gitlab.WithHTTPClient(&http.Client{Timeout: cfg.GitlabTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Connect performs an authentication via private token
func (c *Client) Connect(ctx context.Context) error {
	user, _, err := c.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("unable to connect on gitlab: %w", err)
	}

	logrus.Debugf("Authenticated on GitLab as %s", user.Username)
	return nil
}

// ListProjects gets all projects matching search, or every project of the groups matching group
func (c *Client) ListProjects(ctx context.Context, search, group string) ([]*models.Project, error) {
	var refs []*gitlab.Project
	var err error

	if group != "" {
		refs, err = c.listGroupProjects(ctx, group)
	} else {
		refs, err = c.listProjects(ctx, search)
	}
	if err != nil {
		return nil, err
	}

	projects := make([]*models.Project, 0, len(refs))
	for _, ref := range refs {
		// List endpoints may return partial objects, load the full project
		project, _, err := c.client.Projects.GetProject(ref.ID, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
		if err != nil {
			logrus.Errorf("Failed to get project %d: %v", ref.ID, err)
			continue
		}
		projects = append(projects, convertProject(project))
	}

	return projects, nil
}

func (c *Client) listProjects(ctx context.Context, search string) ([]*gitlab.Project, error) {
	opt := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage, Page: 1},
	}
	if search != "" {
		opt.Search = gitlab.Ptr(search)
	}

	var all []*gitlab.Project
	for {
		projects, resp, err := c.client.Projects.ListProjects(opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		all = append(all, projects...)

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return all, nil
}

func (c *Client) listGroupProjects(ctx context.Context, search string) ([]*gitlab.Project, error) {
	groupOpt := &gitlab.ListGroupsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage, Page: 1},
		Search:      gitlab.Ptr(search),
	}

	var groups []*gitlab.Group
	for {
		page, resp, err := c.client.Groups.ListGroups(groupOpt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list groups: %w", err)
		}
		groups = append(groups, page...)

		if resp == nil || resp.NextPage == 0 {
			break
		}
		groupOpt.Page = resp.NextPage
	}

	var all []*gitlab.Project
	for _, group := range groups {
		opt := &gitlab.ListGroupProjectsOptions{
			ListOptions:      gitlab.ListOptions{PerPage: perPage, Page: 1},
			IncludeSubGroups: gitlab.Ptr(true),
		}
		for {
			projects, resp, err := c.client.Groups.ListGroupProjects(group.ID, opt, gitlab.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("failed to list projects of group %s: %w", group.FullPath, err)
			}
			all = append(all, projects...)

			if resp == nil || resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
	}

	return all, nil
}

// GetFile retrieves a file from the project default branch
func (c *Client) GetFile(ctx context.Context, project *models.Project, path string) (*models.File, error) {
	if project.DefaultBranch == "" {
		// empty repository, there is no ref to read from
		return nil, models.ErrNotFound
	}

	file, resp, err := c.client.RepositoryFiles.GetFile(project.ID, path, &gitlab.GetFileOptions{
		Ref: gitlab.Ptr(project.DefaultBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if (resp != nil && resp.StatusCode == http.StatusNotFound) || IsNotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	content := file.Content
	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file %s: %w", path, err)
		}
		content = string(decoded)
	}

	return &models.File{
		Path:    file.FilePath,
		Ref:     project.DefaultBranch,
		Content: content,
		SHA:     file.BlobID,
	}, nil
}

// UpdateFile commits the file content on branch
func (c *Client) UpdateFile(ctx context.Context, project *models.Project, file *models.File, branch, message string) error {
	_, _, err := c.client.RepositoryFiles.UpdateFile(project.ID, file.Path, &gitlab.UpdateFileOptions{
		Branch:        gitlab.Ptr(branch),
		Content:       gitlab.Ptr(file.Content),
		CommitMessage: gitlab.Ptr(message),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", file.Path, err)
	}
	return nil
}

// DeleteBranch deletes a branch
func (c *Client) DeleteBranch(ctx context.Context, project *models.Project, branch string) error {
	resp, err := c.client.Branches.DeleteBranch(project.ID, branch, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

// CreateBranch creates branch from ref
func (c *Client) CreateBranch(ctx context.Context, project *models.Project, branch, ref string) error {
	_, _, err := c.client.Branches.CreateBranch(project.ID, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(branch),
		Ref:    gitlab.Ptr(ref),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// ListMergeRequests lists the merge requests opened from sourceBranch, whatever their state
func (c *Client) ListMergeRequests(ctx context.Context, project *models.Project, sourceBranch string) ([]*models.MergeRequest, error) {
	opt := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions:  gitlab.ListOptions{PerPage: perPage, Page: 1},
		SourceBranch: gitlab.Ptr(sourceBranch),
	}

	var result []*models.MergeRequest
	for {
		mrs, resp, err := c.client.MergeRequests.ListProjectMergeRequests(project.ID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list merge requests: %w", err)
		}
		for _, mr := range mrs {
			result = append(result, &models.MergeRequest{
				ID:           mr.IID,
				Title:        mr.Title,
				State:        mr.State,
				SourceBranch: mr.SourceBranch,
				TargetBranch: mr.TargetBranch,
				WebURL:       mr.WebURL,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return result, nil
}

// CreateMergeRequest opens a merge request
func (c *Client) CreateMergeRequest(ctx context.Context, project *models.Project, input models.MergeRequestInput) (*models.MergeRequest, error) {
	mr, _, err := c.client.MergeRequests.CreateMergeRequest(project.ID, &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(input.Title),
		Description:        gitlab.Ptr(input.Description),
		SourceBranch:       gitlab.Ptr(input.SourceBranch),
		TargetBranch:       gitlab.Ptr(input.TargetBranch),
		RemoveSourceBranch: gitlab.Ptr(input.RemoveSourceBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create merge request: %w", err)
	}

	return &models.MergeRequest{
		ID:           mr.IID,
		Title:        mr.Title,
		State:        mr.State,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		WebURL:       mr.WebURL,
	}, nil
}

func convertProject(p *gitlab.Project) *models.Project {
	return &models.Project{
		ID:            strconv.Itoa(p.ID),
		Name:          p.Name,
		FullName:      p.PathWithNamespace,
		DefaultBranch: p.DefaultBranch,
		WebURL:        p.WebURL,
	}
}

// IsNotFound checks if an error is a 404 Not Found error
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var response *gitlab.ErrorResponse
	if errors.As(err, &response) && response.Response != nil {
		return response.Response.StatusCode == http.StatusNotFound
	}

	return false
}
