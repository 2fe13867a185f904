package models

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a forge resource does not exist
var ErrNotFound = errors.New("not found")

// Merge request states as reported by the forges
const (
	StateOpened = "opened"
	StateClosed = "closed"
	StateMerged = "merged"
)

// Project represents a repository on a git hosting platform
type Project struct {
	ID            string
	Name          string
	FullName      string
	DefaultBranch string
	WebURL        string
}

// File represents a file read from a project branch
type File struct {
	Path    string
	Ref     string
	Content string
	// SHA is the blob id, needed by forges that update files optimistically
	SHA string
}

// MergeRequest represents a pull request or merge request
type MergeRequest struct {
	ID           int
	Title        string
	State        string
	SourceBranch string
	TargetBranch string
	WebURL       string
}

// MergeRequestInput holds the parameters for opening a merge request
type MergeRequestInput struct {
	Title              string
	Description        string
	SourceBranch       string
	TargetBranch       string
	RemoveSourceBranch bool
}

// GitPlatform defines the interface for git hosting platforms
type GitPlatform interface {
	// Connect authenticates against the platform
	Connect(ctx context.Context) error

	// ListProjects lists projects matching search, or every project of the
	// groups matching group when group is set
	ListProjects(ctx context.Context, search, group string) ([]*Project, error)

	// GetFile reads a file from the project default branch
	GetFile(ctx context.Context, project *Project, path string) (*File, error)

	// UpdateFile commits new file content on branch
	UpdateFile(ctx context.Context, project *Project, file *File, branch, message string) error

	// DeleteBranch deletes a branch
	DeleteBranch(ctx context.Context, project *Project, branch string) error

	// CreateBranch creates branch from ref
	CreateBranch(ctx context.Context, project *Project, branch, ref string) error

	// ListMergeRequests lists merge requests in any state opened from sourceBranch
	ListMergeRequests(ctx context.Context, project *Project, sourceBranch string) ([]*MergeRequest, error)

	// CreateMergeRequest opens a merge request
	CreateMergeRequest(ctx context.Context, project *Project, input MergeRequestInput) (*MergeRequest, error)
}
