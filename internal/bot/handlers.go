package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/eust-w/volatile/internal/metrics"
	"github.com/eust-w/volatile/internal/models"
	"github.com/eust-w/volatile/internal/signature"
	"github.com/sirupsen/logrus"
)

// handleProject compares the target file of project with the template and
// pushes or proposes the update when they differ
func (b *Bot) handleProject(ctx context.Context, project *models.Project, summary Summary) {
	target := b.config.GitlabTargetFile
	log := logrus.WithFields(logrus.Fields{"project": project.Name, "file": target})
	log.Infof("%s :: %s", project.Name, target)

	file, err := b.platform.GetFile(ctx, project, target)
	if errors.Is(err, models.ErrNotFound) {
		log.Infof("%s :: %s :: not found", project.Name, target)
		b.record(summary, metrics.Missing)
		return
	}
	if err != nil {
		log.Errorf("%s :: %s :: %v", project.Name, target, err)
		b.record(summary, metrics.Failed)
		return
	}

	if signature.Matches(b.template.Signature, signature.FromContent(file.Content)) {
		log.Infof("%s :: %s :: already good", project.Name, target)
		b.record(summary, metrics.Done)
		return
	}

	if !b.config.MergeRequest {
		if !b.config.DryRun {
			if err := b.mergeContent(ctx, project, file, project.DefaultBranch); err != nil {
				log.Errorf("merge_content :: %s :: %s :: %v", project.Name, target, err)
				b.record(summary, metrics.Failed)
				return
			}
		}
		log.Infof("%s :: %s :: push", project.Name, target)
		b.record(summary, metrics.Pushed)
		return
	}

	b.createMergeRequest(ctx, project, file, summary)
}

// mergeContent appends the template to the remote file and commits it on branch
func (b *Bot) mergeContent(ctx context.Context, project *models.Project, file *models.File, branch string) error {
	updated := &models.File{
		Path:    file.Path,
		Ref:     branch,
		SHA:     file.SHA,
		Content: signature.Merge(file.Content, b.template.Content),
	}
	return b.platform.UpdateFile(ctx, project, updated, branch, fmt.Sprintf("Volatile update %s", file.Path))
}

// createMergeRequest proposes the template version through a merge request
// unless the project refused it or a merge request is already waiting
func (b *Bot) createMergeRequest(ctx context.Context, project *models.Project, file *models.File, summary Summary) {
	target := b.config.GitlabTargetFile
	branch := signature.BranchName(b.template.Signature)
	log := logrus.WithFields(logrus.Fields{"project": project.Name, "file": target, "branch": branch})

	mrs, err := b.platform.ListMergeRequests(ctx, project, branch)
	if err != nil {
		log.Errorf("%s :: %s :: merge request :: %v", project.Name, target, err)
		b.record(summary, metrics.Failed)
		return
	}

	if hasMergeRequest(mrs, branch, models.StateClosed) {
		log.Infof("%s :: %s :: merge request :: optout", project.Name, target)
		b.record(summary, metrics.Refused)
		return
	}

	if hasMergeRequest(mrs, branch, models.StateOpened) {
		log.Infof("%s :: %s :: merge request :: waiting", project.Name, target)
		b.record(summary, metrics.Waiting)
		return
	}

	if !b.config.DryRun {
		if err := b.openMergeRequest(ctx, project, file, branch); err != nil {
			log.Errorf("%s :: %s :: merge request :: %v", project.Name, target, err)
			b.record(summary, metrics.Failed)
			return
		}
	}

	log.Infof("%s :: %s :: merge request :: create", project.Name, target)
	b.record(summary, metrics.Waiting)
}

func (b *Bot) openMergeRequest(ctx context.Context, project *models.Project, file *models.File, branch string) error {
	// A stale branch may survive a merge request that was never opened
	if err := b.platform.DeleteBranch(ctx, project, branch); err != nil && !errors.Is(err, models.ErrNotFound) {
		logrus.Debugf("Ignoring branch deletion error on %s: %v", project.Name, err)
	}

	if err := b.platform.CreateBranch(ctx, project, branch, project.DefaultBranch); err != nil {
		return err
	}

	if err := b.mergeContent(ctx, project, file, branch); err != nil {
		return err
	}

	mr, err := b.platform.CreateMergeRequest(ctx, project, models.MergeRequestInput{
		Title:              fmt.Sprintf("Volatile - new version of %s", file.Path),
		Description:        b.config.GitlabMRDescription,
		SourceBranch:       branch,
		TargetBranch:       project.DefaultBranch,
		RemoveSourceBranch: true,
	})
	if err != nil {
		return err
	}

	logrus.Debugf("Opened merge request %d on %s: %s", mr.ID, project.Name, mr.WebURL)
	return nil
}

func hasMergeRequest(mrs []*models.MergeRequest, branch, state string) bool {
	for _, mr := range mrs {
		if mr.State == state && mr.SourceBranch == branch {
			return true
		}
	}
	return false
}
