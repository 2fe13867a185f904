package bot

import (
	"context"
	"fmt"

	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/git"
	"github.com/eust-w/volatile/internal/metrics"
	"github.com/eust-w/volatile/internal/models"
	"github.com/eust-w/volatile/internal/signature"
	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
)

// Template is the local reference file propagated to the projects
type Template struct {
	Path      string
	Signature string
	Content   string
}

// LoadTemplate reads the template file at path
func LoadTemplate(path string) (*Template, error) {
	sig, content, err := signature.FromFile(path)
	if err != nil {
		return nil, err
	}
	return &Template{Path: path, Signature: sig, Content: content}, nil
}

// Summary counts the projects per outcome of a pass
type Summary map[metrics.Outcome]int

// Bot keeps the target file of every project in sync with the template
type Bot struct {
	config   *config.Config
	platform git.Platform
	metrics  *metrics.Metrics
	template *Template
	exclude  []glob.Glob
}

// NewBot creates a new Bot instance
func NewBot(cfg *config.Config, platform git.Platform, m *metrics.Metrics, template *Template) (*Bot, error) {
	exclude := make([]glob.Glob, 0, len(cfg.GitlabExclude))
	for _, pattern := range cfg.GitlabExclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		exclude = append(exclude, g)
	}

	return &Bot{
		config:   cfg,
		platform: platform,
		metrics:  m,
		template: template,
		exclude:  exclude,
	}, nil
}

// Run performs one synchronisation pass over every project
func (b *Bot) Run(ctx context.Context) (Summary, error) {
	summary := Summary{}
	b.metrics.Reset()

	if err := b.platform.Connect(ctx); err != nil {
		return summary, err
	}

	projects := b.getProjects(ctx, summary)
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		b.handleProject(ctx, project, summary)
	}

	logrus.WithFields(logrus.Fields{
		"total":    summary[metrics.Total],
		"done":     summary[metrics.Done],
		"pushed":   summary[metrics.Pushed],
		"waiting":  summary[metrics.Waiting],
		"refused":  summary[metrics.Refused],
		"missing":  summary[metrics.Missing],
		"excluded": summary[metrics.Excluded],
		"failed":   summary[metrics.Failed],
	}).Info("Pass completed")

	return summary, nil
}

// getProjects lists the projects and drops the excluded ones. Listing errors
// are logged and end the pass with no project.
func (b *Bot) getProjects(ctx context.Context, summary Summary) []*models.Project {
	projects, err := b.platform.ListProjects(ctx, b.config.GitlabSearch, b.config.GitlabSearchInGroup)
	if err != nil {
		logrus.Errorf("unable to get projects :: %v", err)
		b.metrics.Set(metrics.Total, 0)
		return nil
	}

	kept := make([]*models.Project, 0, len(projects))
	for _, project := range projects {
		if b.isExcluded(project.Name) {
			logrus.Infof("get_projects :: %s :: exclude=True", project.Name)
			b.record(summary, metrics.Excluded)
			continue
		}
		kept = append(kept, project)
	}

	summary[metrics.Total] = len(kept)
	b.metrics.Set(metrics.Total, float64(len(kept)))
	return kept
}

func (b *Bot) isExcluded(name string) bool {
	for _, g := range b.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (b *Bot) record(summary Summary, outcome metrics.Outcome) {
	summary[outcome]++
	b.metrics.Inc(outcome)
}
