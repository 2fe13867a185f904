package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/metrics"
	"github.com/eust-w/volatile/internal/models"
	"github.com/eust-w/volatile/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	targetFile      = ".editorconfig"
	templateContent = "[*]\nindent_style = space\n"
)

type update struct {
	project string
	branch  string
	content string
	message string
}

// fakePlatform is an in-memory models.GitPlatform
type fakePlatform struct {
	connectErr error
	listErr    error
	projects   []*models.Project
	files      map[string]string
	fileErrs   map[string]error
	mrs        map[string][]*models.MergeRequest

	updateErr       error
	createBranchErr error
	listMRErr       error
	createMRErr     error

	updates         []update
	deletedBranches []string
	createdBranches []string
	createdMRs      []models.MergeRequestInput
}

func newFakePlatform(projects ...string) *fakePlatform {
	f := &fakePlatform{
		files:    map[string]string{},
		fileErrs: map[string]error{},
		mrs:      map[string][]*models.MergeRequest{},
	}
	for _, name := range projects {
		f.projects = append(f.projects, &models.Project{ID: "team/" + name, Name: name, DefaultBranch: "main"})
	}
	return f
}

func (f *fakePlatform) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakePlatform) ListProjects(ctx context.Context, search, group string) ([]*models.Project, error) {
	return f.projects, f.listErr
}

func (f *fakePlatform) GetFile(ctx context.Context, project *models.Project, path string) (*models.File, error) {
	if err := f.fileErrs[project.Name]; err != nil {
		return nil, err
	}
	content, ok := f.files[project.Name]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.File{Path: path, Ref: project.DefaultBranch, Content: content, SHA: "sha-" + project.Name}, nil
}

func (f *fakePlatform) UpdateFile(ctx context.Context, project *models.Project, file *models.File, branch, message string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, update{project: project.Name, branch: branch, content: file.Content, message: message})
	return nil
}

func (f *fakePlatform) DeleteBranch(ctx context.Context, project *models.Project, branch string) error {
	f.deletedBranches = append(f.deletedBranches, branch)
	return models.ErrNotFound
}

func (f *fakePlatform) CreateBranch(ctx context.Context, project *models.Project, branch, ref string) error {
	if f.createBranchErr != nil {
		return f.createBranchErr
	}
	f.createdBranches = append(f.createdBranches, project.Name+":"+branch+"<-"+ref)
	return nil
}

func (f *fakePlatform) ListMergeRequests(ctx context.Context, project *models.Project, sourceBranch string) ([]*models.MergeRequest, error) {
	if f.listMRErr != nil {
		return nil, f.listMRErr
	}
	return f.mrs[project.Name], nil
}

func (f *fakePlatform) CreateMergeRequest(ctx context.Context, project *models.Project, input models.MergeRequestInput) (*models.MergeRequest, error) {
	if f.createMRErr != nil {
		return nil, f.createMRErr
	}
	f.createdMRs = append(f.createdMRs, input)
	return &models.MergeRequest{ID: len(f.createdMRs), State: models.StateOpened, SourceBranch: input.SourceBranch}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Platform:            "gitlab",
		GitlabTargetFile:    targetFile,
		GitlabMRDescription: "Synchronised by volatile",
		TemplatePath:        "templates/.editorconfig",
		MergeRequest:        true,
		DryRun:              false,
	}
}

func testTemplate() *Template {
	return &Template{Path: "templates/.editorconfig", Signature: signature.FromContent(templateContent), Content: templateContent}
}

func newTestBot(t *testing.T, cfg *config.Config, platform *fakePlatform) (*Bot, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(metrics.Labels{Template: cfg.TemplatePath})
	b, err := NewBot(cfg, platform, m, testTemplate())
	require.NoError(t, err)
	return b, m
}

func gauge(t *testing.T, m *metrics.Metrics, outcome metrics.Outcome) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "volatile_projects_"+string(outcome) {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("gauge %s not found", outcome)
	return 0
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld"), 0o644))

	template, err := LoadTemplate(path)

	require.NoError(t, err)
	assert.Equal(t, &Template{Path: path, Signature: "helloworld", Content: "hello\nworld"}, template)
}

func TestNewBotRejectsInvalidPattern(t *testing.T) {
	cfg := testConfig()
	cfg.GitlabExclude = []string{"[unclosed"}

	_, err := NewBot(cfg, newFakePlatform(), metrics.New(metrics.Labels{}), testTemplate())

	assert.Error(t, err)
}

func TestRunConnectFailure(t *testing.T) {
	platform := newFakePlatform("alpha")
	platform.connectErr = errors.New("unable to connect on gitlab: 401")
	b, _ := newTestBot(t, testConfig(), platform)

	_, err := b.Run(context.Background())

	assert.EqualError(t, err, "unable to connect on gitlab: 401")
}

func TestRunListFailureEndsPass(t *testing.T) {
	platform := newFakePlatform("alpha")
	platform.listErr = errors.New("boom")
	b, m := newTestBot(t, testConfig(), platform)

	summary, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary[metrics.Total])
	assert.Equal(t, 0.0, gauge(t, m, metrics.Total))
	assert.Empty(t, platform.updates)
}

func TestRunExcludesProjects(t *testing.T) {
	cfg := testConfig()
	cfg.GitlabExclude = []string{"legacy-*", "sandbox"}
	platform := newFakePlatform("alpha", "legacy-api", "sandbox", "beta")
	platform.files["alpha"] = templateContent
	platform.files["beta"] = templateContent
	platform.files["legacy-api"] = "other"
	b, m := newTestBot(t, cfg, platform)

	summary, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary[metrics.Excluded])
	assert.Equal(t, 2, summary[metrics.Total])
	assert.Equal(t, 2, summary[metrics.Done])
	assert.Equal(t, 2.0, gauge(t, m, metrics.Excluded))
	assert.Equal(t, 2.0, gauge(t, m, metrics.Total))
}

func TestRunMissingAndDone(t *testing.T) {
	platform := newFakePlatform("alpha", "beta", "gamma")
	platform.files["alpha"] = "root = true\n\n[*]\n   indent_style=space\n"
	platform.fileErrs["gamma"] = errors.New("timeout")
	b, m := newTestBot(t, testConfig(), platform)

	summary, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary[metrics.Done])
	assert.Equal(t, 1, summary[metrics.Missing])
	assert.Equal(t, 1, summary[metrics.Failed])
	assert.Equal(t, 1.0, gauge(t, m, metrics.Missing))
	assert.Empty(t, platform.updates)
	assert.Empty(t, platform.createdMRs)
}

func TestRunPushesWithoutMergeRequest(t *testing.T) {
	cfg := testConfig()
	cfg.MergeRequest = false
	platform := newFakePlatform("alpha")
	platform.files["alpha"] = "root = true"
	b, m := newTestBot(t, cfg, platform)

	summary, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary[metrics.Pushed])
	assert.Equal(t, 1.0, gauge(t, m, metrics.Pushed))
	require.Len(t, platform.updates, 1)
	assert.Equal(t, update{
		project: "alpha",
		branch:  "main",
		content: "root = true\n" + templateContent,
		message: "Volatile update .editorconfig",
	}, platform.updates[0])
	assert.Empty(t, platform.createdBranches)
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	tests := []struct {
		name         string
		mergeRequest bool
		outcome      metrics.Outcome
	}{
		{name: "push", mergeRequest: false, outcome: metrics.Pushed},
		{name: "merge request", mergeRequest: true, outcome: metrics.Waiting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DryRun = true
			cfg.MergeRequest = tt.mergeRequest
			platform := newFakePlatform("alpha")
			platform.files["alpha"] = "root = true"
			b, _ := newTestBot(t, cfg, platform)

			summary, err := b.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, summary[tt.outcome])
			assert.Empty(t, platform.updates)
			assert.Empty(t, platform.deletedBranches)
			assert.Empty(t, platform.createdBranches)
			assert.Empty(t, platform.createdMRs)
		})
	}
}

func TestRunCreatesMergeRequest(t *testing.T) {
	platform := newFakePlatform("alpha")
	platform.files["alpha"] = "root = true"
	b, m := newTestBot(t, testConfig(), platform)
	branch := signature.BranchName(signature.FromContent(templateContent))

	summary, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary[metrics.Waiting])
	assert.Equal(t, 1.0, gauge(t, m, metrics.Waiting))
	assert.Equal(t, []string{branch}, platform.deletedBranches)
	assert.Equal(t, []string{"alpha:" + branch + "<-main"}, platform.createdBranches)
	require.Len(t, platform.updates, 1)
	assert.Equal(t, branch, platform.updates[0].branch)
	require.Len(t, platform.createdMRs, 1)
	assert.Equal(t, models.MergeRequestInput{
		Title:              "Volatile - new version of .editorconfig",
		Description:        "Synchronised by volatile",
		SourceBranch:       branch,
		TargetBranch:       "main",
		RemoveSourceBranch: true,
	}, platform.createdMRs[0])
}

func TestRunHonoursExistingMergeRequests(t *testing.T) {
	branch := signature.BranchName(signature.FromContent(templateContent))

	tests := []struct {
		name    string
		mrs     []*models.MergeRequest
		outcome metrics.Outcome
	}{
		{
			name:    "closed merge request opts out",
			mrs:     []*models.MergeRequest{{State: models.StateClosed, SourceBranch: branch}},
			outcome: metrics.Refused,
		},
		{
			name:    "opened merge request is waiting",
			mrs:     []*models.MergeRequest{{State: models.StateOpened, SourceBranch: branch}},
			outcome: metrics.Waiting,
		},
		{
			name: "closed wins over opened",
			mrs: []*models.MergeRequest{
				{State: models.StateOpened, SourceBranch: branch},
				{State: models.StateClosed, SourceBranch: branch},
			},
			outcome: metrics.Refused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := newFakePlatform("alpha")
			platform.files["alpha"] = "root = true"
			platform.mrs["alpha"] = tt.mrs
			b, _ := newTestBot(t, testConfig(), platform)

			summary, err := b.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, summary[tt.outcome])
			assert.Empty(t, platform.createdMRs)
			assert.Empty(t, platform.updates)
		})
	}
}

func TestRunIgnoresOtherTemplateVersions(t *testing.T) {
	platform := newFakePlatform("alpha")
	platform.files["alpha"] = "root = true"
	platform.mrs["alpha"] = []*models.MergeRequest{
		{State: models.StateClosed, SourceBranch: signature.BranchName("an older template")},
	}
	b, _ := newTestBot(t, testConfig(), platform)

	_, err := b.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, platform.createdMRs, 1)
}

func TestRunResetsGaugesBetweenPasses(t *testing.T) {
	platform := newFakePlatform("alpha")
	b, m := newTestBot(t, testConfig(), platform)

	_, err := b.Run(context.Background())
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, gauge(t, m, metrics.Missing))
	assert.Equal(t, 1.0, gauge(t, m, metrics.Total))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	platform := newFakePlatform("alpha", "beta")
	b, _ := newTestBot(t, testConfig(), platform)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCountsWriteFailures(t *testing.T) {
	denied := errors.New("403 Forbidden")

	tests := []struct {
		name         string
		mergeRequest bool
		setup        func(f *fakePlatform)
		branches     int
		updates      int
	}{
		{
			name:         "push",
			mergeRequest: false,
			setup:        func(f *fakePlatform) { f.updateErr = denied },
		},
		{
			name:         "list merge requests",
			mergeRequest: true,
			setup:        func(f *fakePlatform) { f.listMRErr = denied },
		},
		{
			name:         "create branch",
			mergeRequest: true,
			setup:        func(f *fakePlatform) { f.createBranchErr = denied },
		},
		{
			name:         "update file on branch",
			mergeRequest: true,
			setup:        func(f *fakePlatform) { f.updateErr = denied },
			branches:     1,
		},
		{
			name:         "create merge request",
			mergeRequest: true,
			setup:        func(f *fakePlatform) { f.createMRErr = denied },
			branches:     1,
			updates:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := newFakePlatform("alpha")
			platform.files["alpha"] = "root = true\n"
			tt.setup(platform)
			cfg := testConfig()
			cfg.MergeRequest = tt.mergeRequest
			b, m := newTestBot(t, cfg, platform)

			summary, err := b.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, summary[metrics.Total])
			assert.Equal(t, 1, summary[metrics.Failed])
			assert.Zero(t, summary[metrics.Pushed])
			assert.Zero(t, summary[metrics.Waiting])
			assert.Equal(t, float64(1), gauge(t, m, metrics.Failed))
			assert.Len(t, platform.createdBranches, tt.branches)
			assert.Len(t, platform.updates, tt.updates)
			assert.Empty(t, platform.createdMRs)
		})
	}
}
