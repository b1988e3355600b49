package deployservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/metrics"
	"deploy-controller/internal/models"
	codebuildservice "deploy-controller/internal/services/codebuild_service"
	frameworkservice "deploy-controller/internal/services/framework_service"
	gitservice "deploy-controller/internal/services/git_service"
	githubservice "deploy-controller/internal/services/github_service"
	pipelineservice "deploy-controller/internal/services/pipeline_service"
	tf "deploy-controller/internal/services/terraform_service"
)

const commit = "abcdef1234567890abcdef1234567890abcdef12"

type fakeIdentities struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeIdentities) identity(ownerID string) *models.TenantIdentity {
	return &models.TenantIdentity{
		OwnerID:        ownerID,
		CloudAccessKey: "AKIA" + ownerID,
		CloudSecretKey: "secret-" + ownerID,
		CloudAccountID: "123456789012",
		RoleARN:        "arn:aws:iam::123456789012:role/paas-" + ownerID,
		Group:          models.DefaultIdentityGroup,
	}
}

func (f *fakeIdentities) GetOrCreate(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.identity(ownerID), nil
}

func (f *fakeIdentities) Get(ctx context.Context, ownerID string) (*models.TenantIdentity, error) {
	return f.identity(ownerID), nil
}

type fakeSource struct {
	mu      sync.Mutex
	baseDir string
	clones  int
	pulls   int
	pullErr error
}

func (f *fakeSource) Clone(ctx context.Context, owner, repo, branch, token string) (*gitservice.WorkingDirectory, error) {
	f.mu.Lock()
	f.clones++
	f.mu.Unlock()
	dir := filepath.Join(f.baseDir, owner, repo)
	if err := os.MkdirAll(filepath.Join(dir, "api"), 0o755); err != nil {
		return nil, err
	}
	return &gitservice.WorkingDirectory{Path: dir, Commit: commit}, nil
}

func (f *fakeSource) Pull(ctx context.Context, owner, repo, token string) (*gitservice.WorkingDirectory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &gitservice.WorkingDirectory{Path: filepath.Join(f.baseDir, owner, repo), Commit: "99887766554433221100"}, nil
}

type fakeProvisioner struct {
	mu        sync.Mutex
	provs     int
	destroys  int
	inputs    []tf.ProvisionInput
	dirs      []string
	result    *tf.ProvisionResult
	err       error
	delay     time.Duration
	block     bool // ctx가 끝날 때까지 대기 (terraform이 멈춘 경우)
	active    int
	maxActive int
}

func (f *fakeProvisioner) Provision(ctx context.Context, dir string, in tf.ProvisionInput) (*tf.ProvisionResult, error) {
	f.mu.Lock()
	f.provs++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.inputs = append(f.inputs, in)
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	time.Sleep(f.delay)
	if f.block {
		<-ctx.Done()
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	if f.block {
		return nil, errs.E(errs.KindProvisioning, "terraform.provision", ctx.Err())
	}
	if f.result == nil && f.err == nil {
		return &tf.ProvisionResult{
			LoadBalancerURL: "http://alb-1.ap-northeast-2.elb.amazonaws.com",
			EcrRepoURL:      "123456789012.dkr.ecr.ap-northeast-2.amazonaws.com/" + in.Owner + "-" + in.RepoName,
		}, nil
	}
	return f.result, f.err
}

func (f *fakeProvisioner) Destroy(ctx context.Context, dir string, in tf.ProvisionInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	f.dirs = append(f.dirs, dir)
	f.inputs = append(f.inputs, in)
	return f.err
}

type fakeBuilder struct {
	mu     sync.Mutex
	calls  int
	params []codebuildservice.BuildParams
	err    error
}

func (f *fakeBuilder) StartBuild(ctx context.Context, p codebuildservice.BuildParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, p)
	if f.err != nil {
		return "", f.err
	}
	return "paas-app-builder:build-1", nil
}

type fakeHooks struct {
	calls int
	err   error
}

func (f *fakeHooks) CreateHook(ctx context.Context, token, owner, repo string, hook githubservice.HookConfig) (int64, error) {
	f.calls++
	return 555, f.err
}

type memRecords struct {
	mu   sync.Mutex
	rows []models.Deployment
}

func (m *memRecords) Create(ctx context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uint(len(m.rows) + 1)
	d.CreatedAt = time.Now()
	m.rows = append(m.rows, *d)
	return nil
}

func (m *memRecords) Get(ctx context.Context, owner, repo string) (*models.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].Owner == owner && m.rows[i].RepoName == repo {
			d := m.rows[i]
			return &d, nil
		}
	}
	return nil, errs.Errorf(errs.KindNotFound, "get", "no deployment for %s/%s", owner, repo)
}

func (m *memRecords) ListForOwner(ctx context.Context, owner string) ([]models.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deployment
	for _, d := range m.rows {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type harness struct {
	svc        *DeployService
	identities *fakeIdentities
	source     *fakeSource
	prov       *fakeProvisioner
	builder    *fakeBuilder
	hooks      *fakeHooks
	records    *memRecords
	metrics    *metrics.Deploy
}

func (h *harness) sideEffects() int {
	return h.identities.calls + h.source.clones + h.source.pulls + h.prov.provs + h.prov.destroys + h.builder.calls + h.hooks.calls
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := frameworkservice.Load("../../../configs/frameworks.yaml")
	require.NoError(t, err)

	templates := t.TempDir()
	for _, fw := range []string{"FastAPI", "Flask"} {
		write(t, filepath.Join(templates, "backend", fw, "Dockerfile"), "FROM python:3.12-slim\n")
		write(t, filepath.Join(templates, "backend", fw, "buildspec.yml"), "version: 0.2\n")
	}
	common := t.TempDir()
	write(t, filepath.Join(common, "main.tf"), "# ecs + alb + ecr\n")

	h := &harness{
		identities: &fakeIdentities{},
		source:     &fakeSource{baseDir: t.TempDir()},
		prov:       &fakeProvisioner{},
		builder:    &fakeBuilder{},
		hooks:      &fakeHooks{},
		records:    &memRecords{},
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	h.svc = NewDeployService(Deps{
		Catalog:      catalog,
		Identities:   h.identities,
		Source:       h.source,
		Materializer: pipelineservice.NewPipelineService(templates, common),
		Provisioner:  h.prov,
		Builder:      h.builder,
		Hooks:        h.hooks,
		Records:      h.records,
		Metrics:      h.metrics,
		Region:       "ap-northeast-2",
		WebhookURL:   "https://paas.example.com/api/webhook",
		Timeout:      time.Minute,
	})
	return h
}

var alice = User{ID: "1001", Login: "alice"}

func fastapiRequest() models.DeploymentRequest {
	return models.DeploymentRequest{
		Owner:          "alice",
		RepoName:       "myapp",
		Branch:         "main",
		Framework:      "fastapi",
		RootFolderPath: "/",
	}
}

func TestCreateDeploy_EndToEnd(t *testing.T) {
	h := newHarness(t)

	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "gho_token", alice)
	require.NoError(t, err)

	assert.Equal(t, 1, h.identities.calls)
	assert.Equal(t, 1, h.source.clones)
	assert.Equal(t, 1, h.prov.provs)
	assert.Equal(t, 1, h.builder.calls)

	cloneDir := filepath.Join(h.source.baseDir, "alice", "myapp")
	assert.FileExists(t, filepath.Join(cloneDir, "Dockerfile"))
	assert.FileExists(t, filepath.Join(tf.ModuleDir(cloneDir), "main.tf"))

	in := h.prov.inputs[0]
	assert.Equal(t, 8000, in.ContainerPort)
	assert.Equal(t, "1001", in.OwnerID)
	assert.Equal(t, "AKIA1001", in.AccessKey)
	assert.Equal(t, "main", in.Branch)
	assert.Equal(t, cloneDir, h.prov.dirs[0])

	p := h.builder.params[0]
	assert.Equal(t, "main.py", p.EntryPoint)
	assert.Equal(t, 8000, p.Port)
	assert.Equal(t, "version: 0.2\n", p.Buildspec)
	assert.Equal(t, "abcdef123456", p.ImageTag)
	assert.Equal(t, "123456789012", p.AccountID)

	assert.Equal(t, models.DeploymentStatusPending, rec.Status)
	assert.Equal(t, models.StageRecorded, rec.Stage)
	assert.NotEmpty(t, rec.LoadBalancerURL)
	require.NotNil(t, rec.CodeBuildBuildID)
	assert.Equal(t, "paas-app-builder:build-1", *rec.CodeBuildBuildID)
	assert.Equal(t, "555", rec.WebhookID)
	assert.Equal(t, "main.py", rec.EntryPoint)
	assert.Equal(t, "uvicorn main:app --host 0.0.0.0 --port 8000", rec.RunCommand)

	stored, err := h.records.Get(context.Background(), "alice", "myapp")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("created")))
}

func TestCreateDeploy_RejectsInvalidInputBeforeSideEffects(t *testing.T) {
	bad := func(mut func(*models.DeploymentRequest)) models.DeploymentRequest {
		r := fastapiRequest()
		mut(&r)
		return r
	}
	cases := map[string]models.DeploymentRequest{
		"owner traversal":     bad(func(r *models.DeploymentRequest) { r.Owner = "../etc" }),
		"owner dotdot":        bad(func(r *models.DeploymentRequest) { r.Owner = ".." }),
		"owner slash":         bad(func(r *models.DeploymentRequest) { r.Owner = "alice/evil" }),
		"repo shell":          bad(func(r *models.DeploymentRequest) { r.RepoName = "myapp;rm -rf /" }),
		"repo subshell":       bad(func(r *models.DeploymentRequest) { r.RepoName = "$(id)" }),
		"repo space":          bad(func(r *models.DeploymentRequest) { r.RepoName = "my app" }),
		"repo embedded dots":  bad(func(r *models.DeploymentRequest) { r.RepoName = "a..b" }),
		"unknown framework":   bad(func(r *models.DeploymentRequest) { r.Framework = "rails" }),
		"framework symbols":   bad(func(r *models.DeploymentRequest) { r.Framework = "../fastapi" }),
		"root traversal":      bad(func(r *models.DeploymentRequest) { r.RootFolderPath = "/api/../../etc" }),
		"command injection":   bad(func(r *models.DeploymentRequest) { c := "pip install; curl x | sh"; r.BuildCommand = &c }),
		"run cmd backticks":   bad(func(r *models.DeploymentRequest) { c := "python `whoami`"; r.RunCommand = &c }),
		"port out of range":   bad(func(r *models.DeploymentRequest) { p := 70000; r.Port = &p }),
		"env key with spaces": bad(func(r *models.DeploymentRequest) { r.EnvironmentVariables = models.EnvVars{{Key: "A B", Value: "1"}} }),
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.CreateDeploy(context.Background(), req, "gho_token", alice)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Zero(t, h.sideEffects())
			assert.Empty(t, h.records.rows)

			entries, err := os.ReadDir(h.source.baseDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCreateDeploy_RequiresTokenAndUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "", alice)
	assert.True(t, errs.Is(err, errs.KindUnauthorized))
	_, err = h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", User{})
	assert.True(t, errs.Is(err, errs.KindUnauthorized))
	assert.Zero(t, h.sideEffects())
}

func TestCreateDeploy_FrameworkDefaultsAndOverrides(t *testing.T) {
	h := newHarness(t)
	req := fastapiRequest()
	req.Framework = "Flask"

	rec, err := h.svc.CreateDeploy(context.Background(), req, "tok", alice)
	require.NoError(t, err)
	assert.Equal(t, "pip install -r requirements.txt", rec.BuildCommand)
	assert.Equal(t, "python app.py", rec.RunCommand)
	assert.Equal(t, 5000, rec.Port)
	assert.Equal(t, "app.py", rec.EntryPoint)

	port := 8080
	req.Port = &port
	rec, err = h.svc.CreateDeploy(context.Background(), req, "tok", alice)
	require.NoError(t, err)
	assert.Equal(t, 8080, rec.Port)
	assert.Equal(t, 8080, h.prov.inputs[1].ContainerPort)
	assert.Equal(t, 8080, h.builder.params[1].Port)
}

func TestCreateDeploy_BuildFailureStillRecords(t *testing.T) {
	h := newHarness(t)
	h.builder.err = errs.Errorf(errs.KindBuildTrigger, "codebuild.start_build", "ResourceNotFoundException")

	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.CodeBuildBuildID)
	assert.Equal(t, models.DeploymentStatusPending, rec.Status)
	assert.Equal(t, models.StageRecorded, rec.Stage)
	require.Len(t, h.records.rows, 1)
	assert.Nil(t, h.records.rows[0].CodeBuildBuildID)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.BuildTriggers.WithLabelValues("failed")))
}

func TestCreateDeploy_ProvisionFailureRecordsPartialOutputs(t *testing.T) {
	h := newHarness(t)
	h.prov.result = &tf.ProvisionResult{Outputs: tf.Outputs{
		tf.OutputEcrRepoURL: {Value: []byte(`"123.dkr.ecr.ap-northeast-2.amazonaws.com/alice-myapp"`)},
	}}
	h.prov.err = errs.E(errs.KindProvisioning, "terraform.provision", errs.NewMissingOutputError([]string{tf.OutputLoadBalancerDNS}))

	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errs.Is(err, errs.KindProvisioning))
	assert.Zero(t, h.builder.calls)

	require.Len(t, h.records.rows, 1)
	failed := h.records.rows[0]
	assert.Equal(t, models.DeploymentStatusFailed, failed.Status)
	assert.Equal(t, models.StageMaterialized, failed.Stage)
	assert.Contains(t, failed.FailureReason, "load_balancer_dns")
	assert.Equal(t, "123.dkr.ecr.ap-northeast-2.amazonaws.com/alice-myapp", failed.EcrRepoURL)
	assert.NotEmpty(t, failed.AbsolutePath)
}

func TestCreateDeploy_TimeoutRecordsFailed(t *testing.T) {
	h := newHarness(t)
	h.svc.Timeout = 50 * time.Millisecond
	h.prov.block = true

	start := time.Now()
	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, h.builder.calls)

	require.Len(t, h.records.rows, 1)
	failed := h.records.rows[0]
	assert.Equal(t, models.DeploymentStatusFailed, failed.Status)
	assert.Equal(t, models.StageMaterialized, failed.Stage)
	assert.True(t, strings.HasPrefix(failed.FailureReason, "timed out: "), failed.FailureReason)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("failed")))
}

func TestCreateDeploy_LockWaitTimeoutRecordsFailed(t *testing.T) {
	h := newHarness(t)
	h.svc.Timeout = 50 * time.Millisecond

	// 같은 저장소에 다른 배포가 진행 중
	unlock, err := h.svc.Locks.Lock(context.Background(), models.PairKey("alice", "myapp"))
	require.NoError(t, err)
	defer unlock()

	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errs.Is(err, errs.KindConflict))
	assert.Zero(t, h.sideEffects())

	require.Len(t, h.records.rows, 1)
	failed := h.records.rows[0]
	assert.Equal(t, models.DeploymentStatusFailed, failed.Status)
	assert.Equal(t, models.StageReceived, failed.Stage)
	assert.True(t, strings.HasPrefix(failed.FailureReason, "timed out: "), failed.FailureReason)
}

func TestCreateDeploy_IdentityFailureAbortsEarly(t *testing.T) {
	h := newHarness(t)
	h.identities.err = errs.Errorf(errs.KindProvisioning, "credential.provision", "terraform apply failed")

	_, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	assert.True(t, errs.Is(err, errs.KindProvisioning))
	assert.Zero(t, h.source.clones)
	require.Len(t, h.records.rows, 1)
	assert.Equal(t, models.StageReceived, h.records.rows[0].Stage)
}

func TestCreateDeploy_MissingRootFolder(t *testing.T) {
	h := newHarness(t)
	req := fastapiRequest()
	req.RootFolderPath = "/services/web"

	_, err := h.svc.CreateDeploy(context.Background(), req, "tok", alice)
	assert.True(t, errs.Is(err, errs.KindAcquisition))
	assert.Zero(t, h.prov.provs)

	req.RootFolderPath = "/api"
	rec, err := h.svc.CreateDeploy(context.Background(), req, "tok", alice)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.source.baseDir, "alice", "myapp", "api"), rec.AbsolutePath)
}

func TestCreateDeploy_ReusesWebhook(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.NoError(t, err)
	second, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.NoError(t, err)

	assert.Equal(t, 1, h.hooks.calls)
	assert.Equal(t, "555", second.WebhookID)
	assert.Len(t, h.records.rows, 2)
}

func TestCreateDeploy_WebhookFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.hooks.err = errors.New("github: forbidden")

	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.NoError(t, err)
	assert.Empty(t, rec.WebhookID)
}

func TestCreateDeploy_SerializesSamePair(t *testing.T) {
	h := newHarness(t)
	h.prov.delay = 30 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, h.prov.provs)
	assert.Equal(t, 1, h.prov.maxActive)
}

func seedRecord(t *testing.T, h *harness) *models.Deployment {
	t.Helper()
	rec, err := h.svc.CreateDeploy(context.Background(), fastapiRequest(), "tok", alice)
	require.NoError(t, err)
	h.source.clones, h.prov.provs, h.builder.calls = 0, 0, 0
	h.builder.params = nil
	return rec
}

func pushEvent(ref string) *models.PushEvent {
	ev := &models.PushEvent{Ref: ref}
	ev.Repository.Name = "myapp"
	ev.Repository.Owner.Login = "alice"
	return ev
}

func TestHandlePush_RebuildsWithoutProvisioning(t *testing.T) {
	h := newHarness(t)
	prev := seedRecord(t, h)

	res, err := h.svc.HandlePush(context.Background(), pushEvent("refs/heads/main"))
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)

	assert.Equal(t, 1, h.source.pulls)
	assert.Equal(t, 1, h.builder.calls)
	assert.Zero(t, h.prov.provs)
	assert.Zero(t, h.source.clones)

	p := h.builder.params[0]
	assert.Equal(t, prev.EcrRepoURL, p.EcrRepoURL)
	assert.Equal(t, prev.AbsolutePath, p.LocalPath)
	assert.Equal(t, 8000, p.Port)
	assert.Equal(t, "main.py", p.EntryPoint)
	assert.Equal(t, "998877665544", p.ImageTag)

	latest, err := h.records.Get(context.Background(), "alice", "myapp")
	require.NoError(t, err)
	assert.NotEqual(t, prev.ID, latest.ID)
	assert.Equal(t, "998877665544", latest.ImageTag)
	assert.Equal(t, prev.WebhookID, latest.WebhookID)
}

func TestHandlePush_IgnoresOtherBranches(t *testing.T) {
	h := newHarness(t)
	seedRecord(t, h)

	for _, ref := range []string{"refs/heads/feature", "refs/tags/v1.0.0"} {
		res, err := h.svc.HandlePush(context.Background(), pushEvent(ref))
		require.NoError(t, err)
		assert.False(t, res.Rebuilt)
		assert.NotEmpty(t, res.Reason)
	}
	assert.Zero(t, h.source.pulls)
	assert.Zero(t, h.builder.calls)
}

func TestHandlePush_MissingRecordFields(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.records.Create(context.Background(), &models.Deployment{
		Owner: "alice", RepoName: "myapp", Branch: "main", Port: 8000, Status: models.DeploymentStatusFailed,
	}))

	_, err := h.svc.HandlePush(context.Background(), pushEvent("refs/heads/main"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Contains(t, err.Error(), "ecr_repo_url")
	assert.Contains(t, err.Error(), "absolute_path")
	assert.Zero(t, h.source.pulls)
}

func TestHandlePush_PullFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	seedRecord(t, h)
	h.source.pullErr = errs.E(errs.KindAcquisition, "git.pull", errs.ErrNotCloned)

	_, err := h.svc.HandlePush(context.Background(), pushEvent("refs/heads/main"))
	assert.ErrorIs(t, err, errs.ErrNotCloned)
	assert.Zero(t, h.builder.calls)
}

func TestHandlePush_UnknownRepository(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandlePush(context.Background(), pushEvent("refs/heads/main"))
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestDestroyDeploy(t *testing.T) {
	h := newHarness(t)
	prev := seedRecord(t, h)

	rec, err := h.svc.DestroyDeploy(context.Background(), "alice", "myapp")
	require.NoError(t, err)
	assert.Equal(t, prev.ID, rec.ID)
	assert.Equal(t, 1, h.prov.destroys)
	assert.Equal(t, prev.AbsolutePath, h.prov.dirs[len(h.prov.dirs)-1])
	in := h.prov.inputs[len(h.prov.inputs)-1]
	assert.Equal(t, "AKIA1001", in.AccessKey)
	assert.Equal(t, 8000, in.ContainerPort)

	_, err = h.svc.DestroyDeploy(context.Background(), "alice", "other")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = h.svc.DestroyDeploy(context.Background(), "alice", "../x")
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestListForOwner(t *testing.T) {
	h := newHarness(t)
	seedRecord(t, h)
	seedRecord(t, h)

	list, err := h.svc.ListForOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Greater(t, list[0].ID, list[1].ID)
}
