// Package deployservice는 배포 생성/삭제와 push webhook 재빌드를 하나의 상태 머신으로 묶습니다.
package deployservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/keylock"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/metrics"
	"deploy-controller/internal/models"
	codebuildservice "deploy-controller/internal/services/codebuild_service"
	gitservice "deploy-controller/internal/services/git_service"
	githubservice "deploy-controller/internal/services/github_service"
	tf "deploy-controller/internal/services/terraform_service"
)

// User는 인증된 호출자입니다. ID는 GitHub 사용자 ID(문자열)입니다.
type User struct {
	ID    string
	Login string
}

type Deps struct {
	Catalog      Catalog
	Identities   Identities
	Source       Source
	Materializer Materializer
	Provisioner  Provisioner
	Builder      Builder
	Hooks        Hooks // nil이면 webhook 등록 생략
	Records      Records
	Locks        *keylock.Map
	Metrics      *metrics.Deploy

	Region        string
	WebhookURL    string
	WebhookSecret string
	// 생성/삭제/재빌드 한 번의 최대 시간. 0이면 제한 없음
	Timeout time.Duration
}

type DeployService struct {
	Deps
}

func NewDeployService(d Deps) *DeployService {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	return &DeployService{Deps: d}
}

// PushResult는 webhook 처리 결과입니다. Rebuilt가 false면 Reason에 무시한 이유가 담깁니다.
type PushResult struct {
	Rebuilt    bool
	Reason     string
	Deployment *models.Deployment
}

func (s *DeployService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// CreateDeploy는 검증 → 자격 증명 → clone → 템플릿 → 인프라 → 빌드 → 기록 순서로 진행합니다.
// 검증 이후의 실패는 failed 레코드로 남기고 에러를 반환합니다.
// 빌드 제출 실패는 치명적이지 않으며 codebuild_build_id 가 nil인 레코드를 반환합니다.
func (s *DeployService) CreateDeploy(ctx context.Context, req models.DeploymentRequest, token string, user User) (*models.Deployment, error) {
	const op = "deploy.create"

	if token == "" || user.ID == "" {
		s.Metrics.Attempt("rejected")
		return nil, errs.Errorf(errs.KindUnauthorized, op, "auth token and user id are required")
	}

	// 입력 검증은 어떤 네트워크/파일 시스템 작업보다 먼저
	cfg, err := s.resolve(req)
	if err != nil {
		s.Metrics.Attempt("rejected")
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	defer s.Metrics.Track()()

	ctx = logging.ContextWithFields(ctx, map[string]string{
		"owner":     cfg.Owner,
		"repo":      cfg.RepoName,
		"framework": cfg.Framework.Name,
		"user_id":   user.ID,
	})

	a := s.newAttempt(ctx, cfg, user)
	a.log.Info().Str("branch", cfg.Branch).Msg("deploy received")

	// 같은 저장소의 이전 배포를 기다리다 제한 시간이 지나도 failed 레코드를 남김
	unlock, err := s.Locks.Lock(ctx, models.PairKey(cfg.Owner, cfg.RepoName))
	if err != nil {
		return nil, a.fail(ctx, errs.E(errs.KindConflict, op, err))
	}
	defer unlock()

	identity, err := s.Identities.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.advance(models.StageIdentityReady)

	wd, err := s.Source.Clone(ctx, cfg.Owner, cfg.RepoName, cfg.Branch, token)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	absPath := filepath.Join(wd.Path, cfg.RootFolderPath)
	a.record.AbsolutePath = absPath
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		return nil, a.fail(ctx, errs.Errorf(errs.KindAcquisition, op, "root folder %q not found in %s/%s", cfg.RootFolderPath, cfg.Owner, cfg.RepoName))
	}
	a.advance(models.StageCloned)

	pipelinePath, err := s.Materializer.Materialize(ctx, cfg.Framework, absPath, cfg.EnvironmentVariables)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.record.PipelinePath = pipelinePath
	a.advance(models.StageMaterialized)

	res, err := s.Provisioner.Provision(ctx, absPath, tf.ProvisionInput{
		OwnerID:       user.ID,
		AccessKey:     identity.CloudAccessKey,
		SecretKey:     identity.CloudSecretKey,
		Owner:         cfg.Owner,
		RepoName:      cfg.RepoName,
		ContainerPort: cfg.Port,
		Region:        s.Region,
		Branch:        cfg.Branch,
	})
	if res != nil {
		a.record.LoadBalancerURL = res.LoadBalancerURL
		a.record.EcrRepoURL = res.EcrRepoURL
		if a.record.EcrRepoURL == "" {
			// 일부 출력만 있는 경우 정리 작업용으로 남김
			a.record.EcrRepoURL, _ = res.Outputs[tf.OutputEcrRepoURL].String()
		}
	}
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.advance(models.StageProvisioned)

	a.record.ImageTag = imageTag(wd)
	if id, err := s.startBuild(ctx, a.record, identity); err != nil {
		a.log.Warn().Err(err).Msg("build submission failed, recording deployment without build id")
	} else {
		a.record.CodeBuildBuildID = &id
		a.advance(models.StageBuildStarted)
	}

	a.record.WebhookID = s.registerWebhook(ctx, token, cfg)

	a.record.Status = models.DeploymentStatusPending
	a.advance(models.StageRecorded)
	if err := s.Records.Create(context.WithoutCancel(ctx), a.record); err != nil {
		a.log.Error().Err(err).Msg("failed to persist deployment record")
		s.Metrics.Attempt("failed")
		return nil, errs.E(errs.KindInternal, op, err)
	}

	s.Metrics.Attempt("created")
	a.log.Info().Str("load_balancer_url", a.record.LoadBalancerURL).Msg("deploy recorded")
	return a.record, nil
}

func (s *DeployService) resolve(req models.DeploymentRequest) (models.DeployConfig, error) {
	const op = "deploy.resolve"
	// framework 이름이 곧 경로/키로 쓰이기 전에 owner/repo 부터 확인
	if err := models.ValidateIdentifier("owner", req.Owner); err != nil {
		return models.DeployConfig{}, err
	}
	if err := models.ValidateIdentifier("repo_name", req.RepoName); err != nil {
		return models.DeployConfig{}, err
	}

	fw, err := s.Catalog.Resolve(req.Framework)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return models.DeployConfig{}, errs.E(errs.KindValidation, op, err)
		}
		return models.DeployConfig{}, err
	}
	return models.ResolveConfig(req, fw)
}

func (s *DeployService) startBuild(ctx context.Context, rec *models.Deployment, identity *models.TenantIdentity) (string, error) {
	buildspec, err := codebuildservice.LoadBuildspec(rec.AbsolutePath)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("buildspec unreadable, using project default")
		buildspec = ""
	}

	params := codebuildservice.BuildParams{
		EcrRepoURL:    rec.EcrRepoURL,
		SourceVersion: rec.Branch,
		Buildspec:     buildspec,
		Port:          rec.Port,
		EntryPoint:    rec.EntryPoint,
		ImageTag:      rec.ImageTag,
		Owner:         rec.Owner,
		RepoName:      rec.RepoName,
		LocalPath:     rec.AbsolutePath,
		Region:        s.Region,
	}
	if identity != nil {
		params.AccountID = identity.CloudAccountID
	}

	id, err := s.Builder.StartBuild(ctx, params)
	if err != nil {
		s.Metrics.BuildTrigger("failed")
		return "", err
	}
	s.Metrics.BuildTrigger("started")
	return id, nil
}

// registerWebhook은 이전 레코드의 hook id가 있으면 재사용합니다. 실패해도 배포는 계속됩니다.
func (s *DeployService) registerWebhook(ctx context.Context, token string, cfg models.DeployConfig) string {
	log := logging.Ctx(ctx)
	if prev, err := s.Records.Get(ctx, cfg.Owner, cfg.RepoName); err == nil && prev.WebhookID != "" {
		return prev.WebhookID
	}
	if s.Hooks == nil || s.WebhookURL == "" {
		return ""
	}

	id, err := s.Hooks.CreateHook(ctx, token, cfg.Owner, cfg.RepoName, githubservice.HookConfig{
		URL:    s.WebhookURL,
		Secret: s.WebhookSecret,
	})
	if err != nil {
		log.Warn().Err(err).Msg("webhook registration failed")
		return ""
	}
	log.Info().Int64("hook_id", id).Msg("push webhook registered")
	return strconv.FormatInt(id, 10)
}

// DestroyDeploy는 최신 레코드의 인프라 모듈로 terraform destroy를 실행합니다. 레코드는 지우지 않습니다.
func (s *DeployService) DestroyDeploy(ctx context.Context, owner, repoName string) (*models.Deployment, error) {
	const op = "deploy.destroy"
	if err := validatePair(owner, repoName); err != nil {
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ctx = logging.ContextWithFields(ctx, map[string]string{"owner": owner, "repo": repoName})

	unlock, err := s.Locks.Lock(ctx, models.PairKey(owner, repoName))
	if err != nil {
		return nil, errs.E(errs.KindConflict, op, err)
	}
	defer unlock()

	rec, err := s.Records.Get(ctx, owner, repoName)
	if err != nil {
		return nil, err
	}
	if rec.AbsolutePath == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "deployment %s/%s has no absolute_path", owner, repoName)
	}

	identity, err := s.Identities.Get(ctx, rec.OwnerID)
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("dir", rec.AbsolutePath).Msg("destroying deployment infrastructure")
	err = s.Provisioner.Destroy(ctx, rec.AbsolutePath, tf.ProvisionInput{
		OwnerID:       rec.OwnerID,
		AccessKey:     identity.CloudAccessKey,
		SecretKey:     identity.CloudSecretKey,
		Owner:         rec.Owner,
		RepoName:      rec.RepoName,
		ContainerPort: rec.Port,
		Region:        s.Region,
		Branch:        rec.Branch,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetDeploy는 (owner, repo)의 최신 레코드를 반환합니다.
func (s *DeployService) GetDeploy(ctx context.Context, owner, repoName string) (*models.Deployment, error) {
	if err := validatePair(owner, repoName); err != nil {
		return nil, err
	}
	return s.Records.Get(ctx, owner, repoName)
}

func (s *DeployService) ListForOwner(ctx context.Context, owner string) ([]models.Deployment, error) {
	if err := models.ValidateIdentifier("owner", owner); err != nil {
		return nil, err
	}
	return s.Records.ListForOwner(ctx, owner)
}

// HandlePush는 push 이벤트로 pull 후 빌드만 다시 실행합니다. 인프라는 건드리지 않습니다.
// 재빌드가 성공하면 이전 레코드를 바탕으로 새 레코드를 추가합니다.
func (s *DeployService) HandlePush(ctx context.Context, ev *models.PushEvent) (*PushResult, error) {
	const op = "deploy.webhook"
	owner, repoName := ev.OwnerLogin(), ev.Repository.Name
	if err := validatePair(owner, repoName); err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ctx = logging.ContextWithFields(ctx, map[string]string{"owner": owner, "repo": repoName})
	log := logging.Ctx(ctx)

	unlock, err := s.Locks.Lock(ctx, models.PairKey(owner, repoName))
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, errs.E(errs.KindConflict, op, err)
	}
	defer unlock()

	prev, err := s.Records.Get(ctx, owner, repoName)
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}

	if branch := ev.Branch(); branch == "" || branch != prev.Branch {
		s.Metrics.Webhook("ignored")
		log.Info().Str("ref", ev.Ref).Str("deploy_branch", prev.Branch).Msg("push ignored: branch does not match deployment")
		return &PushResult{Reason: "ref " + ev.Ref + " is not the deployed branch"}, nil
	}

	if missing := missingRebuildFields(prev); len(missing) > 0 {
		s.Metrics.Webhook("failed")
		return nil, errs.Errorf(errs.KindValidation, op, "deployment %s/%s is missing %s; redeploy required", owner, repoName, strings.Join(missing, ", "))
	}

	// 오래된 트리로 빌드하지 않도록 pull 실패는 치명적
	wd, err := s.Source.Pull(ctx, owner, repoName, "")
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}

	identity, err := s.Identities.Get(ctx, prev.OwnerID)
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}

	next := rebuildRecord(prev)
	next.ImageTag = imageTag(wd)
	id, err := s.startBuild(ctx, next, identity)
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}
	next.CodeBuildBuildID = &id

	if err := s.Records.Create(context.WithoutCancel(ctx), next); err != nil {
		// 빌드는 이미 제출됨
		log.Error().Err(err).Str("build_id", id).Msg("failed to persist rebuild record")
	}

	s.Metrics.Webhook("rebuilt")
	log.Info().Str("build_id", id).Str("image_tag", next.ImageTag).Msg("rebuild triggered by push")
	return &PushResult{Rebuilt: true, Deployment: next}, nil
}

func missingRebuildFields(d *models.Deployment) []string {
	var missing []string
	if d.EcrRepoURL == "" {
		missing = append(missing, "ecr_repo_url")
	}
	if d.Port == 0 {
		missing = append(missing, "port")
	}
	if d.EntryPoint == "" {
		missing = append(missing, "entry_point")
	}
	if d.AbsolutePath == "" {
		missing = append(missing, "absolute_path")
	}
	return missing
}

func rebuildRecord(prev *models.Deployment) *models.Deployment {
	next := *prev
	next.Model = models.Deployment{}.Model
	next.CodeBuildBuildID = nil
	next.Status = models.DeploymentStatusPending
	next.Stage = models.StageRecorded
	next.FailureReason = ""
	return &next
}

func validatePair(owner, repoName string) error {
	if err := models.ValidateIdentifier("owner", owner); err != nil {
		return err
	}
	return models.ValidateIdentifier("repo_name", repoName)
}

func imageTag(wd *gitservice.WorkingDirectory) string {
	if wd != nil {
		if c := wd.ShortCommit(); c != "" {
			return c
		}
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// attempt는 한 번의 CreateDeploy 진행 상황입니다.
type attempt struct {
	svc    *DeployService
	log    *zerolog.Logger
	record *models.Deployment
	stage  models.DeployStage
	mark   time.Time
}

func (s *DeployService) newAttempt(ctx context.Context, cfg models.DeployConfig, user User) *attempt {
	return &attempt{
		svc: s,
		log: logging.Ctx(ctx),
		record: &models.Deployment{
			OwnerID:              user.ID,
			Owner:                cfg.Owner,
			RepoName:             cfg.RepoName,
			Branch:               cfg.Branch,
			Framework:            cfg.Framework.Name,
			RootFolderPath:       cfg.RootFolderPath,
			BuildCommand:         cfg.BuildCommand,
			RunCommand:           cfg.RunCommand,
			Port:                 cfg.Port,
			EntryPoint:           cfg.EntryPoint,
			EnvironmentVariables: cfg.EnvironmentVariables,
			Status:               models.DeploymentStatusPending,
			Stage:                models.StageReceived,
		},
		stage: models.StageReceived,
		mark:  time.Now(),
	}
}

func (a *attempt) advance(to models.DeployStage) {
	if !models.CanAdvance(a.stage, to) {
		a.log.Error().Str("from", string(a.stage)).Str("to", string(to)).Msg("invalid deploy state transition")
		return
	}
	a.svc.Metrics.ObserveStage(string(to), a.mark)
	a.log.Info().Str("from", string(a.stage)).Str("to", string(to)).Msg("deploy state changed")
	a.stage = to
	a.record.Stage = to
	a.mark = time.Now()
}

// fail은 마지막으로 도달한 stage와 부분 출력을 담은 failed 레코드를 저장합니다.
func (a *attempt) fail(ctx context.Context, cause error) error {
	a.record.Status = models.DeploymentStatusFailed
	a.record.FailureReason = cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.record.FailureReason = "timed out: " + a.record.FailureReason
	}

	a.log.Error().Err(cause).Str("stage", string(a.stage)).Msg("deploy failed")
	if err := a.svc.Records.Create(context.WithoutCancel(ctx), a.record); err != nil {
		a.log.Error().Err(err).Msg("failed to persist failed deployment record")
	}
	a.svc.Metrics.Attempt("failed")
	return cause
}
