package deployservice

import (
	"context"

	"deploy-controller/internal/models"
	codebuildservice "deploy-controller/internal/services/codebuild_service"
	gitservice "deploy-controller/internal/services/git_service"
	githubservice "deploy-controller/internal/services/github_service"
	tf "deploy-controller/internal/services/terraform_service"
)

// 오케스트레이터가 사용하는 협력자들. 구현은 각 *_service 패키지에 있습니다.

type Catalog interface {
	Resolve(name string) (models.FrameworkDescriptor, error)
}

type Identities interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.TenantIdentity, error)
	Get(ctx context.Context, ownerID string) (*models.TenantIdentity, error)
}

type Source interface {
	Clone(ctx context.Context, owner, repo, branch, token string) (*gitservice.WorkingDirectory, error)
	Pull(ctx context.Context, owner, repo, token string) (*gitservice.WorkingDirectory, error)
}

type Materializer interface {
	Materialize(ctx context.Context, fw models.FrameworkDescriptor, deploymentDir string, env models.EnvVars) (string, error)
}

type Provisioner interface {
	Provision(ctx context.Context, deploymentDir string, in tf.ProvisionInput) (*tf.ProvisionResult, error)
	Destroy(ctx context.Context, deploymentDir string, in tf.ProvisionInput) error
}

type Builder interface {
	StartBuild(ctx context.Context, p codebuildservice.BuildParams) (string, error)
}

type Hooks interface {
	CreateHook(ctx context.Context, token, owner, repo string, hook githubservice.HookConfig) (int64, error)
}

type Records interface {
	Create(ctx context.Context, d *models.Deployment) error
	Get(ctx context.Context, owner, repoName string) (*models.Deployment, error)
	ListForOwner(ctx context.Context, owner string) ([]models.Deployment, error)
}
