// Package codebuildservice는 AWS CodeBuild 빌드를 시작합니다. 빌드 상태 조회는 하지 않습니다.
package codebuildservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/logging"
)

// BuildspecFile은 배포 디렉토리 안의 관례적 buildspec 경로입니다.
const BuildspecFile = "buildspec.yml"

// API는 codebuild.Client 중 사용하는 부분입니다.
type API interface {
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
}

// BuildParams는 빌드 컨테이너에 환경 변수로 전달됩니다.
type BuildParams struct {
	ProjectName   string
	EcrRepoURL    string
	SourceVersion string // 브랜치
	Buildspec     string // 비어 있으면 프로젝트 기본 buildspec 사용
	Port          int
	EntryPoint    string
	ImageTag      string
	Owner         string
	RepoName      string
	LocalPath     string
	AccountID     string
	Region        string
}

type CodeBuildService struct {
	client  API
	project string
}

func NewCodeBuildService(client API, project string) *CodeBuildService {
	return &CodeBuildService{client: client, project: project}
}

// StartBuild는 빌드를 제출하고 build id를 반환합니다. 재시도하지 않습니다.
func (s *CodeBuildService) StartBuild(ctx context.Context, p BuildParams) (string, error) {
	const op = "codebuild.start_build"
	project := p.ProjectName
	if project == "" {
		project = s.project
	}

	input := &codebuild.StartBuildInput{
		ProjectName:                  aws.String(project),
		EnvironmentVariablesOverride: envOverrides(p),
	}
	if p.SourceVersion != "" {
		input.SourceVersion = aws.String(p.SourceVersion)
	}
	// 빈 문자열을 보내면 프로젝트 기본값을 덮어쓰므로 필드 자체를 생략
	if p.Buildspec != "" {
		input.BuildspecOverride = aws.String(p.Buildspec)
	}

	out, err := s.client.StartBuild(ctx, input)
	if err != nil {
		return "", errs.E(errs.KindBuildTrigger, op, err)
	}
	if out == nil || out.Build == nil || aws.ToString(out.Build.Id) == "" {
		return "", errs.Errorf(errs.KindBuildTrigger, op, "start build returned no build id")
	}

	id := aws.ToString(out.Build.Id)
	logging.Ctx(ctx).Info().Str("project", project).Str("build_id", id).Str("image_tag", p.ImageTag).Msg("CodeBuild 빌드 시작")
	return id, nil
}

func envOverrides(p BuildParams) []types.EnvironmentVariable {
	pairs := [][2]string{
		{"AWS_ACCOUNT_ID", p.AccountID},
		{"AWS_DEFAULT_REGION", p.Region},
		{"ECR_REPO_URL", p.EcrRepoURL},
		{"PORT", strconv.Itoa(p.Port)},
		{"ENTRY_POINT", p.EntryPoint},
		{"IMAGE_TAG", p.ImageTag},
		{"OWNER", p.Owner},
		{"REPO_NAME", p.RepoName},
		{"LOCAL_PATH", p.LocalPath},
	}
	vars := make([]types.EnvironmentVariable, 0, len(pairs))
	for _, kv := range pairs {
		vars = append(vars, types.EnvironmentVariable{
			Name:  aws.String(kv[0]),
			Value: aws.String(kv[1]),
			Type:  types.EnvironmentVariableTypePlaintext,
		})
	}
	return vars
}

// LoadBuildspec은 dir/buildspec.yml 을 읽습니다. 파일이 없으면 ("", nil).
func LoadBuildspec(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, BuildspecFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}
