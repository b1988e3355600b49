// Package pipelineservice는 프레임워크 템플릿과 공통 인프라 모듈을 배포 디렉토리에 복사하고 .env를 작성합니다.
package pipelineservice

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/fsutil"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"
	tf "deploy-controller/internal/services/terraform_service"
)

const EnvFileName = ".env"

type PipelineService struct {
	templatesDir    string // <templatesDir>/<category>/<DisplayName>
	commonModuleDir string
}

func NewPipelineService(templatesDir, commonModuleDir string) *PipelineService {
	return &PipelineService{templatesDir: templatesDir, commonModuleDir: commonModuleDir}
}

// TemplateDir은 프레임워크의 템플릿 경로입니다. 두 세그먼트 모두 join 전에 검증합니다.
func (s *PipelineService) TemplateDir(fw models.FrameworkDescriptor) (string, error) {
	category := string(fw.Category)
	name := fw.DisplayName
	if name == "" {
		name = fw.Name
	}
	if err := models.ValidatePathSegment("category", category); err != nil {
		return "", err
	}
	if err := models.ValidatePathSegment("framework", name); err != nil {
		return "", err
	}
	return filepath.Join(s.templatesDir, category, name), nil
}

// Materialize는 템플릿 복사(기존 파일 유지) → 공통 모듈 교체 → .env 작성 순서로 진행합니다.
// 사용한 템플릿 경로를 반환합니다.
func (s *PipelineService) Materialize(ctx context.Context, fw models.FrameworkDescriptor, deploymentDir string, env models.EnvVars) (string, error) {
	const op = "pipeline.materialize"
	log := logging.Ctx(ctx).With().Str("dir", deploymentDir).Logger()

	templateDir, err := s.TemplateDir(fw)
	if err != nil {
		return "", err
	}
	if err := models.ValidateEnvVars(env); err != nil {
		return "", err
	}

	// 첫 배포 때 복사된 파일을 사용자가 수정했을 수 있으므로 덮어쓰지 않음
	if err := fsutil.CopyTree(templateDir, deploymentDir, true); err != nil {
		return "", errs.E(errs.KindMaterialization, op, err)
	}

	// 인프라 정의는 항상 플랫폼 최신 버전
	if err := fsutil.ReplaceTree(s.commonModuleDir, tf.ModuleDir(deploymentDir)); err != nil {
		return "", errs.E(errs.KindMaterialization, op, err)
	}

	if err := WriteEnvFile(filepath.Join(deploymentDir, EnvFileName), env); err != nil {
		return "", errs.E(errs.KindMaterialization, op, err)
	}

	log.Info().Str("template", templateDir).Int("env_count", len(env)).Msg("pipeline materialized")
	return templateDir, nil
}

// WriteEnvFile은 입력 순서대로 KEY=VALUE 를 씁니다. 값은 이스케이프하지 않습니다.
func WriteEnvFile(path string, env models.EnvVars) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, v := range env {
		if _, err := w.WriteString(v.Key + "=" + v.Value + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
