// Package terraformservice는 배포 디렉토리에 복사된 인프라 모듈(ECS 클러스터, 로드 밸런서, ECR)을
// terraform으로 생성/삭제합니다.
package terraformservice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/fsutil"
	"deploy-controller/internal/logging"
)

const (
	// ModuleSubdir는 배포 디렉토리 안에서 공통 인프라 모듈이 놓이는 고정 경로입니다.
	ModuleSubdir = ".paas/terraform"
	// BootstrapScript가 모듈에 있으면 apply 전에 owner id를 인자로 실행합니다. (state backend 준비)
	BootstrapScript = "setup_backend.sh"

	OutputLoadBalancerDNS = "load_balancer_dns"
	OutputEcrRepoURL      = "ecr_repo_url"
)

// ProvisionInput은 인프라 모듈에 넘길 값입니다.
type ProvisionInput struct {
	OwnerID       string
	AccessKey     string
	SecretKey     string
	Owner         string
	RepoName      string
	ContainerPort int
	Region        string
	Branch        string
}

// Vars는 빈 값을 제외한 terraform 변수를 만듭니다. 컨테이너 포트는 호스트 포트로도 쓰입니다.
func (in ProvisionInput) Vars() Vars {
	port := ""
	if in.ContainerPort > 0 {
		port = strconv.Itoa(in.ContainerPort)
	}
	return Vars{
		"user_github_id": in.OwnerID,
		"aws_access_key": in.AccessKey,
		"aws_secret_key": in.SecretKey,
		"owner":          in.Owner,
		"repo_name":      in.RepoName,
		"container_port": port,
		"host_port":      port,
		"aws_region":     in.Region,
		"branch":         in.Branch,
	}.Compact()
}

type ProvisionResult struct {
	LoadBalancerURL string
	EcrRepoURL      string
	Outputs         Outputs
}

type TerraformService struct {
	runner Runner
}

func NewTerraformService(runner Runner) *TerraformService {
	return &TerraformService{runner: runner}
}

// ModuleDir는 deploymentDir의 인프라 모듈 경로입니다.
func ModuleDir(deploymentDir string) string {
	return filepath.Join(deploymentDir, filepath.FromSlash(ModuleSubdir))
}

// Provision은 bootstrap → init → apply → output 순서로 실행합니다. 재시도하지 않습니다.
func (s *TerraformService) Provision(ctx context.Context, deploymentDir string, in ProvisionInput) (*ProvisionResult, error) {
	const op = "terraform.provision"
	dir := ModuleDir(deploymentDir)

	if ok, err := fsutil.Exists(dir); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	} else if !ok {
		return nil, errs.Errorf(errs.KindProvisioning, op, "infrastructure module not found at %s", dir)
	}

	if err := s.runBootstrap(ctx, dir, in.OwnerID); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}

	log := logging.Ctx(ctx)
	vars := in.Vars()
	log.Info().Str("dir", dir).Strs("vars", vars.Keys()).Msg("terraform init/apply")

	if err := s.runner.Init(ctx, dir); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	if err := s.runner.Apply(ctx, dir, vars); err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}

	outputs, err := s.runner.Output(ctx, dir)
	if err != nil {
		return nil, errs.E(errs.KindProvisioning, op, err)
	}
	values, missing := outputs.RequireStrings(OutputLoadBalancerDNS, OutputEcrRepoURL)
	if len(missing) > 0 {
		return &ProvisionResult{Outputs: outputs}, errs.E(errs.KindProvisioning, op, errs.NewMissingOutputError(missing))
	}

	return &ProvisionResult{
		LoadBalancerURL: loadBalancerURL(values[OutputLoadBalancerDNS]),
		EcrRepoURL:      values[OutputEcrRepoURL],
		Outputs:         outputs,
	}, nil
}

// Destroy는 같은 모듈 디렉토리에서 terraform destroy(-auto-approve)를 실행합니다.
func (s *TerraformService) Destroy(ctx context.Context, deploymentDir string, in ProvisionInput) error {
	const op = "terraform.destroy"
	dir := ModuleDir(deploymentDir)

	if ok, err := fsutil.Exists(dir); err != nil {
		return errs.E(errs.KindProvisioning, op, err)
	} else if !ok {
		return errs.Errorf(errs.KindNotFound, op, "infrastructure module not found at %s", dir)
	}

	if err := s.runner.Init(ctx, dir); err != nil {
		return errs.E(errs.KindProvisioning, op, err)
	}
	if err := s.runner.Destroy(ctx, dir, in.Vars()); err != nil {
		return errs.E(errs.KindProvisioning, op, err)
	}
	return nil
}

func (s *TerraformService) runBootstrap(ctx context.Context, dir, ownerID string) error {
	script := filepath.Join(dir, BootstrapScript)
	info, err := os.Stat(script)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	// 실행 권한 보장
	if info.Mode().Perm()&0o111 != 0o111 {
		if err := os.Chmod(script, info.Mode().Perm()|0o755); err != nil {
			return fmt.Errorf("chmod %s: %w", script, err)
		}
	}

	cmd := exec.CommandContext(ctx, script, ownerID)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", BootstrapScript, err, strings.TrimSpace(string(out)))
	}
	logging.Ctx(ctx).Debug().Str("script", script).Msg("backend bootstrap finished")
	return nil
}

func loadBalancerURL(dns string) string {
	if strings.HasPrefix(dns, "http://") || strings.HasPrefix(dns, "https://") {
		return dns
	}
	return "http://" + dns
}
