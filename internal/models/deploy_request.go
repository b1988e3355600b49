package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"deploy-controller/internal/errs"
)

var (
	// owner / repo_name: 영문, 숫자, '_', '.', '-' 만 허용 (경로 탈출, 셸 인젝션 차단)
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

	// 브랜치 / git ref
	gitRefRegex = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

	// 빌드/실행 명령, 엔트리 포인트. 셸 메타문자(; & | $ ` < > ( ) { } ' " \ * ? ! # ~ 개행)는 불가
	commandRegex = regexp.MustCompile(`^[A-Za-z0-9 ._/:=,@+-]+$`)

	envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// 템플릿 경로 세그먼트 (category, FrameworkName)
	segmentRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

const DefaultBranch = "main"

// DeploymentRequest는 배포 생성 요청 본문입니다.
type DeploymentRequest struct {
	Owner                string  `json:"owner" binding:"required,identifier"`
	RepoName             string  `json:"repo_name" binding:"required,identifier"`
	Branch               string  `json:"branch"`
	Framework            string  `json:"framework" binding:"required"`
	RootFolderPath       string  `json:"root_folder_path"`
	BuildCommand         *string `json:"build_command,omitempty"`
	RunCommand           *string `json:"run_command,omitempty"`
	Port                 *int    `json:"port,omitempty"`
	EntryPoint           *string `json:"entry_point,omitempty"`
	EnvironmentVariables EnvVars `json:"environment_variables"`
}

// DeployConfig는 요청과 프레임워크 기본값을 합친, 모든 필드가 채워지고 검증된 설정입니다.
type DeployConfig struct {
	Owner                string
	RepoName             string
	Branch               string
	Framework            FrameworkDescriptor
	RootFolderPath       string // 선행 '/' 제거, 정규화된 상대 경로. 루트면 ""
	BuildCommand         string
	RunCommand           string
	EntryPoint           string
	Port                 int
	EnvironmentVariables EnvVars
}

// ValidateIdentifier는 owner / repo_name 형식을 검사합니다.
func ValidateIdentifier(field, value string) error {
	if !identifierRegex.MatchString(value) || strings.Contains(value, "..") || strings.Trim(value, ".") == "" {
		return errs.Errorf(errs.KindValidation, "validate", "invalid %s %q: only letters, digits, '_', '.', '-' allowed", field, value)
	}
	return nil
}

func IsIdentifier(value string) bool {
	return ValidateIdentifier("identifier", value) == nil
}

// ValidateBranch는 git 브랜치 이름을 검사합니다.
func ValidateBranch(branch string) error {
	if !gitRefRegex.MatchString(branch) || strings.Contains(branch, "..") || strings.HasPrefix(branch, "-") {
		return errs.Errorf(errs.KindValidation, "validate", "invalid branch %q", branch)
	}
	return nil
}

// ValidatePathSegment는 파일 시스템 join 전에 단일 경로 세그먼트를 검사합니다.
func ValidatePathSegment(field, segment string) error {
	if !segmentRegex.MatchString(segment) {
		return errs.Errorf(errs.KindValidation, "validate", "invalid %s path segment %q", field, segment)
	}
	return nil
}

// SanitizeRootFolder는 선행 '/'를 제거하고 '..' 세그먼트를 거부합니다.
func SanitizeRootFolder(path string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "", nil
	}
	for _, seg := range strings.Split(filepath.ToSlash(trimmed), "/") {
		if seg == ".." {
			return "", errs.Errorf(errs.KindValidation, "validate", "invalid root_folder_path %q: '..' is not allowed", path)
		}
	}
	if strings.ContainsAny(trimmed, "\\\x00") {
		return "", errs.Errorf(errs.KindValidation, "validate", "invalid root_folder_path %q", path)
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// ValidateCommand는 명령 문자열이 허용 문자만 포함하는지 검사합니다.
func ValidateCommand(field, command string) error {
	if !commandRegex.MatchString(command) {
		return errs.Errorf(errs.KindValidation, "validate", "invalid %s %q: contains disallowed characters", field, command)
	}
	return nil
}

// ValidateEnvVars는 .env 로 쓸 수 없는 키/값을 거부합니다. 값 이스케이프는 하지 않습니다.
func ValidateEnvVars(vars EnvVars) error {
	for _, v := range vars {
		if !envKeyRegex.MatchString(v.Key) {
			return errs.Errorf(errs.KindValidation, "validate", "invalid environment variable name %q", v.Key)
		}
		if strings.ContainsAny(v.Value, "\r\n") {
			return errs.Errorf(errs.KindValidation, "validate", "environment variable %s: multi-line values are not supported", v.Key)
		}
	}
	return nil
}

// ResolveConfig는 요청의 override를 프레임워크 기본값 위에 덮어쓰고 전체를 검증합니다.
func ResolveConfig(req DeploymentRequest, fw FrameworkDescriptor) (DeployConfig, error) {
	if err := ValidateIdentifier("owner", req.Owner); err != nil {
		return DeployConfig{}, err
	}
	if err := ValidateIdentifier("repo_name", req.RepoName); err != nil {
		return DeployConfig{}, err
	}

	cfg := DeployConfig{
		Owner:                req.Owner,
		RepoName:             req.RepoName,
		Branch:               req.Branch,
		Framework:            fw,
		BuildCommand:         fw.BuildCommand,
		RunCommand:           fw.RunCommand,
		EntryPoint:           fw.EntryPoint,
		Port:                 fw.DefaultPort,
		EnvironmentVariables: req.EnvironmentVariables,
	}
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if req.BuildCommand != nil && *req.BuildCommand != "" {
		cfg.BuildCommand = *req.BuildCommand
	}
	if req.RunCommand != nil && *req.RunCommand != "" {
		cfg.RunCommand = *req.RunCommand
	}
	if req.EntryPoint != nil && *req.EntryPoint != "" {
		cfg.EntryPoint = *req.EntryPoint
	}
	if req.Port != nil && *req.Port != 0 {
		cfg.Port = *req.Port
	}

	if err := ValidateBranch(cfg.Branch); err != nil {
		return DeployConfig{}, err
	}
	root, err := SanitizeRootFolder(req.RootFolderPath)
	if err != nil {
		return DeployConfig{}, err
	}
	cfg.RootFolderPath = root

	if err := ValidateCommand("build_command", cfg.BuildCommand); err != nil {
		return DeployConfig{}, err
	}
	if err := ValidateCommand("run_command", cfg.RunCommand); err != nil {
		return DeployConfig{}, err
	}
	if err := ValidateCommand("entry_point", cfg.EntryPoint); err != nil {
		return DeployConfig{}, err
	}
	if strings.Contains(cfg.EntryPoint, "..") {
		return DeployConfig{}, errs.Errorf(errs.KindValidation, "validate", "invalid entry_point %q", cfg.EntryPoint)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return DeployConfig{}, errs.Errorf(errs.KindValidation, "validate", "invalid port %d", cfg.Port)
	}
	if err := ValidateEnvVars(cfg.EnvironmentVariables); err != nil {
		return DeployConfig{}, err
	}

	return cfg, nil
}

// PairKey는 (owner, repo_name) 잠금 키입니다.
func PairKey(owner, repoName string) string {
	return fmt.Sprintf("%s/%s", owner, repoName)
}
