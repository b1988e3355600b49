package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체는 애플리케이션 설정을 저장합니다.
type Config struct {
	Port     string // 서버가 실행될 포트
	GinMode  string // Gin 모드 (debug/release)
	LogLevel string
	LogFmt   string // json / console

	DB_Name     string // 데이터베이스 이름
	DB_User     string // 데이터베이스 사용자
	DB_Password string // 데이터베이스 비밀번호
	DB_Host     string // 데이터베이스 호스트
	DB_Port     string // 데이터베이스 포트
	DB_SSLMode  string

	JWTSecret  string
	SecretsKey [32]byte // TenantIdentity 비밀 키 암호화용 (secretbox)

	WorkspaceDir     string // 클론 대상 base_dir (base_dir/owner/repo)
	IdentityStateDir string // 사용자별 IAM terraform 상태 디렉토리
	TemplatesDir     string // 프레임워크별 파이프라인 템플릿 (category/Framework)
	CommonModuleDir  string // 공통 인프라 terraform 모듈
	IAMModuleDir     string // 사용자 IAM 발급 terraform 모듈
	FrameworkCatalog string // frameworks.yaml 경로
	TerraformBin     string

	AWSRegion        string
	CodeBuildProject string
	DeployTimeout    time.Duration

	WebhookURL    string // GitHub push hook 수신 주소 (비어있으면 등록 생략)
	WebhookSecret string
	GitHubAPIURL  string
}

// Load 함수는 환경 변수에서 설정을 읽어 Config 구조체를 반환합니다.
func Load() (*Config, error) {
	// .env 파일 로드 (로컬 개발 환경용)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (로컬 .env 파일 없음 - 환경 변수 사용)")
	}
	return FromEnv(os.Getenv)
}

// FromEnv는 getenv로 설정을 구성합니다. 테스트에서 환경을 주입할 때 사용합니다.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:     get("PORT", "8080"),
		GinMode:  get("GIN_MODE", "release"),
		LogLevel: get("LOG_LEVEL", "info"),
		LogFmt:   get("LOG_FORMAT", "json"),

		DB_Name:     get("DB_NAME", "postgres"),
		DB_User:     get("DB_USER", "postgres"),
		DB_Password: get("DB_PASSWORD", "postgres"),
		DB_Host:     get("DB_HOST", "localhost"),
		DB_Port:     get("DB_PORT", "5432"),
		DB_SSLMode:  get("DB_SSLMODE", "disable"),

		JWTSecret: getenv("JWT_SECRET"),

		WorkspaceDir:     get("WORKSPACE_DIR", "/srv/deployments"),
		IdentityStateDir: get("IDENTITY_STATE_DIR", "/srv/identities"),
		TemplatesDir:     get("TEMPLATES_DIR", "pipelines/templates"),
		CommonModuleDir:  get("COMMON_MODULE_DIR", "pipelines/common/terraform/app"),
		IAMModuleDir:     get("IAM_MODULE_DIR", "pipelines/common/terraform/iam"),
		FrameworkCatalog: get("FRAMEWORK_CATALOG", "configs/frameworks.yaml"),
		TerraformBin:     get("TERRAFORM_BIN", "terraform"),

		AWSRegion:        get("AWS_REGION", "ap-northeast-2"),
		CodeBuildProject: get("CODEBUILD_PROJECT", "paas-app-builder"),

		WebhookURL:    getenv("WEBHOOK_URL"),
		WebhookSecret: getenv("WEBHOOK_SECRET"),
		GitHubAPIURL:  get("GITHUB_API_URL", "https://api.github.com"),
	}

	timeout, err := time.ParseDuration(get("DEPLOY_TIMEOUT", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEPLOY_TIMEOUT: %v", err)
	}
	cfg.DeployTimeout = timeout

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	rawKey := getenv("SECRETS_KEY")
	if rawKey == "" {
		return nil, fmt.Errorf("SECRETS_KEY is required (64 hex chars)")
	}
	key, err := hex.DecodeString(rawKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("SECRETS_KEY must be 32 bytes hex encoded")
	}
	copy(cfg.SecretsKey[:], key)

	return cfg, nil
}

// DSN은 postgres 접속 문자열을 반환합니다.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DB_Host, c.DB_User, c.DB_Password, c.DB_Name, c.DB_Port, c.DB_SSLMode)
}
