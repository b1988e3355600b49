package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"deploy-controller/internal/api/controllers"
	"deploy-controller/internal/api/routes"
	"deploy-controller/internal/config"
	"deploy-controller/internal/db"
	"deploy-controller/internal/keylock"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/metrics"
	"deploy-controller/internal/repository"
	codebuildservice "deploy-controller/internal/services/codebuild_service"
	credentialservice "deploy-controller/internal/services/credential_service"
	deployservice "deploy-controller/internal/services/deploy_service"
	frameworkservice "deploy-controller/internal/services/framework_service"
	gitservice "deploy-controller/internal/services/git_service"
	githubservice "deploy-controller/internal/services/github_service"
	pipelineservice "deploy-controller/internal/services/pipeline_service"
	tf "deploy-controller/internal/services/terraform_service"
)

func main() {
	// 1. 설정 로드 (Configuration)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFmt)
	gin.SetMode(cfg.GinMode)
	log := logging.WithComponent("main")

	// 2. 데이터베이스 초기화 (Database Initialization)
	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 3. 프레임워크 카탈로그. 읽지 못하면 시작하지 않음
	catalog, err := frameworkservice.Load(cfg.FrameworkCatalog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load framework catalog")
	}

	// 4. 서비스 초기화 (Services)
	deployments := repository.NewDeploymentRepository(database)
	identities := repository.NewIdentityRepository(database)

	runner := tf.NewExecRunner(cfg.TerraformBin)
	credentials := credentialservice.NewCredentialService(
		identities, runner, credentialservice.NewSealer(cfg.SecretsKey),
		cfg.IAMModuleDir, cfg.IdentityStateDir,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}
	builder := codebuildservice.NewCodeBuildService(codebuild.NewFromConfig(awsCfg), cfg.CodeBuildProject)

	github := githubservice.NewClient(githubservice.Options{BaseURL: cfg.GitHubAPIURL})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deploys := deployservice.NewDeployService(deployservice.Deps{
		Catalog:       catalog,
		Identities:    credentials,
		Source:        gitservice.NewGitService(cfg.WorkspaceDir, gitservice.GoGitRemote{}),
		Materializer:  pipelineservice.NewPipelineService(cfg.TemplatesDir, cfg.CommonModuleDir),
		Provisioner:   tf.NewTerraformService(runner),
		Builder:       builder,
		Hooks:         github,
		Records:       deployments,
		Locks:         keylock.New(),
		Metrics:       metrics.New(registry),
		Region:        cfg.AWSRegion,
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
		Timeout:       cfg.DeployTimeout,
	})

	// 5. 컨트롤러 초기화 (Controllers)
	ctrls := routes.Controllers{
		Health:     controllers.NewHealthController(database),
		Frameworks: controllers.NewFrameworkController(catalog),
		Deploy:     controllers.NewDeployController(deploys),
		Webhook:    controllers.NewWebhookController(deploys, cfg.WebhookSecret),
		Repository: controllers.NewRepositoryController(github),
		User:       controllers.NewUserController(credentials),
		Test:       controllers.NewTestController(cfg.JWTSecret),
	}

	// 6. 라우터 설정 (Router)
	if err := routes.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}
	r := routes.SetupRouter(ctrls, cfg.JWTSecret, registry)

	// 7. 서버 시작 (Start Server)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
