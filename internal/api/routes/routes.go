package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	controllers "deploy-controller/internal/api/controllers"
	"deploy-controller/internal/middleware"
	"deploy-controller/internal/models"
)

// Controllers는 main에서 조립한 컨트롤러 묶음입니다.
type Controllers struct {
	Health     *controllers.HealthController
	Frameworks *controllers.FrameworkController
	Deploy     *controllers.DeployController
	Webhook    *controllers.WebhookController
	Repository *controllers.RepositoryController
	User       *controllers.UserController
	Test       *controllers.TestController
}

// RegisterValidators는 binding 태그 `identifier`(owner / repo_name 형식)를 등록합니다.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return models.IsIdentifier(fl.Field().String())
	})
}

func SetupRouter(ctrls Controllers, jwtSecret string, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	// Health Check, Metrics
	ctrls.Health.RegisterRoutes(r.Group("/"))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API Group
	api := r.Group("/api")
	ctrls.Frameworks.RegisterRoutes(api)
	// GitHub이 호출하므로 JWT 대신 HMAC 서명으로 검증
	ctrls.Webhook.RegisterRoutes(api)
	if ctrls.Test != nil {
		ctrls.Test.RegisterRoutes(api)
	}

	authed := api.Group("", middleware.AuthGuard(jwtSecret))
	ctrls.Deploy.RegisterRoutes(authed)
	ctrls.Repository.RegisterRoutes(authed)
	ctrls.User.RegisterRoutes(authed)

	return r
}
