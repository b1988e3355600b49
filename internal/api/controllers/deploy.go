package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-controller/internal/middleware"
	"deploy-controller/internal/models"
	deployservice "deploy-controller/internal/services/deploy_service"
)

type DeployAPI interface {
	CreateDeploy(ctx context.Context, req models.DeploymentRequest, token string, user deployservice.User) (*models.Deployment, error)
	DestroyDeploy(ctx context.Context, owner, repoName string) (*models.Deployment, error)
	GetDeploy(ctx context.Context, owner, repoName string) (*models.Deployment, error)
	ListForOwner(ctx context.Context, owner string) ([]models.Deployment, error)
}

type DeployController struct {
	deploys DeployAPI
}

func NewDeployController(deploys DeployAPI) *DeployController {
	return &DeployController{deploys: deploys}
}

// RegisterRoutes: r 에는 AuthGuard가 적용되어 있어야 합니다.
func (d *DeployController) RegisterRoutes(r *gin.RouterGroup) {
	deploy := r.Group("/deploy")
	deploy.POST("", d.Create)
	deploy.GET("", d.List)
	deploy.GET("/:owner/:repo", d.Get)
	deploy.DELETE("/:owner/:repo", d.Destroy)
}

func (d *DeployController) Create(c *gin.Context) {
	caller, ok := middleware.CurrentCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "로그인이 필요합니다."})
		return
	}

	var req models.DeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation", "message": "잘못된 배포 요청입니다."})
		return
	}

	// 클라이언트 연결이 끊겨도 terraform 실행은 계속 (제한 시간은 서비스가 적용)
	ctx := context.WithoutCancel(c.Request.Context())
	rec, err := d.deploys.CreateDeploy(ctx, req, caller.GitHubToken, deployservice.User{ID: caller.UserID, Login: caller.Login})
	if err != nil {
		respondError(c, err, "배포 생성 실패")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"deployment": rec})
}

func (d *DeployController) List(c *gin.Context) {
	caller, ok := middleware.CurrentCaller(c)
	if !ok || caller.Login == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "로그인이 필요합니다."})
		return
	}

	list, err := d.deploys.ListForOwner(c.Request.Context(), caller.Login)
	if err != nil {
		respondError(c, err, "배포 목록 조회 실패")
		return
	}
	// 같은 owner 이름이라도 다른 사용자가 만든 레코드(환경 변수 포함)는 제외
	mine := make([]models.Deployment, 0, len(list))
	for _, rec := range list {
		if rec.OwnerID == caller.UserID {
			mine = append(mine, rec)
		}
	}
	c.JSON(http.StatusOK, gin.H{"deployments": mine})
}

func (d *DeployController) Get(c *gin.Context) {
	rec, ok := d.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployment": rec})
}

func (d *DeployController) Destroy(c *gin.Context) {
	if _, ok := d.owned(c); !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	rec, err := d.deploys.DestroyDeploy(ctx, c.Param("owner"), c.Param("repo"))
	if err != nil {
		respondError(c, err, "배포 삭제 실패")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "infrastructure destroyed", "deployment": rec})
}

// owned는 최신 레코드를 읽고 요청자가 배포한 것인지 확인합니다.
func (d *DeployController) owned(c *gin.Context) (*models.Deployment, bool) {
	caller, ok := middleware.CurrentCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "로그인이 필요합니다."})
		return nil, false
	}

	rec, err := d.deploys.GetDeploy(c.Request.Context(), c.Param("owner"), c.Param("repo"))
	if err != nil {
		respondError(c, err, "배포 조회 실패")
		return nil, false
	}
	if rec.OwnerID != caller.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "다른 사용자의 배포입니다."})
		return nil, false
	}
	return rec, true
}
