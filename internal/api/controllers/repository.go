package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-controller/internal/middleware"
	"deploy-controller/internal/models"
	githubservice "deploy-controller/internal/services/github_service"
)

type GitHubAPI interface {
	ListRepositories(ctx context.Context, token, owner string) ([]githubservice.Repository, error)
	GetRepository(ctx context.Context, token, owner, repo string) (*githubservice.Repository, error)
	Languages(ctx context.Context, token, owner, repo string) (map[string]int64, error)
	DirectoryTree(ctx context.Context, token, owner, repo, branch, sha string) ([]githubservice.TreeEntry, error)
}

// RepositoryController는 요청자의 GitHub 토큰으로 저장소 정보를 조회합니다.
type RepositoryController struct {
	github GitHubAPI
}

func NewRepositoryController(github GitHubAPI) *RepositoryController {
	return &RepositoryController{github: github}
}

func (rc *RepositoryController) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/git/repository")
	g.GET("/:owner", rc.List)
	g.GET("/:owner/:repo", rc.Get)
	g.GET("/:owner/:repo/languages", rc.Languages)
	g.GET("/:owner/:repo/tree/:branch", rc.Tree)
}

// params는 owner/repo 경로 파라미터를 검증합니다. repo가 없는 라우트면 빈 문자열.
func (rc *RepositoryController) params(c *gin.Context) (middleware.Caller, string, string, bool) {
	caller, ok := middleware.CurrentCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "로그인이 필요합니다."})
		return caller, "", "", false
	}
	owner, repo := c.Param("owner"), c.Param("repo")
	if err := models.ValidateIdentifier("owner", owner); err != nil {
		respondError(c, err, "잘못된 owner 입니다.")
		return caller, "", "", false
	}
	if repo != "" {
		if err := models.ValidateIdentifier("repo_name", repo); err != nil {
			respondError(c, err, "잘못된 저장소 이름입니다.")
			return caller, "", "", false
		}
	}
	return caller, owner, repo, true
}

func (rc *RepositoryController) List(c *gin.Context) {
	caller, owner, _, ok := rc.params(c)
	if !ok {
		return
	}
	repos, err := rc.github.ListRepositories(c.Request.Context(), caller.GitHubToken, owner)
	if err != nil {
		respondError(c, err, "저장소 목록 조회 실패")
		return
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}

func (rc *RepositoryController) Get(c *gin.Context) {
	caller, owner, repo, ok := rc.params(c)
	if !ok {
		return
	}
	out, err := rc.github.GetRepository(c.Request.Context(), caller.GitHubToken, owner, repo)
	if err != nil {
		respondError(c, err, "저장소 조회 실패")
		return
	}
	c.JSON(http.StatusOK, gin.H{"repository": out})
}

func (rc *RepositoryController) Languages(c *gin.Context) {
	caller, owner, repo, ok := rc.params(c)
	if !ok {
		return
	}
	langs, err := rc.github.Languages(c.Request.Context(), caller.GitHubToken, owner, repo)
	if err != nil {
		respondError(c, err, "언어 정보 조회 실패")
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": langs})
}

// Tree: 브랜치 최신 커밋의 최상위 디렉토리 목록 (root_folder_path 선택용). ?sha= 로 하위 트리 조회
func (rc *RepositoryController) Tree(c *gin.Context) {
	caller, owner, repo, ok := rc.params(c)
	if !ok {
		return
	}
	branch := c.Param("branch")
	if err := models.ValidateBranch(branch); err != nil {
		respondError(c, err, "잘못된 브랜치입니다.")
		return
	}
	dirs, err := rc.github.DirectoryTree(c.Request.Context(), caller.GitHubToken, owner, repo, branch, c.Query("sha"))
	if err != nil {
		respondError(c, err, "디렉토리 조회 실패")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tree": dirs})
}
