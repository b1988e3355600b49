package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

// TestController는 OAuth 없이 로컬에서 API를 호출하기 위한 토큰 발급용입니다. debug 모드에서만 등록됩니다.
type TestController struct {
	secret string
}

func NewTestController(secret string) *TestController {
	return &TestController{secret: secret}
}

func (t *TestController) RegisterRoutes(group *gin.RouterGroup) {
	if gin.Mode() == gin.ReleaseMode {
		return
	}

	g := group.Group("/test")
	g.POST("/token", t.IssueToken)
}

type IssueTokenParams struct {
	UserID      string `json:"user_id" binding:"required"`
	Login       string `json:"login" binding:"required,identifier"`
	GitHubToken string `json:"github_token"`
}

func (t *TestController) IssueToken(c *gin.Context) {
	var req IssueTokenParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "잘못된 요청 형식입니다."})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      req.UserID,
		"login":        req.Login,
		"github_token": req.GitHubToken,
		"exp":          time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(t.secret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "message": "토큰 생성 실패"})
		return
	}

	c.SetCookie("authorization", "Bearer "+signed, 24*3600, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": signed})
}
