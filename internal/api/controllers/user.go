package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-controller/internal/errs"
	"deploy-controller/internal/middleware"
	"deploy-controller/internal/models"
)

type IdentityReader interface {
	Get(ctx context.Context, ownerID string) (*models.TenantIdentity, error)
}

type UserController struct {
	identities IdentityReader
}

func NewUserController(identities IdentityReader) *UserController {
	return &UserController{identities: identities}
}

// RegisterRoutes registers the user-related routes
func (u *UserController) RegisterRoutes(group *gin.RouterGroup) {
	// /api/users
	userGroup := group.Group("/users")
	{
		// 내 정보 + 발급된 AWS 자격 증명 요약 (비밀 키 제외)
		userGroup.GET("/me", u.GetMe)
	}
}

// GetMe handles fetching the current user's info
func (u *UserController) GetMe(ctx *gin.Context) {
	caller, ok := middleware.CurrentCaller(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "로그인이 필요합니다."})
		return
	}

	user := gin.H{"user_id": caller.UserID, "login": caller.Login}

	identity, err := u.identities.Get(ctx.Request.Context(), caller.UserID)
	switch {
	case errs.Is(err, errs.KindNotFound):
		// 첫 배포 전에는 자격 증명이 없음
		ctx.JSON(http.StatusOK, gin.H{"user": user, "identity": nil})
	case err != nil:
		respondError(ctx, err, "자격 증명 조회 실패")
	default:
		ctx.JSON(http.StatusOK, gin.H{"user": user, "identity": identity})
	}
}
