package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-controller/internal/errs"
	githubservice "deploy-controller/internal/services/github_service"
)

// statusOf는 에러 분류를 HTTP 상태 코드로 바꿉니다.
func statusOf(err error) int {
	if errors.Is(err, githubservice.ErrForbidden) {
		return http.StatusForbidden
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError는 내부 도구 에러 문구를 숨기지 않고 그대로 전달합니다. (운영자용 API)
func respondError(c *gin.Context, err error, message string) {
	_ = c.Error(err)
	c.JSON(statusOf(err), gin.H{
		"error":   err.Error(),
		"kind":    string(errs.KindOf(err)),
		"message": message,
	})
}
