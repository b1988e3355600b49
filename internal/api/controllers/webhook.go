package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"
	deployservice "deploy-controller/internal/services/deploy_service"
)

const maxWebhookBody = 5 << 20

type PushHandler interface {
	HandlePush(ctx context.Context, ev *models.PushEvent) (*deployservice.PushResult, error)
}

type WebhookController struct {
	handler PushHandler
	secret  string
}

func NewWebhookController(handler PushHandler, secret string) *WebhookController {
	return &WebhookController{handler: handler, secret: secret}
}

func (w *WebhookController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook", w.Receive)
}

// Receive는 GitHub webhook 수신 엔드포인트입니다. push 외 이벤트는 처리하지 않습니다.
func (w *WebhookController) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "본문을 읽을 수 없습니다."})
		return
	}

	if w.secret != "" && !validSignature(w.secret, c.GetHeader("X-Hub-Signature-256"), body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "message": "서명이 올바르지 않습니다."})
		return
	}

	switch event := c.GetHeader("X-GitHub-Event"); event {
	case "ping":
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
		return
	case "push", "":
	default:
		c.JSON(http.StatusAccepted, gin.H{"message": "ignored", "event": event})
		return
	}

	var ev models.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "push 이벤트 형식이 아닙니다."})
		return
	}

	ctx := logging.ContextWithFields(context.WithoutCancel(c.Request.Context()), map[string]string{
		"delivery": c.GetHeader("X-GitHub-Delivery"),
	})
	res, err := w.handler.HandlePush(ctx, &ev)
	if err != nil {
		respondError(c, err, "재빌드 실패")
		return
	}
	if !res.Rebuilt {
		c.JSON(http.StatusAccepted, gin.H{"message": "ignored", "reason": res.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rebuild started", "deployment": res.Deployment})
}

// validSignature: X-Hub-Signature-256 = "sha256=" + hex(HMAC-SHA256(secret, body))
func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
