// Package logging은 프로세스 전역 / 요청 단위 구조화 로그(zerolog)를 제공합니다.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	fieldsKey    contextKey = "log_fields"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init은 기본 로거를 설정합니다. format: "json" 또는 "console"
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	base = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

// SetOutput은 기본 로거의 출력 대상을 바꿉니다. (테스트용)
func SetOutput(w io.Writer) {
	mu.Lock()
	base = base.Output(w)
	mu.Unlock()
}

func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// WithComponent는 component 필드가 붙은 하위 로거입니다.
func WithComponent(component string) *zerolog.Logger {
	l := Logger().With().Str("component", component).Logger()
	return &l
}

func NewRequestID() string {
	return uuid.New().String()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithFields는 Ctx가 모든 로그 줄에 붙일 필드를 ctx에 담습니다.
func ContextWithFields(ctx context.Context, kv map[string]string) context.Context {
	merged := map[string]string{}
	if prev, ok := ctx.Value(fieldsKey).(map[string]string); ok {
		for k, v := range prev {
			merged[k] = v
		}
	}
	for k, v := range kv {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// Ctx는 request id와 ctx 필드가 붙은 로거를 반환합니다.
//
//	logging.Ctx(ctx).Info().Str("state", "cloned").Msg("deploy state changed")
func Ctx(ctx context.Context) *zerolog.Logger {
	c := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	if fields, ok := ctx.Value(fieldsKey).(map[string]string); ok {
		for k, v := range fields {
			c = c.Str(k, v)
		}
	}
	l := c.Logger()
	return &l
}
