package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

// gin.Context 키
const (
	CtxUserID      = "user_id"
	CtxLogin       = "login"
	CtxGitHubToken = "github_token"
)

// Caller는 인증된 요청자입니다. GitHubToken은 GitHub API 호출과 clone에 사용됩니다.
type Caller struct {
	UserID      string
	Login       string
	GitHubToken string
}

// AuthGuard는 쿠키 "authorization" 또는 Authorization 헤더의 "Bearer <jwt>"를 검증합니다.
func AuthGuard(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 쿠키 우선, 없으면 헤더
		tokenString, err := c.Cookie("authorization")
		if err != nil || tokenString == "" {
			tokenString = c.GetHeader("Authorization")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "로그인 토큰이 없습니다."})
			return
		}

		// 2. "Bearer " 접두사 제거
		if !strings.HasPrefix(tokenString, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "유효하지 않은 토큰 형식입니다."})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		// 3. 서명/만료 검증 (exp 필수)
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "유효하지 않은 토큰입니다."})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "토큰 클레임을 읽을 수 없습니다."})
			return
		}

		// 4. 사용자 식별 정보 추출
		userID := claimString(claims["user_id"])
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "토큰에 사용자 정보가 누락되었습니다."})
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxLogin, claimString(claims["login"]))
		c.Set(CtxGitHubToken, claimString(claims["github_token"]))
		c.Next()
	}
}

// CurrentCaller는 AuthGuard가 저장한 요청자를 반환합니다.
func CurrentCaller(c *gin.Context) (Caller, bool) {
	userID := c.GetString(CtxUserID)
	if userID == "" {
		return Caller{}, false
	}
	return Caller{
		UserID:      userID,
		Login:       c.GetString(CtxLogin),
		GitHubToken: c.GetString(CtxGitHubToken),
	}, true
}

// JSON 숫자는 float64로 디코딩되므로 GitHub 숫자 ID를 정수 문자열로 맞춤
func claimString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
