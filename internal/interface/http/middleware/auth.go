package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/user"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/jwt"
	"github.com/xiebiao/library/pkg/response"
)

// Context中的key
const (
	ctxUserID = "user_id"
	ctxEmail  = "email"
	ctxRole   = "role"
	ctxToken  = "token"
)

// AuthMiddleware JWT认证中间件
// 1. 从Header提取Token
// 2. 检查Token黑名单(已登出)
// 3. 验证Token并拒绝Refresh Token
// 4. 将用户信息注入Context
type AuthMiddleware struct {
	jwtManager   *jwt.Manager
	sessionStore ports.SessionStore
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwtManager *jwt.Manager, sessionStore ports.SessionStore) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:   jwtManager,
		sessionStore: sessionStore,
	}
}

// RequireAuth 要求登录
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.authenticate(c); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth 可选登录,Token无效时按匿名用户处理
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			_ = m.authenticate(c)
		}
		c.Next()
	}
}

// RequireLibrarian 要求馆员角色,须放在RequireAuth之后
func (m *AuthMiddleware) RequireLibrarian() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsLibrarian(c) {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) error {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return apperrors.ErrUnauthorized
	}

	// Authorization: Bearer <token>
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return apperrors.New(apperrors.ErrCodeInvalidToken, "Token格式错误")
	}
	tokenString := parts[1]

	blacklisted, err := m.sessionStore.IsInBlacklist(c.Request.Context(), tokenString)
	if err != nil {
		return err
	}
	if blacklisted {
		return apperrors.New(apperrors.ErrCodeTokenExpired, "Token已失效，请重新登录")
	}

	claims, err := m.jwtManager.ParseToken(tokenString)
	if err != nil {
		return err
	}
	if claims.TokenType != jwt.TokenTypeAccess {
		return apperrors.ErrInvalidToken
	}

	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxEmail, claims.Email)
	c.Set(ctxRole, claims.Role)
	c.Set(ctxToken, tokenString)
	return nil
}

// GetUserID 当前登录用户ID,未登录为0
func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get(ctxUserID); ok {
		if uid, ok := v.(uint); ok {
			return uid
		}
	}
	return 0
}

// GetEmail 当前登录用户邮箱
func GetEmail(c *gin.Context) string {
	return c.GetString(ctxEmail)
}

// GetToken 当前请求的Access Token(登出时加入黑名单)
func GetToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// IsLibrarian 当前用户是否馆员
func IsLibrarian(c *gin.Context) bool {
	return c.GetString(ctxRole) == string(user.RoleLibrarian)
}

// GetActor 构造应用层的操作者
func GetActor(c *gin.Context) lending.Actor {
	return lending.Actor{UserID: GetUserID(c), Librarian: IsLibrarian(c)}
}
