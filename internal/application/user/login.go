package user

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/user"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/jwt"
	"github.com/xiebiao/library/pkg/logger"
)

// LoginUseCase 用户登录用例
// 1. 验证邮箱密码
// 2. 生成JWT Token对(角色写入Claims)
// 3. 保存会话
type LoginUseCase struct {
	userService  user.Service
	jwtManager   *jwt.Manager
	sessionStore ports.SessionStore
}

// NewLoginUseCase 创建登录用例
func NewLoginUseCase(
	userService user.Service,
	jwtManager *jwt.Manager,
	sessionStore ports.SessionStore,
) *LoginUseCase {
	return &LoginUseCase{
		userService:  userService,
		jwtManager:   jwtManager,
		sessionStore: sessionStore,
	}
}

// Execute 执行登录
func (uc *LoginUseCase) Execute(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := uc.userService.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	tokenPair, err := uc.jwtManager.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, err
	}

	sessionData := map[string]interface{}{
		"user_id":  u.ID,
		"email":    u.Email,
		"role":     string(u.Role),
		"login_at": time.Now().Unix(),
		"ip":       req.ClientIP,
	}
	// 会话有效期 = Refresh Token有效期;保存失败不影响登录
	if err := uc.sessionStore.SaveSession(ctx, u.ID, sessionData, uc.jwtManager.RefreshTTL()); err != nil {
		logger.L().Warn("保存会话失败", zap.Uint("user_id", u.ID), zap.Error(err))
	}

	return &LoginResponse{
		User:         *toUserInfo(u),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresIn:    tokenPair.ExpiresIn,
	}, nil
}

// LogoutUseCase 用户登出用例
type LogoutUseCase struct {
	sessionStore ports.SessionStore
	jwtManager   *jwt.Manager
}

// NewLogoutUseCase 创建登出用例
func NewLogoutUseCase(sessionStore ports.SessionStore, jwtManager *jwt.Manager) *LogoutUseCase {
	return &LogoutUseCase{sessionStore: sessionStore, jwtManager: jwtManager}
}

// Execute 删除会话,并把Access Token加入黑名单直到其自然过期
func (uc *LogoutUseCase) Execute(ctx context.Context, userID uint, accessToken string) error {
	if err := uc.sessionStore.DeleteSession(ctx, userID); err != nil {
		return err
	}
	return uc.sessionStore.AddToBlacklist(ctx, accessToken, uc.jwtManager.AccessTTL())
}

// ChangePasswordUseCase 修改密码
// 成功后当前会话失效,需要用新密码重新登录
type ChangePasswordUseCase struct {
	userService  user.Service
	sessionStore ports.SessionStore
	jwtManager   *jwt.Manager
}

// NewChangePasswordUseCase 创建修改密码用例
func NewChangePasswordUseCase(userService user.Service, sessionStore ports.SessionStore, jwtManager *jwt.Manager) *ChangePasswordUseCase {
	return &ChangePasswordUseCase{userService: userService, sessionStore: sessionStore, jwtManager: jwtManager}
}

// Execute 执行修改
func (uc *ChangePasswordUseCase) Execute(ctx context.Context, req ChangePasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return apperrors.New(apperrors.ErrCodeInvalidParams, "两次输入的新密码不一致")
	}
	if err := uc.userService.ChangePassword(ctx, req.UserID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	logger.L().Info("用户修改密码", zap.Uint("user_id", req.UserID))

	if err := uc.sessionStore.DeleteSession(ctx, req.UserID); err != nil {
		return err
	}
	if req.AccessToken == "" {
		return nil
	}
	return uc.sessionStore.AddToBlacklist(ctx, req.AccessToken, uc.jwtManager.AccessTTL())
}

// RefreshUseCase 用Refresh Token换发Access Token
type RefreshUseCase struct {
	jwtManager *jwt.Manager
}

// NewRefreshUseCase 创建刷新用例
func NewRefreshUseCase(jwtManager *jwt.Manager) *RefreshUseCase {
	return &RefreshUseCase{jwtManager: jwtManager}
}

// Execute 执行刷新
func (uc *RefreshUseCase) Execute(refreshToken string) (*RefreshResponse, error) {
	access, err := uc.jwtManager.RefreshAccessToken(refreshToken)
	if err != nil {
		return nil, err
	}
	return &RefreshResponse{
		AccessToken: access,
		ExpiresIn:   int64(uc.jwtManager.AccessTTL().Seconds()),
	}, nil
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string
	Password string
	ClientIP string
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	UserID          uint
	AccessToken     string
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// LoginResponse 登录响应
type LoginResponse struct {
	User         UserInfo `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"` // Access Token过期时间(秒)
}

// RefreshResponse 刷新响应
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
