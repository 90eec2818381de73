package user

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/user"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/logger"
)

// GetProfileUseCase 查询当前用户
type GetProfileUseCase struct {
	repo user.Repository
}

// NewGetProfileUseCase 创建查询用例
func NewGetProfileUseCase(repo user.Repository) *GetProfileUseCase {
	return &GetProfileUseCase{repo: repo}
}

// Execute 执行查询
func (uc *GetProfileUseCase) Execute(ctx context.Context, userID uint) (*UserInfo, error) {
	u, err := uc.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserInfo(u), nil
}

// DeleteUserUseCase 馆员删除用户
// 仍有在借记录或借阅历史时拒绝删除(历史记录保留用户引用)
type DeleteUserUseCase struct {
	tx        ports.Transactor
	users     user.Repository
	checkouts checkout.Repository
	archives  checkout.ArchiveRepository
	sessions  ports.SessionStore
}

// NewDeleteUserUseCase 创建删除用例
func NewDeleteUserUseCase(
	tx ports.Transactor,
	users user.Repository,
	checkouts checkout.Repository,
	archives checkout.ArchiveRepository,
	sessions ports.SessionStore,
) *DeleteUserUseCase {
	return &DeleteUserUseCase{
		tx:        tx,
		users:     users,
		checkouts: checkouts,
		archives:  archives,
		sessions:  sessions,
	}
}

// Execute 执行删除
func (uc *DeleteUserUseCase) Execute(ctx context.Context, userID uint) error {
	err := uc.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := uc.users.FindByID(ctx, userID); err != nil {
			return err
		}

		active, err := uc.checkouts.CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		archived, err := uc.archives.CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		if active > 0 || archived > 0 {
			return apperrors.ErrUserHasLoans
		}

		return uc.users.Delete(ctx, userID)
	})
	if err != nil {
		return err
	}

	if err := uc.sessions.DeleteSession(ctx, userID); err != nil {
		logger.L().Warn("删除会话失败", zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}
