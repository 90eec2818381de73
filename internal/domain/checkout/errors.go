package checkout

import (
	apperrors "github.com/xiebiao/library/pkg/errors"
)

var (
	ErrCheckoutNotFound = apperrors.New(apperrors.ErrCodeCheckoutNotFound, "借阅记录不存在")
	ErrArchiveNotFound  = apperrors.New(apperrors.ErrCodeArchiveNotFound, "借阅历史不存在")

	// ErrBookUnavailable 库存没有可借副本
	ErrBookUnavailable = apperrors.New(apperrors.ErrCodeBookUnavailable, "该书暂无可借副本")

	// ErrDuplicateCheckout 同一用户对同一本书已有未完结的借阅
	ErrDuplicateCheckout = apperrors.New(apperrors.ErrCodeDuplicateLoan, "您已借阅该书,请先归还")

	ErrAlreadyReturned = apperrors.New(apperrors.ErrCodeAlreadyReturned, "该借阅已归还")
	ErrNotYetReturned  = apperrors.New(apperrors.ErrCodeNotYetReturned, "借阅尚未归还,不能完结")

	// ErrInvalidStatus 仅用于errors.Is比较,实际返回NewInvalidStatusError
	ErrInvalidStatus = apperrors.New(apperrors.ErrCodeInvalidStatus, "非法的借阅状态")
)

// NewInvalidStatusError 带上合法取值的状态错误
func NewInvalidStatusError(value string) *apperrors.AppError {
	return apperrors.Newf(apperrors.ErrCodeInvalidStatus,
		"非法的借阅状态 %q,可选值: %s", value, allowedStatusList())
}
