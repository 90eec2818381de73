package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError 应用错误
// Code给客户端判断错误类型，Message是可展示的提示，Err只进日志不返回给客户端。
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Is和errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，动态消息的错误（如InvalidStatus）也能与预定义变量比较
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus 错误码前三位即HTTP状态码，参数错误(409xx)按400处理
func (e *AppError) HTTPStatus() int {
	if e.Code >= 40900 && e.Code < 41000 {
		return http.StatusBadRequest
	}
	status := e.Code / 100
	if status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// New 创建AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 格式化创建AppError
func Newf(code int, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误（数据库、网络），对外隐藏细节
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrapf 格式化包装错误
func Wrapf(err error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// =========================================
// 错误码定义
// =========================================
// - 4xxxx: 客户端错误（参数错误、业务规则校验失败）
// - 5xxxx: 服务端错误（数据库异常、外部服务调用失败）

const (
	// 系统级错误码（50000-50099）
	ErrCodeInternal      = 50000
	ErrCodeDatabaseError = 50001
	ErrCodeRedisError    = 50002
	ErrCodeUnavailable   = 50300 // 依赖服务不可用（熔断）

	// 认证授权错误（40100-40199）
	ErrCodeUnauthorized    = 40100
	ErrCodeInvalidToken    = 40101
	ErrCodeTokenExpired    = 40102
	ErrCodeInvalidPassword = 40103
	ErrCodeForbidden       = 40304 // 已登录但无权限

	// 资源错误（40400-40499）
	ErrCodeNotFound         = 40400
	ErrCodeUserNotFound     = 40401
	ErrCodeBookNotFound     = 40402
	ErrCodeInventoryMissing = 40403
	ErrCodeCheckoutNotFound = 40404
	ErrCodeArchiveNotFound  = 40405

	// 业务规则错误（40000-40099）
	ErrCodeBusinessError    = 40000
	ErrCodeOutOfStock       = 40001
	ErrCodeEmailDuplicate   = 40003
	ErrCodeWeakPassword     = 40005
	ErrCodeInvalidCopies    = 40006
	ErrCodeOldPasswordWrong = 40007
	ErrCodeBookUnavailable  = 40010
	ErrCodeDuplicateLoan    = 40011
	ErrCodeAlreadyReturned  = 40012
	ErrCodeNotYetReturned   = 40013
	ErrCodeInvalidStatus    = 40014
	ErrCodeBookInUse        = 40015
	ErrCodeUserHasLoans     = 40016
	ErrCodeInvalidISBN      = 40017
	ErrCodeInvalidPublished = 40018
	ErrCodeTitleDuplicate   = 40019
	ErrCodeISBNDuplicate    = 40004

	// 参数错误（40900-40999，按400返回）
	ErrCodeInvalidParams = 40900
	ErrCodeBindError     = 40901
)

var (
	// 系统错误
	ErrInternal      = New(ErrCodeInternal, "系统内部错误")
	ErrDatabaseError = New(ErrCodeDatabaseError, "数据库错误")
	ErrRedisError    = New(ErrCodeRedisError, "缓存服务错误")
	ErrUnavailable   = New(ErrCodeUnavailable, "依赖服务暂不可用")

	// 认证授权
	ErrUnauthorized    = New(ErrCodeUnauthorized, "请先登录")
	ErrInvalidToken    = New(ErrCodeInvalidToken, "无效的Token")
	ErrTokenExpired    = New(ErrCodeTokenExpired, "Token已过期")
	ErrInvalidPassword = New(ErrCodeInvalidPassword, "密码错误")
	ErrForbidden       = New(ErrCodeForbidden, "无权限访问")

	// 资源不存在
	ErrNotFound     = New(ErrCodeNotFound, "资源不存在")
	ErrUserNotFound = New(ErrCodeUserNotFound, "用户不存在")

	// 业务规则
	ErrEmailDuplicate   = New(ErrCodeEmailDuplicate, "邮箱已被注册")
	ErrWeakPassword     = New(ErrCodeWeakPassword, "密码强度不足（需8-20位，包含字母和数字）")
	ErrOldPasswordWrong = New(ErrCodeOldPasswordWrong, "原密码错误")
	ErrUserHasLoans     = New(ErrCodeUserHasLoans, "用户存在借阅记录，不能删除")

	// 参数错误
	ErrInvalidParams = New(ErrCodeInvalidParams, "参数错误")
	ErrBindError     = New(ErrCodeBindError, "参数格式错误")
)

// IsAppError 判断是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 提取AppError（不是AppError时包装成Internal错误）
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, "系统内部错误")
}
