package book

import (
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// 图书领域错误定义
var (
	ErrBookNotFound = apperrors.New(apperrors.ErrCodeBookNotFound, "图书不存在")

	ErrTitleDuplicate = apperrors.New(apperrors.ErrCodeTitleDuplicate, "书名已存在")
	ErrISBNDuplicate  = apperrors.New(apperrors.ErrCodeISBNDuplicate, "ISBN号已存在")

	ErrInvalidTitle      = apperrors.New(apperrors.ErrCodeInvalidParams, "书名不能为空且不超过200个字符")
	ErrInvalidAuthor     = apperrors.New(apperrors.ErrCodeInvalidParams, "作者不能为空且不超过75个字符")
	ErrInvalidISBN       = apperrors.New(apperrors.ErrCodeInvalidISBN, "ISBN格式不正确(需为合法的ISBN-10或ISBN-13)")
	ErrPublishedInFuture = apperrors.New(apperrors.ErrCodeInvalidPublished, "出版日期不能晚于今天")

	// ErrBookInUse 仍有借阅记录(在借或历史)引用该书
	ErrBookInUse = apperrors.New(apperrors.ErrCodeBookInUse, "图书存在借阅记录,不能删除")
)
