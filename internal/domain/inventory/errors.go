package inventory

import (
	apperrors "github.com/xiebiao/library/pkg/errors"
)

var (
	// ErrOutOfStock 副本数为0时仍尝试扣减
	ErrOutOfStock = apperrors.New(apperrors.ErrCodeOutOfStock, "没有可借的副本")

	ErrInvalidCopies = apperrors.New(apperrors.ErrCodeInvalidCopies, "副本数不能为负数")

	// ErrRecordNotFound 图书存在但缺少库存记录(数据不一致)
	ErrRecordNotFound = apperrors.New(apperrors.ErrCodeInventoryMissing, "库存记录不存在")
)
