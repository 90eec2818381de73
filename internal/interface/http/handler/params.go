package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/xiebiao/library/pkg/errors"
)

// pathID 解析路径中的正整数ID
func pathID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Newf(apperrors.ErrCodeInvalidParams, "参数错误: %s必须是正整数", name)
	}
	return uint(id), nil
}

// bindError 参数绑定失败统一返回40900
func bindError(err error) error {
	return apperrors.New(apperrors.ErrCodeInvalidParams, "参数错误: "+err.Error())
}
