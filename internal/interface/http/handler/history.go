package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/interface/http/dto"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	"github.com/xiebiao/library/pkg/response"
)

// HistoryHandler 借阅历史
type HistoryHandler struct {
	lending *lending.Service
}

func NewHistoryHandler(lendingService *lending.Service) *HistoryHandler {
	return &HistoryHandler{lending: lendingService}
}

// List 借阅历史,按归还时间倒序
// @Summary      借阅历史
// @Tags         借阅历史
// @Produce      json
// @Security     BearerAuth
// @Param        page      query int false "页码"
// @Param        page_size query int false "每页条数"
// @Param        book_id   query int false "图书ID"
// @Param        user_id   query int false "读者ID(仅馆员)"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.HistoryResponse}}
// @Router       /api/v1/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	params, err := listParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, total, err := h.lending.ListHistory(c.Request.Context(), middleware.GetActor(c), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	list := make([]*dto.HistoryResponse, len(rows))
	for i, row := range rows {
		list[i] = dto.ToHistoryResponse(row)
	}
	page, pageSize := pageOf(params.Page, params.PageSize)
	response.SuccessWithPage(c, list, total, page, pageSize)
}

// Delete 删除历史记录(馆员)
// @Summary      删除借阅历史
// @Tags         借阅历史
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "历史记录ID"
// @Success      200 {object} response.Response
// @Failure      404 {object} response.Response "记录不存在"
// @Router       /api/v1/history/{id} [delete]
func (h *HistoryHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.lending.DeleteArchived(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
