package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/interface/http/dto"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/response"
)

// CheckoutHandler 在借记录的生命周期接口
type CheckoutHandler struct {
	lending *lending.Service
}

// NewCheckoutHandler 创建借阅处理器
func NewCheckoutHandler(lendingService *lending.Service) *CheckoutHandler {
	return &CheckoutHandler{lending: lendingService}
}

// List 在借列表
// @Summary      在借列表
// @Description  读者只能看到自己的记录,馆员可按user_id过滤
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        page      query int    false "页码"
// @Param        page_size query int    false "每页条数"
// @Param        book_id   query int    false "图书ID"
// @Param        user_id   query int    false "读者ID(仅馆员)"
// @Param        status    query string false "pending|overdue|missing|returned"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.CheckoutResponse}}
// @Router       /api/v1/checkouts [get]
func (h *CheckoutHandler) List(c *gin.Context) {
	params, err := listParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, total, err := h.lending.ListCheckouts(c.Request.Context(), middleware.GetActor(c), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	list := make([]*dto.CheckoutResponse, len(rows))
	for i, row := range rows {
		list[i] = dto.ToCheckoutResponse(row)
	}
	page, pageSize := pageOf(params.Page, params.PageSize)
	response.SuccessWithPage(c, list, total, page, pageSize)
}

// Create 借书
// @Summary      创建借阅
// @Tags         借阅
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateCheckoutRequest true "借阅信息"
// @Success      201 {object} response.Response{data=dto.CheckoutResponse}
// @Failure      400 {object} response.Response "无可借副本或重复借阅"
// @Failure      404 {object} response.Response "图书或用户不存在"
// @Router       /api/v1/checkouts [post]
func (h *CheckoutHandler) Create(c *gin.Context) {
	var req dto.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	userID := middleware.GetUserID(c)
	if req.UserID != 0 && req.UserID != userID {
		if !middleware.IsLibrarian(c) {
			response.Error(c, apperrors.ErrForbidden)
			return
		}
		userID = req.UserID
	}

	result, err := h.lending.CreateCheckout(c.Request.Context(), req.BookID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToCheckoutResponse(result))
}

// Get 借阅详情
// @Summary      借阅详情
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "借阅ID"
// @Success      200 {object} response.Response{data=dto.CheckoutResponse}
// @Failure      403 {object} response.Response "非本人"
// @Failure      404 {object} response.Response "借阅记录不存在"
// @Router       /api/v1/checkouts/{id} [get]
func (h *CheckoutHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.lending.GetCheckout(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCheckoutResponse(result))
}

// Return 归还(不归档)
// @Summary      归还
// @Description  状态置为returned并记录归还时间;完结时库存加1并归档
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "借阅ID"
// @Success      200 {object} response.Response{data=dto.CheckoutResponse}
// @Failure      400 {object} response.Response "已归还"
// @Router       /api/v1/checkouts/{id}/return [post]
func (h *CheckoutHandler) Return(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.lending.GetCheckout(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lending.ReturnCheckout(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCheckoutResponse(result))
}

// SetStatus 修改借阅状态(馆员)
// @Summary      修改借阅状态
// @Description  设为returned等同于归还;returned为终态
// @Tags         借阅
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int                  true "借阅ID"
// @Param        request body dto.SetStatusRequest true "目标状态"
// @Success      200 {object} response.Response{data=dto.CheckoutResponse}
// @Failure      400 {object} response.Response "非法状态或已归还"
// @Router       /api/v1/checkouts/{id}/status [patch]
func (h *CheckoutHandler) SetStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	result, err := h.lending.SetCheckoutStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCheckoutResponse(result))
}

// Complete 完结借阅:写入历史并删除在借记录(馆员)
// @Summary      完结借阅
// @Description  仅已归还的记录可完结;重复调用返回同一条历史
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "借阅ID"
// @Success      200 {object} response.Response{data=dto.HistoryResponse}
// @Failure      400 {object} response.Response "尚未归还"
// @Router       /api/v1/checkouts/{id} [delete]
func (h *CheckoutHandler) Complete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	archived, err := h.lending.CompleteCheckout(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToHistoryResponse(archived))
}

// MarkOverdue 逾期扫描(馆员)
// @Summary      逾期扫描
// @Description  把超过应还日期的pending记录置为overdue
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.Response{data=dto.OverdueResponse}
// @Router       /api/v1/checkouts/overdue [post]
func (h *CheckoutHandler) MarkOverdue(c *gin.Context) {
	n, err := h.lending.MarkOverdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, &dto.OverdueResponse{Marked: n})
}

// listParams 绑定列表查询,状态大小写不敏感
func listParams(c *gin.Context) (checkout.ListParams, error) {
	var req dto.ListCheckoutsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		return checkout.ListParams{}, bindError(err)
	}
	params := checkout.ListParams{
		UserID:   req.UserID,
		BookID:   req.BookID,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Status != "" {
		status, err := checkout.ParseStatus(req.Status)
		if err != nil {
			return checkout.ListParams{}, err
		}
		params.Status = status
	}
	return params, nil
}
