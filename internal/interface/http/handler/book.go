package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/library/internal/application/catalog"
	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/interface/http/dto"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/response"
)

// BookHandler 图书及其库存、借还入口
type BookHandler struct {
	catalog *catalog.Service
	lending *lending.Service
}

// NewBookHandler 创建图书处理器
func NewBookHandler(catalogService *catalog.Service, lendingService *lending.Service) *BookHandler {
	return &BookHandler{catalog: catalogService, lending: lendingService}
}

// List 图书列表
// @Summary      图书列表
// @Description  默认只返回有在架副本的图书,按副本数倒序;all=true返回全部
// @Tags         图书
// @Produce      json
// @Param        page      query int    false "页码" default(1)
// @Param        page_size query int    false "每页条数" default(20)
// @Param        search    query string false "书名/作者/ISBN关键字"
// @Param        author    query string false "作者(精确匹配)"
// @Param        all       query bool   false "包含无库存图书"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.BookResponse}}
// @Router       /api/v1/books [get]
func (h *BookHandler) List(c *gin.Context) {
	var req dto.ListBooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	details, total, err := h.catalog.ListBooks(c.Request.Context(), catalog.ListBooksRequest{
		Page:          req.Page,
		PageSize:      req.PageSize,
		Keyword:       req.Search,
		Author:        req.Author,
		AvailableOnly: !req.All,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	list := make([]*dto.BookResponse, len(details))
	for i, d := range details {
		list[i] = dto.ToBookResponse(d)
	}
	page, pageSize := pageOf(req.Page, req.PageSize)
	response.SuccessWithPage(c, list, total, page, pageSize)
}

// Get 图书详情(含库存)
// @Summary      图书详情
// @Tags         图书
// @Produce      json
// @Param        id path int true "图书ID"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Failure      404 {object} response.Response "图书不存在"
// @Router       /api/v1/books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToBookResponse(detail))
}

// Create 新书上架(馆员)
// @Summary      新书上架
// @Description  同时创建库存记录,copies默认0
// @Tags         图书
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateBookRequest true "图书信息"
// @Success      201 {object} response.Response{data=dto.BookResponse}
// @Failure      400 {object} response.Response "参数错误、书名或ISBN重复"
// @Failure      403 {object} response.Response "非馆员"
// @Router       /api/v1/books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req dto.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	published, err := dto.ParseDate(req.PublishedDate)
	if err != nil {
		response.Error(c, bindError(err))
		return
	}

	detail, err := h.catalog.CreateBook(c.Request.Context(), catalog.CreateBookRequest{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		PublishedDate: published,
		Copies:        req.Copies,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToBookResponse(detail))
}

// Update 修改图书信息或副本数(馆员)
// @Summary      修改图书
// @Tags         图书
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int                   true "图书ID"
// @Param        request body dto.UpdateBookRequest true "修改内容"
// @Success      200 {object} response.Response{data=dto.BookResponse}
// @Router       /api/v1/books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	update := catalog.UpdateBookRequest{
		Title:  req.Title,
		Author: req.Author,
		ISBN:   req.ISBN,
		Copies: req.Copies,
	}
	if req.PublishedDate != nil {
		if *req.PublishedDate == "" {
			update.ClearPublished = true
		} else if update.PublishedDate, err = dto.ParseDate(*req.PublishedDate); err != nil {
			response.Error(c, bindError(err))
			return
		}
	}

	detail, err := h.catalog.UpdateBook(c.Request.Context(), id, update)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToBookResponse(detail))
}

// Delete 删除图书(馆员)
// @Summary      删除图书
// @Description  存在在借记录或借阅历史时拒绝删除,库存记录随图书删除
// @Tags         图书
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "图书ID"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.Response "图书存在借阅记录"
// @Router       /api/v1/books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.catalog.DeleteBook(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Inventory 查询库存
// @Summary      查询库存
// @Tags         库存
// @Produce      json
// @Param        id path int true "图书ID"
// @Success      200 {object} response.Response{data=dto.InventoryResponse}
// @Router       /api/v1/books/{id}/inventory [get]
func (h *BookHandler) Inventory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	rec, err := h.lending.GetInventory(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToInventoryResponse(rec))
}

// InventoryList 全部库存记录,按图书ID升序
// @Summary      库存列表
// @Tags         库存
// @Produce      json
// @Param        page      query int false "页码"
// @Param        page_size query int false "每页条数"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.InventoryResponse}}
// @Router       /api/v1/inventory [get]
func (h *BookHandler) InventoryList(c *gin.Context) {
	page, pageSize := queryPage(c)

	recs, total, err := h.lending.ListInventory(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	list := make([]*dto.InventoryResponse, len(recs))
	for i, rec := range recs {
		list[i] = dto.ToInventoryResponse(rec)
	}
	response.SuccessWithPage(c, list, total, page, pageSize)
}

// InventoryLogs 库存流水(馆员)
// @Summary      库存流水
// @Tags         库存
// @Produce      json
// @Security     BearerAuth
// @Param        id        path  int true  "图书ID"
// @Param        page      query int false "页码"
// @Param        page_size query int false "每页条数"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.InventoryLogResponse}}
// @Router       /api/v1/books/{id}/inventory/logs [get]
func (h *BookHandler) InventoryLogs(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, pageSize := queryPage(c)

	logs, total, err := h.lending.ListInventoryLogs(c.Request.Context(), id, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	list := make([]*dto.InventoryLogResponse, len(logs))
	for i, l := range logs {
		list[i] = dto.ToInventoryLogResponse(l)
	}
	response.SuccessWithPage(c, list, total, page, pageSize)
}

// Checkout 借书
// @Summary      借书
// @Description  库存减1并创建在借记录;馆员可通过user_id代读者办理
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int true  "图书ID"
// @Param        user_id query int false "读者ID(仅馆员)"
// @Success      201 {object} response.Response{data=dto.CheckoutResponse}
// @Failure      400 {object} response.Response "无可借副本或重复借阅"
// @Router       /api/v1/books/{id}/checkout [post]
func (h *BookHandler) Checkout(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := targetUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lending.CreateCheckout(c.Request.Context(), bookID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToCheckoutResponse(result))
}

// Return 还书并归档
// @Summary      还书
// @Description  归还并完结(库存加1、写入借阅历史、删除在借记录),在同一事务中完成
// @Tags         借阅
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  int true  "图书ID"
// @Param        user_id query int false "读者ID(仅馆员)"
// @Success      200 {object} response.Response{data=dto.HistoryResponse}
// @Failure      404 {object} response.Response "没有该书的在借记录"
// @Router       /api/v1/books/{id}/return [post]
func (h *BookHandler) Return(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := targetUser(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	archived, err := h.lending.ReturnBook(c.Request.Context(), bookID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToHistoryResponse(archived))
}

// targetUser 普通读者只能为自己办理,馆员可指定user_id
func targetUser(c *gin.Context) (uint, error) {
	self := middleware.GetUserID(c)
	raw := c.Query("user_id")
	if raw == "" {
		return self, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.New(apperrors.ErrCodeInvalidParams, "参数错误: user_id必须是正整数")
	}
	if uint(id) != self && !middleware.IsLibrarian(c) {
		return 0, apperrors.ErrForbidden
	}
	return uint(id), nil
}

// queryPage 读取page/page_size并规范化
func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return pageOf(page, pageSize)
}

// pageOf 与应用层一致的分页默认值,用于响应中的分页信息
func pageOf(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
