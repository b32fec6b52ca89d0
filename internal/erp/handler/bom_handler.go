package handler

import (
	"fmt"
	"net/http"

	"github.com/bitfantasy/nimo-erp/internal/erp/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Create POST /boms
func (h *BOMHandler) Create(c *gin.Context) {
	var input service.CreateBOMInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数校验失败: "+err.Error())
		return
	}

	userID := c.GetString("user_id")
	header, err := h.svc.CreateBOM(c.Request.Context(), &input, userID)
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, header)
}

// List GET /boms
func (h *BOMHandler) List(c *gin.Context) {
	productID := c.Query("product_id")
	costStatus := c.Query("cost_status")

	headers, err := h.svc.ListBOMs(c.Request.Context(), productID, costStatus)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{"items": headers})
}

// Get GET /boms/:id
func (h *BOMHandler) Get(c *gin.Context) {
	header, err := h.svc.GetBOM(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, header)
}

// Update PUT /boms/:id — 整体替换行项并重算成本
func (h *BOMHandler) Update(c *gin.Context) {
	var input service.UpdateBOMInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数校验失败: "+err.Error())
		return
	}

	header, err := h.svc.UpdateBOM(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, header)
}

// UpdateMargin PUT /boms/:id/margin — 只重算最终成本
func (h *BOMHandler) UpdateMargin(c *gin.Context) {
	var input service.UpdateMarginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数校验失败: "+err.Error())
		return
	}

	header, err := h.svc.UpdateMargin(c.Request.Context(), c.Param("id"), input.MarginPercent)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{"id": header.ID, "margin_percent": header.MarginPercent, "final_cost": header.FinalCost})
}

// Recompute POST /boms/:id/recompute — stale → computed
func (h *BOMHandler) Recompute(c *gin.Context) {
	header, err := h.svc.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, header)
}

// GetTree GET /boms/:id/tree
func (h *BOMHandler) GetTree(c *gin.Context) {
	tree, err := h.svc.BuildTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, tree)
}

// GetCost GET /boms/:id/cost?quantity=N
func (h *BOMHandler) GetCost(c *gin.Context) {
	quantity, err := decimal.NewFromString(c.DefaultQuery("quantity", "1"))
	if err != nil {
		BadRequest(c, "quantity必须是数字")
		return
	}

	cost, err := h.svc.GetCost(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, cost)
}

// Delete DELETE /boms/:id — 软删除
func (h *BOMHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteBOM(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}

	Success(c, nil)
}

// ListSubAssemblyCandidates GET /boms/sub-assembly-candidates?exclude=
func (h *BOMHandler) ListSubAssemblyCandidates(c *gin.Context) {
	candidates, err := h.svc.ListSubAssemblyCandidates(c.Request.Context(), c.Query("exclude"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{"items": candidates})
}

// Export GET /boms/:id/export — xlsx成本树导出
func (h *BOMHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportBOM(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
