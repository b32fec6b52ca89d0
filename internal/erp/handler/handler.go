package handler

import (
	"errors"

	"github.com/bitfantasy/nimo-erp/internal/erp/service"
	"github.com/gin-gonic/gin"
)

// Handlers ERP HTTP处理器集合
type Handlers struct {
	BOM *BOMHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		BOM: NewBOMHandler(services.BOM),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应，业务码前三位即HTTP状态码
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 冲突响应（循环引用、乐观锁冲突）
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError 将服务层错误分类映射到响应
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrReferenceNotFound):
		Error(c, 40001, err.Error())
	case errors.Is(err, service.ErrUnresolvedCost):
		Error(c, 40002, err.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, "BOM不存在")
	case errors.Is(err, service.ErrCyclicReference):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrVersionConflict):
		Error(c, 40901, "BOM已被其他用户修改，请刷新后重试")
	case errors.Is(err, service.ErrCycleDetected), errors.Is(err, service.ErrDepthExceeded):
		// 写入校验本应拦截，走到这里说明存量数据损坏
		Error(c, 50001, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
