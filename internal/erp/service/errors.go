package service

import (
	"errors"
	"strings"
)

// BOM引擎错误分类。所有错误都向调用方如实传播，
// 任何解析失败都不允许退化为零成本。
var (
	// ErrValidation 输入不合法：空行项、数量/利润率非法、引用字段缺失
	ErrValidation = errors.New("validation failed")
	// ErrReferenceNotFound 行项引用的产品或子装配不存在/已停用
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrUnresolvedCost 子装配BOM从未计算过成本
	ErrUnresolvedCost = errors.New("cost not computed")
	// ErrCyclicReference 写入会在子装配引用图中引入环
	ErrCyclicReference = errors.New("cyclic reference")
	// ErrCycleDetected 树展开时发现已存在的环（防御性检查）
	ErrCycleDetected = errors.New("cycle detected during traversal")
	// ErrDepthExceeded 树展开超过最大深度（防御性检查）
	ErrDepthExceeded = errors.New("max traversal depth exceeded")
	// ErrNotFound BOM不存在或已停用
	ErrNotFound = errors.New("bom not found")
	// ErrVersionConflict 乐观锁冲突：读取后记录已被其他写入者修改
	ErrVersionConflict = errors.New("bom was modified by another writer")
)

// CycleError 携带成环路径的循环引用错误
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "检测到循环引用: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicReference
}
