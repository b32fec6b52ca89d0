package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/bitfantasy/nimo-erp/internal/erp/repository"
)

// maxTreeDepth 树展开的防御性深度上限。真实装配层级远低于此；
// 超限说明数据已损坏，直接失败而不是耗尽调用栈。
const maxTreeDepth = 64

// assertAcyclic 环检测：沿待写入行项引用的每个子装配，遍历其已存储的
// 子装配边；一旦重新到达bomID即拒绝整次写入。
// 路径/访问集都是本次调用私有的，并发校验互不干扰。
func (s *BOMService) assertAcyclic(ctx context.Context, bomID string, items []entity.BOMItem) error {
	visited := make(map[string]bool)
	for _, item := range items {
		if item.Kind != entity.ItemKindSubAssembly || item.SubAssemblyID == nil {
			continue
		}
		if err := s.walkForCycle(ctx, bomID, *item.SubAssemblyID, []string{bomID}, visited); err != nil {
			return err
		}
	}
	return nil
}

func (s *BOMService) walkForCycle(ctx context.Context, rootID, current string, path []string, visited map[string]bool) error {
	if current == rootID {
		return &CycleError{Path: append(append([]string{}, path...), current)}
	}
	if visited[current] {
		return nil
	}
	visited[current] = true

	next, err := s.boms.SubAssemblyIDs(ctx, current)
	if err != nil {
		return fmt.Errorf("walk sub-assembly edges of %s: %w", current, err)
	}
	for _, id := range next {
		if err := s.walkForCycle(ctx, rootID, id, append(path, current), visited); err != nil {
			return err
		}
	}
	return nil
}

// TreeNode BOM展开树节点
type TreeNode struct {
	Header *entity.BOMHeader `json:"header"`
	Level  int               `json:"level"`
	Items  []ItemNode        `json:"items"`
}

// ItemNode 树中的一个行项：material为叶子，sub_assembly挂嵌套子树
type ItemNode struct {
	Item  entity.BOMItem `json:"item"`
	Child *TreeNode      `json:"child,omitempty"`
}

// BuildTree 将BOM递归展开为展示/追溯树，深度优先，叶子是material行项。
// 环检测按路径集独立防御（正常情况下写入时已拦截，这里兜底
// 校验器上线前的旧数据或绕过接口的变更）。
func (s *BOMService) BuildTree(ctx context.Context, id string) (*TreeNode, error) {
	if node, ok := s.cache.Get(ctx, id); ok {
		return node, nil
	}

	node, err := s.expand(ctx, id, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, id, node)
	return node, nil
}

func (s *BOMService) expand(ctx context.Context, id string, level int, path map[string]bool) (*TreeNode, error) {
	if level >= maxTreeDepth {
		return nil, fmt.Errorf("%w: 深度超过%d层", ErrDepthExceeded, maxTreeDepth)
	}
	if path[id] {
		return nil, fmt.Errorf("%w: BOM %s 重复出现在展开路径上", ErrCycleDetected, id)
	}

	header, err := s.boms.FindWithItems(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if level == 0 {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: 子装配BOM %s 不存在", ErrReferenceNotFound, id)
		}
		return nil, fmt.Errorf("expand bom %s: %w", id, err)
	}
	if !header.IsActive {
		if level == 0 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: 子装配BOM %s 已停用", ErrReferenceNotFound, id)
	}

	path[id] = true
	defer delete(path, id)

	node := &TreeNode{
		Header: header,
		Level:  level,
		Items:  make([]ItemNode, 0, len(header.Items)),
	}
	for _, item := range header.Items {
		itemNode := ItemNode{Item: item}
		if item.Kind == entity.ItemKindSubAssembly && item.SubAssemblyID != nil {
			child, err := s.expand(ctx, *item.SubAssemblyID, level+1, path)
			if err != nil {
				return nil, err
			}
			itemNode.Child = child
		}
		node.Items = append(node.Items, itemNode)
	}
	return node, nil
}
