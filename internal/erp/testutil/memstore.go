package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/bitfantasy/nimo-erp/internal/erp/repository"
)

// MemProductStore 产品主数据的内存实现，引擎测试不依赖数据库
type MemProductStore struct {
	mu       sync.Mutex
	products map[string]*entity.Product
}

func NewMemProductStore() *MemProductStore {
	return &MemProductStore{products: make(map[string]*entity.Product)}
}

func (s *MemProductStore) Put(p *entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
}

// Deactivate 模拟产品被删除/停用
func (s *MemProductStore) Deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		now := time.Now()
		p.DeletedAt = &now
	}
}

func (s *MemProductStore) FindActiveByID(ctx context.Context, id string) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || p.Status != entity.ProductStatusActive || p.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// MemBOMStore BOM持久化的内存实现。乐观锁语义与gorm实现一致：
// 写入时校验lock_version，不匹配返回ErrConflict。
type MemBOMStore struct {
	mu      sync.Mutex
	headers map[string]*entity.BOMHeader
	items   map[string][]entity.BOMItem

	// OnBeforeWrite 在写入前触发，用于模拟并发提交
	OnBeforeWrite func()
}

func NewMemBOMStore() *MemBOMStore {
	return &MemBOMStore{
		headers: make(map[string]*entity.BOMHeader),
		items:   make(map[string][]entity.BOMItem),
	}
}

// Put 直接写入存储，绕过服务层校验（用于构造测试前置数据）
func (s *MemBOMStore) Put(header *entity.BOMHeader, items []entity.BOMItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *header
	cp.Items = nil
	s.headers[header.ID] = &cp
	s.items[header.ID] = append([]entity.BOMItem{}, items...)
}

// Header 读取存储中的头记录副本
func (s *MemBOMStore) Header(id string) *entity.BOMHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

func (s *MemBOMStore) CreateWithItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error {
	s.Put(header, items)
	return nil
}

func (s *MemBOMStore) FindByID(ctx context.Context, id string) (*entity.BOMHeader, error) {
	h := s.Header(id)
	if h == nil {
		return nil, repository.ErrNotFound
	}
	return h, nil
}

func (s *MemBOMStore) FindWithItems(ctx context.Context, id string) (*entity.BOMHeader, error) {
	h := s.Header(id)
	if h == nil {
		return nil, repository.ErrNotFound
	}
	items, _ := s.ListItems(ctx, id)
	h.Items = items
	return h, nil
}

func (s *MemBOMStore) ListItems(ctx context.Context, bomID string) ([]entity.BOMItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]entity.BOMItem{}, s.items[bomID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (s *MemBOMStore) SubAssemblyIDs(ctx context.Context, bomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, item := range s.items[bomID] {
		if item.Kind == entity.ItemKindSubAssembly && item.SubAssemblyID != nil {
			ids = append(ids, *item.SubAssemblyID)
		}
	}
	return ids, nil
}

func (s *MemBOMStore) ReplaceItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error {
	if s.OnBeforeWrite != nil {
		s.OnBeforeWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.headers[header.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.LockVersion != header.LockVersion {
		return repository.ErrConflict
	}
	cp := *header
	cp.Items = nil
	cp.LockVersion++
	s.headers[header.ID] = &cp
	s.items[header.ID] = append([]entity.BOMItem{}, items...)
	return nil
}

func (s *MemBOMStore) UpdateHeaderCosts(ctx context.Context, header *entity.BOMHeader) error {
	if s.OnBeforeWrite != nil {
		s.OnBeforeWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.headers[header.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.LockVersion != header.LockVersion {
		return repository.ErrConflict
	}
	stored.MarginPercent = header.MarginPercent
	stored.BaseCost = header.BaseCost
	stored.FinalCost = header.FinalCost
	stored.CostStatus = header.CostStatus
	stored.LockVersion++
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *MemBOMStore) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok || !h.IsActive {
		return repository.ErrNotFound
	}
	h.IsActive = false
	h.UpdatedAt = time.Now()
	return nil
}

func (s *MemBOMStore) MarkParentsStale(ctx context.Context, bomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.headers {
		if !h.IsActive || h.CostStatus != entity.CostStatusComputed {
			continue
		}
		for _, item := range s.items[id] {
			if item.Kind == entity.ItemKindSubAssembly && item.SubAssemblyID != nil && *item.SubAssemblyID == bomID {
				h.CostStatus = entity.CostStatusStale
				break
			}
		}
	}
	return nil
}

func (s *MemBOMStore) List(ctx context.Context, productID, costStatus string) ([]entity.BOMHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.BOMHeader
	for _, h := range s.headers {
		if !h.IsActive {
			continue
		}
		if productID != "" && h.ProductID != productID {
			continue
		}
		if costStatus != "" && h.CostStatus != costStatus {
			continue
		}
		out = append(out, *h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemBOMStore) ListSubAssemblyCandidates(ctx context.Context, excludeID string) ([]entity.BOMHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.BOMHeader
	for _, h := range s.headers {
		if !h.IsActive || h.ID == excludeID || h.CostStatus == entity.CostStatusUncomputed {
			continue
		}
		out = append(out, *h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
