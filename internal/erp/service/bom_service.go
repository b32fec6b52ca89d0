package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/bitfantasy/nimo-erp/internal/erp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BOMStore BOM持久化协作方。gorm实现见 internal/erp/repository；
// 引擎测试使用内存实现。
type BOMStore interface {
	CreateWithItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error
	FindByID(ctx context.Context, id string) (*entity.BOMHeader, error)
	FindWithItems(ctx context.Context, id string) (*entity.BOMHeader, error)
	ListItems(ctx context.Context, bomID string) ([]entity.BOMItem, error)
	SubAssemblyIDs(ctx context.Context, bomID string) ([]string, error)
	ReplaceItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error
	UpdateHeaderCosts(ctx context.Context, header *entity.BOMHeader) error
	SoftDelete(ctx context.Context, id string) error
	MarkParentsStale(ctx context.Context, bomID string) error
	List(ctx context.Context, productID, costStatus string) ([]entity.BOMHeader, error)
	ListSubAssemblyCandidates(ctx context.Context, excludeID string) ([]entity.BOMHeader, error)
}

// ProductStore 产品主数据协作方，引擎只读取当前成本价
type ProductStore interface {
	FindActiveByID(ctx context.Context, id string) (*entity.Product, error)
}

type BOMService struct {
	boms     BOMStore
	products ProductStore
	cache    *TreeCache
}

func NewBOMService(boms BOMStore, products ProductStore, cache *TreeCache) *BOMService {
	return &BOMService{
		boms:     boms,
		products: products,
		cache:    cache,
	}
}

var (
	decimalZero    = decimal.Zero
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// ---- Input DTOs ----

type BOMItemInput struct {
	Kind          string          `json:"kind" binding:"required"`
	ProductID     *string         `json:"product_id"`
	SubAssemblyID *string         `json:"sub_assembly_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	Notes         string          `json:"notes"`
}

type CreateBOMInput struct {
	ProductID        string          `json:"product_id" binding:"required"`
	DerivedFromBOMID *string         `json:"derived_from_bom_id"`
	Version          string          `json:"version"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	Notes            string          `json:"notes"`
	Items            []BOMItemInput  `json:"items"`
}

type UpdateBOMInput struct {
	Version       string          `json:"version"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	Notes         string          `json:"notes"`
	Items         []BOMItemInput  `json:"items"`
}

type UpdateMarginInput struct {
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

// BOMCost 按数量折算的成本结果
type BOMCost struct {
	Quantity    decimal.Decimal `json:"quantity"`
	BaseCost    decimal.Decimal `json:"base_cost"`
	FinalCost   decimal.Decimal `json:"final_cost"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// SubAssemblyCandidate 可被引用为子装配的BOM摘要
type SubAssemblyCandidate struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Version    string          `json:"version"`
	FinalCost  decimal.Decimal `json:"final_cost"`
	CostStatus string          `json:"cost_status"`
}

// ---- 校验 ----

// buildItems 校验行项输入并生成行项实体（成本快照留待解析阶段填充）
func buildItems(bomID string, inputs []BOMItemInput) ([]entity.BOMItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: BOM至少需要一个行项", ErrValidation)
	}

	now := time.Now()
	items := make([]entity.BOMItem, 0, len(inputs))
	for i, input := range inputs {
		switch input.Kind {
		case entity.ItemKindMaterial:
			if input.ProductID == nil || *input.ProductID == "" {
				return nil, fmt.Errorf("%w: 第%d行缺少product_id", ErrValidation, i+1)
			}
			if input.SubAssemblyID != nil && *input.SubAssemblyID != "" {
				return nil, fmt.Errorf("%w: 第%d行material类型不允许设置sub_assembly_id", ErrValidation, i+1)
			}
		case entity.ItemKindSubAssembly:
			if input.SubAssemblyID == nil || *input.SubAssemblyID == "" {
				return nil, fmt.Errorf("%w: 第%d行缺少sub_assembly_id", ErrValidation, i+1)
			}
			if input.ProductID != nil && *input.ProductID != "" {
				return nil, fmt.Errorf("%w: 第%d行sub_assembly类型不允许设置product_id", ErrValidation, i+1)
			}
		default:
			return nil, fmt.Errorf("%w: 第%d行kind必须为material或sub_assembly", ErrValidation, i+1)
		}

		if !input.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: 第%d行数量必须大于0", ErrValidation, i+1)
		}

		unit := input.Unit
		if unit == "" {
			unit = "pcs"
		}

		items = append(items, entity.BOMItem{
			ID:            uuid.New().String()[:32],
			BOMID:         bomID,
			Kind:          input.Kind,
			ProductID:     input.ProductID,
			SubAssemblyID: input.SubAssemblyID,
			Quantity:      input.Quantity,
			Unit:          unit,
			SortOrder:     i + 1,
			Notes:         input.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return items, nil
}

func validateMargin(margin decimal.Decimal) error {
	if margin.IsNegative() {
		return fmt.Errorf("%w: 利润率不能为负", ErrValidation)
	}
	return nil
}

// ---- 行项解析 ----

// resolveUnitCost 解析行项的权威单位成本：
// material 取产品当前成本价，sub_assembly 取目标BOM已存储的最终成本。
// 解析失败直接中止整次计算，绝不以0成本兜底。
func (s *BOMService) resolveUnitCost(ctx context.Context, item *entity.BOMItem) (decimal.Decimal, error) {
	switch item.Kind {
	case entity.ItemKindMaterial:
		product, err := s.products.FindActiveByID(ctx, *item.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return decimalZero, fmt.Errorf("%w: 产品 %s 不存在或已停用", ErrReferenceNotFound, *item.ProductID)
			}
			return decimalZero, fmt.Errorf("resolve material %s: %w", *item.ProductID, err)
		}
		return product.CostPrice, nil

	case entity.ItemKindSubAssembly:
		sub, err := s.boms.FindByID(ctx, *item.SubAssemblyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return decimalZero, fmt.Errorf("%w: 子装配BOM %s 不存在", ErrReferenceNotFound, *item.SubAssemblyID)
			}
			return decimalZero, fmt.Errorf("resolve sub-assembly %s: %w", *item.SubAssemblyID, err)
		}
		if !sub.IsActive {
			return decimalZero, fmt.Errorf("%w: 子装配BOM %s 已停用", ErrReferenceNotFound, *item.SubAssemblyID)
		}
		if !sub.HasComputedCost() {
			return decimalZero, fmt.Errorf("%w: 子装配BOM %s 尚未计算成本", ErrUnresolvedCost, *item.SubAssemblyID)
		}
		return sub.FinalCost, nil

	default:
		return decimalZero, fmt.Errorf("%w: 未知行项类型 %s", ErrValidation, item.Kind)
	}
}

// computeCosts 逐项解析成本并写入快照，返回基础成本和加成后最终成本。
// baseCost = Σ quantity × unitCost；finalCost = baseCost × (1 + margin/100)。
func (s *BOMService) computeCosts(ctx context.Context, items []entity.BOMItem, margin decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	base := decimalZero
	for i := range items {
		unitCost, err := s.resolveUnitCost(ctx, &items[i])
		if err != nil {
			return decimalZero, decimalZero, err
		}
		items[i].UnitCost = unitCost
		items[i].TotalCost = items[i].Quantity.Mul(unitCost).Round(4)
		base = base.Add(items[i].TotalCost)
	}
	final := applyMargin(base, margin)
	return base, final, nil
}

func applyMargin(base, margin decimal.Decimal) decimal.Decimal {
	factor := decimalOne.Add(margin.Div(decimalHundred))
	return base.Mul(factor).Round(4)
}

// ---- 对外操作 ----

// CreateBOM 创建BOM：校验 → 环检测 → 成本解析 → 单事务落库
func (s *BOMService) CreateBOM(ctx context.Context, input *CreateBOMInput, createdBy string) (*entity.BOMHeader, error) {
	if err := validateMargin(input.MarginPercent); err != nil {
		return nil, err
	}
	if _, err := s.products.FindActiveByID(ctx, input.ProductID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 成品 %s 不存在或已停用", ErrReferenceNotFound, input.ProductID)
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	// 血缘引用只做存在性校验，不参与图遍历
	if input.DerivedFromBOMID != nil && *input.DerivedFromBOMID != "" {
		if _, err := s.boms.FindByID(ctx, *input.DerivedFromBOMID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: 模板BOM %s 不存在", ErrReferenceNotFound, *input.DerivedFromBOMID)
			}
			return nil, fmt.Errorf("find template bom: %w", err)
		}
	}

	id := uuid.New().String()[:32]
	items, err := buildItems(id, input.Items)
	if err != nil {
		return nil, err
	}
	if err := s.assertAcyclic(ctx, id, items); err != nil {
		return nil, err
	}

	base, final, err := s.computeCosts(ctx, items, input.MarginPercent)
	if err != nil {
		return nil, err
	}

	version := input.Version
	if version == "" {
		version = "v1.0"
	}
	now := time.Now()
	header := &entity.BOMHeader{
		ID:               id,
		ProductID:        input.ProductID,
		DerivedFromBOMID: input.DerivedFromBOMID,
		Version:          version,
		MarginPercent:    input.MarginPercent,
		BaseCost:         base,
		FinalCost:        final,
		CostStatus:       entity.CostStatusComputed,
		IsActive:         true,
		TotalItems:       len(items),
		Notes:            input.Notes,
		CostComputedAt:   &now,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.boms.CreateWithItems(ctx, header, items); err != nil {
		return nil, fmt.Errorf("create bom: %w", err)
	}
	header.Items = items
	return header, nil
}

// UpdateBOM 整体替换行项并重算成本（单事务，乐观锁）
func (s *BOMService) UpdateBOM(ctx context.Context, id string, input *UpdateBOMInput) (*entity.BOMHeader, error) {
	if err := validateMargin(input.MarginPercent); err != nil {
		return nil, err
	}
	header, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := buildItems(id, input.Items)
	if err != nil {
		return nil, err
	}
	if err := s.assertAcyclic(ctx, id, items); err != nil {
		return nil, err
	}

	base, final, err := s.computeCosts(ctx, items, input.MarginPercent)
	if err != nil {
		return nil, err
	}

	if input.Version != "" {
		header.Version = input.Version
	}
	if input.Notes != "" {
		header.Notes = input.Notes
	}
	now := time.Now()
	header.MarginPercent = input.MarginPercent
	header.BaseCost = base
	header.FinalCost = final
	header.CostStatus = entity.CostStatusComputed
	header.CostComputedAt = &now
	header.TotalItems = len(items)

	if err := s.boms.ReplaceItems(ctx, header, items); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("replace items: %w", err)
	}
	header.LockVersion++
	header.Items = items

	// 本BOM最终成本已变化，直接父BOM的快照过期
	if err := s.boms.MarkParentsStale(ctx, id); err != nil {
		return nil, fmt.Errorf("mark parents stale: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return header, nil
}

// UpdateMargin 只按已存储基础成本重算最终成本，不重走行项解析，
// 也不级联重算任何父BOM（父BOM只标记为stale）。
func (s *BOMService) UpdateMargin(ctx context.Context, id string, margin decimal.Decimal) (*entity.BOMHeader, error) {
	if err := validateMargin(margin); err != nil {
		return nil, err
	}
	header, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !header.HasComputedCost() {
		return nil, fmt.Errorf("%w: BOM %s 尚未计算成本，无法调整利润率", ErrUnresolvedCost, id)
	}

	header.MarginPercent = margin
	header.FinalCost = applyMargin(header.BaseCost, margin)

	if err := s.boms.UpdateHeaderCosts(ctx, header); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("update margin: %w", err)
	}
	header.LockVersion++

	if err := s.boms.MarkParentsStale(ctx, id); err != nil {
		return nil, fmt.Errorf("mark parents stale: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return header, nil
}

// Recompute 显式重算：用当前存储的行项数量、最新解析的单位成本刷新快照，
// stale → computed 的唯一途径。
func (s *BOMService) Recompute(ctx context.Context, id string) (*entity.BOMHeader, error) {
	header, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.boms.ListItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: BOM没有行项，无法重算", ErrValidation)
	}
	if err := s.assertAcyclic(ctx, id, items); err != nil {
		return nil, err
	}

	base, final, err := s.computeCosts(ctx, items, header.MarginPercent)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	header.BaseCost = base
	header.FinalCost = final
	header.CostStatus = entity.CostStatusComputed
	header.CostComputedAt = &now

	if err := s.boms.ReplaceItems(ctx, header, items); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("recompute: %w", err)
	}
	header.LockVersion++
	header.Items = items

	if err := s.boms.MarkParentsStale(ctx, id); err != nil {
		return nil, fmt.Errorf("mark parents stale: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return header, nil
}

// GetBOM 获取BOM头和行项
func (s *BOMService) GetBOM(ctx context.Context, id string) (*entity.BOMHeader, error) {
	header, err := s.boms.FindWithItems(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bom: %w", err)
	}
	if !header.IsActive {
		return nil, ErrNotFound
	}
	return header, nil
}

// GetCost 按生产数量折算成本。只做存量折算，不触发任何重算。
func (s *BOMService) GetCost(ctx context.Context, id string, quantity decimal.Decimal) (*BOMCost, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: 数量必须大于0", ErrValidation)
	}
	header, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !header.HasComputedCost() {
		return nil, fmt.Errorf("%w: BOM %s 尚未计算成本", ErrUnresolvedCost, id)
	}
	return &BOMCost{
		Quantity:    quantity,
		BaseCost:    header.BaseCost.Mul(quantity).Round(4),
		FinalCost:   header.FinalCost.Mul(quantity).Round(4),
		CostPerUnit: header.FinalCost,
	}, nil
}

// DeleteBOM 软删除（翻转active标志）。引用它的父BOM标记为stale，
// 其下次重算会以 ReferenceNotFound 显式暴露悬空引用。
func (s *BOMService) DeleteBOM(ctx context.Context, id string) error {
	if err := s.boms.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete bom: %w", err)
	}
	if err := s.boms.MarkParentsStale(ctx, id); err != nil {
		return fmt.Errorf("mark parents stale: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// ListBOMs 按产品/成本状态筛选启用BOM
func (s *BOMService) ListBOMs(ctx context.Context, productID, costStatus string) ([]entity.BOMHeader, error) {
	return s.boms.List(ctx, productID, costStatus)
}

// ListSubAssemblyCandidates 可被引用为子装配的BOM列表。
// 排除自身、停用和从未算过成本的BOM。
func (s *BOMService) ListSubAssemblyCandidates(ctx context.Context, excludeID string) ([]SubAssemblyCandidate, error) {
	headers, err := s.boms.ListSubAssemblyCandidates(ctx, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	candidates := make([]SubAssemblyCandidate, 0, len(headers))
	for _, h := range headers {
		candidates = append(candidates, SubAssemblyCandidate{
			ID:         h.ID,
			ProductID:  h.ProductID,
			Version:    h.Version,
			FinalCost:  h.FinalCost,
			CostStatus: h.CostStatus,
		})
	}
	return candidates, nil
}

// findActive 读取BOM头，停用视为不存在
func (s *BOMService) findActive(ctx context.Context, id string) (*entity.BOMHeader, error) {
	header, err := s.boms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find bom: %w", err)
	}
	if !header.IsActive {
		return nil, ErrNotFound
	}
	return header, nil
}
