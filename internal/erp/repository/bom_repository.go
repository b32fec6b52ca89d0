package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"gorm.io/gorm"
)

type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// CreateWithItems 创建BOM头和全部行项（单事务）
func (r *BOMRepository) CreateWithItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(header).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID 根据ID查找BOM头（不含行项）
func (r *BOMRepository) FindByID(ctx context.Context, id string) (*entity.BOMHeader, error) {
	var header entity.BOMHeader
	err := r.db.WithContext(ctx).First(&header, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &header, nil
}

// FindWithItems 根据ID查找BOM头及行项（按sort_order排序）
func (r *BOMRepository) FindWithItems(ctx context.Context, id string) (*entity.BOMHeader, error) {
	var header entity.BOMHeader
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Items.Product").
		First(&header, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &header, nil
}

// ListItems 获取BOM的全部行项
func (r *BOMRepository) ListItems(ctx context.Context, bomID string) ([]entity.BOMItem, error) {
	var items []entity.BOMItem
	err := r.db.WithContext(ctx).
		Where("bom_id = ?", bomID).
		Order("sort_order ASC").
		Find(&items).Error
	return items, err
}

// SubAssemblyIDs 获取BOM直接引用的子装配ID集合
func (r *BOMRepository) SubAssemblyIDs(ctx context.Context, bomID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.BOMItem{}).
		Where("bom_id = ? AND kind = ?", bomID, entity.ItemKindSubAssembly).
		Pluck("sub_assembly_id", &ids).Error
	return ids, err
}

// ReplaceItems 整体替换BOM行项并写回头表成本，单事务+乐观锁。
// header.LockVersion 必须是读取时的值；版本已变化时返回 ErrConflict，事务回滚。
func (r *BOMRepository) ReplaceItems(ctx context.Context, header *entity.BOMHeader, items []entity.BOMItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.BOMHeader{}).
			Where("id = ? AND lock_version = ?", header.ID, header.LockVersion).
			Updates(map[string]interface{}{
				"version":          header.Version,
				"margin_percent":   header.MarginPercent,
				"base_cost":        header.BaseCost,
				"final_cost":       header.FinalCost,
				"cost_status":      header.CostStatus,
				"cost_computed_at": header.CostComputedAt,
				"total_items":      len(items),
				"notes":            header.Notes,
				"lock_version":     gorm.Expr("lock_version + 1"),
				"updated_at":       time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := tx.Delete(&entity.BOMItem{}, "bom_id = ?", header.ID).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateHeaderCosts 只更新头表成本字段（利润率调整），不触碰行项。乐观锁同上。
func (r *BOMRepository) UpdateHeaderCosts(ctx context.Context, header *entity.BOMHeader) error {
	res := r.db.WithContext(ctx).Model(&entity.BOMHeader{}).
		Where("id = ? AND lock_version = ?", header.ID, header.LockVersion).
		Updates(map[string]interface{}{
			"margin_percent": header.MarginPercent,
			"final_cost":     header.FinalCost,
			"cost_status":    header.CostStatus,
			"lock_version":   gorm.Expr("lock_version + 1"),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SoftDelete 软删除BOM（翻转active标志，从不物理删除）
func (r *BOMRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&entity.BOMHeader{}).
		Where("id = ? AND is_active = true", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkParentsStale 将直接引用bomID作为子装配的启用BOM标记为成本过期
func (r *BOMRepository) MarkParentsStale(ctx context.Context, bomID string) error {
	sub := r.db.Model(&entity.BOMItem{}).
		Select("bom_id").
		Where("sub_assembly_id = ? AND kind = ?", bomID, entity.ItemKindSubAssembly)
	return r.db.WithContext(ctx).Model(&entity.BOMHeader{}).
		Where("id IN (?) AND is_active = true AND cost_status = ?", sub, entity.CostStatusComputed).
		Updates(map[string]interface{}{
			"cost_status": entity.CostStatusStale,
			"updated_at":  time.Now(),
		}).Error
}

// List 按产品/成本状态筛选启用BOM列表
func (r *BOMRepository) List(ctx context.Context, productID, costStatus string) ([]entity.BOMHeader, error) {
	var headers []entity.BOMHeader
	query := r.db.WithContext(ctx).Where("is_active = true")
	if productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	if costStatus != "" {
		query = query.Where("cost_status = ?", costStatus)
	}
	err := query.Order("created_at DESC").Find(&headers).Error
	return headers, err
}

// ListSubAssemblyCandidates 可被引用为子装配的BOM：启用、成本已计算、排除指定ID
func (r *BOMRepository) ListSubAssemblyCandidates(ctx context.Context, excludeID string) ([]entity.BOMHeader, error) {
	var headers []entity.BOMHeader
	query := r.db.WithContext(ctx).
		Where("is_active = true AND cost_status <> ?", entity.CostStatusUncomputed)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Order("created_at DESC").Find(&headers).Error
	return headers, err
}
