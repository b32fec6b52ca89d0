package repository

import (
	"context"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindActiveByID 查找启用状态的产品（软删除和停用的都视为不存在）
func (r *ProductRepository) FindActiveByID(ctx context.Context, id string) (*entity.Product, error) {
	var product entity.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, entity.ProductStatusActive).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// Create 创建产品（测试数据和外围系统导入使用）
func (r *ProductRepository) Create(ctx context.Context, product *entity.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}
