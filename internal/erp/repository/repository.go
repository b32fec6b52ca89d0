package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrConflict 乐观锁版本冲突
var ErrConflict = errors.New("version conflict")

// Repositories ERP 仓库集合
type Repositories struct {
	Product *ProductRepository
	BOM     *BOMRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product: NewProductRepository(db),
		BOM:     NewBOMRepository(db),
	}
}

// translate 将gorm错误转换为仓库层错误
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
