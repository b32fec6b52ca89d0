package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 产品状态
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Product 产品/物料实体。BOM引擎只读取其当前成本价，
// 维护（CRUD、库存、采购）由外围系统负责。
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;size:32"`
	Code        string          `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name        string          `json:"name" gorm:"size:128;not null"`
	Status      string          `json:"status" gorm:"size:16;not null;default:active"`
	Unit        string          `json:"unit" gorm:"size:16;not null;default:pcs"`
	CostPrice   decimal.Decimal `json:"cost_price" gorm:"type:numeric(15,4);not null;default:0"`
	Description string          `json:"description,omitempty" gorm:"type:text"`
	CreatedBy   string          `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" gorm:"index"`
}

func (Product) TableName() string {
	return "products"
}
