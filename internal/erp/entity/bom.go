package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BOMItemKind BOM行项类型
const (
	ItemKindMaterial    = "material"
	ItemKindSubAssembly = "sub_assembly"
)

// BOM成本状态
const (
	CostStatusUncomputed = "uncomputed"
	CostStatusComputed   = "computed"
	CostStatusStale      = "stale"
)

// BOMHeader BOM头表
type BOMHeader struct {
	ID                string          `json:"id" gorm:"primaryKey;size:32"`
	ProductID         string          `json:"product_id" gorm:"size:32;not null;index"`
	DerivedFromBOMID  *string         `json:"derived_from_bom_id,omitempty" gorm:"size:32"` // 模板/血缘引用，不参与图遍历
	Version           string          `json:"version" gorm:"size:16;not null;default:v1.0"`
	MarginPercent     decimal.Decimal `json:"margin_percent" gorm:"type:numeric(7,3);not null;default:0"`
	BaseCost          decimal.Decimal `json:"base_cost" gorm:"type:numeric(15,4);not null;default:0"`
	FinalCost         decimal.Decimal `json:"final_cost" gorm:"type:numeric(15,4);not null;default:0"`
	CostStatus        string          `json:"cost_status" gorm:"size:16;not null;default:uncomputed"` // uncomputed/computed/stale
	IsActive          bool            `json:"is_active" gorm:"not null;default:true;index"`
	LockVersion       int             `json:"lock_version" gorm:"not null;default:0"`
	TotalItems        int             `json:"total_items" gorm:"not null;default:0"`
	Notes             string          `json:"notes,omitempty" gorm:"type:text"`
	CostComputedAt    *time.Time      `json:"cost_computed_at,omitempty"`
	CreatedBy         string          `json:"created_by" gorm:"size:32;not null"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// 关联
	Product *Product  `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Items   []BOMItem `json:"items,omitempty" gorm:"foreignKey:BOMID"`
}

func (BOMHeader) TableName() string {
	return "bom_headers"
}

// HasComputedCost 成本是否已计算过（computed或stale都算已计算）
func (h *BOMHeader) HasComputedCost() bool {
	return h.CostStatus == CostStatusComputed || h.CostStatus == CostStatusStale
}

// BOMItem BOM行项：material引用产品，sub_assembly引用另一个BOM头
type BOMItem struct {
	ID            string          `json:"id" gorm:"primaryKey;size:32"`
	BOMID         string          `json:"bom_id" gorm:"size:32;not null;index"`
	Kind          string          `json:"kind" gorm:"size:16;not null"` // material/sub_assembly
	ProductID     *string         `json:"product_id,omitempty" gorm:"size:32"`
	SubAssemblyID *string         `json:"sub_assembly_id,omitempty" gorm:"size:32;index"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"type:numeric(15,4);not null"`
	Unit          string          `json:"unit" gorm:"size:16;not null;default:pcs"`
	UnitCost      decimal.Decimal `json:"unit_cost" gorm:"type:numeric(15,4);not null;default:0"` // 上次计算时的单位成本快照
	TotalCost     decimal.Decimal `json:"total_cost" gorm:"type:numeric(15,4);not null;default:0"`
	SortOrder     int             `json:"sort_order" gorm:"not null;default:0"`
	Notes         string          `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// 关联
	Product     *Product   `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	SubAssembly *BOMHeader `json:"sub_assembly,omitempty" gorm:"foreignKey:SubAssemblyID"`
}

func (BOMItem) TableName() string {
	return "bom_items"
}
