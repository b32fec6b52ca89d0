package service

import (
	"github.com/bitfantasy/nimo-erp/internal/erp/repository"
)

// Services ERP 服务集合
type Services struct {
	BOM *BOMService
}

func NewServices(repos *repository.Repositories, cache *TreeCache) *Services {
	return &Services{
		BOM: NewBOMService(repos.BOM, repos.Product, cache),
	}
}
