package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/xuri/excelize/v2"
)

var bomExportHeaders = []string{
	"层级", "类型", "名称", "引用", "数量", "单位", "单位成本", "小计", "备注",
}

// ExportBOM 将BOM成本树导出为xlsx：每个树行一条记录，按层级缩进，
// 底部汇总基础成本/利润率/最终成本。
func (s *BOMService) ExportBOM(ctx context.Context, id string) (*excelize.File, string, error) {
	tree, err := s.BuildTree(ctx, id)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "BOM成本"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range bomExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	row := 2
	writeTreeRows(f, sheet, tree, &row)

	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", row), fmt.Sprintf("基础成本: %s", tree.Header.BaseCost.StringFixed(4)))
	f.SetCellValue(sheet, fmt.Sprintf("E%d", row), fmt.Sprintf("利润率: %s%%", tree.Header.MarginPercent.String()))
	f.SetCellValue(sheet, fmt.Sprintf("H%d", row), tree.Header.FinalCost.StringFixed(4))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), summaryStyle)

	colWidths := []float64{8, 14, 28, 34, 10, 8, 12, 12, 24}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("BOM_%s_%s.xlsx", tree.Header.ID, tree.Header.Version)
	return f, filename, nil
}

// writeTreeRows 深度优先写出树行，子树紧跟在其行项之后
func writeTreeRows(f *excelize.File, sheet string, node *TreeNode, row *int) {
	for _, itemNode := range node.Items {
		item := itemNode.Item
		indent := strings.Repeat("  ", node.Level)

		name := ""
		ref := ""
		kind := "物料"
		if item.Kind == entity.ItemKindMaterial {
			if item.Product != nil {
				name = item.Product.Name
				ref = item.Product.Code
			} else if item.ProductID != nil {
				ref = *item.ProductID
			}
		} else {
			kind = "子装配"
			if itemNode.Child != nil {
				name = fmt.Sprintf("BOM %s", itemNode.Child.Header.Version)
			}
			if item.SubAssemblyID != nil {
				ref = *item.SubAssemblyID
			}
		}

		f.SetCellValue(sheet, fmt.Sprintf("A%d", *row), node.Level)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", *row), kind)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", *row), indent+name)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", *row), ref)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", *row), item.Quantity.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("F%d", *row), item.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", *row), item.UnitCost.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("H%d", *row), item.TotalCost.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("I%d", *row), item.Notes)
		*row++

		if itemNode.Child != nil {
			writeTreeRows(f, sheet, itemNode.Child, row)
		}
	}
}
