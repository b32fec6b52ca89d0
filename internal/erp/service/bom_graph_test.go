package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/bitfantasy/nimo-erp/internal/erp/testutil"
)

// rawBOM 直接向存储写入一个头+行项，绕过服务层校验，
// 用于构造校验器上线前可能存在的损坏数据。
func rawBOM(boms *testutil.MemBOMStore, id string, subIDs ...string) {
	items := make([]entity.BOMItem, 0, len(subIDs))
	for i, subID := range subIDs {
		sid := subID
		items = append(items, entity.BOMItem{
			ID:            fmt.Sprintf("%s-item-%d", id, i),
			BOMID:         id,
			Kind:          entity.ItemKindSubAssembly,
			SubAssemblyID: &sid,
			Quantity:      dec("1"),
			SortOrder:     i + 1,
		})
	}
	boms.Put(&entity.BOMHeader{
		ID: id, ProductID: "prod-" + id, Version: "v1.0",
		CostStatus: entity.CostStatusComputed, IsActive: true,
	}, items)
}

func TestBuildTreeThreeLevels(t *testing.T) {
	svc, _, products := newTestService(t)
	seedProduct(products, "mat-screw", "螺丝", "10")
	seedProduct(products, "prod-board", "主板", "0")
	seedProduct(products, "prod-machine", "整机", "0")
	ctx := context.Background()

	leaf := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "mat-screw",
		Items:     []BOMItemInput{materialItem("mat-screw", "2")},
	})
	mid := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "prod-board",
		Items: []BOMItemInput{
			materialItem("mat-screw", "4"),
			subAssemblyItem(leaf.ID, "1"),
		},
	})
	root := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "prod-machine",
		Items:     []BOMItemInput{subAssemblyItem(mid.ID, "2")},
	})

	tree, err := svc.BuildTree(ctx, root.ID)
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}

	if tree.Level != 0 || tree.Header.ID != root.ID {
		t.Fatalf("Expected root at level 0, got level %d id %s", tree.Level, tree.Header.ID)
	}
	if len(tree.Items) != 1 || tree.Items[0].Child == nil {
		t.Fatal("Expected root to have one sub-assembly child")
	}

	midNode := tree.Items[0].Child
	if midNode.Level != 1 || midNode.Header.ID != mid.ID {
		t.Errorf("Expected mid at level 1, got level %d id %s", midNode.Level, midNode.Header.ID)
	}
	if len(midNode.Items) != 2 {
		t.Fatalf("Expected 2 items in mid node, got %d", len(midNode.Items))
	}
	// material行项是叶子，不挂子树
	if midNode.Items[0].Child != nil {
		t.Error("Expected material item to be a leaf")
	}

	leafNode := midNode.Items[1].Child
	if leafNode == nil || leafNode.Level != 2 || leafNode.Header.ID != leaf.ID {
		t.Fatalf("Expected leaf BOM at level 2, got %+v", leafNode)
	}
	if leafNode.Items[0].Child != nil {
		t.Error("Expected leaf BOM items to be materials only")
	}
}

func TestBuildTreeNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.BuildTree(context.Background(), "bom-ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBuildTreeDanglingReference(t *testing.T) {
	svc, boms, _ := newTestService(t)
	rawBOM(boms, "bom-root", "bom-ghost")

	_, err := svc.BuildTree(context.Background(), "bom-root")
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Expected ErrReferenceNotFound for dangling edge, got %v", err)
	}
}

func TestBuildTreeDetectsCycleInStoredData(t *testing.T) {
	svc, boms, _ := newTestService(t)
	// 绕过写入校验构造 A -> B -> A
	rawBOM(boms, "bom-a", "bom-b")
	rawBOM(boms, "bom-b", "bom-a")

	_, err := svc.BuildTree(context.Background(), "bom-a")
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Expected ErrCycleDetected, got %v", err)
	}
}

func TestBuildTreeDepthBound(t *testing.T) {
	svc, boms, _ := newTestService(t)

	// 构造一条超过深度上限的链
	depth := maxTreeDepth + 5
	for i := 0; i < depth; i++ {
		id := fmt.Sprintf("bom-%03d", i)
		if i == depth-1 {
			rawBOM(boms, id)
		} else {
			rawBOM(boms, id, fmt.Sprintf("bom-%03d", i+1))
		}
	}

	_, err := svc.BuildTree(context.Background(), "bom-000")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Expected ErrDepthExceeded, got %v", err)
	}
}

func TestBuildTreeSharedSubAssemblyIsNotACycle(t *testing.T) {
	svc, _, products := newTestService(t)
	seedProduct(products, "mat-screw", "螺丝", "10")
	seedProduct(products, "prod-a", "部件A", "0")
	seedProduct(products, "prod-b", "部件B", "0")
	seedProduct(products, "prod-machine", "整机", "0")
	ctx := context.Background()

	shared := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "mat-screw",
		Items:     []BOMItemInput{materialItem("mat-screw", "1")},
	})
	a := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "prod-a",
		Items:     []BOMItemInput{subAssemblyItem(shared.ID, "1")},
	})
	b := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "prod-b",
		Items:     []BOMItemInput{subAssemblyItem(shared.ID, "2")},
	})
	root := mustCreateBOM(t, svc, &CreateBOMInput{
		ProductID: "prod-machine",
		Items: []BOMItemInput{
			subAssemblyItem(a.ID, "1"),
			subAssemblyItem(b.ID, "1"),
		},
	})

	// 菱形共享（DAG）合法，同一子装配可以出现在多条路径上
	tree, err := svc.BuildTree(ctx, root.ID)
	if err != nil {
		t.Fatalf("BuildTree failed on diamond DAG: %v", err)
	}
	if len(tree.Items) != 2 {
		t.Fatalf("Expected 2 branches, got %d", len(tree.Items))
	}
	for _, branch := range tree.Items {
		if branch.Child == nil || len(branch.Child.Items) != 1 || branch.Child.Items[0].Child == nil {
			t.Fatal("Expected shared sub-assembly expanded under both branches")
		}
		if branch.Child.Items[0].Child.Header.ID != shared.ID {
			t.Errorf("Expected shared BOM %s in branch", shared.ID)
		}
	}
}
