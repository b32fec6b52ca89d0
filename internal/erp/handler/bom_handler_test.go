package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-erp/internal/erp/entity"
	"github.com/bitfantasy/nimo-erp/internal/erp/service"
	"github.com/bitfantasy/nimo-erp/internal/erp/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func setupBOMTest(t *testing.T) (*gin.Engine, *testutil.MemProductStore) {
	t.Helper()
	boms := testutil.NewMemBOMStore()
	products := testutil.NewMemProductStore()

	svc := service.NewBOMService(boms, products, nil)
	h := NewBOMHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1/erp")

	group := api.Group("/boms")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/sub-assembly-candidates", h.ListSubAssemblyCandidates)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.PUT("/:id/margin", h.UpdateMargin)
	group.POST("/:id/recompute", h.Recompute)
	group.GET("/:id/tree", h.GetTree)
	group.GET("/:id/cost", h.GetCost)
	group.GET("/:id/export", h.Export)

	return router, products
}

func seedProduct(products *testutil.MemProductStore, id, costPrice string) {
	products.Put(&entity.Product{
		ID:        id,
		Code:      "MAT-" + id,
		Name:      "测试物料 " + id,
		Status:    entity.ProductStatusActive,
		Unit:      "pcs",
		CostPrice: decimal.RequireFromString(costPrice),
	})
}

func createBOM(t *testing.T, router *gin.Engine, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/erp/boms", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

func simpleBOMBody(productID, quantity, margin string) map[string]interface{} {
	return map[string]interface{}{
		"product_id":     productID,
		"margin_percent": margin,
		"items": []map[string]interface{}{
			{"kind": "material", "product_id": productID, "quantity": quantity},
		},
	}
}

func TestBOMCreateHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))

	if bom["id"] == nil || bom["id"] == "" {
		t.Error("Expected non-empty id")
	}
	if bom["base_cost"] != "20" {
		t.Errorf("Expected base_cost 20, got %v", bom["base_cost"])
	}
	if bom["final_cost"] != "24" {
		t.Errorf("Expected final_cost 24, got %v", bom["final_cost"])
	}
	if bom["cost_status"] != "computed" {
		t.Errorf("Expected cost_status computed, got %v", bom["cost_status"])
	}
	if bom["created_by"] != "test-user-001" {
		t.Errorf("Expected created_by from token, got %v", bom["created_by"])
	}
}

func TestBOMCreateUnauthorized(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")

	w := testutil.DoRequest(router, "POST", "/api/v1/erp/boms", simpleBOMBody("mat-001", "1", "0"), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestBOMCreateValidationHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/erp/boms",
		simpleBOMBody("mat-001", "0", "0"), token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40000 {
		t.Errorf("Expected code 40000, got %v", resp["code"])
	}
}

func TestBOMGetHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))
	id := bom["id"].(string)

	w := testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+id, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	// 不存在的BOM返回404
	w = testutil.DoRequest(router, "GET", "/api/v1/erp/boms/bom-ghost", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestBOMUpdateMarginHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))
	id := bom["id"].(string)

	w := testutil.DoRequest(router, "PUT", "/api/v1/erp/boms/"+id+"/margin",
		map[string]interface{}{"margin_percent": "50"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["final_cost"] != "30" {
		t.Errorf("Expected final_cost 30 after margin change, got %v", data["final_cost"])
	}
}

func TestBOMCycleHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	seedProduct(products, "prod-001", "0")
	token := testutil.DefaultTestToken()

	a := createBOM(t, router, token, simpleBOMBody("mat-001", "1", "0"))
	aID := a["id"].(string)

	b := createBOM(t, router, token, map[string]interface{}{
		"product_id": "prod-001",
		"items": []map[string]interface{}{
			{"kind": "sub_assembly", "sub_assembly_id": aID, "quantity": "1"},
		},
	})
	bID := b["id"].(string)

	// A引用B会形成环，应被409拒绝
	w := testutil.DoRequest(router, "PUT", "/api/v1/erp/boms/"+aID, map[string]interface{}{
		"items": []map[string]interface{}{
			{"kind": "sub_assembly", "sub_assembly_id": bID, "quantity": "1"},
		},
	}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40900 {
		t.Errorf("Expected code 40900, got %v", resp["code"])
	}
}

func TestBOMGetCostHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))
	id := bom["id"].(string)

	w := testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+id+"/cost?quantity=3", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["final_cost"] != "72" {
		t.Errorf("Expected final_cost 72 for 3 units, got %v", data["final_cost"])
	}
	if data["cost_per_unit"] != "24" {
		t.Errorf("Expected cost_per_unit 24, got %v", data["cost_per_unit"])
	}

	// 非法数量
	w = testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+id+"/cost?quantity=abc", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad quantity, got %d", w.Code)
	}
}

func TestBOMTreeHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	seedProduct(products, "prod-001", "0")
	token := testutil.DefaultTestToken()

	sub := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))
	subID := sub["id"].(string)
	parent := createBOM(t, router, token, map[string]interface{}{
		"product_id": "prod-001",
		"items": []map[string]interface{}{
			{"kind": "sub_assembly", "sub_assembly_id": subID, "quantity": "3"},
		},
	})
	parentID := parent["id"].(string)

	w := testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+parentID+"/tree", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	child := items[0].(map[string]interface{})["child"].(map[string]interface{})
	if child["level"].(float64) != 1 {
		t.Errorf("Expected child level 1, got %v", child["level"])
	}
}

func TestBOMDeleteHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "1", "0"))
	id := bom["id"].(string)

	w := testutil.DoRequest(router, "DELETE", "/api/v1/erp/boms/"+id, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+id, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestBOMExportHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	bom := createBOM(t, router, token, simpleBOMBody("mat-001", "2", "20"))
	id := bom["id"].(string)

	w := testutil.DoRequest(router, "GET", "/api/v1/erp/boms/"+id+"/export", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Unexpected content type %s", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("Expected non-empty xlsx body")
	}
}

func TestBOMCandidatesHTTP(t *testing.T) {
	router, products := setupBOMTest(t)
	seedProduct(products, "mat-001", "10")
	token := testutil.DefaultTestToken()

	a := createBOM(t, router, token, simpleBOMBody("mat-001", "1", "0"))
	createBOM(t, router, token, simpleBOMBody("mat-001", "2", "0"))
	aID := a["id"].(string)

	w := testutil.DoRequest(router, "GET", "/api/v1/erp/boms/sub-assembly-candidates?exclude="+aID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(items))
	}
	if items[0].(map[string]interface{})["id"] == aID {
		t.Error("Excluded BOM should not appear in candidates")
	}
}
