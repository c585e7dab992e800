package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"civicledger/internal/api/http/middleware"
	works "civicledger/internal/app"
	"civicledger/internal/ledger"
	"civicledger/internal/ledgersync"
	"civicledger/internal/storage/cache"
	"civicledger/internal/storage/record"
	"civicledger/internal/verify"
	"civicledger/pkg/config"
	"civicledger/pkg/log"
)

func newTestServer(t *testing.T) *server.Hertz {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	store := record.NewMemoryStore()
	client := ledger.NewClientWithContract(
		config.LedgerConfig{Enabled: true, Type: "memory", SignerAddress: "0xowner"},
		ledger.NewMemoryContract("0xowner"), logger)
	sync := ledgersync.NewOrchestrator(store, client, logger)
	verifier := verify.NewEngine(store, client, logger)
	svc := works.NewWorksService(store, client, sync, verifier, cache.NewMemoryCache(), time.Minute, logger)
	svc.SetInlineSync()

	router := NewRouter(NewHandler(svc, logger), middleware.NewMiddleware(), config.APIConfig{})
	h := server.Default(server.WithHostPorts("127.0.0.1:0"))
	router.Register(h)
	return h
}

func doJSON(h *server.Hertz, method, path string, body interface{}, actorID, role string) *ut.ResponseRecorder {
	var reqBody *ut.Body
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if body != nil {
		raw, _ := json.Marshal(body)
		reqBody = &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
	}
	if actorID != "" {
		headers = append(headers,
			ut.Header{Key: "X-Actor-ID", Value: actorID},
			ut.Header{Key: "X-Actor-Role", Value: role})
	}
	return ut.PerformRequest(h.Engine, method, path, reqBody, headers...)
}

func decode(t *testing.T, w *ut.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Result().Body(), out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(h, "GET", "/api/health", nil, "", "")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("status = %d", w.Result().StatusCode())
	}
	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestProjectEndpoints(t *testing.T) {
	h := newTestServer(t)

	w := doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"name": "Ward 5 Drainage", "budget": 500000, "ward": "ward-5"},
		"official-1", "official")
	if w.Result().StatusCode() != 201 {
		t.Fatalf("create status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
	var p record.Project
	decode(t, w, &p)
	if p.ID == "" || p.Budget != 500000 {
		t.Fatalf("unexpected project %+v", p)
	}
	if p.CreatedBy != "official-1" {
		t.Errorf("created_by = %q", p.CreatedBy)
	}

	w = doJSON(h, "GET", "/api/projects/"+p.ID, nil, "", "")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("get status = %d", w.Result().StatusCode())
	}

	w = doJSON(h, "GET", "/api/projects?limit=10", nil, "", "")
	var list struct {
		Projects []*record.Project `json:"projects"`
		Total    int               `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Errorf("total = %d", list.Total)
	}

	w = doJSON(h, "PUT", "/api/projects/"+p.ID+"/budget",
		map[string]interface{}{"budget": 650000}, "official-1", "official")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("revise status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
	var revised record.Project
	decode(t, w, &revised)
	if revised.Budget != 650000 {
		t.Errorf("budget = %d", revised.Budget)
	}
}

func TestPermissionDenied(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"name": "x", "budget": 1}, "citizen-1", "citizen")
	if w.Result().StatusCode() != 403 {
		t.Errorf("citizen create status = %d", w.Result().StatusCode())
	}
	// 未带身份默认 citizen，核验也应被拒
	w = doJSON(h, "POST", "/api/ledger/verify/project/abc", nil, "", "")
	if w.Result().StatusCode() != 403 {
		t.Errorf("anonymous verify status = %d", w.Result().StatusCode())
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(h, "GET", "/api/projects/no-such-id", nil, "", "")
	if w.Result().StatusCode() != 404 {
		t.Errorf("missing project status = %d", w.Result().StatusCode())
	}
	w = doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"budget": 100}, "official-1", "official")
	if w.Result().StatusCode() != 400 {
		t.Errorf("nameless project status = %d", w.Result().StatusCode())
	}
}

func TestExpenditureApprovalOverHTTP(t *testing.T) {
	h := newTestServer(t)

	w := doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"name": "Road Repair", "budget": 1000000}, "official-1", "official")
	var p record.Project
	decode(t, w, &p)

	w = doJSON(h, "POST", "/api/expenditures", map[string]interface{}{
		"project_id":  p.ID,
		"amount":      200000,
		"category":    "materials",
		"description": "asphalt",
		"occurred_at": time.Now().Format(time.RFC3339),
	}, "official-1", "official")
	if w.Result().StatusCode() != 201 {
		t.Fatalf("add expenditure status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
	var e record.Expenditure
	decode(t, w, &e)

	w = doJSON(h, "POST", "/api/expenditures/"+e.ID+"/approve",
		map[string]interface{}{"amount": 200000}, "auditor-1", "official")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("approve status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}

	w = doJSON(h, "GET", "/api/projects/"+p.ID, nil, "", "")
	var got record.Project
	decode(t, w, &got)
	if got.Spent != 200000 {
		t.Errorf("spent = %d, want 200000", got.Spent)
	}

	w = doJSON(h, "GET", fmt.Sprintf("/api/projects/%s/expenditures", p.ID), nil, "", "")
	var expList struct {
		Total int `json:"total"`
	}
	decode(t, w, &expList)
	if expList.Total != 1 {
		t.Errorf("expenditure total = %d", expList.Total)
	}
}

func TestComplaintFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)

	w := doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"name": "Bridge", "budget": 100}, "official-1", "official")
	var p record.Project
	decode(t, w, &p)

	w = doJSON(h, "POST", "/api/complaints", map[string]interface{}{
		"project_id":  p.ID,
		"title":       "work stalled",
		"description": "no activity for a month",
	}, "citizen-9", "citizen")
	if w.Result().StatusCode() != 201 {
		t.Fatalf("submit status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
	var cp record.Complaint
	decode(t, w, &cp)
	if cp.SubmittedBy != "citizen-9" {
		t.Errorf("submitted_by = %q", cp.SubmittedBy)
	}

	// 公民无权处理投诉
	w = doJSON(h, "POST", "/api/complaints/"+cp.ID+"/resolve",
		map[string]interface{}{"response": "resumed"}, "citizen-9", "citizen")
	if w.Result().StatusCode() != 403 {
		t.Errorf("citizen resolve status = %d", w.Result().StatusCode())
	}

	w = doJSON(h, "POST", "/api/complaints/"+cp.ID+"/resolve",
		map[string]interface{}{"response": "contractor resumed work"}, "official-1", "official")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("resolve status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}

	// 已解决的投诉不能再驳回
	w = doJSON(h, "POST", "/api/complaints/"+cp.ID+"/reject",
		map[string]interface{}{"reason": "duplicate"}, "official-1", "official")
	if w.Result().StatusCode() != 409 {
		t.Errorf("reject after resolve status = %d", w.Result().StatusCode())
	}
}

func TestVerifyAndStatusEndpoints(t *testing.T) {
	h := newTestServer(t)

	w := doJSON(h, "POST", "/api/projects",
		map[string]interface{}{"name": "Clinic", "budget": 300000}, "official-1", "official")
	var p record.Project
	decode(t, w, &p)

	w = doJSON(h, "POST", "/api/ledger/verify/project/"+p.ID, nil, "official-1", "official")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("verify status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
	var rep verify.Report
	decode(t, w, &rep)
	if !rep.Committed || !rep.Verified {
		t.Errorf("report = %+v", rep)
	}

	w = doJSON(h, "GET", "/api/ledger/status", nil, "", "")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("status endpoint = %d", w.Result().StatusCode())
	}
	var status works.LedgerStatusReport
	decode(t, w, &status)
	if !status.Ledger.Enabled || status.Stats.Projects != 1 {
		t.Errorf("report = %+v", status)
	}
}

func TestRegisterAddress(t *testing.T) {
	h := newTestServer(t)

	w := doJSON(h, "POST", "/api/ledger/register-address",
		map[string]interface{}{"address": "0x1111111111111111111111111111111111111111"}, "", "")
	if w.Result().StatusCode() != 401 {
		t.Errorf("anonymous register status = %d", w.Result().StatusCode())
	}

	w = doJSON(h, "POST", "/api/ledger/register-address",
		map[string]interface{}{"address": "0x1111111111111111111111111111111111111111"}, "citizen-1", "citizen")
	if w.Result().StatusCode() != 200 {
		t.Errorf("register status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}

	w = doJSON(h, "POST", "/api/ledger/register-address",
		map[string]interface{}{"address": "not-an-address"}, "citizen-1", "citizen")
	if w.Result().StatusCode() != 400 {
		t.Errorf("bad address status = %d", w.Result().StatusCode())
	}
}

func TestOfficialManagement(t *testing.T) {
	h := newTestServer(t)
	addr := "0x2222222222222222222222222222222222222222"

	w := doJSON(h, "POST", "/api/ledger/officials",
		map[string]interface{}{"address": addr}, "official-1", "official")
	if w.Result().StatusCode() != 403 {
		t.Errorf("official manage status = %d", w.Result().StatusCode())
	}

	w = doJSON(h, "POST", "/api/ledger/officials",
		map[string]interface{}{"address": addr}, "admin-1", "admin")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("add official status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}

	w = doJSON(h, "DELETE", "/api/ledger/officials/"+addr, nil, "admin-1", "admin")
	if w.Result().StatusCode() != 200 {
		t.Errorf("remove official status = %d body = %s", w.Result().StatusCode(), w.Result().Body())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(h, "GET", "/metrics", nil, "", "")
	if w.Result().StatusCode() != 200 {
		t.Fatalf("metrics status = %d", w.Result().StatusCode())
	}
	if !bytes.Contains(w.Result().Body(), []byte("civicledger")) {
		t.Error("metrics body missing civicledger series")
	}
}
