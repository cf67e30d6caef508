package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/custody"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/hashing"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ledger"
)

// memStore is an in-memory stand-in for the IPFS client.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (s *memStore) Upload(_ context.Context, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid := "Qm" + hashing.Digest(data)[:16]
	s.blobs[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (s *memStore) Download(_ context.Context, cid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[cid]
	if !ok {
		return nil, fmt.Errorf("no blob for %s", cid)
	}
	return append([]byte(nil), b...), nil
}

// tamper replaces the stored bytes for a cid without changing the cid.
func (s *memStore) tamper(cid string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[cid] = data
}

func (s *memStore) GatewayURL(cid string) string { return "http://gateway.test/ipfs/" + cid }
func (s *memStore) PublicURL(cid string) string  { return "https://ipfs.io/ipfs/" + cid }

// memLedger assigns sequential evidence ids and remembers anchored digests.
type memLedger struct {
	mu      sync.Mutex
	nextID  int64
	anchors map[int64]ledger.OriginalRecord
}

func newMemLedger() *memLedger { return &memLedger{nextID: 1, anchors: map[int64]ledger.OriginalRecord{}} }

func (l *memLedger) Anchor(_ context.Context, anchorDigest, collector string) (ledger.AnchorResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.anchors[id] = ledger.OriginalRecord{
		Hash:      anchorDigest,
		Collector: collector,
		Timestamp: time.Now().Unix(),
		Exists:    true,
	}
	return ledger.AnchorResult{EvidenceID: id, TxHash: fmt.Sprintf("0xtx%08d", id)}, nil
}

func (l *memLedger) LookupOriginal(_ context.Context, evidenceID int64) (ledger.OriginalRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.anchors[evidenceID]
	if !ok {
		return ledger.OriginalRecord{Exists: false}, nil
	}
	return rec, nil
}

type testApp struct {
	router *gin.Engine
	store  *memStore
	chain  *memLedger
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("test-secret")

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Role{}, &models.User{}, &models.RefreshToken{}, &models.Evidence{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db = gdb
	logger := zap.NewNop()
	seedRoles(logger)

	store := newMemStore()
	chain := newMemLedger()
	svc := custody.NewService(gdb, store, chain, logger, "0x0000000000000000000000000000000000001234")

	cfg := &Config{MaxUploadBytes: 1 << 20}
	r := gin.New()
	setupRoutes(r, &app{cfg: cfg, logger: logger, custody: svc, store: store})
	return &testApp{router: r, store: store, chain: chain}
}

// performRequest drives the router in-process, optionally with a bearer
// token.
func performRequest(r http.Handler, method, path string, body io.Reader, token, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates an account through the API and returns its access
// token.
func registerAndLogin(t *testing.T, r http.Handler, username, role, wallet string) string {
	t.Helper()
	regBody, _ := json.Marshal(map[string]string{
		"username":      username,
		"password":      "secret123",
		"name":          "Test " + username,
		"role":          role,
		"walletAddress": wallet,
	})
	resp := performRequest(r, http.MethodPost, "/api/auth/register", bytes.NewReader(regBody), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("register %s failed status=%d body=%s", username, resp.Code, resp.Body.String())
	}
	loginBody, _ := json.Marshal(map[string]string{"username": username, "password": "secret123"})
	resp = performRequest(r, http.MethodPost, "/api/auth/login", bytes.NewReader(loginBody), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s failed status=%d body=%s", username, resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	token, _ := out["token"].(string)
	if token == "" {
		t.Fatalf("empty token for %s: %s", username, resp.Body.String())
	}
	return token
}

// uploadFile posts a multipart evidence upload and returns the recorder.
func uploadFile(r http.Handler, token, fileName string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	w, _ := mw.CreateFormFile("file", fileName)
	_, _ = w.Write(content)
	_ = mw.Close()
	return performRequest(r, http.MethodPost, "/api/evidence/upload", buf, token, mw.FormDataContentType())
}

func evidenceIDFromUpload(t *testing.T, resp *httptest.ResponseRecorder) int64 {
	t.Helper()
	var out struct {
		Evidence struct {
			EvidenceID int64 `json:"evidenceId"`
		} `json:"evidence"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode upload response: %v body=%s", err, resp.Body.String())
	}
	return out.Evidence.EvidenceID
}

func TestHealthEndpoint(t *testing.T) {
	ta := setupTestApp(t)
	resp := performRequest(ta.router, http.MethodGet, "/api/health", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("health status=%d", resp.Code)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "0xabc123")

	resp := performRequest(ta.router, http.MethodGet, "/api/auth/me", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("me status=%d body=%s", resp.Code, resp.Body.String())
	}
	var me map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &me)
	if me["role"] != "officer" || me["walletAddress"] != "0xabc123" {
		t.Fatalf("unexpected me payload: %v", me)
	}
}

func TestRegisterRejectsAdministrator(t *testing.T) {
	ta := setupTestApp(t)
	body, _ := json.Marshal(map[string]string{
		"username": "sneaky", "password": "secret123", "name": "S", "role": "administrator",
	})
	resp := performRequest(ta.router, http.MethodPost, "/api/auth/register", bytes.NewReader(body), "", "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for administrator self-registration, got %d", resp.Code)
	}
}

func TestUploadSealsEvidence(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "0xabc123")

	resp := uploadFile(ta.router, token, "scene.jpg", []byte("photo bytes"), map[string]string{
		"description":  "crime scene photo",
		"gpsLatitude":  "52.3702",
		"gpsLongitude": "4.8952",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload status=%d body=%s", resp.Code, resp.Body.String())
	}
	id := evidenceIDFromUpload(t, resp)
	if id == 0 {
		t.Fatal("upload response carries no evidence id")
	}

	var rec models.Evidence
	if err := db.Where("evidence_id = ?", id).First(&rec).Error; err != nil {
		t.Fatalf("sealed record not persisted: %v", err)
	}
	if rec.Status != models.StatusSealed {
		t.Fatalf("status = %q, want %q", rec.Status, models.StatusSealed)
	}
	if rec.FileDigest != hashing.Digest([]byte("photo bytes")) {
		t.Fatalf("stored digest does not match content")
	}
	if rec.CollectorAddress != "0xabc123" {
		t.Fatalf("collector address = %q", rec.CollectorAddress)
	}
	if rec.GPSLatitude == nil || *rec.GPSLatitude != 52.3702 {
		t.Fatalf("latitude not persisted: %v", rec.GPSLatitude)
	}
}

func TestUploadValidation(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "0xabc123")

	// no file part
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("description", "empty")
	_ = mw.Close()
	resp := performRequest(ta.router, http.MethodPost, "/api/evidence/upload", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", resp.Code)
	}

	// half a coordinate pair
	resp = uploadFile(ta.router, token, "a.txt", []byte("x"), map[string]string{"gpsLatitude": "52.1"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for lone latitude, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestUploadRoleGate(t *testing.T) {
	ta := setupTestApp(t)
	judgeToken := registerAndLogin(t, ta.router, "judge1", "judge", "")

	resp := uploadFile(ta.router, judgeToken, "a.txt", []byte("x"), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for judge upload, got %d", resp.Code)
	}

	resp = uploadFile(ta.router, "", "a.txt", []byte("x"), nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
}

func TestEvidenceVisibility(t *testing.T) {
	ta := setupTestApp(t)
	officer1 := registerAndLogin(t, ta.router, "officer1", "officer", "0x01")
	officer2 := registerAndLogin(t, ta.router, "officer2", "officer", "0x02")
	lawyer := registerAndLogin(t, ta.router, "lawyer1", "lawyer", "")

	resp := uploadFile(ta.router, officer1, "one.txt", []byte("first"), nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload status=%d body=%s", resp.Code, resp.Body.String())
	}
	id := evidenceIDFromUpload(t, resp)

	count := func(token string) int {
		resp := performRequest(ta.router, http.MethodGet, "/api/evidence", nil, token, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("list status=%d body=%s", resp.Code, resp.Body.String())
		}
		var out struct {
			Count int `json:"count"`
		}
		_ = json.Unmarshal(resp.Body.Bytes(), &out)
		return out.Count
	}
	if got := count(officer1); got != 1 {
		t.Fatalf("officer1 sees %d records, want 1", got)
	}
	if got := count(officer2); got != 0 {
		t.Fatalf("officer2 sees %d records, want 0", got)
	}
	if got := count(lawyer); got != 1 {
		t.Fatalf("lawyer sees %d records, want 1", got)
	}

	// officer2 cannot fetch officer1's record by id either
	resp = performRequest(ta.router, http.MethodGet, fmt.Sprintf("/api/evidence/%d", id), nil, officer2, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign evidence, got %d", resp.Code)
	}
}

func TestDownloadReturnsOriginalBytes(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "0x01")

	content := []byte("original evidence bytes")
	resp := uploadFile(ta.router, token, "doc.pdf", content, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload status=%d", resp.Code)
	}
	id := evidenceIDFromUpload(t, resp)

	resp = performRequest(ta.router, http.MethodGet, fmt.Sprintf("/api/evidence/%d/download", id), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("download status=%d body=%s", resp.Code, resp.Body.String())
	}
	if !bytes.Equal(resp.Body.Bytes(), content) {
		t.Fatal("downloaded bytes differ from upload")
	}
}

func TestVerificationVerdicts(t *testing.T) {
	ta := setupTestApp(t)
	officer := registerAndLogin(t, ta.router, "officer1", "officer", "0x01")
	judge := registerAndLogin(t, ta.router, "judge1", "judge", "")

	resp := uploadFile(ta.router, officer, "doc.txt", []byte("immutable content"), nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload status=%d", resp.Code)
	}
	id := evidenceIDFromUpload(t, resp)

	verify := func() map[string]any {
		resp := performRequest(ta.router, http.MethodPost, fmt.Sprintf("/api/verification/%d", id), nil, judge, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("verify status=%d body=%s", resp.Code, resp.Body.String())
		}
		var out map[string]any
		_ = json.Unmarshal(resp.Body.Bytes(), &out)
		return out
	}

	out := verify()
	if out["isAuthentic"] != true || out["verificationResult"] != "100% Authentic" {
		t.Fatalf("expected authentic verdict, got %v", out)
	}

	// corrupt the stored blob and verify again
	var rec models.Evidence
	if err := db.Where("evidence_id = ?", id).First(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	ta.store.tamper(rec.ContentID, []byte("doctored content"))

	out = verify()
	if out["isAuthentic"] != false || out["verificationResult"] != "Tampered" {
		t.Fatalf("expected tampered verdict, got %v", out)
	}
	if err := db.Where("evidence_id = ?", id).First(&rec).Error; err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if rec.Status != models.StatusTampered {
		t.Fatalf("status = %q after tamper, want %q", rec.Status, models.StatusTampered)
	}

	// officers are not allowed to verify
	resp = performRequest(ta.router, http.MethodPost, fmt.Sprintf("/api/verification/%d", id), nil, officer, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for officer verification, got %d", resp.Code)
	}
}

func TestVerificationHistory(t *testing.T) {
	ta := setupTestApp(t)
	officer := registerAndLogin(t, ta.router, "officer1", "officer", "0x01")
	judge := registerAndLogin(t, ta.router, "judge1", "judge", "")
	lawyer := registerAndLogin(t, ta.router, "lawyer1", "lawyer", "")

	resp := uploadFile(ta.router, officer, "doc.txt", []byte("content"), nil)
	id := evidenceIDFromUpload(t, resp)

	resp = performRequest(ta.router, http.MethodPost, fmt.Sprintf("/api/verification/%d", id), nil, judge, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("verify status=%d", resp.Code)
	}

	resp = performRequest(ta.router, http.MethodGet, fmt.Sprintf("/api/verification/%d/history", id), nil, lawyer, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("history status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	if out["status"] != string(models.StatusVerified) {
		t.Fatalf("history status = %v, want verified", out["status"])
	}

	// history of an unknown id is a 404
	resp = performRequest(ta.router, http.MethodGet, "/api/verification/999999/history", nil, lawyer, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", resp.Code)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	ta := setupTestApp(t)
	registerAndLogin(t, ta.router, "officer1", "officer", "")

	loginBody, _ := json.Marshal(map[string]string{"username": "officer1", "password": "secret123"})
	resp := performRequest(ta.router, http.MethodPost, "/api/auth/login", bytes.NewReader(loginBody), "", "application/json")
	var loginOut map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginOut)
	refresh, _ := loginOut["refresh_token"].(string)
	if refresh == "" {
		t.Fatal("login returned no refresh token")
	}

	refreshBody, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(ta.router, http.MethodPost, "/api/auth/refresh", bytes.NewReader(refreshBody), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", resp.Code, resp.Body.String())
	}

	// the used token is revoked; a second exchange must fail
	resp = performRequest(ta.router, http.MethodPost, "/api/auth/refresh", bytes.NewReader(refreshBody), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused refresh token, got %d", resp.Code)
	}
}

func TestAnalysisTypes(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "")

	resp := performRequest(ta.router, http.MethodGet, "/api/analysis/types", nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("analysis types status=%d", resp.Code)
	}
	var out struct {
		AnalysisTypes []map[string]any `json:"analysisTypes"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	if len(out.AnalysisTypes) == 0 {
		t.Fatal("no analysis types advertised")
	}
}

func TestGeneralAnalysis(t *testing.T) {
	ta := setupTestApp(t)
	token := registerAndLogin(t, ta.router, "officer1", "officer", "")

	resp := uploadFile(ta.router, token, "notes.txt", []byte("plain text"), nil)
	id := evidenceIDFromUpload(t, resp)

	body, _ := json.Marshal(map[string]string{"analysisType": "general"})
	resp = performRequest(ta.router, http.MethodPost, fmt.Sprintf("/api/analysis/%d", id), bytes.NewReader(body), token, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("analysis status=%d body=%s", resp.Code, resp.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	if out["analysisType"] != "general" || out["result"] == nil {
		t.Fatalf("unexpected analysis payload: %v", out)
	}
}
