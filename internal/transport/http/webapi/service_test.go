package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainauth "vision-server-go/internal/domain/auth"
	"vision-server-go/internal/domain/auth/store"
	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/utils"

	"github.com/gin-gonic/gin"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	logger, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: "error",
		LogDir:   t.TempDir(),
		LogFile:  "test.log",
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Token = "admin-secret"
	cfg.Selected.VLLLM = "ChatGLMVLLM"
	cfg.VLLLM = map[string]config.VLLLMConfig{
		"ChatGLMVLLM": {Type: "openai"},
		"OllamaVLLM":  {Type: "ollama"},
	}
	cfg.FaceGate.Enabled = true

	logger := newTestLogger(t)
	memStore := store.NewMemory(store.Config{
		Driver: store.DriverMemory,
		TTL:    time.Hour,
	})
	manager, err := domainauth.NewManager(domainauth.Options{
		Store:  memStore,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	svc, err := NewService(cfg, logger, manager)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api")); err != nil {
		t.Fatalf("register routes: %v", err)
	}
	return svc, engine
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v body: %s", err, w.Body.String())
	}
	return env
}

func TestCfgStatus(t *testing.T) {
	_, engine := newTestService(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cfg", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if env := decodeEnvelope(t, w); !env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestAuthTokenIssue(t *testing.T) {
	svc, engine := newTestService(t)

	body, _ := json.Marshal(map[string]string{"device_id": "dev-42"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	var data struct {
		Token    string `json:"token"`
		ClientID string `json:"client_id"`
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Token == "" || data.ClientID == "" || data.DeviceID != "dev-42" {
		t.Fatalf("unexpected data: %+v", data)
	}

	// 签发的token要能被同一个secret验证出设备ID
	valid, deviceID, err := svc.authToken.VerifyToken(data.Token)
	if err != nil || !valid || deviceID != "dev-42" {
		t.Fatalf("token verification failed: valid=%v device=%s err=%v", valid, deviceID, err)
	}

	// 客户端已经登记到认证存储
	clients, err := svc.authManager.List(context.Background())
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 1 || clients[0] != data.ClientID {
		t.Fatalf("unexpected clients: %v", clients)
	}
}

func TestAuthTokenRequiresDeviceID(t *testing.T) {
	_, engine := newTestService(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSystemInfo(t *testing.T) {
	_, engine := newTestService(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/system/info", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if _, ok := data["hostname"]; !ok {
		t.Fatalf("expected hostname in system info: %v", data)
	}
}

func TestAdminSystemRequiresAuth(t *testing.T) {
	_, engine := newTestService(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/system", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminSystemWithAPIToken(t *testing.T) {
	_, engine := newTestService(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/system", nil)
	req.Header.Set("AuthorToken", "admin-secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	var data struct {
		SelectedVLLLM   string   `json:"selectedVLLLM"`
		FaceGateEnabled bool     `json:"faceGateEnabled"`
		VLLMList        []string `json:"vllmList"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.SelectedVLLLM != "ChatGLMVLLM" || !data.FaceGateEnabled {
		t.Fatalf("unexpected data: %+v", data)
	}
	if len(data.VLLMList) != 2 {
		t.Fatalf("unexpected vllm list: %v", data.VLLMList)
	}
}

func TestAdminSystemSwitchVLLLM(t *testing.T) {
	svc, engine := newTestService(t)

	body, _ := json.Marshal(map[string]string{"selectedVLLLM": "OllamaVLLM"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/system", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AuthorToken", "admin-secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", w.Code, w.Body.String())
	}
	if svc.config.Selected.VLLLM != "OllamaVLLM" {
		t.Fatalf("config not updated: %s", svc.config.Selected.VLLLM)
	}
}

func TestAdminSystemSwitchUnknownVLLLM(t *testing.T) {
	_, engine := newTestService(t)

	body, _ := json.Marshal(map[string]string{"selectedVLLLM": "NoSuch"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/system", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AuthorToken", "admin-secret")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
