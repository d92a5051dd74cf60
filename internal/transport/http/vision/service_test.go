package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	domainauth "vision-server-go/internal/domain/auth"
	domainimage "vision-server-go/internal/domain/image"
	"vision-server-go/internal/domain/recognition"
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

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		MaxFileSize:    5 * 1024 * 1024,
		MaxPixels:      10_000_000,
		MaxWidth:       4096,
		MaxHeight:      4096,
		AllowedFormats: []string{"png", "jpeg"},
	}
}

// newOllamaStub 返回一个模拟Ollama /api/chat 的流式应答服务
func newOllamaStub(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		enc := json.NewEncoder(w)
		chunk := map[string]any{
			"model":   "llava",
			"message": map[string]string{"role": "assistant", "content": answer},
			"done":    false,
		}
		enc.Encode(chunk)
		enc.Encode(map[string]any{
			"model":   "llava",
			"message": map[string]string{"role": "assistant", "content": ""},
			"done":    true,
		})
	}))
}

func newTestService(t *testing.T, ollamaURL string, recognizer *recognition.Recognizer) *Service {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg := &config.Config{}
	cfg.Server.Token = "test-secret"
	cfg.Selected.VLLLM = "TestOllama"
	cfg.VLLLM = map[string]config.VLLLMConfig{
		"TestOllama": {
			Type:      "ollama",
			ModelName: "llava",
			BaseURL:   ollamaURL,
			Security:  testSecurity(),
		},
	}

	logger := newTestLogger(t)
	security := testSecurity()
	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security: &security,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	svc, err := NewService(cfg, logger, pipeline, recognizer)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api")); err != nil {
		t.Fatalf("register routes: %v", err)
	}
	return engine
}

func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 130, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func buildVisionForm(t *testing.T, question string, imageBytes []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if question != "" {
		if err := writer.WriteField("question", question); err != nil {
			t.Fatalf("write question: %v", err)
		}
	}
	if imageBytes != nil {
		part, err := writer.CreateFormFile("file", "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(imageBytes)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func deviceToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, err := domainauth.NewAuthToken("test-secret").GenerateToken(deviceID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestVisionStatus(t *testing.T) {
	svc := newTestService(t, "http://localhost:11434", nil)
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/vision", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "TestOllama") {
		t.Fatalf("status should name the model: %s", w.Body.String())
	}
}

func TestVisionOptionsCORS(t *testing.T) {
	svc := newTestService(t, "http://localhost:11434", nil)
	router := newTestRouter(t, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/vision", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
}

func TestVisionPostRequiresAuth(t *testing.T) {
	svc := newTestService(t, "http://localhost:11434", nil)
	router := newTestRouter(t, svc)

	body, contentType := buildVisionForm(t, "图里有什么", encodeTestPNG(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vision", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var resp VisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Message == "" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestVisionPostDeviceMismatch(t *testing.T) {
	svc := newTestService(t, "http://localhost:11434", nil)
	router := newTestRouter(t, svc)

	body, contentType := buildVisionForm(t, "图里有什么", encodeTestPNG(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vision", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+deviceToken(t, "dev-1"))
	req.Header.Set("Device-Id", "dev-2")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestVisionPostMissingQuestion(t *testing.T) {
	svc := newTestService(t, "http://localhost:11434", nil)
	router := newTestRouter(t, svc)

	body, contentType := buildVisionForm(t, "", encodeTestPNG(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vision", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+deviceToken(t, "dev-1"))
	req.Header.Set("Device-Id", "dev-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVisionPostAnalysis(t *testing.T) {
	ollama := newOllamaStub(t, "这是一张测试图片")
	defer ollama.Close()

	svc := newTestService(t, ollama.URL, nil)
	router := newTestRouter(t, svc)

	body, contentType := buildVisionForm(t, "这张图片里有什么", encodeTestPNG(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vision", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+deviceToken(t, "dev-1"))
	req.Header.Set("Device-Id", "dev-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", w.Code, w.Body.String())
	}

	var resp VisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.Action != "RESPONSE" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if !strings.Contains(resp.Response, "这是一张测试图片") {
		t.Fatalf("unexpected answer: %s", resp.Response)
	}
}

// 识别启用时，回答里没有提到识别出的人物则补充名单
func TestVisionPostWithRecognition(t *testing.T) {
	ollama := newOllamaStub(t, "图里有一个人在微笑")
	defer ollama.Close()

	immich := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/assets":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "a1"})
		case r.URL.Path == "/assets/a1":
			json.NewEncoder(w).Encode(recognition.Asset{
				ID:     "a1",
				People: []recognition.AssetPerson{{ID: "p1", Name: "张三"}},
			})
		case r.URL.Path == "/people/p1/assets":
			json.NewEncoder(w).Encode(map[string]any{"items": []recognition.PersonPhoto{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer immich.Close()

	immichCfg := config.ImmichConfig{
		APIURL:      immich.URL,
		APIKey:      "k",
		MaxRetries:  1,
		WaitSeconds: 1,
		PhotoLimit:  1,
	}
	logger := newTestLogger(t)
	client := recognition.NewClient(immichCfg, logger)
	recognizer := recognition.NewRecognizer(client, nil, immichCfg, logger)

	svc := newTestService(t, ollama.URL, recognizer)
	router := newTestRouter(t, svc)

	body, contentType := buildVisionForm(t, "这张图片里有什么", encodeTestPNG(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vision", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+deviceToken(t, "dev-1"))
	req.Header.Set("Device-Id", "dev-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", w.Code, w.Body.String())
	}

	var resp VisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Response, "张三") {
		t.Fatalf("expected recognised name in answer: %s", resp.Response)
	}
}
