package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/utils"
)

// 上传资产时使用的固定设备标识
const uploadDeviceID = "xiaozhi-esp32-server"

// 资产服务的时间戳格式（毫秒固定为000）
const assetTimeLayout = "2006-01-02T15:04:05.000Z"

// AssetService 识别编排器依赖的资产服务能力
type AssetService interface {
	Enabled() bool
	UploadAsset(ctx context.Context, imageData []byte) string
	GetAsset(ctx context.Context, assetID string) *Asset
	WaitForProcessing(ctx context.Context, assetID string, maxRetries int, wait time.Duration) bool
	GetPersonPhotos(ctx context.Context, personID string, limit int) []PersonPhoto
}

// Client 封装对 Immich 资产服务的全部IO。
// 是否启用在构造时一次性决定：需要 api_url 且（api_key 或 email+password）。
// 所有方法失败时返回零值，识别链路永远不会因为资产服务故障而中断。
type Client struct {
	baseURL    string
	apiKey     string
	email      string
	password   string
	httpClient *http.Client
	logger     *utils.Logger

	enabled bool

	mu          sync.Mutex
	accessToken string
}

// NewClient builds an asset service client from configuration.
func NewClient(cfg config.ImmichConfig, logger *utils.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}

	baseURL := strings.TrimSuffix(cfg.APIURL, "/")
	enabled := baseURL != "" && (cfg.APIKey != "" || (cfg.Email != "" && cfg.Password != ""))

	c := &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		email:    cfg.Email,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		logger:  logger,
		enabled: enabled,
	}

	if enabled {
		logger.InfoTag("识别", "资产服务客户端已启用: %s", baseURL)
	} else {
		logger.InfoTag("识别", "资产服务凭据不完整，人脸识别未启用")
	}
	return c
}

// Enabled reports whether recognition credentials were configured.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Authenticate 按需登录并缓存会话令牌。失败静默，后续请求回退到 x-api-key。
func (c *Client) Authenticate(ctx context.Context) {
	if !c.enabled || c.email == "" || c.password == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" {
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnTag("识别", "资产服务登录失败: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.WarnTag("识别", "资产服务登录失败: 状态码=%d", resp.StatusCode)
		return
	}

	var loginResp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil || loginResp.AccessToken == "" {
		c.logger.WarnTag("识别", "资产服务登录响应无效")
		return
	}
	c.accessToken = loginResp.AccessToken
	c.logger.InfoTag("识别", "资产服务登录成功")
}

func (c *Client) setAuthHeaders(req *http.Request) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// UploadAsset 上传图片，返回资产ID，失败返回空串。
func (c *Client) UploadAsset(ctx context.Context, imageData []byte) string {
	if !c.enabled {
		return ""
	}
	c.Authenticate(ctx)

	now := time.Now().UTC().Format(assetTimeLayout)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="assetData"; filename="image.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		c.logger.ErrorTag("识别", "构造上传请求失败: %v", err)
		return ""
	}
	if _, err := part.Write(imageData); err != nil {
		c.logger.ErrorTag("识别", "构造上传请求失败: %v", err)
		return ""
	}

	fields := map[string]string{
		"deviceAssetId":  uuid.NewString(),
		"deviceId":       uploadDeviceID,
		"fileCreatedAt":  now,
		"fileModifiedAt": now,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			c.logger.ErrorTag("识别", "构造上传请求失败: %v", err)
			return ""
		}
	}
	if err := writer.Close(); err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assets", &body)
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnTag("识别", "图片上传失败: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnTag("识别", "图片上传失败: 状态码=%d 响应=%s", resp.StatusCode, string(raw))
		return ""
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil || uploadResp.ID == "" {
		c.logger.WarnTag("识别", "上传响应缺少资产ID")
		return ""
	}

	c.logger.InfoTag("识别", "图片上传成功: 资产=%s", uploadResp.ID)
	return uploadResp.ID
}

// GetAsset 获取资产详情，任何失败（含畸形响应）返回nil。
func (c *Client) GetAsset(ctx context.Context, assetID string) *Asset {
	if !c.enabled || assetID == "" {
		return nil
	}
	c.Authenticate(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/assets/"+url.PathEscape(assetID), nil)
	if err != nil {
		return nil
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnTag("识别", "获取资产详情失败: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnTag("识别", "获取资产详情失败: 状态码=%d", resp.StatusCode)
		return nil
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		c.logger.WarnTag("识别", "资产详情解析失败: %v", err)
		return nil
	}
	return &asset
}

// WaitForProcessing 轮询等待人脸识别处理完成。
// 任一次查询返回了人脸或人物即提前成功；轮询耗尽返回false（非致命，调用方继续取详情）。
// 最后一次尝试之后不再等待。
func (c *Client) WaitForProcessing(ctx context.Context, assetID string, maxRetries int, wait time.Duration) bool {
	if !c.enabled || assetID == "" {
		return false
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		asset := c.GetAsset(ctx, assetID)
		if asset.Processed() {
			c.logger.InfoTag("识别", "资产处理完成: 资产=%s 轮次=%d", assetID, attempt+1)
			return true
		}

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(wait):
			}
		}
	}

	c.logger.WarnTag("识别", "等待资产处理超时: 资产=%s 轮次=%d", assetID, maxRetries)
	return false
}

// GetPersonPhotos 获取人物历史照片，尽力而为，失败返回空列表。
func (c *Client) GetPersonPhotos(ctx context.Context, personID string, limit int) []PersonPhoto {
	if !c.enabled || personID == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	c.Authenticate(ctx)

	endpoint := fmt.Sprintf("%s/people/%s/assets?size=%d", c.baseURL, url.PathEscape(personID), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnTag("识别", "获取人物照片失败: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnTag("识别", "获取人物照片失败: 状态码=%d", resp.StatusCode)
		return nil
	}

	var photosResp struct {
		Items []PersonPhoto `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&photosResp); err != nil {
		return nil
	}
	return photosResp.Items
}
