package recognition

import (
	"context"
	"strconv"
	"time"

	"vision-server-go/internal/domain/eventbus"
	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/platform/observability"
	"vision-server-go/internal/utils"
)

// PresenceGate 上传前的本地人脸存在预检
type PresenceGate interface {
	HasFace(imageData []byte) bool
}

// Recognizer 识别编排器：预检 -> 上传 -> 轮询 -> 取详情 -> 提取人物。
// Recognize 永不返回error，所有失败都折叠成带提示语的Result。
type Recognizer struct {
	service    AssetService
	gate       PresenceGate
	maxRetries int
	wait       time.Duration
	photoLimit int
	logger     *utils.Logger
}

// NewRecognizer wires the orchestrator from configuration.
func NewRecognizer(
	service AssetService,
	gate PresenceGate,
	cfg config.ImmichConfig,
	logger *utils.Logger,
) *Recognizer {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 20
	}
	waitSeconds := cfg.WaitSeconds
	if waitSeconds <= 0 {
		waitSeconds = 3
	}
	photoLimit := cfg.PhotoLimit
	if photoLimit <= 0 {
		photoLimit = 10
	}
	return &Recognizer{
		service:    service,
		gate:       gate,
		maxRetries: maxRetries,
		wait:       time.Duration(waitSeconds) * time.Second,
		photoLimit: photoLimit,
		logger:     logger,
	}
}

// Enabled reports whether the underlying asset service has credentials.
func (r *Recognizer) Enabled() bool {
	return r != nil && r.service != nil && r.service.Enabled()
}

// Recognize 对一张图片执行完整的识别编排
func (r *Recognizer) Recognize(ctx context.Context, deviceID string, imageData []byte) (result Result) {
	ctx, spanEnd := observability.StartSpan(ctx, "recognition", "recognize")
	defer func() {
		// 识别链路绝不让panic冒泡到视觉请求
		if rec := recover(); rec != nil {
			r.logger.ErrorTag("识别", "识别流程异常: %v", rec)
			result = Result{Success: false, People: []Person{}, Message: MsgAssetFetchFailed}
		}
		spanEnd(nil)
		observability.RecordMetric(ctx, "recognition.people_count", float64(len(result.People)), map[string]string{
			"component": "recognition",
			"success":   strconv.FormatBool(result.Success),
		})
		r.publish(deviceID, result)
	}()

	if !r.Enabled() {
		return Result{Success: false, People: []Person{}, Message: MsgDisabled}
	}

	if r.gate != nil && !r.gate.HasFace(imageData) {
		r.logger.InfoTag("识别", "本地预检未发现人脸，跳过上传")
		return Result{Success: true, People: []Person{}, Message: MsgNoFaceDetected}
	}

	assetID := r.service.UploadAsset(ctx, imageData)
	if assetID == "" {
		return Result{Success: false, People: []Person{}, Message: MsgUploadFailed}
	}

	// 轮询超时不是致命错误，详情里也许已有部分结果
	if !r.service.WaitForProcessing(ctx, assetID, r.maxRetries, r.wait) {
		r.logger.WarnTag("识别", "资产处理未确认完成，继续尝试读取: 资产=%s", assetID)
	}

	asset := r.service.GetAsset(ctx, assetID)
	if asset == nil {
		return Result{Success: false, AssetID: assetID, People: []Person{}, Message: MsgAssetFetchFailed}
	}

	if len(asset.People) == 0 {
		return Result{Success: true, AssetID: assetID, People: []Person{}, Message: MsgNoPeopleDetected}
	}

	people := make([]Person, 0, len(asset.People))
	for _, p := range asset.People {
		if p.ID == "" {
			continue
		}
		person := Person{
			PersonID:   p.ID,
			PersonName: p.Name,
			Photos:     r.service.GetPersonPhotos(ctx, p.ID, r.photoLimit),
		}
		people = append(people, person)
	}

	r.logger.InfoTag("识别", "识别完成: 资产=%s 人数=%d", assetID, len(people))
	return Result{
		Success: true,
		AssetID: assetID,
		People:  people,
		Message: MsgPeopleRecognized(len(people)),
	}
}

func (r *Recognizer) publish(deviceID string, result Result) {
	eventbus.PublishAsync(eventbus.EventRecognitionCompleted, eventbus.RecognitionEventData{
		DeviceID:    deviceID,
		AssetID:     result.AssetID,
		Success:     result.Success,
		PeopleCount: len(result.People),
		Message:     result.Message,
	})
}
