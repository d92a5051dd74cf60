package image

import (
	"bytes"
	"image"

	"vision-server-go/internal/platform/config"
	"vision-server-go/internal/utils"
)

// FaceGate 本地人脸存在预检：在上传资产服务之前快速判断图片里是否可能有人脸。
// 判定基于降采样后的肤色像素占比，只是一个粗过滤器，不做真正的人脸检测。
// 解码失败或禁用时一律放行，识别链路保持尽力而为。
type FaceGate struct {
	enabled      bool
	skinRatio    float64
	maxSampleDim int
	logger       *utils.Logger
}

// NewFaceGate constructs a gate from configuration.
func NewFaceGate(cfg config.FaceGateConfig, logger *utils.Logger) *FaceGate {
	ratio := cfg.SkinRatio
	if ratio <= 0 {
		ratio = 0.04
	}
	dim := cfg.MaxSampleDim
	if dim <= 0 {
		dim = 64
	}
	return &FaceGate{
		enabled:      cfg.Enabled,
		skinRatio:    ratio,
		maxSampleDim: dim,
		logger:       logger,
	}
}

// Enabled reports whether the gate is active.
func (g *FaceGate) Enabled() bool {
	return g != nil && g.enabled
}

// HasFace 判断图片中是否可能存在人脸。失败时放行（返回true）。
func (g *FaceGate) HasFace(data []byte) bool {
	if g == nil || !g.enabled {
		return true
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		g.logger.WarnTag("识别", "预检图片解码失败，放行: %v", err)
		return true
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return true
	}

	// 降采样，最长边不超过 maxSampleDim
	step := 1
	longest := width
	if height > longest {
		longest = height
	}
	if longest > g.maxSampleDim {
		step = longest / g.maxSampleDim
	}

	var total, skin int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			total++
			if isSkinTone(uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)) {
				skin++
			}
		}
	}
	if total == 0 {
		return true
	}

	ratio := float64(skin) / float64(total)
	present := ratio >= g.skinRatio
	g.logger.DebugTag("识别", "人脸预检: 肤色占比=%.4f 阈值=%.4f 判定=%v", ratio, g.skinRatio, present)
	return present
}

// RGB 空间经典肤色判据
func isSkinTone(r, g, b uint8) bool {
	maxC := r
	if g > maxC {
		maxC = g
	}
	if b > maxC {
		maxC = b
	}
	minC := r
	if g < minC {
		minC = g
	}
	if b < minC {
		minC = b
	}

	diff := int(r) - int(g)
	if diff < 0 {
		diff = -diff
	}

	return r > 95 && g > 40 && b > 20 &&
		int(maxC)-int(minC) > 15 &&
		diff > 15 && r > g && r > b
}
