package eventbus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vision-server-go/internal/utils"
)

// 调用方负责Close，日志写盘后才能读文件断言
func newTestLogger(t *testing.T) (*utils.Logger, string) {
	t.Helper()
	dir := t.TempDir()
	logger, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: "info",
		LogDir:   dir,
		LogFile:  "test.log",
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return logger, filepath.Join(dir, "test.log")
}

// 异步发布的事件必须到达同步订阅的处理器（两者共用同一底层总线）
func TestPublishAsyncReachesSubscriber(t *testing.T) {
	const topic = "test:delivery"

	received := make(chan RecognitionEventData, 1)
	if err := Subscribe(topic, func(args ...interface{}) {
		if len(args) > 0 {
			if data, ok := args[0].(RecognitionEventData); ok {
				received <- data
			}
		}
	}); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	PublishAsync(topic, RecognitionEventData{
		DeviceID:    "device-bus",
		AssetID:     "asset-1",
		Success:     true,
		PeopleCount: 2,
	})

	select {
	case data := <-received:
		if data.DeviceID != "device-bus" || data.PeopleCount != 2 {
			t.Fatalf("unexpected event payload: %+v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async event never reached subscriber")
	}
}

func TestDefaultEventHandlerLogsToInjectedLogger(t *testing.T) {
	logger, logPath := newTestLogger(t)
	handler := NewDefaultEventHandler(logger)

	handler.Handle(EventRecognitionCompleted, RecognitionEventData{
		DeviceID:    "device-log",
		AssetID:     "asset-log",
		Success:     true,
		PeopleCount: 1,
	})
	handler.Handle(EventVisionFailed, VisionEventData{
		DeviceID: "device-log",
		Error:    "boom",
	})
	_ = logger.Close()

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "识别完成") || !strings.Contains(content, "device-log") {
		t.Fatalf("expected recognition event in log, got: %s", content)
	}
	if !strings.Contains(content, "视觉问答失败") {
		t.Fatalf("expected vision failure event in log, got: %s", content)
	}
}
