package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles. Future fields (OTel endpoint, etc.) can be added here.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	stateMu            sync.RWMutex
	instrumentationLog *slog.Logger
	instrumentationCfg Config
)

func emitter() *slog.Logger {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if !instrumentationCfg.Enabled {
		return nil
	}
	return instrumentationLog
}

// Setup registers the slog sink used by span and metric emission.
// 关闭时 span/metric 调用全部退化为空操作。
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	instrumentationLog = logger
	instrumentationCfg = cfg
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] instrumentation enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] disabled")
		}
	}
	return func(context.Context) error { return nil }, nil
}
