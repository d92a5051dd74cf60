package vlllm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"vision-server-go/internal/utils"
)

// Factory 构造一个具体后端的Provider
type Factory func(cfg *Config, logger *utils.Logger) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register 注册一个VLLLM后端构造器。类型名不区分大小写，重复注册直接panic。
func Register(providerType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := strings.ToLower(providerType)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("vlllm: provider %q registered twice", key))
	}
	registry[key] = factory
}

// Create 根据配置类型查找构造器并初始化Provider
func Create(cfg *Config, logger *utils.Logger) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(cfg.Type)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("不支持的VLLLM类型: %s (可用: %s)", cfg.Type, strings.Join(Registered(), ", "))
	}

	provider, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := provider.Initialize(); err != nil {
		return nil, err
	}
	return provider, nil
}

// Registered 返回已注册的后端类型名，按字典序
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
