package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/rank"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/rankfit/config/builders"
// 以触发内置策略（margin-classifier、linear-program、boosted-ranker 及其别名）的 init 注册。

// StrategyBuilder 根据 params 构建训练策略。
// 各策略在 init 中调用 Register(name, builder) 即可被配置驱动。
type StrategyBuilder func(params map[string]any) (rank.Strategy, error)

var (
	defaultBuilders   = make(map[string]StrategyBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种策略的构建逻辑，名称不区分大小写。
// 建议在 init 中调用，例如：func init() { config.Register("lp", BuildLinearProgram) }
func Register(name string, builder StrategyBuilder) {
	if name == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[strings.ToLower(name)] = builder
}

// SupportedStrategies 返回当前已注册的策略名（排序），用于错误提示与校验。
func SupportedStrategies() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	names := make([]string, 0, len(defaultBuilders))
	for n := range defaultBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildStrategy 按名称构建策略；未注册的名称返回 CONFIGURATION 错误，并列出已支持的名称。
func BuildStrategy(name string, params map[string]any) (rank.Strategy, error) {
	defaultBuildersMu.RLock()
	builder, ok := defaultBuilders[strings.ToLower(strings.TrimSpace(name))]
	defaultBuildersMu.RUnlock()
	if !ok {
		return nil, core.ConfigurationError(core.ModuleConfig, "config: unsupported strategy %q (supported: %v)", name, SupportedStrategies())
	}
	return builder(params)
}
