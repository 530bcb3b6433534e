package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/modelgate/types"
)

// TemperatureConstraint 校验/截断请求的采样温度。
// 不同模型对温度的支持差异很大：推理类模型只接受固定值，
// 常规模型接受一个 [min,max] 区间。
type TemperatureConstraint interface {
	// Validate 报告温度值是否可被该模型接受。
	Validate(temp float64) bool

	// Clamp 将温度值收敛到可接受范围内。
	Clamp(temp float64) float64

	// Default 返回该模型的默认温度。
	Default() float64
}

// fixedTemperature 只接受单一固定值（如 o 系列推理模型恒为 1.0）。
type fixedTemperature struct {
	value float64
}

// FixedTemperature 创建固定温度约束。
func FixedTemperature(value float64) TemperatureConstraint {
	return fixedTemperature{value: value}
}

func (f fixedTemperature) Validate(temp float64) bool { return temp == f.value }
func (f fixedTemperature) Clamp(float64) float64      { return f.value }
func (f fixedTemperature) Default() float64           { return f.value }

// rangeTemperature 接受 [min,max] 区间内的任意值。
type rangeTemperature struct {
	min, max, def float64
}

// TemperatureRange 创建区间温度约束。min > max 或默认值越界视为配置错误。
func TemperatureRange(min, max, def float64) (TemperatureConstraint, error) {
	if min > max {
		return nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("temperature range invalid: min %.2f > max %.2f", min, max))
	}
	if def < min || def > max {
		return nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("temperature default %.2f outside range [%.2f, %.2f]", def, min, max))
	}
	return rangeTemperature{min: min, max: max, def: def}, nil
}

// MustTemperatureRange 同 TemperatureRange，配置错误时 panic。
// 用于编译期已知合法的内置目录。
func MustTemperatureRange(min, max, def float64) TemperatureConstraint {
	c, err := TemperatureRange(min, max, def)
	if err != nil {
		panic(err)
	}
	return c
}

func (r rangeTemperature) Validate(temp float64) bool {
	return temp >= r.min && temp <= r.max
}

func (r rangeTemperature) Clamp(temp float64) float64 {
	if temp < r.min {
		return r.min
	}
	if temp > r.max {
		return r.max
	}
	return temp
}

func (r rangeTemperature) Default() float64 { return r.def }

// ModelCapabilities 描述一个模型支持的能力（不可变值对象）。
type ModelCapabilities struct {
	// Provider 所属提供商
	Provider ProviderType `json:"provider"`
	// ModelName 提供商的规范模型名，提供商内唯一
	ModelName string `json:"model_name"`
	// Aliases 可解析到该模型的别名，提供商目录内大小写不敏感唯一
	Aliases []string `json:"aliases,omitempty"`
	// ContextWindow 上下文窗口（token 数）
	ContextWindow int `json:"context_window"`
	// MaxOutputTokens 最大输出 token 数
	MaxOutputTokens int `json:"max_output_tokens"`

	SupportsSystemPrompt    bool `json:"supports_system_prompt"`
	SupportsStreaming       bool `json:"supports_streaming"`
	SupportsFunctionCalling bool `json:"supports_function_calling"`
	SupportsJSONMode        bool `json:"supports_json_mode"`
	SupportsImages          bool `json:"supports_images"`

	// SupportsThinking 是否有独立于输出 token 的推理预算
	SupportsThinking bool `json:"supports_thinking"`
	// ThinkingBudget 推理 token 预算（SupportsThinking 为 false 时无意义）
	ThinkingBudget int `json:"thinking_budget,omitempty"`

	// Temperature 温度约束，nil 表示默认 [0,2] 区间
	Temperature TemperatureConstraint `json:"-"`
}

// TemperatureOrDefault 返回该模型的温度约束。
func (c ModelCapabilities) TemperatureOrDefault() TemperatureConstraint {
	if c.Temperature != nil {
		return c.Temperature
	}
	return MustTemperatureRange(0, 2, 0.7)
}

// Catalog 是单个提供商的模型目录。
// 别名归属：别名知识完全由各提供商自有目录承载，
// 注册中心不维护任何集中式别名表，避免别名漂移。
type Catalog struct {
	byName  map[string]ModelCapabilities // 小写规范名 -> 能力
	byAlias map[string]string            // 小写别名 -> 规范名
	order   []string                     // 规范名的声明顺序
}

// NewCatalog 从能力列表构建目录。
// 重复的规范名或别名（大小写不敏感）是加载期配置错误，直接失败而不是静默合并。
func NewCatalog(provider ProviderType, models []ModelCapabilities) (*Catalog, error) {
	c := &Catalog{
		byName:  make(map[string]ModelCapabilities, len(models)),
		byAlias: make(map[string]string),
	}

	for _, m := range models {
		if m.ModelName == "" {
			return nil, types.NewError(types.ErrConfiguration,
				fmt.Sprintf("%s catalog: model with empty name", provider))
		}
		key := strings.ToLower(m.ModelName)
		if _, dup := c.byName[key]; dup {
			return nil, types.NewError(types.ErrConfiguration,
				fmt.Sprintf("%s catalog: duplicate model name %q", provider, m.ModelName))
		}
		// 反向冲突同样要抓：先声明的别名不允许被后声明的规范名遮蔽
		if owner, clash := c.byAlias[key]; clash {
			return nil, types.NewError(types.ErrDuplicateAlias,
				fmt.Sprintf("%s catalog: model name %q collides with an alias of %q",
					provider, m.ModelName, owner))
		}
		m.Provider = provider
		c.byName[key] = m
		c.order = append(c.order, key)

		for _, alias := range m.Aliases {
			ak := strings.ToLower(alias)
			if prev, dup := c.byAlias[ak]; dup {
				return nil, types.NewError(types.ErrDuplicateAlias,
					fmt.Sprintf("%s catalog: alias %q maps to both %q and %q",
						provider, alias, prev, m.ModelName))
			}
			if _, clash := c.byName[ak]; clash {
				return nil, types.NewError(types.ErrDuplicateAlias,
					fmt.Sprintf("%s catalog: alias %q collides with a canonical model name", provider, alias))
			}
			c.byAlias[ak] = key
		}
	}
	return c, nil
}

// Resolve 将规范名或别名（大小写不敏感）解析为模型能力。
func (c *Catalog) Resolve(name string) (ModelCapabilities, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if m, ok := c.byName[key]; ok {
		return m, true
	}
	if canonical, ok := c.byAlias[key]; ok {
		return c.byName[canonical], true
	}
	return ModelCapabilities{}, false
}

// Canonical 返回名称对应的规范模型名。
func (c *Catalog) Canonical(name string) (string, bool) {
	m, ok := c.Resolve(name)
	if !ok {
		return "", false
	}
	return m.ModelName, true
}

// Contains 报告名称（规范名或别名）是否在目录中。
func (c *Catalog) Contains(name string) bool {
	_, ok := c.Resolve(name)
	return ok
}

// List 按声明顺序返回全部模型能力。
func (c *Catalog) List() []ModelCapabilities {
	out := make([]ModelCapabilities, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byName[key])
	}
	return out
}

// AliasesFor 返回某个规范名的全部别名（排序后）。
func (c *Catalog) AliasesFor(canonical string) []string {
	key := strings.ToLower(canonical)
	var out []string
	for alias, target := range c.byAlias {
		if target == key {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Len 返回目录中的模型数量。
func (c *Catalog) Len() int { return len(c.byName) }
