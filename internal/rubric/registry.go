package rubric

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：评分量表注册表。量表文件（YAML）定义评估器的打分维度、
// 评语指引和输出 JSON Schema，支持热更新：文件改动后自动重载并通知
// 监听方，评估器下一次取快照即拿到新版本。

// Axis 一个打分维度，取值固定在 0~2。
type Axis struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Title    string `mapstructure:"title" yaml:"title"`
	Guidance string `mapstructure:"guidance" yaml:"guidance"`
	Order    int    `mapstructure:"order" yaml:"order"`
}

// fileConfig 映射量表文件结构。
type fileConfig struct {
	Rubric struct {
		Instruction  string                 `mapstructure:"instruction"`
		Axes         map[string]Axis        `mapstructure:"axes"`
		OutputSchema map[string]interface{} `mapstructure:"output_schema"`
	} `mapstructure:"rubric"`
}

// Snapshot 某一版本量表的只读视图。
type Snapshot struct {
	Version     int64
	LoadedAt    time.Time
	Instruction string
	Axes        []Axis

	schemaCompiled *jsonschema.Schema
}

// ChangeListener 量表重载成功后回调。
type ChangeListener func(Snapshot)

// requiredAxes 评分协议要求的四个维度，量表文件缺一不可。
var requiredAxes = []string{
	"invalidation_clarity",
	"risk_reward_quality",
	"structural_simplicity",
	"resolution_speed",
}

type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取量表文件并开始监听变更。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rubric registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rubric config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.v.ReadInConfig(); err != nil {
			logger.Errorf("量表文件重读失败: %v", err)
			return
		}
		if err := r.reload(); err != nil {
			logger.Errorf("量表重载失败: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前量表视图。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// OnChange 注册重载回调，回调在独立 goroutine 中执行。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// PromptSection 渲染注入评估器提示词的量表段落。
func (s Snapshot) PromptSection() string {
	var b strings.Builder
	b.WriteString("## 评分量表（每项 0~2 分）\n")
	for i, ax := range s.Axes {
		title := ax.Title
		if title == "" {
			title = ax.ID
		}
		b.WriteString(fmt.Sprintf("%d. %s (`%s`)\n", i+1, title, ax.ID))
		if hint := strings.TrimSpace(ax.Guidance); hint != "" {
			b.WriteString(indentLines(hint, "   "))
			b.WriteString("\n")
		}
	}
	if ins := strings.TrimSpace(s.Instruction); ins != "" {
		b.WriteString("\n")
		b.WriteString(ins)
		b.WriteString("\n")
	}
	return b.String()
}

// ValidateOutput 用量表携带的 JSON Schema 校验评估器的原始输出。
// 字符串形式的数字先归一化，兼容模型偶尔输出 "2" 而非 2。
func (s Snapshot) ValidateOutput(blob string) error {
	if s.schemaCompiled == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return fmt.Errorf("评估输出不是合法 JSON: %w", err)
	}
	return s.schemaCompiled.Validate(coerceNumbers(doc))
}

func (r *Registry) reload() error {
	var cfg fileConfig
	if err := r.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parse rubric config failed: %w", err)
	}
	axes := make([]Axis, 0, len(cfg.Rubric.Axes))
	for name, ax := range cfg.Rubric.Axes {
		ax.ID = strings.TrimSpace(ax.ID)
		if ax.ID == "" {
			ax.ID = strings.TrimSpace(name)
		}
		axes = append(axes, ax)
	}
	sort.Slice(axes, func(i, j int) bool {
		if axes[i].Order != axes[j].Order {
			return axes[i].Order < axes[j].Order
		}
		return axes[i].ID < axes[j].ID
	})
	if err := checkRequiredAxes(axes); err != nil {
		return err
	}
	var compiled *jsonschema.Schema
	if len(cfg.Rubric.OutputSchema) > 0 {
		var err error
		compiled, err = compileSchema(cfg.Rubric.OutputSchema)
		if err != nil {
			return fmt.Errorf("compile rubric output schema failed: %w", err)
		}
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:        r.snapshot.Version + 1,
		LoadedAt:       time.Now(),
		Instruction:    strings.TrimSpace(cfg.Rubric.Instruction),
		Axes:           axes,
		schemaCompiled: compiled,
	}
	version := r.snapshot.Version
	r.mu.Unlock()
	logger.Infof("量表已加载 version=%d axes=%d file=%s", version, len(axes), filepath.Base(r.path))
	return nil
}

func checkRequiredAxes(axes []Axis) error {
	present := make(map[string]bool, len(axes))
	for _, ax := range axes {
		present[ax.ID] = true
	}
	for _, id := range requiredAxes {
		if !present[id] {
			return fmt.Errorf("rubric missing required axis: %s", id)
		}
	}
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("rubric listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.Axes = append([]Axis(nil), src.Axes...)
	return dst
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rubric.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("rubric.json")
}

// coerceNumbers 递归把字符串形式的数字转成 float64。
func coerceNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = coerceNumbers(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = coerceNumbers(child)
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}
