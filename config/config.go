// 本文件实现了配置管理器，负责加载、解析、验证和管理应用的各类配置，
// 包括数据库、LLM、标识符归一化、路由分类、学习存储与日志等模块。
// 支持从配置文件和环境变量读取配置，并提供默认值和热更新机制。
// 主要功能：
// 1. 配置文件和环境变量的加载与优先级处理。
// 2. 默认配置值的设置，保证系统开箱可用。
// 3. 配置解析到结构体，便于类型安全访问。
// 4. 配置验证，防止错误配置导致系统异常。
// 5. 配置热更新和变更通知机制。

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// yamlTagOption 让 viper 反序列化时复用结构体上的 yaml 标签。
func yamlTagOption(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
}

// ChangeEvent 配置变更事件
type ChangeEvent struct {
	Key  string    `json:"key"`  // 变更的配置键
	Time time.Time `json:"time"` // 变更时间
}

// ChangeHandler 配置变更处理函数
type ChangeHandler func(event ChangeEvent) error

// Manager 配置管理器，封装 viper 并持有解析后的配置结构体。
type Manager struct {
	config     *core.Config               // 解析后的配置结构体，供业务使用
	viper      *viper.Viper               // viper 实例，负责底层配置读取
	configPath string                     // 配置文件路径
	handlers   map[string][]ChangeHandler // 配置变更处理器
	mu         sync.RWMutex               // 读写锁
	watching   bool                       // 是否已开启监听
}

// NewManager 创建配置管理器实例，初始化 viper。
func NewManager() *Manager {
	return &Manager{
		viper:    viper.New(),
		handlers: make(map[string][]ChangeHandler),
	}
}

// Load 加载配置文件和环境变量，并解析到结构体。
// configPath 指定配置文件路径，若为空则按默认路径查找；找不到配置文件时
// 仅使用默认值与环境变量，不视为错误。
func (m *Manager) Load(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if configPath != "" {
		m.configPath = configPath
		m.viper.SetConfigFile(configPath)
	} else {
		m.viper.SetConfigName("askdata")
		m.viper.SetConfigType("yaml")
		m.viper.AddConfigPath("./config")
		m.viper.AddConfigPath(".")
		m.configPath = "config/askdata.yaml"
	}

	// 环境变量前缀 ASKDATA_，点号映射为下划线
	m.viper.SetEnvPrefix("ASKDATA")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &core.Config{}
	if err := m.viper.Unmarshal(config, viper.DecoderConfigOption(yamlTagOption)); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}

	if err := m.validateConfig(config); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults 设置默认值，保证配置项完整。
func (m *Manager) setDefaults() {
	// 数据库配置
	m.viper.SetDefault("database.driver", "sqlite")
	m.viper.SetDefault("database.dsn", "data/analytics.db")
	m.viper.SetDefault("database.database", "analytics")

	// LLM 配置
	m.viper.SetDefault("llm.provider", "ollama")
	m.viper.SetDefault("llm.model", "llama3.2")
	m.viper.SetDefault("llm.server_url", "http://localhost:11434")
	m.viper.SetDefault("llm.temperature", 0.1)
	m.viper.SetDefault("llm.max_tokens", 2048)

	// 标识符归一化配置。阈值是部署域的策略参数，不写死在代码里。
	m.viper.SetDefault("normalizer.alias_file", "data/learned_aliases.json")
	m.viper.SetDefault("normalizer.table_threshold", 0.6)
	m.viper.SetDefault("normalizer.column_threshold", 0.7)
	m.viper.SetDefault("normalizer.term_bridges", map[string]string{
		"produto":  "projeto",
		"produtos": "projetos",
	})

	// 路由分类配置（葡萄牙语业务域关键词）
	m.viper.SetDefault("classifier.data_keywords", []string{
		"quantos", "quanto", "qual", "quais", "total", "soma", "média", "máximo", "mínimo",
		"receita", "faturamento", "vendas", "clientes", "projetos", "funcionários", "empregados",
		"tickets", "sla", "horas", "utilização", "performance", "relatório", "dados",
		"número", "valor", "custo", "lucro", "margem", "crescimento", "tendência",
		"comparar", "comparação", "ranking", "top", "melhor", "pior", "maior", "menor",
	})
	m.viper.SetDefault("classifier.concept_keywords", []string{
		"como", "por que", "porque", "explique", "explicar", "definir", "definição",
		"conceito", "significado", "diferença", "vantagem", "desvantagem", "benefício",
		"processo", "metodologia", "estratégia", "análise", "interpretação", "insight",
	})

	// 学习存储配置
	m.viper.SetDefault("learning.path", "data/learning.db")
	m.viper.SetDefault("learning.min_usage", 3)
	m.viper.SetDefault("learning.min_success", 0.7)

	// 日志配置
	m.viper.SetDefault("log.level", "info")
	m.viper.SetDefault("log.format", "json")
	m.viper.SetDefault("log.output", "stdout")
	m.viper.SetDefault("log.file_path", "logs/askdata.log")
	m.viper.SetDefault("log.max_size", 100)
	m.viper.SetDefault("log.max_backups", 3)
	m.viper.SetDefault("log.max_age", 7)
}

// validateConfig 验证配置，确保必需项存在且合法。
func (m *Manager) validateConfig(config *core.Config) error {
	// 验证数据库配置
	if config.Database == nil {
		return fmt.Errorf("数据库配置不能为空")
	}
	if config.Database.Driver != "sqlite" && config.Database.Driver != "mysql" {
		return fmt.Errorf("不支持的数据库驱动: %s", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("数据库连接串不能为空")
	}
	if config.Database.Driver == "mysql" && config.Database.Database == "" {
		return fmt.Errorf("mysql 驱动需要指定数据库名")
	}

	// 验证 LLM 配置
	if config.LLM == nil {
		return fmt.Errorf("LLM 配置不能为空")
	}
	if config.LLM.Provider == "" {
		return fmt.Errorf("LLM 提供商不能为空")
	}
	if config.LLM.Model == "" {
		return fmt.Errorf("LLM 模型不能为空")
	}
	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		return fmt.Errorf("无效的 LLM 温度值: %f", config.LLM.Temperature)
	}

	// 验证归一化配置
	if config.Normalizer == nil {
		return fmt.Errorf("归一化配置不能为空")
	}
	if config.Normalizer.TableThreshold <= 0 || config.Normalizer.TableThreshold > 1 {
		return fmt.Errorf("无效的表名匹配阈值: %f", config.Normalizer.TableThreshold)
	}
	if config.Normalizer.ColumnThreshold <= 0 || config.Normalizer.ColumnThreshold > 1 {
		return fmt.Errorf("无效的列名匹配阈值: %f", config.Normalizer.ColumnThreshold)
	}

	// 验证学习配置
	if config.Learning == nil {
		return fmt.Errorf("学习存储配置不能为空")
	}
	if config.Learning.MinUsage < 1 {
		return fmt.Errorf("无效的最少命中次数: %d", config.Learning.MinUsage)
	}
	if config.Learning.MinSuccess < 0 || config.Learning.MinSuccess > 1 {
		return fmt.Errorf("无效的最低成功率: %f", config.Learning.MinSuccess)
	}

	// 验证日志配置
	if config.Log == nil {
		return fmt.Errorf("日志配置不能为空")
	}
	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.Log.Level) {
		return fmt.Errorf("无效的日志级别: %s", config.Log.Level)
	}

	return nil
}

// GetConfig 获取解析后的配置结构体。
func (m *Manager) GetConfig() *core.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetString 获取字符串配置值
func (m *Manager) GetString(key string) string {
	return m.viper.GetString(key)
}

// GetInt 获取整数配置值
func (m *Manager) GetInt(key string) int {
	return m.viper.GetInt(key)
}

// GetBool 获取布尔配置值
func (m *Manager) GetBool(key string) bool {
	return m.viper.GetBool(key)
}

// Watch 开启配置文件监听，文件变更时重新解析并通知注册的处理器。
func (m *Manager) Watch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watching {
		return
	}
	m.watching = true

	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.handleConfigChange(e)
	})
	m.viper.WatchConfig()
}

// handleConfigChange 处理配置文件变更事件。解析失败时保留旧配置。
func (m *Manager) handleConfigChange(e fsnotify.Event) {
	m.mu.Lock()
	newConfig := &core.Config{}
	if err := m.viper.Unmarshal(newConfig, viper.DecoderConfigOption(yamlTagOption)); err != nil {
		m.mu.Unlock()
		return
	}
	if err := m.validateConfig(newConfig); err != nil {
		m.mu.Unlock()
		return
	}
	m.config = newConfig

	handlers := make([]ChangeHandler, 0)
	for _, hs := range m.handlers {
		handlers = append(handlers, hs...)
	}
	m.mu.Unlock()

	event := ChangeEvent{Key: e.Name, Time: time.Now()}
	for _, handler := range handlers {
		_ = handler(event)
	}
}

// RegisterChangeHandler 注册配置变更处理器。
func (m *Manager) RegisterChangeHandler(key string, handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = append(m.handlers[key], handler)
}

// contains 判断字符串切片是否包含指定元素
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
