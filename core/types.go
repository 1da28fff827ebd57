package core

import (
	"time"
)

// QuerySource 标识最终执行的 SQL 来自哪条路径。
type QuerySource string

const (
	SourceIntent     QuerySource = "intent"     // 确定性意图模板
	SourcePredefined QuerySource = "predefined" // 预定义分析查询
	SourceGenerated  QuerySource = "generated"  // 生成式补全产出
	SourceCorrected  QuerySource = "corrected"  // 修复循环重写后的 SQL
)

// RepairAction 记录修复循环中实际生效的一次修正手段，测试与排障都依赖这份轨迹。
type RepairAction string

const (
	RepairLearnedAlias    RepairAction = "learned_alias"     // 已学习别名直接替换
	RepairHeuristicTable  RepairAction = "heuristic_table"   // 领域启发式表名替换
	RepairFuzzyTable      RepairAction = "fuzzy_table"       // 近似匹配表名替换
	RepairColumnSynonym   RepairAction = "column_synonym"    // 列同义词替换
	RepairFuzzyColumn     RepairAction = "fuzzy_column"      // 近似匹配列名替换
	RepairDateFallback    RepairAction = "date_fallback"     // 日期遗留列兜底
	RepairSingleStatement RepairAction = "single_statement"  // 多语句截断
	RepairLLMCorrection   RepairAction = "llm_correction"    // 生成式纠错
)

// QueryRequest 一次分析型提问的全部输入。
// Question：用户原始问题文本。
// History：同一会话内的历史轮次，供生成提示词引用。
// SessionID / RequestID：会话与请求标识，便于日志追踪。
type QueryRequest struct {
	Question  string         `json:"question" validate:"required"` // 问题内容，必填
	History   []*ChatTurn    `json:"history,omitempty"`            // 会话历史，可选
	Context   map[string]any `json:"context,omitempty"`            // 额外上下文，可选
	SessionID string         `json:"session_id,omitempty"`         // 会话ID，可选
	RequestID string         `json:"request_id,omitempty"`         // 请求ID，可选
}

// ChatTurn 会话中的一轮交互。
type ChatTurn struct {
	Role    string `json:"role"`              // user 或 assistant
	Content string `json:"content"`           // 该轮文本
	SQL     string `json:"sql,omitempty"`     // 该轮执行过的 SQL（如有）
}

// QueryResponse 一次提问的结构化返回。错误同样经由该结构返回（Error 字段），
// 核心层从不向调用方抛出未处理异常。
type QueryResponse struct {
	Response  string           `json:"response"`             // 自然语言回答
	SQL       string           `json:"sql,omitempty"`        // 实际执行的 SQL，非 SQL 路径为空
	Results   []map[string]any `json:"results"`              // 行映射序列
	Columns   []string         `json:"columns"`              // 列名序列
	QueryType string           `json:"query_type,omitempty"` // sql / rag / general / error
	Metadata  *QueryMetadata   `json:"metadata,omitempty"`   // 元数据
	RequestID string           `json:"request_id,omitempty"` // 请求ID
}

// QueryMetadata 查询元数据，记录路径来源、修复轨迹与统计信息。
type QueryMetadata struct {
	Source        QuerySource    `json:"query_source,omitempty"` // SQL 来源路径
	Intent        string         `json:"intent,omitempty"`       // 命中的意图名（如有）
	Repairs       []RepairAction `json:"repairs,omitempty"`      // 依次生效的修复手段
	RowCount      int            `json:"row_count"`              // 返回行数
	ExecutionTime time.Duration  `json:"execution_time"`         // 执行耗时
	Error         string         `json:"error,omitempty"`        // 终态错误描述
}

// Intent 被识别出的问题形态：一个固定枚举标签加参数映射，
// 由模式匹配产生，消费侧用它构造唯一对应的 SQL 模板。
type Intent struct {
	Name   string         `json:"name"`   // 意图标签
	Params map[string]any `json:"params"` // 参数映射（如 year、quarter）
}

// Passage 知识检索返回的单个文段。
type Passage struct {
	Content  string            `json:"content"`            // 文段内容
	Metadata map[string]string `json:"metadata,omitempty"` // 分类等元信息
	Score    float64           `json:"score"`              // 相关度得分
}

// ChatHistoryEntry 会话内存中保存的一次完整问答。
type ChatHistoryEntry struct {
	Question  string      `json:"question"`        // 问题
	Response  string      `json:"response"`        // 回答
	SQL       string      `json:"sql,omitempty"`   // 执行的 SQL
	QueryType string      `json:"query_type"`      // 路由类别
	Timestamp time.Time   `json:"timestamp"`       // 时间戳
	Source    QuerySource `json:"source,omitempty"` // SQL 来源
}

// Config 系统配置结构体，集中管理各模块配置。
type Config struct {
	Database   *DatabaseConfig   `yaml:"database"`   // 数据库配置
	LLM        *LLMConfig        `yaml:"llm"`        // 大语言模型配置
	Normalizer *NormalizerConfig `yaml:"normalizer"` // 标识符归一化配置
	Classifier *ClassifierConfig `yaml:"classifier"` // 分类器配置
	Learning   *LearningConfig   `yaml:"learning"`   // 学习存储配置
	Log        *LogConfig        `yaml:"log"`        // 日志配置
}

// DatabaseConfig 数据库配置结构体。Driver 决定内省器与执行器后端（sqlite / mysql）。
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`   // 驱动：sqlite 或 mysql
	DSN      string `yaml:"dsn"`      // 连接串（sqlite 为文件路径）
	Database string `yaml:"database"` // 数据库名（mysql 内省用）
}

// LLMConfig 大语言模型配置结构体。
type LLMConfig struct {
	Provider    string  `yaml:"provider"`    // 服务商（ollama）
	Model       string  `yaml:"model"`       // 模型名称
	ServerURL   string  `yaml:"server_url"`  // 服务地址
	Temperature float64 `yaml:"temperature"` // 采样温度
	MaxTokens   int     `yaml:"max_tokens"`  // 最大生成 Token 数
}

// NormalizerConfig 标识符归一化配置。阈值与术语映射是部署域的策略选择，
// 不写死在代码里。
type NormalizerConfig struct {
	AliasFile       string            `yaml:"alias_file"`       // 别名学习文件路径
	TableThreshold  float64           `yaml:"table_threshold"`  // 表名近似匹配最低相似度
	ColumnThreshold float64           `yaml:"column_threshold"` // 列名近似匹配最低相似度
	TermBridges     map[string]string `yaml:"term_bridges"`     // 术语桥接（如 produto→projeto）
}

// ClassifierConfig 路由分类配置。两组关键词分别指向结构化数据与概念性知识，
// 平票偏向结构化数据是显式规则。
type ClassifierConfig struct {
	DataKeywords    []string `yaml:"data_keywords"`    // 数据型关键词
	ConceptKeywords []string `yaml:"concept_keywords"` // 概念型关键词
}

// LearningConfig 学习存储配置。
type LearningConfig struct {
	Path          string  `yaml:"path"`           // sqlite 文件路径
	MinUsage      int     `yaml:"min_usage"`      // 分类生效所需最少命中次数
	MinSuccess    float64 `yaml:"min_success"`    // 分类生效所需最低成功率
}

// LogConfig 日志配置结构体，定义日志级别、格式及输出方式。
type LogConfig struct {
	Level      string `yaml:"level"`       // 日志级别
	Format     string `yaml:"format"`      // 日志格式 json / console
	Output     string `yaml:"output"`      // 输出方式 stdout / stderr / file / both
	FilePath   string `yaml:"file_path"`   // 文件路径
	MaxSize    int    `yaml:"max_size"`    // 单文件最大大小（MB）
	MaxBackups int    `yaml:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age"`     // 最大保存天数
}
