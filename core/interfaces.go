package core

import (
	"context"
)

// SchemaIntrospector 数据库 Schema 内省器接口，每次调用都读取数据库的实时结构，
// 不做任何缓存。空数据库返回空列表，不返回错误。
type SchemaIntrospector interface {
	// TableNames 返回当前数据库中全部表名（按名称排序）
	TableNames(ctx context.Context) []string
	// TableColumns 返回指定表的列名（按定义顺序），表不存在时返回空列表
	TableColumns(ctx context.Context, table string) []string
	// Snapshot 返回表名到列名列表的完整映射
	Snapshot(ctx context.Context) map[string][]string
	// Overview 返回面向提示词的 Schema 概览文本，空数据库返回空字符串
	Overview(ctx context.Context) string
}

// QueryExecutor 关系查询执行器接口。每次执行使用独立连接，读查询返回行映射
// 与列名序列，写操作返回空切片。空结果与执行失败是两种不同的状态。
type QueryExecutor interface {
	// ExecuteQuery 执行单条 SQL，返回（行映射序列，列名序列，错误）。
	// 错误文本保留驱动的原始描述（如 "no such table: X"），修复循环依赖这些子串。
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, []string, error)
}

// Completer 生成式文本补全协作者接口，文本进文本出，不承诺任何结构化契约。
// 后端不可用或返回散文都是正常情况，由调用方兜底。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever 知识检索协作者接口，返回按相关度排序的文段。
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]*Passage, error)
}

// Classifier 学习型分类协作者接口。
type Classifier interface {
	// Classify 返回有把握的类别标签；没有把握时 ok 为 false
	Classify(ctx context.Context, query string) (category string, ok bool)
	// Record 记录一次请求的路由结果与执行情况，供后续分类学习
	Record(ctx context.Context, query, category string, success bool, durationMs int64, errMsg string)
}

// Logger 日志记录器接口
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)
}

// MetricsCollector 指标收集器接口，用于收集和记录系统运行时的各类指标数据
type MetricsCollector interface {
	// IncrementCounter 增加指定名称和标签的计数器的值
	IncrementCounter(name string, labels map[string]string)
	// RecordHistogram 记录指定名称和标签的直方图数据（如响应时间）
	RecordHistogram(name string, value float64, labels map[string]string)
	// SetGauge 设置指定名称和标签的仪表值
	SetGauge(name string, value float64, labels map[string]string)
}
