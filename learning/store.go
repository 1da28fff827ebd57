// 本文件实现学习型分类存储：在本地 sqlite 库中累积问题模式与路由结果，
// 当某类模式的历史表现足够可靠时，用它替代关键词打分给出分类。
// 主要功能：
// 1. Record：记录一次请求的路由结果与执行情况，并更新模式成功率。
// 2. Classify：基于历史模式给出有把握的类别，否则交回默认分类。
// 3. Insights / Cleanup：统计洞察与过期数据清理。

package learning

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Anniext/askdata/core"

	_ "github.com/mattn/go-sqlite3"
)

// schemaStatements 初始化语句，幂等
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS query_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern TEXT NOT NULL,
		query_type TEXT NOT NULL,
		success_rate REAL DEFAULT 0.0,
		usage_count INTEGER DEFAULT 0,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS query_analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_text TEXT NOT NULL,
		query_type TEXT NOT NULL,
		execution_time REAL,
		success BOOLEAN,
		error_message TEXT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_type ON query_patterns(query_type)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_pattern ON query_patterns(pattern)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_timestamp ON query_analytics(timestamp)`,
}

// patternKeywords 参与模式提取的领域关键词
var patternKeywords = []string{
	"receita", "faturamento", "vendas", "clientes", "projetos",
	"funcionários", "empregados", "tickets", "sla", "horas",
	"total", "soma", "média", "máximo", "mínimo", "quantos",
	"qual", "quais", "como", "por que", "explique",
}

// PatternStats 单个模式的统计信息
type PatternStats struct {
	Pattern     string  `json:"pattern"`      // 模式标签
	QueryType   string  `json:"query_type"`   // 路由类别
	SuccessRate float64 `json:"success_rate"` // 成功率
	UsageCount  int     `json:"usage_count"`  // 使用次数
}

// Insights 学习系统的整体洞察
type Insights struct {
	TotalQueries        int            `json:"total_queries"`         // 请求总量
	SuccessRate         float64        `json:"success_rate"`          // 整体成功率（百分比）
	AvgExecutionMs      float64        `json:"avg_execution_ms"`      // 平均执行耗时
	TopPatterns         []PatternStats `json:"top_patterns"`          // 使用最多的模式
	ProblematicPatterns int            `json:"problematic_patterns"`  // 成功率低于阈值的模式数
	QueryTypeCounts     map[string]int `json:"query_type_counts"`     // 各类别请求量
}

// Store 学习型分类存储，实现 core.Classifier 接口
type Store struct {
	db     *sql.DB
	config *core.LearningConfig
	logger core.Logger
}

// NewStore 创建学习存储并初始化表结构
func NewStore(config *core.LearningConfig, logger core.Logger) (*Store, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("学习存储路径不能为空")
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建学习存储目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("打开学习存储失败: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("初始化学习存储表结构失败: %w", err)
		}
	}

	return &Store{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Record 记录一次请求的路由结果并更新模式统计
func (s *Store) Record(ctx context.Context, query, category string, success bool, durationMs int64, errMsg string) {
	if strings.TrimSpace(query) == "" || category == "" {
		return
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_analytics (query_text, query_type, execution_time, success, error_message)
		 VALUES (?, ?, ?, ?, ?)`,
		query, category, float64(durationMs), success, errMsg)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("记录查询分析失败", "error", err)
		}
		return
	}

	for _, pattern := range extractPatterns(query) {
		if err := s.upsertPattern(ctx, pattern, category, success); err != nil {
			if s.logger != nil {
				s.logger.Warn("更新查询模式失败", "pattern", pattern, "error", err)
			}
		}
	}
}

// upsertPattern 更新或创建一个模式的成功率统计
func (s *Store) upsertPattern(ctx context.Context, pattern, category string, success bool) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, usage_count, success_rate FROM query_patterns
		 WHERE pattern = ? AND query_type = ?`, pattern, category)

	var id, usageCount int
	var successRate float64
	err := row.Scan(&id, &usageCount, &successRate)

	switch {
	case err == sql.ErrNoRows:
		initialRate := 0.0
		if success {
			initialRate = 1.0
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO query_patterns (pattern, query_type, success_rate, usage_count)
			 VALUES (?, ?, ?, 1)`, pattern, category, initialRate)
		return err

	case err != nil:
		return err

	default:
		// 增量更新成功率：旧均值乘以旧次数，加上本次结果，再除以新次数
		newUsage := usageCount + 1
		hit := 0.0
		if success {
			hit = 1.0
		}
		newRate := (successRate*float64(usageCount) + hit) / float64(newUsage)

		_, err = s.db.ExecContext(ctx,
			`UPDATE query_patterns
			 SET usage_count = ?, success_rate = ?, last_used = CURRENT_TIMESTAMP
			 WHERE id = ?`, newUsage, newRate, id)
		return err
	}
}

// Classify 基于历史模式给出分类；历史不足以支撑判断时 ok 为 false
func (s *Store) Classify(ctx context.Context, query string) (string, bool) {
	patterns := extractPatterns(query)
	if len(patterns) == 0 {
		return "", false
	}

	typeScores := make(map[string]float64)
	for _, pattern := range patterns {
		rows, err := s.db.QueryContext(ctx,
			`SELECT query_type, success_rate, usage_count
			 FROM query_patterns
			 WHERE pattern = ? AND usage_count >= ? AND success_rate >= ?
			 ORDER BY success_rate DESC`, pattern, s.config.MinUsage, s.config.MinSuccess)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("查询模式检索失败", "pattern", pattern, "error", err)
			}
			return "", false
		}

		for rows.Next() {
			var queryType string
			var successRate float64
			var usageCount int
			if err := rows.Scan(&queryType, &successRate, &usageCount); err != nil {
				rows.Close()
				return "", false
			}
			// 权重结合成功率与使用频次，频次贡献封顶
			weight := successRate * minFloat(float64(usageCount)/10, 1.0)
			typeScores[queryType] += weight
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", false
		}
		rows.Close()
	}

	bestType := ""
	bestScore := 0.0
	for queryType, score := range typeScores {
		if score > bestScore {
			bestType = queryType
			bestScore = score
		}
	}

	if bestType == "" || bestScore <= 0.5 {
		return "", false
	}

	if s.logger != nil {
		s.logger.Debug("学习分类命中",
			"query_type", bestType,
			"score", bestScore,
		)
	}
	return bestType, true
}

// GetInsights 返回学习系统的统计洞察
func (s *Store) GetInsights(ctx context.Context) (*Insights, error) {
	insights := &Insights{QueryTypeCounts: make(map[string]int)}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(execution_time), 0)
		 FROM query_analytics`)
	var successful int
	if err := row.Scan(&insights.TotalQueries, &successful, &insights.AvgExecutionMs); err != nil {
		return nil, fmt.Errorf("统计查询分析失败: %w", err)
	}
	if insights.TotalQueries > 0 {
		insights.SuccessRate = float64(successful) / float64(insights.TotalQueries) * 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern, query_type, success_rate, usage_count
		 FROM query_patterns ORDER BY usage_count DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("检索高频模式失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stats PatternStats
		if err := rows.Scan(&stats.Pattern, &stats.QueryType, &stats.SuccessRate, &stats.UsageCount); err != nil {
			return nil, err
		}
		insights.TopPatterns = append(insights.TopPatterns, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_patterns
		 WHERE success_rate < ? AND usage_count >= ?`,
		s.config.MinSuccess, s.config.MinUsage)
	if err := row.Scan(&insights.ProblematicPatterns); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx,
		`SELECT query_type, COUNT(*) FROM query_analytics GROUP BY query_type`)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var queryType string
		var count int
		if err := typeRows.Scan(&queryType, &count); err != nil {
			return nil, err
		}
		insights.QueryTypeCounts[queryType] = count
	}
	return insights, typeRows.Err()
}

// Cleanup 删除过期的分析记录与低频模式
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format("2006-01-02 15:04:05")

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM query_analytics WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("清理查询分析失败: %w", err)
	}
	deleted, _ := result.RowsAffected()

	result, err = s.db.ExecContext(ctx,
		`DELETE FROM query_patterns WHERE last_used < ? AND usage_count < ?`,
		cutoff, s.config.MinUsage)
	if err != nil {
		return deleted, fmt.Errorf("清理低频模式失败: %w", err)
	}
	patternDeleted, _ := result.RowsAffected()

	return deleted + patternDeleted, nil
}

// extractPatterns 从问题文本中提取模式标签
func extractPatterns(query string) []string {
	patterns := make([]string, 0, 8)
	lower := strings.ToLower(query)

	for _, keyword := range patternKeywords {
		if strings.Contains(lower, keyword) {
			patterns = append(patterns, "keyword_"+keyword)
		}
	}

	if strings.Contains(query, "?") {
		patterns = append(patterns, "question_mark")
	}
	if containsAny(lower, "último", "última", "recente") {
		patterns = append(patterns, "temporal_recent")
	}
	if containsAny(lower, "comparar", "diferença", "vs") {
		patterns = append(patterns, "comparison")
	}
	if containsAny(lower, "top", "melhor", "maior", "ranking") {
		patterns = append(patterns, "ranking")
	}

	wordCount := len(strings.Fields(query))
	switch {
	case wordCount <= 3:
		patterns = append(patterns, "short_query")
	case wordCount <= 10:
		patterns = append(patterns, "medium_query")
	default:
		patterns = append(patterns, "long_query")
	}

	return patterns
}

// containsAny 判断文本是否包含任一子串
func containsAny(text string, candidates ...string) bool {
	for _, candidate := range candidates {
		if strings.Contains(text, candidate) {
			return true
		}
	}
	return false
}

// minFloat 返回两个浮点数中的较小值
func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
