// 本文件实现了关系查询执行器。每次执行都打开独立连接，执行完即关闭，
// 保证归一化与修复逻辑永远面对数据库的当前状态，不受连接级缓存影响。
// 读查询返回行映射与列名序列，写操作返回空结果。
// 执行失败时保留驱动的原始错误文本，修复循环依赖其中的
// "no such table:" / "no such column:" 子串定位问题标识符。

package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Anniext/askdata/core"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Executor 关系查询执行器，实现 core.QueryExecutor。
type Executor struct {
	driver string
	dsn    string
	logger core.Logger
}

// NewExecutor 创建执行器实例
func NewExecutor(config *core.DatabaseConfig, logger core.Logger) (*Executor, error) {
	if config == nil {
		return nil, fmt.Errorf("数据库配置不能为空")
	}
	if config.Driver != "sqlite" && config.Driver != "mysql" {
		return nil, fmt.Errorf("不支持的数据库驱动: %s", config.Driver)
	}
	return &Executor{
		driver: config.Driver,
		dsn:    config.DSN,
		logger: logger,
	}, nil
}

// ExecuteQuery 执行单条 SQL。
// SELECT/WITH 返回行映射与列名序列；其余语句执行后返回空结果。
func (e *Executor) ExecuteQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, []string, error) {
	driverName := e.driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}
	db, err := sql.Open(driverName, e.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	defer db.Close()

	if !isReadQuery(sqlText) {
		if _, err := db.ExecContext(ctx, sqlText, args...); err != nil {
			return nil, nil, err
		}
		return []map[string]any{}, []string{}, nil
	}

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		// 原样返回驱动错误，后续修复依赖其中的表名/列名描述
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("读取列信息失败: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, fmt.Errorf("扫描结果行失败: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return results, columns, nil
}

// isReadQuery 判断语句是否是读查询
func isReadQuery(sqlText string) bool {
	up := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(up, "SELECT") || strings.HasPrefix(up, "WITH") || strings.HasPrefix(up, "PRAGMA")
}

// normalizeValue 把驱动返回的字节切片转成字符串，其余类型原样返回
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
