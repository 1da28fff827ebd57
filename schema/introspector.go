// 本文件实现了数据库 Schema 内省器，负责读取数据库的实时表结构。
// 每次调用都直接查询数据库，不做任何缓存，归一化与修复逻辑依赖这一点
// 在表结构变化后立即看到新结构。
// 支持两种后端：
// 1. sqlite：通过 sqlite_master 与 PRAGMA table_info 读取结构
// 2. mysql：通过 information_schema 读取结构

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/Anniext/askdata/core"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// identifierPattern 合法标识符模式，PRAGMA 语句无法参数化，必须先验证表名
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Introspector 数据库结构内省器，实现 core.SchemaIntrospector。
// 每次调用打开独立连接，读取完即关闭，保证看到的是数据库当前状态。
type Introspector struct {
	driver   string
	dsn      string
	database string
	logger   core.Logger

	// openDB 可在测试中替换为模拟连接工厂
	openDB func() (*sql.DB, error)
}

// NewIntrospector 创建内省器实例
func NewIntrospector(config *core.DatabaseConfig, logger core.Logger) (*Introspector, error) {
	if config == nil {
		return nil, fmt.Errorf("数据库配置不能为空")
	}
	if config.Driver != "sqlite" && config.Driver != "mysql" {
		return nil, fmt.Errorf("不支持的数据库驱动: %s", config.Driver)
	}
	introspector := &Introspector{
		driver:   config.Driver,
		dsn:      config.DSN,
		database: config.Database,
		logger:   logger,
	}
	introspector.openDB = introspector.open
	return introspector, nil
}

// open 打开一个新的数据库连接
func (i *Introspector) open() (*sql.DB, error) {
	driverName := i.driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}
	return sql.Open(driverName, i.dsn)
}

// TableNames 返回当前数据库中全部表名（按名称排序）。
// 数据库为空或读取失败都返回空列表。
func (i *Introspector) TableNames(ctx context.Context) []string {
	db, err := i.openDB()
	if err != nil {
		i.logger.Warn("打开数据库失败", "error", err)
		return nil
	}
	defer db.Close()

	var query string
	var args []any
	switch i.driver {
	case "mysql":
		query = `SELECT TABLE_NAME FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_NAME`
		args = []any{i.database}
	default:
		query = `SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		i.logger.Warn("查询表列表失败", "error", err)
		return nil
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			i.logger.Warn("扫描表名失败", "error", err)
			continue
		}
		tables = append(tables, name)
	}
	return tables
}

// TableColumns 返回指定表的列名（按定义顺序），表不存在时返回空列表。
func (i *Introspector) TableColumns(ctx context.Context, table string) []string {
	if !identifierPattern.MatchString(table) {
		return nil
	}

	db, err := i.openDB()
	if err != nil {
		i.logger.Warn("打开数据库失败", "error", err)
		return nil
	}
	defer db.Close()

	if i.driver == "mysql" {
		query := `SELECT COLUMN_NAME FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`
		rows, err := db.QueryContext(ctx, query, i.database, table)
		if err != nil {
			i.logger.Warn("查询列信息失败", "table", table, "error", err)
			return nil
		}
		defer rows.Close()

		var columns []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				continue
			}
			columns = append(columns, name)
		}
		return columns
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		i.logger.Warn("查询列信息失败", "table", table, "error", err)
		return nil
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var defaultValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &pk); err != nil {
			continue
		}
		columns = append(columns, name)
	}
	return columns
}

// Snapshot 返回表名到列名列表的完整映射
func (i *Introspector) Snapshot(ctx context.Context) map[string][]string {
	snapshot := make(map[string][]string)
	for _, table := range i.TableNames(ctx) {
		snapshot[table] = i.TableColumns(ctx, table)
	}
	return snapshot
}

// Overview 返回面向提示词的 Schema 概览文本。每张表最多展示前 12 列，
// 超出部分以省略号标注；结尾附带指向 DW 表的分析提示。空数据库返回空字符串。
func (i *Introspector) Overview(ctx context.Context) string {
	tables := i.TableNames(ctx)
	if len(tables) == 0 {
		return ""
	}

	lines := []string{"SCHEMA DISPONÍVEL (extraído do banco de dados):"}
	for _, table := range tables {
		columns := i.TableColumns(ctx, table)
		if len(columns) == 0 {
			lines = append(lines, fmt.Sprintf("- %s", table))
			continue
		}
		sample := columns
		suffix := ""
		if len(columns) > 12 {
			sample = columns[:12]
			suffix = "..."
		}
		lines = append(lines, fmt.Sprintf("- %s: %s%s", table, strings.Join(sample, ", "), suffix))
	}

	lines = append(lines, "",
		"IMPORTANTE: Use as tabelas DW (Data Warehouse) para análises e relatórios, "+
			"pois elas são otimizadas para consultas analíticas.")
	return strings.Join(lines, "\n")
}
