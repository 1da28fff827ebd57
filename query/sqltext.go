// 本文件实现了 SQL 文本处理工具，负责从生成式补全的散文输出中提取
// 单条可执行语句，并提供标识符级别的解析与替换能力。
// 主要功能：
// 1. 去除 Markdown 代码围栏与提示性前缀
// 2. 保证只保留一条语句（按分号切分，优先取 SQL 起始的片段）
// 3. 截断语句后追加的解释性散文
// 4. 提取 FROM/JOIN 引用的表名与表别名
// 5. 整词、大小写不敏感的标识符替换

package query

import (
	"regexp"
	"strings"
)

var (
	fencePattern      = regexp.MustCompile("(?i)```sql\\s*")
	bareFencePattern  = regexp.MustCompile("```\\s*")
	labelPattern      = regexp.MustCompile(`(?i)\b(query sql|consulta sql|sql query)\s*:\s*`)
	statementSplit    = regexp.MustCompile(`;\s*`)
	selectStart       = regexp.MustCompile(`(?is)\b(SELECT|WITH)\b.*`)
	explanationSplit  = regexp.MustCompile(`(?i)\b(explica|explicação|explanation|note|obs|nesta versão|this query|essa consulta)\b`)
	commentPattern    = regexp.MustCompile(`(?m)--.*?$`)
	tableRefPattern   = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[` + "`" + `"']?([A-Za-z0-9_]+)[` + "`" + `"']?`)
	tableAliasPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z0-9_]+)\s+(?:AS\s+)?([A-Za-z][A-Za-z0-9_]*)`)
)

// aliasStopwords 出现在表名之后但不是别名的关键字
var aliasStopwords = map[string]struct{}{
	"ON": {}, "WHERE": {}, "GROUP": {}, "ORDER": {}, "LEFT": {},
	"RIGHT": {}, "INNER": {}, "OUTER": {}, "JOIN": {}, "LIMIT": {},
}

// sqlStatementStart 判断片段是否以合法语句关键字开头
func sqlStatementStart(s string) bool {
	up := strings.ToUpper(strings.TrimSpace(s))
	for _, prefix := range []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(up, prefix) {
			return true
		}
	}
	return false
}

// EnsureSingleStatement 去除围栏与前缀后只保留一条语句。
// 多条语句按分号切分，取第一条以 SQL 关键字开头的片段，结果不带分号。
func EnsureSingleStatement(text string) string {
	t := fencePattern.ReplaceAllString(text, "")
	t = bareFencePattern.ReplaceAllString(t, "")
	t = labelPattern.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)

	var parts []string
	for _, p := range statementSplit.Split(t, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return t
	}
	for _, p := range parts {
		if sqlStatementStart(p) {
			return p
		}
	}
	return parts[0]
}

// StripTrailingExplanation 截断语句末尾的解释性散文。
// 先在第一个分号处截断，再按常见解释词切分取前半部分。
func StripTrailingExplanation(sql string) string {
	sql = strings.TrimSpace(sql)
	if idx := strings.Index(sql, ";"); idx >= 0 {
		sql = strings.TrimSpace(sql[:idx])
	}
	if loc := explanationSplit.FindStringIndex(sql); loc != nil {
		sql = strings.TrimSpace(sql[:loc[0]])
	}
	return sql
}

// CleanLLMResponse 从补全输出中提取唯一的 SELECT/WITH 语句。
func CleanLLMResponse(response string) string {
	one := EnsureSingleStatement(response)
	sql := strings.TrimSpace(one)
	if m := selectStart.FindString(one); m != "" {
		sql = strings.TrimSpace(m)
	}
	return StripTrailingExplanation(sql)
}

// ExtractTables 返回 FROM/JOIN 引用的表名，忽略行注释。
func ExtractTables(sql string) []string {
	if sql == "" {
		return nil
	}
	cleaned := commentPattern.ReplaceAllString(sql, "")
	var tables []string
	for _, m := range tableRefPattern.FindAllStringSubmatch(cleaned, -1) {
		tables = append(tables, m[1])
	}
	return tables
}

// ExtractTableAliases 返回 {表名: 别名} 映射，跳过紧跟表名的 SQL 关键字。
func ExtractTableAliases(sql string) map[string]string {
	aliases := make(map[string]string)
	for _, m := range tableAliasPattern.FindAllStringSubmatch(sql, -1) {
		table, alias := m[1], m[2]
		if _, stop := aliasStopwords[strings.ToUpper(alias)]; stop {
			continue
		}
		aliases[table] = alias
	}
	return aliases
}

// ReplaceIdentifiers 对映射中的每个标识符做整词、大小写不敏感替换。
// 点号引用（如 b.client_id）中的列名同样会被整词匹配到。
func ReplaceIdentifiers(sql string, mapping map[string]string) string {
	fixed := sql
	for src, dst := range mapping {
		if src == "" || dst == "" || src == dst {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(src) + `\b`)
		fixed = pattern.ReplaceAllString(fixed, dst)
	}
	return fixed
}
