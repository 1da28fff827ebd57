// 本文件实现了 Schema 感知的标识符归一化器。无论 SQL 来自意图模板、
// 预定义查询还是生成式补全，都先经过同一条归一化流水线再执行。
// 流水线按固定顺序执行，整体幂等，对已归一化的 SQL 再跑一遍不产生变化：
// 1. 套用已学习别名（仅当目标表当前存在）
// 2. 表名同义词替换（葡萄牙语/英语业务词 -> DW 表，仅当目标表存在）
// 3. oltp_fact_* -> dw_fact_*（仅当对应 DW 表存在）
// 4. 别名 空格 列名 -> 别名.列名（左侧须是已知表别名，右侧须是可点列）
// 5. 连接键归一化（*_id -> *_key，先按别名限定再做裸替换）
// 6. 不存在表的启发式与近似匹配映射，命中即学习别名

package query

import (
	"context"
	"regexp"
	"strings"

	"github.com/Anniext/askdata/core"
)

// columnSynonyms 列同义词映射，维表 id 命名与历史列名统一到 DW 的 *_key 约定
var columnSynonyms = map[string]string{
	"client_id":        "client_key",
	"customer_id":      "client_key",
	"employee_id":      "employee_key",
	"project_id":       "project_key",
	"ticket_id":        "ticket_key",
	"currency_id":      "currency_key",
	"date":             "date_key",
	"date_id":          "date_key",
	"billing_date":     "date_key",
	"billing_date_key": "date_key",
	"issue_date_key":   "date_key",
	"start_date_key":   "date_key",
	"end_date_key":     "date_key",
	"invoice_amount":   "amount",
	"value":            "amount",
	"product_name":     "project_name",
}

// dottableColumns 允许 "别名 空格 列名" 修复成 "别名.列名" 的列
var dottableColumns = map[string]struct{}{
	"client_key": {}, "employee_key": {}, "project_key": {}, "ticket_key": {},
	"currency_key": {}, "amount": {}, "tax": {}, "date_key": {}, "year": {},
	"month": {}, "quarter": {}, "week_of_year": {}, "project_name": {}, "client_name": {},
}

// tableSynonym 表名同义词规则：匹配到模式且目标表存在时替换
type tableSynonym struct {
	pattern *regexp.Regexp
	target  string
}

// entityKeyMap 连接键实体映射：维度实体 -> (错误列, 正确列)
var entityKeyMap = map[string][2]string{
	"client":   {"client_id", "client_key"},
	"project":  {"project_id", "project_key"},
	"employee": {"employee_id", "employee_key"},
	"ticket":   {"ticket_id", "ticket_key"},
	"date":     {"date", "date_key"},
}

var oltpFactPattern = regexp.MustCompile(`(?i)\boltp_fact_([A-Za-z0-9_]+)\b`)
var aliasColumnPattern = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9_]*)\s+([A-Za-z][A-Za-z0-9_]*)\b`)
var missingTablePattern = regexp.MustCompile(`(?i)no such table:\s*([A-Za-z0-9_]+)`)
var missingColumnPattern = regexp.MustCompile(`(?i)no such column:\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)?)`)

// Normalizer Schema 感知的标识符归一化器。
type Normalizer struct {
	introspector core.SchemaIntrospector
	aliases      *AliasStore
	config       *core.NormalizerConfig
	logger       core.Logger
	synonyms     []tableSynonym
}

// NewNormalizer 创建归一化器实例
func NewNormalizer(introspector core.SchemaIntrospector, aliases *AliasStore, config *core.NormalizerConfig, logger core.Logger) *Normalizer {
	return &Normalizer{
		introspector: introspector,
		aliases:      aliases,
		config:       config,
		logger:       logger,
		synonyms:     buildTableSynonyms(config.TermBridges),
	}
}

// buildTableSynonyms 构建表名同义词规则表。业务词（含复数）指向 DW 表；
// 术语桥接（如 produto -> projeto）把桥接词并入目标词的规则。
func buildTableSynonyms(bridges map[string]string) []tableSynonym {
	rules := []struct {
		pattern string
		target  string
	}{
		{`\bclients?\b`, "dw_dim_client"},
		{`\bcustomers?\b`, "dw_dim_client"},
		{`\bclientes?\b`, "dw_dim_client"},

		{`\bemployees?\b`, "dw_dim_employee"},
		{`\bfuncion[aá]rios?\b`, "dw_dim_employee"},

		{`\bprojects?\b`, "dw_dim_project"},
		{`\bprojetos?\b`, "dw_dim_project"},

		{`\btimesheets?\b`, "dw_fact_timesheet"},
		{`\bhoras?\b`, "dw_fact_timesheet"},

		{`\bbillings?\b`, "dw_fact_billing"},
		{`\breceitas?\b`, "dw_fact_billing"},
		{`\bfaturamento\b`, "dw_fact_billing"},
		{`\binvoices?\b`, "dw_fact_billing"},
		{`\bfaturas?\b`, "dw_fact_billing"},
		{`\bsales?\b`, "dw_fact_billing"},

		{`\btickets?\b`, "dw_fact_ticket"},

		{`\bdate_dim\b`, "dw_dim_date"},
		{`\bdim_date\b`, "dw_dim_date"},
		{`\bdatas?\b`, "dw_dim_date"},

		{`\bcurrenc(y|ies)\b`, "dw_dim_currency"},
		{`\bmoedas?\b`, "dw_dim_currency"},
		{`\bdim_currency\b`, "dw_dim_currency"},

		{`\bdim_ticket\b`, "dw_dim_ticket"},

		{`\bdw_fact_sales\b`, "dw_fact_billing"},
		{`\boltp_fact_sales\b`, "dw_fact_billing"},
		{`\bfact_sales\b`, "dw_fact_billing"},
	}

	targets := make(map[string]string, len(rules))
	for _, r := range rules {
		word := strings.TrimSuffix(strings.TrimPrefix(r.pattern, `\b`), `\b`)
		targets[word] = r.target
	}

	synonyms := make([]tableSynonym, 0, len(rules)+len(bridges))
	for _, r := range rules {
		synonyms = append(synonyms, tableSynonym{
			pattern: regexp.MustCompile(`(?i)` + r.pattern),
			target:  r.target,
		})
	}

	// 桥接词继承目标词的表映射，如 produto(s) 跟随 projeto(s)
	for src, dst := range bridges {
		target, ok := targets[dst+`s?`]
		if !ok {
			target, ok = targets[dst]
		}
		if !ok {
			continue
		}
		synonyms = append(synonyms, tableSynonym{
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(src) + `s?\b`),
			target:  target,
		})
	}
	return synonyms
}

// Normalize 对 SQL 执行完整归一化流水线，返回归一化后的 SQL
// 与实际生效的修复手段序列。
func (n *Normalizer) Normalize(ctx context.Context, sql string) (string, []core.RepairAction) {
	if sql == "" {
		return sql, nil
	}

	sql = CleanLLMResponse(sql)

	availableList := n.introspector.TableNames(ctx)
	if len(availableList) == 0 {
		return sql, nil
	}
	available := make(map[string]struct{}, len(availableList))
	for _, t := range availableList {
		available[t] = struct{}{}
	}

	var repairs []core.RepairAction

	// 1) 已学习别名，按学习先后套用，先学到的先生效
	withAliases := sql
	for _, entry := range n.aliases.Entries() {
		if _, ok := available[entry.Correct]; !ok {
			continue
		}
		withAliases = ReplaceIdentifiers(withAliases, map[string]string{entry.Wrong: entry.Correct})
	}
	if withAliases != sql {
		repairs = append(repairs, core.RepairLearnedAlias)
		sql = withAliases
	}

	// 2) 表名同义词，仅当目标表存在
	withSynonyms := sql
	for _, syn := range n.synonyms {
		if _, ok := available[syn.target]; !ok {
			continue
		}
		withSynonyms = syn.pattern.ReplaceAllString(withSynonyms, syn.target)
	}

	// 3) oltp_fact_* -> dw_fact_*
	withSynonyms = oltpFactPattern.ReplaceAllStringFunc(withSynonyms, func(match string) string {
		suffix := strings.ToLower(oltpFactPattern.FindStringSubmatch(match)[1])
		candidate := "dw_fact_" + suffix
		if _, ok := available[candidate]; ok {
			return candidate
		}
		return match
	})
	if withSynonyms != sql {
		repairs = append(repairs, core.RepairHeuristicTable)
		sql = withSynonyms
	}

	// 4) 别名 空格 列名 -> 别名.列名
	withDots := n.fixAliasColumnSpacing(sql)

	// 5) 连接键归一化
	withKeys := n.normalizeJoinKeys(withDots)
	if withKeys != sql {
		repairs = append(repairs, core.RepairColumnSynonym)
		sql = withKeys
	}

	// 6) 不存在的表映射
	withTables, tableRepairs := n.mapMissingTables(sql, availableList, available)
	if withTables != sql {
		repairs = append(repairs, tableRepairs...)
		sql = withTables
	}

	return sql, repairs
}

// fixAliasColumnSpacing 把 "fb billing_date" 修成 "fb.date_key"。
// 仅当左侧是 SQL 中出现过的表别名，且右侧（先做同义词替换）是可点列。
func (n *Normalizer) fixAliasColumnSpacing(sql string) string {
	if sql == "" {
		return sql
	}
	tableAliases := ExtractTableAliases(sql)
	if len(tableAliases) == 0 {
		return sql
	}
	aliases := make(map[string]struct{}, len(tableAliases))
	for _, alias := range tableAliases {
		aliases[alias] = struct{}{}
	}

	return aliasColumnPattern.ReplaceAllStringFunc(sql, func(match string) string {
		parts := aliasColumnPattern.FindStringSubmatch(match)
		left, right := parts[1], parts[2]
		if _, ok := aliases[left]; !ok {
			return match
		}
		normalized := right
		if syn, ok := columnSynonyms[strings.ToLower(right)]; ok {
			normalized = syn
		}
		if _, ok := dottableColumns[normalized]; ok {
			return left + "." + normalized
		}
		return match
	})
}

// normalizeJoinKeys 把 DW 连接条件里的 *_id 改写为 *_key。
// 先按事实表与维表的别名做限定替换，再对裸同义词做整词替换。
func (n *Normalizer) normalizeJoinKeys(sql string) string {
	if sql == "" {
		return sql
	}
	tableAliases := ExtractTableAliases(sql)
	replacements := make(map[string]string)

	factAliases := []string{
		tableAliases["dw_fact_billing"],
		tableAliases["dw_fact_timesheet"],
		tableAliases["dw_fact_ticket"],
	}
	for _, alias := range factAliases {
		if alias == "" {
			continue
		}
		for _, pair := range entityKeyMap {
			replacements[alias+"."+pair[0]] = alias + "." + pair[1]
		}
	}

	dimAliases := map[string]string{
		"client":   tableAliases["dw_dim_client"],
		"project":  tableAliases["dw_dim_project"],
		"employee": tableAliases["dw_dim_employee"],
		"ticket":   tableAliases["dw_dim_ticket"],
		"date":     tableAliases["dw_dim_date"],
	}
	for entity, alias := range dimAliases {
		if alias == "" {
			continue
		}
		pair := entityKeyMap[entity]
		replacements[alias+"."+pair[0]] = alias + "." + pair[1]
	}

	if len(replacements) > 0 {
		sql = ReplaceIdentifiers(sql, replacements)
	}
	return ReplaceIdentifiers(sql, columnSynonyms)
}

// mapMissingTables 把 SQL 引用但数据库中不存在的表映射到真实表，
// 命中即学习别名。启发式命中记 heuristic_table，近似匹配记 fuzzy_table。
func (n *Normalizer) mapMissingTables(sql string, availableList []string, available map[string]struct{}) (string, []core.RepairAction) {
	var repairs []core.RepairAction
	replaceMap := make(map[string]string)
	for _, table := range ExtractTables(sql) {
		if _, ok := available[table]; ok {
			continue
		}
		target, action, ok := n.MapTableAlias(table, availableList)
		if !ok {
			continue
		}
		replaceMap[table] = target
		repairs = append(repairs, action)
	}
	if len(replaceMap) == 0 {
		return sql, nil
	}
	sql = ReplaceIdentifiers(sql, replaceMap)
	for wrong, right := range replaceMap {
		n.aliases.Learn(wrong, right)
	}
	return sql, repairs
}

// MapTableAlias 为不存在的表找到真实目标：已学习别名优先，
// 其次领域启发式，最后近似匹配。
func (n *Normalizer) MapTableAlias(missing string, available []string) (string, core.RepairAction, bool) {
	if learned, ok := n.aliases.Lookup(missing); ok && containsString(available, learned) {
		return learned, core.RepairLearnedAlias, true
	}
	return n.bestTableMatch(missing, available)
}

// bestTableMatch 领域启发式加近似匹配的表名查找。
func (n *Normalizer) bestTableMatch(missing string, available []string) (string, core.RepairAction, bool) {
	if missing == "" || len(available) == 0 {
		return "", "", false
	}
	name := strings.ToLower(missing)

	if strings.Contains(name, "sales") && containsString(available, "dw_fact_billing") {
		return "dw_fact_billing", core.RepairHeuristicTable, true
	}
	if strings.Contains(name, "timesheet") && containsString(available, "dw_fact_timesheet") {
		return "dw_fact_timesheet", core.RepairHeuristicTable, true
	}
	if strings.Contains(name, "ticket") && containsString(available, "dw_fact_ticket") {
		return "dw_fact_ticket", core.RepairHeuristicTable, true
	}
	if strings.HasPrefix(name, "oltp_fact_") {
		candidate := "dw_fact_" + strings.TrimPrefix(name, "oltp_fact_")
		if containsString(available, candidate) {
			return candidate, core.RepairHeuristicTable, true
		}
	}
	dimMap := []struct{ key, table string }{
		{"client", "dw_dim_client"},
		{"employee", "dw_dim_employee"},
		{"project", "dw_dim_project"},
		{"currency", "dw_dim_currency"},
		{"date", "dw_dim_date"},
		{"ticket", "dw_dim_ticket"},
	}
	for _, dm := range dimMap {
		if strings.Contains(name, dm.key) && containsString(available, dm.table) {
			return dm.table, core.RepairHeuristicTable, true
		}
	}
	if match, ok := closestMatch(missing, available, n.config.TableThreshold); ok {
		return match, core.RepairFuzzyTable, true
	}
	return "", "", false
}

// FixMissingColumn 修复 "no such column: X" 错误。
// 顺序：列同义词、在 SQL 引用的表里做近似匹配、日期遗留列兜底。
func (n *Normalizer) FixMissingColumn(ctx context.Context, sql, errMsg string) (string, core.RepairAction, bool) {
	m := missingColumnPattern.FindStringSubmatch(errMsg)
	if m == nil {
		return "", "", false
	}
	raw := m[1]
	missingCol := raw
	if idx := strings.LastIndex(raw, "."); idx >= 0 {
		missingCol = raw[idx+1:]
	}

	// 1) 列同义词
	if syn, ok := columnSynonyms[strings.ToLower(missingCol)]; ok {
		return ReplaceIdentifiers(sql, map[string]string{missingCol: syn}), core.RepairColumnSynonym, true
	}

	// 2) 近似匹配：先在 SQL 引用的表里找，一个都没有时退到全库列
	columnSet := make(map[string]struct{})
	for _, table := range ExtractTables(sql) {
		for _, col := range n.introspector.TableColumns(ctx, table) {
			columnSet[col] = struct{}{}
		}
	}
	if len(columnSet) == 0 {
		for _, cols := range n.introspector.Snapshot(ctx) {
			for _, col := range cols {
				columnSet[col] = struct{}{}
			}
		}
	}
	allColumns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		allColumns = append(allColumns, col)
	}
	if match, ok := closestMatch(missingCol, allColumns, n.config.ColumnThreshold); ok {
		return ReplaceIdentifiers(sql, map[string]string{missingCol: match}), core.RepairFuzzyColumn, true
	}

	// 3) 日期遗留列兜底
	lower := strings.ToLower(missingCol)
	if lower == "date" || lower == "billing_date" || lower == "date_id" {
		if _, ok := columnSet["date_key"]; ok {
			return ReplaceIdentifiers(sql, map[string]string{missingCol: "date_key"}), core.RepairDateFallback, true
		}
	}
	return "", "", false
}

// MissingTableFromError 从错误文本中解析缺失表名
func MissingTableFromError(errMsg string) (string, bool) {
	m := missingTablePattern.FindStringSubmatch(errMsg)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// containsString 判断切片是否包含指定字符串
func containsString(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
