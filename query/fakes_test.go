package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Anniext/askdata/core"
	"github.com/Anniext/askdata/monitor"
)

// fakeIntrospector 内存 Schema，模拟内省器
type fakeIntrospector struct {
	tables map[string][]string
}

func newFakeIntrospector() *fakeIntrospector {
	return &fakeIntrospector{tables: map[string][]string{
		"dw_dim_client":     {"client_key", "client_name", "segment"},
		"dw_dim_project":    {"project_key", "project_name"},
		"dw_dim_employee":   {"employee_key", "employee_id", "employee_name"},
		"dw_dim_date":       {"date_key", "year", "month", "quarter"},
		"dw_dim_currency":   {"currency_key", "currency"},
		"dw_dim_ticket":     {"ticket_key", "priority"},
		"dw_fact_billing":   {"client_key", "project_key", "currency_key", "date_key", "amount", "tax"},
		"dw_fact_timesheet": {"employee_key", "date_key", "hours"},
		"dw_fact_ticket":    {"ticket_key", "date_key", "sla_met"},
	}}
}

func (f *fakeIntrospector) TableNames(ctx context.Context) []string {
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeIntrospector) TableColumns(ctx context.Context, table string) []string {
	return f.tables[table]
}

func (f *fakeIntrospector) Snapshot(ctx context.Context) map[string][]string {
	out := make(map[string][]string, len(f.tables))
	for k, v := range f.tables {
		out[k] = v
	}
	return out
}

func (f *fakeIntrospector) Overview(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("SCHEMA DISPONÍVEL (extraído do banco de dados):\n")
	for _, t := range f.TableNames(ctx) {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t, strings.Join(f.tables[t], ", ")))
	}
	return sb.String()
}

// fakeExecutor 脚本化执行器：按调用顺序返回预设结果或错误
type fakeExecutor struct {
	calls    []string
	outcomes []fakeOutcome
}

type fakeOutcome struct {
	results []map[string]any
	columns []string
	err     error
}

func (f *fakeExecutor) ExecuteQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, []string, error) {
	f.calls = append(f.calls, sqlText)
	if len(f.outcomes) == 0 {
		return []map[string]any{}, []string{}, nil
	}
	outcome := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return outcome.results, outcome.columns, outcome.err
}

// fakeCompleter 固定输出的补全器
type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// newTestNormalizer 构造带临时别名文件的归一化器
func newTestNormalizer(aliasFile string, introspector core.SchemaIntrospector) *Normalizer {
	logger := monitor.NewNopLogger()
	aliases := NewAliasStore(aliasFile, logger)
	return NewNormalizer(introspector, aliases, &core.NormalizerConfig{
		AliasFile:       aliasFile,
		TableThreshold:  0.6,
		ColumnThreshold: 0.7,
		TermBridges:     map[string]string{"produto": "projeto"},
	}, logger)
}
