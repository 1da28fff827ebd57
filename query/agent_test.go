package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Anniext/askdata/core"
	"github.com/Anniext/askdata/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgentForTest(t *testing.T, executor *fakeExecutor, completer core.Completer) *SQLAgent {
	t.Helper()
	introspector := newFakeIntrospector()
	aliasFile := filepath.Join(t.TempDir(), "aliases.json")
	normalizer := newTestNormalizer(aliasFile, introspector)
	intents := NewIntentDetector(map[string]string{"produto": "projeto"}, fixedClock(2026, time.August, 28))
	return NewSQLAgent(introspector, executor, completer,
		normalizer, intents, monitor.NewNopLogger(), monitor.NewMetricsManager())
}

// TestProcessQueryIntentPath 测试意图路径不经过补全
func TestProcessQueryIntentPath(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{{
		results: []map[string]any{{"total_clientes": int64(42)}},
		columns: []string{"total_clientes"},
	}}}
	agent := newAgentForTest(t, executor, nil)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "quantos clientes temos?"})

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, core.SourceIntent, resp.Metadata.Source)
	assert.Equal(t, IntentCountClients, resp.Metadata.Intent)
	assert.Equal(t, "SELECT COUNT(*) AS total_clientes FROM dw_dim_client", resp.SQL)
	assert.Equal(t, 1, resp.Metadata.RowCount)
	assert.Contains(t, resp.Response, "42")
	assert.Empty(t, resp.Metadata.Error)
	assert.NotEmpty(t, resp.RequestID)
}

// TestProcessQueryPredefinedPath 测试预定义查询路径
func TestProcessQueryPredefinedPath(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{{
		results: []map[string]any{{"client_name": "Acme", "amount": 100.0}},
		columns: []string{"client_name", "amount"},
	}}}
	agent := newAgentForTest(t, executor, nil)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "mostre os top clientes"})

	assert.Equal(t, core.SourcePredefined, resp.Metadata.Source)
	assert.Equal(t, "top_clientes", resp.Metadata.Intent)
	assert.Contains(t, resp.SQL, "dw_dim_client")
}

// TestProcessQueryGeneratedPath 测试补全生成路径与输出清理
func TestProcessQueryGeneratedPath(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{{
		results: []map[string]any{{"segment": "tech", "qtd": int64(5)}},
		columns: []string{"segment", "qtd"},
	}}}
	completer := &fakeCompleter{response: "Aqui está:\n```sql\nSELECT segment, COUNT(*) AS qtd FROM dw_dim_client GROUP BY segment;\n```\nEssa consulta agrupa por segmento."}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "dados de distribuição por segmento dos nossos registros"})

	assert.Equal(t, core.SourceGenerated, resp.Metadata.Source)
	assert.Equal(t, "SELECT segment, COUNT(*) AS qtd FROM dw_dim_client GROUP BY segment", resp.SQL)
	// 生成提示词携带 Schema 概览
	require.NotEmpty(t, completer.prompts)
	assert.Contains(t, completer.prompts[0], "SCHEMA DISPONÍVEL")
}

// TestProcessQueryMissingTableRepair 测试缺表修复恰好重试一次
func TestProcessQueryMissingTableRepair(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("no such table: fact_sales")},
		{results: []map[string]any{{"amount": 10.0}}, columns: []string{"amount"}},
	}}
	completer := &fakeCompleter{response: "SELECT SUM(amount) AS receita_geral FROM fact_sales"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "some o montante geral da base de vendas"})

	require.Empty(t, resp.Metadata.Error)
	assert.Equal(t, core.SourceCorrected, resp.Metadata.Source)
	assert.Contains(t, resp.SQL, "dw_fact_billing")
	assert.Len(t, executor.calls, 2)
	assert.Contains(t, resp.Metadata.Repairs, core.RepairHeuristicTable)

	// 修复成功后别名被学习下来
	target, ok := agent.normalizer.aliases.Lookup("fact_sales")
	assert.True(t, ok)
	assert.Equal(t, "dw_fact_billing", target)
}

// TestProcessQueryMissingColumnRepair 测试缺列修复走同义词
func TestProcessQueryMissingColumnRepair(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("no such column: fb.billing_date")},
		{results: []map[string]any{}, columns: []string{"amount"}},
	}}
	completer := &fakeCompleter{response: "SELECT fb.billing_date, amount FROM dw_fact_billing fb"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "valores por data de cobrança dos dados"})

	require.Empty(t, resp.Metadata.Error)
	assert.Len(t, executor.calls, 2)
	assert.Contains(t, executor.calls[1], "date_key")
	assert.Contains(t, resp.Metadata.Repairs, core.RepairColumnSynonym)
}

// TestProcessQuerySingleRetryBound 测试重试失败后不再继续修复
func TestProcessQuerySingleRetryBound(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("no such table: tabela_estranha_um")},
		{err: errors.New("no such table: tabela_estranha_dois")},
		{results: []map[string]any{{"x": 1}}, columns: []string{"x"}},
	}}
	completer := &fakeCompleter{response: "SELECT * FROM clients_summary"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "liste o resumo dos dados de clients_summary"})

	// 第一次失败触发一次修复重试，重试再失败即终止，不会第三次执行
	assert.Len(t, executor.calls, 2)
	assert.NotEmpty(t, resp.Metadata.Error)
	assert.Contains(t, resp.Response, "Desculpe")
	assert.NotEmpty(t, resp.SQL)
}

// TestProcessQueryRepairUnavailable 测试缺表无法映射且补全不可用时恰好执行一次即终止
func TestProcessQueryRepairUnavailable(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("no such table: zzz_qx")},
	}}
	agent := newAgentForTest(t, executor, nil)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "quantos clientes temos?"})

	assert.Len(t, executor.calls, 1)
	assert.Contains(t, resp.Metadata.Error, "DB_QUERY_FAILED")
	assert.Contains(t, resp.Metadata.Error, "zzz_qx")
	assert.Contains(t, resp.Response, "Desculpe")
	assert.Empty(t, resp.Results)
}

// TestProcessQueryFuzzyTableFirstAttempt 测试执行前近似匹配改写，首次执行即成功
func TestProcessQueryFuzzyTableFirstAttempt(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{{
		results: []map[string]any{{"amount": 10.0}},
		columns: []string{"amount"},
	}}}
	completer := &fakeCompleter{response: "SELECT amount FROM dw_fact_biling"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "dados de valores da base de cobrança"})

	require.Empty(t, resp.Metadata.Error)
	assert.Len(t, executor.calls, 1)
	assert.Equal(t, "SELECT amount FROM dw_fact_billing", resp.SQL)
	assert.Contains(t, resp.Metadata.Repairs, core.RepairFuzzyTable)
	assert.Equal(t, core.SourceGenerated, resp.Metadata.Source)
}

// TestProcessQueryLLMCorrection 测试其他错误走补全纠错
func TestProcessQueryLLMCorrection(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{results: []map[string]any{{"total_clientes": int64(7)}}, columns: []string{"total_clientes"}},
	}}
	// 先用必定语法失败的脚本：第一次语法错误，纠错后成功
	executor.outcomes = []fakeOutcome{
		{err: errors.New(`near "SELEC": syntax error`)},
		{results: []map[string]any{{"total_clientes": int64(7)}}, columns: []string{"total_clientes"}},
	}
	completer := &fakeCompleter{response: "SELECT COUNT(*) AS total_clientes FROM dw_dim_client"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "dados agregados do total de registros da base"})

	require.Empty(t, resp.Metadata.Error)
	assert.Contains(t, resp.Metadata.Repairs, core.RepairLLMCorrection)
	assert.Equal(t, core.SourceCorrected, resp.Metadata.Source)
	assert.Len(t, executor.calls, 2)
}

// TestProcessQuerySingleStatementRepair 测试多语句错误走截断重试
func TestProcessQuerySingleStatementRepair(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("You can only execute one statement at a time.")},
		{results: []map[string]any{{"client_name": "Acme"}}, columns: []string{"client_name"}},
	}}
	completer := &fakeCompleter{response: "SELECT client_name FROM dw_dim_client"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "dados dos nomes da base cadastral"})

	require.Empty(t, resp.Metadata.Error)
	assert.Len(t, executor.calls, 2)
	assert.Contains(t, resp.Metadata.Repairs, core.RepairSingleStatement)
	assert.Equal(t, core.SourceCorrected, resp.Metadata.Source)
	assert.Equal(t, "SELECT client_name FROM dw_dim_client", executor.calls[1])
}

// TestExecuteWithRepairTruncatesStatements 测试多语句 SQL 重试时只保留第一条
func TestExecuteWithRepairTruncatesStatements(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New("You can only execute one statement at a time.")},
		{results: []map[string]any{{"x": int64(1)}}, columns: []string{"x"}},
	}}
	agent := newAgentForTest(t, executor, nil)
	metadata := &core.QueryMetadata{}

	results, _, sqlText, err := agent.executeWithRepair(context.Background(), "SELECT 1; SELECT 2", metadata)

	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Len(t, executor.calls, 2)
	assert.Equal(t, "SELECT 1", executor.calls[1])
	assert.Equal(t, "SELECT 1", sqlText)
	assert.Contains(t, metadata.Repairs, core.RepairSingleStatement)
}

// TestProcessQueryCorrectionRepairsRecorded 测试纠错后再归一化的修复手段也计入元数据
func TestProcessQueryCorrectionRepairsRecorded(t *testing.T) {
	executor := &fakeExecutor{outcomes: []fakeOutcome{
		{err: errors.New(`near "SELEC": syntax error`)},
		{results: []map[string]any{{"qtd": int64(7)}}, columns: []string{"qtd"}},
	}}
	// 纠错输出还引用错误表名，归一化在重试前把它映射到真实表
	completer := &fakeCompleter{response: "SELECT COUNT(*) AS qtd FROM fact_sales"}
	agent := newAgentForTest(t, executor, completer)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "quantos clientes temos?"})

	require.Empty(t, resp.Metadata.Error)
	assert.Len(t, executor.calls, 2)
	assert.Contains(t, executor.calls[1], "dw_fact_billing")
	assert.Contains(t, resp.Metadata.Repairs, core.RepairLLMCorrection)
	assert.Contains(t, resp.Metadata.Repairs, core.RepairHeuristicTable)
}

// TestProcessQueryEmptyQuestion 测试空问题返回结构化校验响应
func TestProcessQueryEmptyQuestion(t *testing.T) {
	agent := newAgentForTest(t, &fakeExecutor{}, nil)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "   "})

	assert.NotEmpty(t, resp.Metadata.Error)
	assert.Contains(t, resp.Response, "pergunta")
	assert.Empty(t, resp.SQL)
}

// TestProcessQueryCompleterUnavailable 测试无补全且未命中路径时的失败响应
func TestProcessQueryCompleterUnavailable(t *testing.T) {
	agent := newAgentForTest(t, &fakeExecutor{}, nil)

	resp := agent.ProcessQuery(context.Background(), &core.QueryRequest{Question: "uma pergunta livre sobre os dados da empresa"})

	assert.NotEmpty(t, resp.Metadata.Error)
	assert.Contains(t, resp.Response, "Desculpe")
	assert.Empty(t, resp.Results)
}

// TestGenerateAnswerFallback 测试确定性回答兜底
func TestGenerateAnswerFallback(t *testing.T) {
	agent := newAgentForTest(t, &fakeExecutor{}, nil)
	ctx := context.Background()

	answer := agent.generateAnswer(ctx, "quantos clientes?", "SELECT ...", []map[string]any{}, []string{})
	assert.Equal(t, "Não foram encontrados dados para sua consulta.", answer)

	answer = agent.generateAnswer(ctx, "quantos clientes?", "SELECT ...",
		[]map[string]any{{"total_clientes": int64(42)}}, []string{"total_clientes"})
	assert.Contains(t, answer, "42")

	answer = agent.generateAnswer(ctx, "clientes", "SELECT ...",
		[]map[string]any{{"client_name": "Acme"}, {"client_name": "Beta"}}, []string{"client_name"})
	assert.Contains(t, answer, "2 registros")
}
