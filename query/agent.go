// 本文件实现了 SQL 代理，串起确定性意图、预定义查询、生成式补全、
// 标识符归一化与错误驱动的修复循环。
// 处理流程：
// 1. 意图引擎命中则用固定模板，未命中再查预定义查询，最后才走补全生成
// 2. 无论 SQL 来自哪条路径，执行前都过一遍归一化流水线
// 3. 执行失败时按错误类别修复重试，每个类别只重试一次，重试再失败即终止
// 4. 成功后用补全生成自然语言回答，补全不可用时退回确定性文本
// 所有错误经由 QueryResponse 返回，本层不向调用方抛出错误。

package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/google/uuid"
)

// SQLAgent SQL 查询代理。
type SQLAgent struct {
	introspector core.SchemaIntrospector
	executor     core.QueryExecutor
	completer    core.Completer
	normalizer   *Normalizer
	intents      *IntentDetector
	logger       core.Logger
	metrics      core.MetricsCollector
}

// NewSQLAgent 创建 SQL 代理实例
func NewSQLAgent(
	introspector core.SchemaIntrospector,
	executor core.QueryExecutor,
	completer core.Completer,
	normalizer *Normalizer,
	intents *IntentDetector,
	logger core.Logger,
	metrics core.MetricsCollector,
) *SQLAgent {
	return &SQLAgent{
		introspector: introspector,
		executor:     executor,
		completer:    completer,
		normalizer:   normalizer,
		intents:      intents,
		logger:       logger,
		metrics:      metrics,
	}
}

// ProcessQuery 处理一次分析型提问，总是返回结构化响应。
func (a *SQLAgent) ProcessQuery(ctx context.Context, req *core.QueryRequest) *core.QueryResponse {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return &core.QueryResponse{
			Response:  "Por favor, informe uma pergunta para eu consultar os dados.",
			Results:   []map[string]any{},
			Columns:   []string{},
			RequestID: requestID,
			Metadata:  &core.QueryMetadata{Error: core.ErrEmptyQuestion.Error()},
		}
	}

	a.logger.Info("处理 SQL 查询", "request_id", requestID, "question", question)

	metadata := &core.QueryMetadata{}
	sqlText, err := a.resolveSQL(ctx, question, req.History, metadata)
	if err != nil {
		a.metrics.IncrementCounter("sql_queries_total", map[string]string{"status": "error"})
		return a.failure(requestID, sqlText, metadata, start, err)
	}

	// 执行前统一归一化
	normalized, repairs := a.normalizer.Normalize(ctx, sqlText)
	metadata.Repairs = append(metadata.Repairs, repairs...)
	sqlText = normalized
	a.logger.Debug("SQL 准备执行", "request_id", requestID, "sql", sqlText, "repairs", len(repairs))

	results, columns, sqlText, execErr := a.executeWithRepair(ctx, sqlText, metadata)
	if execErr != nil {
		a.metrics.IncrementCounter("sql_queries_total", map[string]string{"status": "error"})
		a.logger.Warn("SQL 执行最终失败", "request_id", requestID, "error", execErr)
		if !core.IsAgentError(execErr) {
			execErr = core.WrapError(execErr, core.ErrorTypeDatabase, "DB_QUERY_FAILED", "数据库查询失败")
		}
		return a.failure(requestID, sqlText, metadata, start, execErr)
	}

	metadata.RowCount = len(results)
	metadata.ExecutionTime = time.Since(start)
	a.metrics.IncrementCounter("sql_queries_total", map[string]string{"status": "success"})
	a.metrics.RecordHistogram("sql_query_duration_ms", float64(metadata.ExecutionTime.Milliseconds()), nil)

	response := a.generateAnswer(ctx, question, sqlText, results, columns)
	return &core.QueryResponse{
		Response:  response,
		SQL:       sqlText,
		Results:   results,
		Columns:   columns,
		Metadata:  metadata,
		RequestID: requestID,
	}
}

// resolveSQL 按优先级确定 SQL：意图模板、预定义查询、生成式补全。
func (a *SQLAgent) resolveSQL(ctx context.Context, question string, history []*core.ChatTurn, metadata *core.QueryMetadata) (string, error) {
	if intent, ok := a.intents.Detect(question); ok {
		sqlText, err := a.intents.BuildSQL(intent)
		if err != nil {
			return "", core.WrapError(err, core.ErrorTypeInternal, "INTENT_SQL_BUILD", "构造意图 SQL 失败")
		}
		metadata.Source = core.SourceIntent
		metadata.Intent = intent.Name
		a.logger.Debug("命中意图", "intent", intent.Name, "params", intent.Params)
		return sqlText, nil
	}

	if name, sqlText, ok := MatchPredefined(question); ok {
		metadata.Source = core.SourcePredefined
		metadata.Intent = name
		a.logger.Debug("命中预定义查询", "name", name)
		return sqlText, nil
	}

	if a.completer == nil {
		return "", core.ErrLLMUnavailable
	}
	schema := a.introspector.Overview(ctx)
	prompt := buildGenerationPrompt(schema, question, history)
	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", core.WrapError(err, core.ErrorTypeLLM, "SQL_GENERATION_FAILED", "生成 SQL 失败")
	}
	sqlText := CleanLLMResponse(raw)
	if sqlText == "" {
		return "", core.ErrLLMNoSQL
	}
	metadata.Source = core.SourceGenerated
	return sqlText, nil
}

// executeWithRepair 执行 SQL，失败时按错误类别修复并重试。
// 每个错误类别只允许一次重试，重试后的错误原样返回。
func (a *SQLAgent) executeWithRepair(ctx context.Context, sqlText string, metadata *core.QueryMetadata) ([]map[string]any, []string, string, error) {
	results, columns, err := a.executor.ExecuteQuery(ctx, sqlText)
	if err == nil {
		return results, columns, sqlText, nil
	}

	a.logger.Warn("SQL 执行失败，进入修复", "error", err)
	errText := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errText, "no such table"):
		repaired, ok := a.repairMissingTable(ctx, sqlText, err.Error(), metadata)
		if !ok {
			repaired, ok = a.repairWithCompleter(ctx, sqlText, err.Error(), metadata)
		}
		if !ok {
			return nil, nil, sqlText, err
		}
		return a.retryOnce(ctx, repaired, metadata)

	case strings.Contains(errText, "no such column"):
		repaired, action, ok := a.normalizer.FixMissingColumn(ctx, sqlText, err.Error())
		if ok {
			metadata.Repairs = append(metadata.Repairs, action)
			var extra []core.RepairAction
			repaired, extra = a.normalizer.Normalize(ctx, repaired)
			metadata.Repairs = append(metadata.Repairs, extra...)
		} else {
			repaired, ok = a.repairWithCompleter(ctx, sqlText, err.Error(), metadata)
		}
		if !ok {
			return nil, nil, sqlText, err
		}
		return a.retryOnce(ctx, repaired, metadata)

	case strings.Contains(errText, "only execute one statement"):
		metadata.Repairs = append(metadata.Repairs, core.RepairSingleStatement)
		return a.retryOnce(ctx, EnsureSingleStatement(sqlText), metadata)

	default:
		repaired, ok := a.repairWithCompleter(ctx, sqlText, err.Error(), metadata)
		if !ok {
			return nil, nil, sqlText, err
		}
		return a.retryOnce(ctx, repaired, metadata)
	}
}

// retryOnce 用修复后的 SQL 重试一次，无论成败都不再继续修复。
func (a *SQLAgent) retryOnce(ctx context.Context, sqlText string, metadata *core.QueryMetadata) ([]map[string]any, []string, string, error) {
	metadata.Source = core.SourceCorrected
	results, columns, err := a.executor.ExecuteQuery(ctx, sqlText)
	if err != nil {
		return nil, nil, sqlText, err
	}
	return results, columns, sqlText, nil
}

// repairMissingTable 把错误文本中的缺失表映射到真实表并学习别名。
func (a *SQLAgent) repairMissingTable(ctx context.Context, sqlText, errMsg string, metadata *core.QueryMetadata) (string, bool) {
	missing, ok := MissingTableFromError(errMsg)
	if !ok {
		return "", false
	}
	available := a.introspector.TableNames(ctx)
	target, action, ok := a.normalizer.MapTableAlias(missing, available)
	if !ok {
		return "", false
	}
	metadata.Repairs = append(metadata.Repairs, action)
	a.normalizer.aliases.Learn(missing, target)
	return ReplaceIdentifiers(sqlText, map[string]string{missing: target}), true
}

// repairWithCompleter 让补全基于错误文本重写 SQL，重写结果再过归一化。
func (a *SQLAgent) repairWithCompleter(ctx context.Context, sqlText, errMsg string, metadata *core.QueryMetadata) (string, bool) {
	if a.completer == nil {
		return "", false
	}
	schema := a.introspector.Overview(ctx)
	raw, err := a.completer.Complete(ctx, buildCorrectionPrompt(schema, sqlText, errMsg))
	if err != nil {
		a.logger.Warn("补全纠错失败", "error", err)
		return "", false
	}
	corrected := CleanLLMResponse(raw)
	if corrected == "" {
		return "", false
	}
	metadata.Repairs = append(metadata.Repairs, core.RepairLLMCorrection)
	corrected, extra := a.normalizer.Normalize(ctx, corrected)
	metadata.Repairs = append(metadata.Repairs, extra...)
	return corrected, true
}

// generateAnswer 生成自然语言回答。补全不可用或失败时退回确定性文本。
func (a *SQLAgent) generateAnswer(ctx context.Context, question, sqlText string, results []map[string]any, columns []string) string {
	if len(results) == 0 {
		return "Não foram encontrados dados para sua consulta."
	}

	if a.completer != nil {
		answer, err := a.completer.Complete(ctx, buildAnswerPrompt(question, sqlText, results))
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer)
		}
		if err != nil {
			a.logger.Warn("生成回答失败，使用兜底文本", "error", err)
		}
	}
	return deterministicAnswer(results, columns)
}

// deterministicAnswer 无补全时的确定性回答：单行聚合结果播报数值，
// 其余情况播报行数与前几行。
func deterministicAnswer(results []map[string]any, columns []string) string {
	if len(results) == 1 && len(columns) > 0 {
		joined := strings.ToLower(strings.Join(columns, " "))
		if strings.HasPrefix(columns[0], "total") || strings.Contains(joined, "receita") {
			for _, col := range columns {
				switch v := results[0][col].(type) {
				case int64:
					return fmt.Sprintf("Encontrei 1 registro(s). Valor: %d.", v)
				case float64:
					return fmt.Sprintf("Encontrei 1 registro(s). Valor: %.2f.", v)
				}
			}
		}
	}
	display := results
	if len(display) > 10 {
		display = display[:10]
	}
	return fmt.Sprintf("Encontrei %d registros. Principais linhas: %v", len(results), display)
}

// failure 构造失败响应，保留最后一次尝试的 SQL 供排障。
// 结构化错误带原因链时，把底层原因一并展示出来。
func (a *SQLAgent) failure(requestID, sqlText string, metadata *core.QueryMetadata, start time.Time, err error) *core.QueryResponse {
	detail := err.Error()
	if agentErr := core.GetAgentError(err); agentErr != nil && agentErr.Cause != nil {
		detail = fmt.Sprintf("%s: %v", agentErr.Error(), agentErr.Cause)
	}
	metadata.Error = detail
	metadata.ExecutionTime = time.Since(start)
	return &core.QueryResponse{
		Response:  fmt.Sprintf("Desculpe, ocorreu um erro ao executar a consulta SQL: %s", detail),
		SQL:       sqlText,
		Results:   []map[string]any{},
		Columns:   []string{},
		Metadata:  metadata,
		RequestID: requestID,
	}
}
