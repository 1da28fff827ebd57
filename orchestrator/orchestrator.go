// 本文件实现问题路由器：把自由文本问题分类为数据查询、知识问答或普通对话，
// 并分发给对应的处理管线。分类优先咨询学习型分类器，没有把握时回退到
// 关键词打分；打分持平以及提到数仓表名时偏向数据查询，这是一条显式规则。

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/google/uuid"
)

// 路由类别
const (
	QueryTypeSQL     = "sql"     // 需要结构化数据
	QueryTypeRAG     = "rag"     // 需要概念性解释
	QueryTypeGeneral = "general" // 普通对话
)

// Agent 子管线接口，SQL 与知识问答代理都满足
type Agent interface {
	ProcessQuery(ctx context.Context, request *core.QueryRequest) *core.QueryResponse
}

// Orchestrator 问题路由器
type Orchestrator struct {
	sqlAgent     Agent
	ragAgent     Agent
	completer    core.Completer
	classifier   core.Classifier
	introspector core.SchemaIntrospector
	config       *core.ClassifierConfig
	logger       core.Logger
	metrics      core.MetricsCollector
}

// NewOrchestrator 创建问题路由器
func NewOrchestrator(sqlAgent, ragAgent Agent, completer core.Completer,
	classifier core.Classifier, introspector core.SchemaIntrospector,
	config *core.ClassifierConfig, logger core.Logger, metrics core.MetricsCollector) *Orchestrator {
	return &Orchestrator{
		sqlAgent:     sqlAgent,
		ragAgent:     ragAgent,
		completer:    completer,
		classifier:   classifier,
		introspector: introspector,
		config:       config,
		logger:       logger,
		metrics:      metrics,
	}
}

// Classify 对问题文本分类，返回路由类别
func (o *Orchestrator) Classify(ctx context.Context, question string) string {
	// 学习型分类器优先
	if o.classifier != nil {
		if category, ok := o.classifier.Classify(ctx, question); ok {
			if o.logger != nil {
				o.logger.Debug("学习分类生效", "category", category)
			}
			return category
		}
	}

	lower := strings.ToLower(question)

	dataScore := keywordScore(lower, o.config.DataKeywords)
	conceptScore := keywordScore(lower, o.config.ConceptKeywords)
	tableMentions := o.countTableMentions(ctx, lower)

	// 显式偏向规则：提到表名或数据得分不低于概念得分时走数据管线
	if tableMentions > 0 || (dataScore > 0 && dataScore >= conceptScore) {
		return QueryTypeSQL
	}
	if conceptScore > 0 {
		return QueryTypeRAG
	}
	return QueryTypeGeneral
}

// ProcessQuery 分类并分发一次提问
func (o *Orchestrator) ProcessQuery(ctx context.Context, request *core.QueryRequest) *core.QueryResponse {
	startTime := time.Now()
	if request.RequestID == "" {
		request.RequestID = uuid.New().String()
	}

	queryType := o.Classify(ctx, request.Question)

	if o.logger != nil {
		o.logger.Info("问题路由",
			"request_id", request.RequestID,
			"query_type", queryType,
		)
	}

	var response *core.QueryResponse
	switch queryType {
	case QueryTypeSQL:
		response = o.sqlAgent.ProcessQuery(ctx, request)
	case QueryTypeRAG:
		response = o.ragAgent.ProcessQuery(ctx, request)
	default:
		response = o.generalResponse(ctx, request)
	}

	response.QueryType = queryType
	if response.RequestID == "" {
		response.RequestID = request.RequestID
	}

	o.recordOutcome(ctx, request.Question, queryType, response, time.Since(startTime))

	if o.metrics != nil {
		o.metrics.IncrementCounter("orchestrator_queries_total",
			map[string]string{"query_type": queryType})
	}

	return response
}

// recordOutcome 向学习存储回写一次路由结果
func (o *Orchestrator) recordOutcome(ctx context.Context, question, queryType string,
	response *core.QueryResponse, elapsed time.Duration) {
	if o.classifier == nil {
		return
	}

	errMsg := ""
	if response.Metadata != nil {
		errMsg = response.Metadata.Error
	}
	o.classifier.Record(ctx, question, queryType, errMsg == "", elapsed.Milliseconds(), errMsg)
}

// countTableMentions 统计问题中字面出现的数仓表名数量
func (o *Orchestrator) countTableMentions(ctx context.Context, lower string) int {
	if o.introspector == nil {
		return 0
	}

	mentions := 0
	for _, table := range o.introspector.TableNames(ctx) {
		if strings.Contains(lower, strings.ToLower(table)) {
			mentions++
		}
	}
	return mentions
}

// generalResponse 普通对话路径
func (o *Orchestrator) generalResponse(ctx context.Context, request *core.QueryRequest) *core.QueryResponse {
	startTime := time.Now()
	response := &core.QueryResponse{
		RequestID: request.RequestID,
		Metadata:  &core.QueryMetadata{},
	}

	if o.completer == nil {
		response.Response = "Desculpe, não consegui me conectar ao serviço de IA. Verifique se o serviço está rodando."
		response.Metadata.ExecutionTime = time.Since(startTime)
		return response
	}

	answer, err := o.completer.Complete(ctx, buildGeneralPrompt(request))
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil && o.logger != nil {
			o.logger.Warn("普通对话补全失败", "request_id", request.RequestID, "error", err)
		}
		response.Response = "Desculpe, não consegui me conectar ao serviço de IA. Verifique se o serviço está rodando."
		response.Metadata.ExecutionTime = time.Since(startTime)
		return response
	}

	response.Response = strings.TrimSpace(answer)
	response.Metadata.ExecutionTime = time.Since(startTime)
	return response
}

// buildGeneralPrompt 拼装普通对话提示词
func buildGeneralPrompt(request *core.QueryRequest) string {
	var builder strings.Builder

	builder.WriteString("Você é um assistente de IA especializado em análise de dados empresariais.\n")
	builder.WriteString("Você trabalha com dados de uma empresa de consultoria e pode ajudar com análises, relatórios e insights.\n\n")

	if len(request.History) > 0 {
		builder.WriteString("Histórico da conversa:\n")
		history := request.History
		if len(history) > 5 {
			history = history[len(history)-5:]
		}
		for _, turn := range history {
			role := "Usuário"
			if turn.Role != "user" {
				role = "Assistente"
			}
			builder.WriteString(fmt.Sprintf("%s: %s\n", role, turn.Content))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("Usuário: %s\n\n", request.Question))
	builder.WriteString("Responda de forma útil e profissional. Se a pergunta for sobre dados específicos, ")
	builder.WriteString("sugira que o usuário seja mais específico sobre quais dados deseja consultar.")

	return builder.String()
}

// keywordScore 统计关键词在文本中的出现数量
func keywordScore(lower string, keywords []string) int {
	score := 0
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			score++
		}
	}
	return score
}
