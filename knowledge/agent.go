// 本文件实现知识问答代理：检索相关文段、拼装提示词并调用补全生成回答。
// 补全不可用或调用失败时退化为直接返回检索到的文段摘要。

package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/google/uuid"
)

// defaultPassageLimit 每次检索引用的文段数量
const defaultPassageLimit = 3

// RAGAgent 知识问答代理
type RAGAgent struct {
	retriever core.Retriever
	completer core.Completer
	logger    core.Logger
	metrics   core.MetricsCollector
}

// NewRAGAgent 创建知识问答代理
func NewRAGAgent(retriever core.Retriever, completer core.Completer,
	logger core.Logger, metrics core.MetricsCollector) *RAGAgent {
	return &RAGAgent{
		retriever: retriever,
		completer: completer,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessQuery 处理一次知识型提问
func (a *RAGAgent) ProcessQuery(ctx context.Context, request *core.QueryRequest) *core.QueryResponse {
	startTime := time.Now()
	if request.RequestID == "" {
		request.RequestID = uuid.New().String()
	}

	passages, err := a.retriever.Search(ctx, request.Question, defaultPassageLimit)
	if err != nil {
		agentErr := core.WrapError(err, core.ErrorTypeRetrieval, "RETRIEVAL_FAILED", "知识库检索失败")
		if a.logger != nil {
			a.logger.Error("知识库检索失败", "request_id", request.RequestID, "error", agentErr)
		}
		return &core.QueryResponse{
			Response:  fmt.Sprintf("Desculpe, ocorreu um erro ao buscar informações: %v", err),
			QueryType: "rag",
			RequestID: request.RequestID,
			Metadata: &core.QueryMetadata{
				Error:         fmt.Sprintf("%s: %v", agentErr.Error(), err),
				ExecutionTime: time.Since(startTime),
			},
		}
	}

	answer := a.generateAnswer(ctx, request, passages)

	if a.metrics != nil {
		a.metrics.IncrementCounter("rag_queries_total", nil)
		a.metrics.RecordHistogram("rag_query_duration_ms",
			float64(time.Since(startTime).Milliseconds()), nil)
	}
	if a.logger != nil {
		a.logger.Info("知识问答完成",
			"request_id", request.RequestID,
			"passages", len(passages),
			"duration", time.Since(startTime),
		)
	}

	return &core.QueryResponse{
		Response:  answer,
		QueryType: "rag",
		RequestID: request.RequestID,
		Metadata: &core.QueryMetadata{
			RowCount:      len(passages),
			ExecutionTime: time.Since(startTime),
		},
	}
}

// generateAnswer 基于检索结果生成回答
func (a *RAGAgent) generateAnswer(ctx context.Context, request *core.QueryRequest, passages []*core.Passage) string {
	prompt := buildRAGPrompt(request, passages)

	if a.completer != nil {
		answer, err := a.completer.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer)
		}
		if err != nil && a.logger != nil {
			a.logger.Warn("知识问答补全失败，使用检索摘要回退",
				"request_id", request.RequestID, "error", err)
		}
	}

	return fallbackAnswer(passages)
}

// buildRAGPrompt 拼装知识问答提示词
func buildRAGPrompt(request *core.QueryRequest, passages []*core.Passage) string {
	var builder strings.Builder

	builder.WriteString("Você é um assistente especializado da Analytical Company. ")
	builder.WriteString("Use as informações fornecidas para responder à pergunta do usuário de forma precisa e útil.\n\n")

	if len(passages) > 0 {
		builder.WriteString("Informações relevantes da base de conhecimento:\n\n")
		for i, passage := range passages {
			builder.WriteString(fmt.Sprintf("%d. %s\n\n", i+1, passage.Content))
		}
	}

	if len(request.History) > 0 {
		builder.WriteString("Contexto da conversa:\n")
		history := request.History
		if len(history) > 3 {
			history = history[len(history)-3:]
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

	builder.WriteString(fmt.Sprintf("PERGUNTA DO USUÁRIO: %s\n\n", request.Question))
	builder.WriteString("INSTRUÇÕES:\n")
	builder.WriteString("1. Responda em português brasileiro\n")
	builder.WriteString("2. Use apenas as informações fornecidas no contexto\n")
	builder.WriteString("3. Se não houver informações suficientes, seja honesto sobre isso\n")
	builder.WriteString("4. Seja claro, objetivo e profissional\n")
	builder.WriteString("5. Forneça exemplos quando apropriado\n")
	builder.WriteString("6. Se a pergunta for sobre dados específicos, sugira que o usuário faça uma consulta mais específica\n\n")
	builder.WriteString("RESPOSTA:")

	return builder.String()
}

// fallbackAnswer 补全不可用时的确定性回答
func fallbackAnswer(passages []*core.Passage) string {
	if len(passages) == 0 {
		return "Desculpe, não encontrei informações sobre esse assunto na base de conhecimento."
	}

	var builder strings.Builder
	builder.WriteString("Encontrei as seguintes informações na base de conhecimento:\n\n")
	for i, passage := range passages {
		builder.WriteString(fmt.Sprintf("%d. %s\n\n", i+1, passage.Content))
	}
	return strings.TrimSpace(builder.String())
}
