// 本文件定义了 SQL 路径使用的提示词模板：生成、纠错与结果解说。
// 提示词使用葡萄牙语面向业务用户，约束补全只输出单条 SELECT/WITH 语句。

package query

import (
	"fmt"
	"strings"

	"github.com/Anniext/askdata/core"
)

// buildGenerationPrompt 构建 SQL 生成提示词，包含实时 Schema 概览
// 与最近几轮会话上下文。
func buildGenerationPrompt(schema, question string, history []*core.ChatTurn) string {
	var context strings.Builder
	if len(history) > 0 {
		context.WriteString("Contexto da conversa anterior:\n")
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, turn := range recent {
			if turn.Role == "user" {
				context.WriteString(fmt.Sprintf("Usuário: %s\n", turn.Content))
			} else if turn.SQL != "" {
				context.WriteString(fmt.Sprintf("Query anterior: %s\n", turn.SQL))
			}
		}
		context.WriteString("\n")
	}

	return fmt.Sprintf(`Você é um especialista em SQL e análise de dados. Gere UMA ÚNICA query SQL válida para a pergunta do usuário.

%s

%sPERGUNTA DO USUÁRIO: %s

INSTRUÇÕES (OBRIGATÓRIAS):
- Responda com APENAS 1 statement SQL (SELECT ou WITH). Nenhum texto antes/depois.
- NÃO use múltiplos statements.
- Use as tabelas DW (Data Warehouse) sempre que possível.
- Para datas, use dw_fact_billing.date_key e faça JOIN com dw_dim_date.
- Para clientes/projetos, use chaves *_key (ex.: client_key, project_key).
- Use agregações (SUM, COUNT, AVG) quando apropriado.
- LIMIT máx. 100 quando fizer sentido.
- Termine sem ponto-e-vírgula.
`, schema, context.String(), question)
}

// buildCorrectionPrompt 构建 SQL 纠错提示词，带上失败的语句与原始错误文本。
func buildCorrectionPrompt(schema, sqlText, errMsg string) string {
	return fmt.Sprintf(`A query abaixo falhou:

%s

ERRO: %s

Com base no schema a seguir, gere UMA ÚNICA query SQL corrigida, mantendo o objetivo. Apenas o SQL, sem explicações.

%s

SQL:`, sqlText, errMsg, schema)
}

// buildAnswerPrompt 构建结果解说提示词，最多展示前 10 行结果。
func buildAnswerPrompt(question, sqlText string, results []map[string]any) string {
	display := results
	if len(display) > 10 {
		display = display[:10]
	}
	return fmt.Sprintf(`Baseado nos resultados da consulta SQL, gere uma resposta clara e informativa em português.

PERGUNTA DO USUÁRIO: %s

QUERY EXECUTADA: %s

RESULTADOS (%d registros):
%v

INSTRUÇÕES:
1. Responda em português brasileiro.
2. Seja claro e objetivo.
3. Destaque os principais insights dos dados.
4. Se houver muitos resultados, mencione que está mostrando apenas os principais.
5. Use formatação adequada para números (vírgulas para milhares, etc.).
6. Seja profissional mas acessível.

RESPOSTA:`, question, sqlText, len(results), display)
}
