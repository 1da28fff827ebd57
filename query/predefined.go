// 本文件实现了预定义分析查询。运营侧高频的四类报表问法绕过生成式补全，
// 直接命中维护好的 SQL 文本：月度营收、客户排行、资源利用率、工单 SLA。

package query

import "strings"

// predefinedQueries 预定义查询名到 SQL 文本的映射
var predefinedQueries = map[string]string{
	"receita_mensal": `
		SELECT
			year, month, currency,
			SUM(amount) AS amount,
			SUM(tax) AS tax,
			SUM(amount_usd) AS amount_usd,
			SUM(tax_usd) AS tax_usd
		FROM dw_fact_billing fb
		JOIN dw_dim_date dd ON fb.date_key = dd.date_key
		JOIN dw_dim_currency dc ON fb.currency_key = dc.currency_key
		GROUP BY year, month, currency
		ORDER BY year, month, currency`,

	"top_clientes": `
		SELECT
			dc.client_name,
			SUM(fb.amount) AS amount
		FROM dw_fact_billing fb
		JOIN dw_dim_client dc ON fb.client_key = dc.client_key
		GROUP BY dc.client_name
		ORDER BY amount DESC
		LIMIT 10`,

	"utilizacao_recursos": `
		SELECT
			dd.year, dd.month,
			SUM(ft.hours) AS horas,
			COUNT(DISTINCT de.employee_id) AS empregados_ativos,
			COUNT(DISTINCT de.employee_id) * 168 AS capacidade_horas,
			ROUND((SUM(ft.hours) * 100.0) / (COUNT(DISTINCT de.employee_id) * 168), 2) AS utilizacao_pct
		FROM dw_fact_timesheet ft
		JOIN dw_dim_date dd ON ft.date_key = dd.date_key
		JOIN dw_dim_employee de ON ft.employee_key = de.employee_key
		GROUP BY dd.year, dd.month
		ORDER BY dd.year, dd.month`,

	"sla_tickets": `
		SELECT
			dt.priority,
			COUNT(*) AS qtd,
			SUM(CASE WHEN ft.sla_met = 1 THEN 1 ELSE 0 END) AS dentro_sla,
			ROUND((SUM(CASE WHEN ft.sla_met = 1 THEN 1 ELSE 0 END) * 100.0) / COUNT(*), 2) AS pct_sla
		FROM dw_fact_ticket ft
		JOIN dw_dim_ticket dt ON ft.ticket_key = dt.ticket_key
		GROUP BY dt.priority
		ORDER BY dt.priority`,
}

// predefinedTriggers 预定义查询的触发短语，按声明顺序匹配
var predefinedTriggers = []struct {
	name     string
	keywords []string
}{
	{"receita_mensal", []string{"receita mensal", "faturamento mensal", "receita por mês"}},
	{"top_clientes", []string{"top clientes", "melhores clientes", "maiores clientes", "ranking clientes"}},
	{"utilizacao_recursos", []string{"utilização", "utilização recursos", "horas trabalhadas", "capacidade"}},
	{"sla_tickets", []string{"sla", "tickets", "sla tickets", "performance tickets"}},
}

// MatchPredefined 在问题文本中查找预定义查询的触发短语。
// 命中返回 (查询名, SQL 文本, true)。
func MatchPredefined(question string) (string, string, bool) {
	lower := strings.ToLower(question)
	for _, trigger := range predefinedTriggers {
		for _, keyword := range trigger.keywords {
			if strings.Contains(lower, keyword) {
				return trigger.name, predefinedQueries[trigger.name], true
			}
		}
	}
	return "", "", false
}
