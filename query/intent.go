// 本文件实现了确定性意图引擎。常见的分析型问法不经过生成式补全，
// 直接由模式匹配产出固定的 SQL 模板，保证这类问题的答案稳定且即时。
// 支持的意图：客户计数、客户清单、产品清单、产品排行、上季度营收、
// 指定年份营收、当年营收。

package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Anniext/askdata/core"
)

// 意图名称常量
const (
	IntentCountClients   = "count_clients"
	IntentListClients    = "list_clients"
	IntentListProducts   = "list_products"
	IntentTopProducts    = "top_products"
	IntentRevenueQuarter = "revenue_quarter"
	IntentRevenueYear    = "revenue_year"
)

var (
	countClientsPattern = regexp.MustCompile(`\b(quantos|qnt|qtde)\s+clientes?\b`)
	listClientsPattern  = regexp.MustCompile(`\b(quem|quais|lista(r)?)\b.*\bclientes?\b`)
	rankingPattern      = regexp.MustCompile(`\b(mais\s+(compram|comprados|vendidos)|top|ranking)\b`)
	lastQuarterPattern  = regexp.MustCompile(`\b(últim[oa]|ultimo|passad[oa])\s+trimest`)
	yearPattern         = regexp.MustCompile(`\b(20\d{2})\b`)
	currentYearPattern  = regexp.MustCompile(`\b(este|atual|corrente)\s+ano\b`)
)

// IntentDetector 确定性意图识别器。now 可注入，便于测试季度与年份边界。
type IntentDetector struct {
	productPattern *regexp.Regexp
	now            func() time.Time
}

// NewIntentDetector 创建意图识别器，bridges 为术语桥接映射（如 produto -> projeto），
// 桥接源词与固有的产品类术语一起参与产品意图匹配。
func NewIntentDetector(bridges map[string]string, now func() time.Time) *IntentDetector {
	if now == nil {
		now = time.Now
	}
	terms := []string{"produtos?"}
	for src := range bridges {
		terms = append(terms, regexp.QuoteMeta(src))
	}
	return &IntentDetector{
		productPattern: regexp.MustCompile(`\b(` + strings.Join(terms, "|") + `)\b`),
		now:            now,
	}
}

// lastCompletedQuarter 返回最近一个完整季度的 (年, 季度)。
// 当前处于一季度时返回去年四季度。
func (d *IntentDetector) lastCompletedQuarter() (int, int) {
	today := d.now()
	quarter := (int(today.Month())-1)/3 + 1
	if quarter == 1 {
		return today.Year() - 1, 4
	}
	return today.Year(), quarter - 1
}

// Detect 识别问题的意图。未命中任何模式时返回 (nil, false)。
func (d *IntentDetector) Detect(question string) (*core.Intent, bool) {
	t := strings.ToLower(strings.TrimSpace(question))

	// 客户计数，包括省略疑问词的短问法
	if countClientsPattern.MatchString(t) || t == "clientes" || t == "n clientes" || t == "total clientes" {
		return &core.Intent{Name: IntentCountClients, Params: map[string]any{}}, true
	}

	// 客户清单
	if listClientsPattern.MatchString(t) {
		return &core.Intent{Name: IntentListClients, Params: map[string]any{}}, true
	}

	// 产品：排行问法走排行，其余走清单
	if d.productPattern.MatchString(t) {
		if rankingPattern.MatchString(t) {
			return &core.Intent{Name: IntentTopProducts, Params: map[string]any{}}, true
		}
		return &core.Intent{Name: IntentListProducts, Params: map[string]any{}}, true
	}

	// 上一个完整季度的营收
	if lastQuarterPattern.MatchString(t) {
		year, quarter := d.lastCompletedQuarter()
		return &core.Intent{Name: IntentRevenueQuarter, Params: map[string]any{
			"year": year, "quarter": quarter,
		}}, true
	}

	// 指定年份营收
	if m := yearPattern.FindStringSubmatch(t); m != nil &&
		(strings.Contains(t, "receita") || strings.Contains(t, "faturamento")) {
		year, _ := strconv.Atoi(m[1])
		return &core.Intent{Name: IntentRevenueYear, Params: map[string]any{"year": year}}, true
	}

	// 当年营收
	if (strings.Contains(t, "receita") || strings.Contains(t, "faturamento")) && currentYearPattern.MatchString(t) {
		return &core.Intent{Name: IntentRevenueYear, Params: map[string]any{"year": d.now().Year()}}, true
	}

	return nil, false
}

// BuildSQL 为意图生成确定性 SQL。数值参数先做类型校验再内插，
// 模板中不会出现未经校验的自由文本。
func (d *IntentDetector) BuildSQL(intent *core.Intent) (string, error) {
	switch intent.Name {
	case IntentCountClients:
		return "SELECT COUNT(*) AS total_clientes FROM dw_dim_client", nil

	case IntentListClients:
		return "SELECT DISTINCT client_name FROM dw_dim_client ORDER BY client_name LIMIT 100", nil

	case IntentListProducts:
		return "SELECT DISTINCT dp.project_name AS product_name " +
			"FROM dw_dim_project dp " +
			"WHERE dp.project_name IS NOT NULL " +
			"ORDER BY dp.project_name " +
			"LIMIT 100", nil

	case IntentTopProducts:
		return "SELECT dp.project_name AS product_name, " +
			"ROUND(SUM(fb.amount), 2) AS total_amount " +
			"FROM dw_fact_billing fb " +
			"JOIN dw_dim_project dp ON dp.project_key = fb.project_key " +
			"GROUP BY dp.project_name " +
			"HAVING dp.project_name IS NOT NULL " +
			"ORDER BY total_amount DESC " +
			"LIMIT 10", nil

	case IntentRevenueQuarter:
		year, err := intParam(intent.Params, "year")
		if err != nil {
			return "", err
		}
		quarter, err := intParam(intent.Params, "quarter")
		if err != nil {
			return "", err
		}
		if quarter < 1 || quarter > 4 {
			return "", fmt.Errorf("无效的季度值: %d", quarter)
		}
		return fmt.Sprintf(
			"SELECT dd.year, dd.quarter, "+
				"ROUND(SUM(fb.amount), 2) AS receita_total "+
				"FROM dw_fact_billing fb "+
				"JOIN dw_dim_date dd ON dd.date_key = fb.date_key "+
				"WHERE dd.year = %d AND dd.quarter = %d "+
				"GROUP BY dd.year, dd.quarter "+
				"ORDER BY dd.year, dd.quarter", year, quarter), nil

	case IntentRevenueYear:
		year, err := intParam(intent.Params, "year")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"SELECT dd.year, "+
				"ROUND(SUM(fb.amount), 2) AS receita_total "+
				"FROM dw_fact_billing fb "+
				"JOIN dw_dim_date dd ON dd.date_key = fb.date_key "+
				"WHERE dd.year = %d "+
				"GROUP BY dd.year "+
				"ORDER BY dd.year", year), nil
	}
	return "", fmt.Errorf("未知的意图: %s", intent.Name)
}

// intParam 从参数映射中取整数值
func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("缺少参数: %s", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("参数 %s 类型无效", key)
	}
}
