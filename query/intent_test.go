package query

import (
	"testing"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func newDetectorForTest(now func() time.Time) *IntentDetector {
	return NewIntentDetector(map[string]string{"produto": "projeto"}, now)
}

// TestDetectIntents 测试意图识别
func TestDetectIntents(t *testing.T) {
	d := newDetectorForTest(fixedClock(2026, time.August, 28))

	tests := []struct {
		name     string
		question string
		intent   string
	}{
		{"客户计数", "quantos clientes temos?", IntentCountClients},
		{"客户计数缩写", "qtde clientes ativos", IntentCountClients},
		{"短问法", "clientes", IntentCountClients},
		{"客户清单", "quem são meus clientes?", IntentListClients},
		{"客户清单quais", "quais clientes atendemos", IntentListClients},
		{"产品清单", "quais produtos vendemos", IntentListProducts},
		{"产品排行", "quais produtos mais vendidos", IntentTopProducts},
		{"上季度营收", "qual a receita do último trimestre?", IntentRevenueQuarter},
		{"指定年份营收", "receita de 2025", IntentRevenueYear},
		{"当年营收", "qual o faturamento este ano", IntentRevenueYear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, ok := d.Detect(tt.question)
			require.True(t, ok)
			assert.Equal(t, tt.intent, intent.Name)
		})
	}

	_, ok := d.Detect("explique o conceito de data warehouse")
	assert.False(t, ok)
}

// TestDetectProductBridge 测试桥接词匹配产品意图
func TestDetectProductBridge(t *testing.T) {
	d := newDetectorForTest(fixedClock(2026, time.August, 28))

	intent, ok := d.Detect("liste os produtos do catálogo")
	require.True(t, ok)
	assert.Equal(t, IntentListProducts, intent.Name)

	intent, ok = d.Detect("top produtos por faturamento")
	require.True(t, ok)
	assert.Equal(t, IntentTopProducts, intent.Name)
}

// TestLastCompletedQuarter 测试完整季度边界
func TestLastCompletedQuarter(t *testing.T) {
	tests := []struct {
		name    string
		now     func() time.Time
		year    int
		quarter int
	}{
		{"三季度中问上季度", fixedClock(2026, time.August, 28), 2026, 2},
		{"一季度回退到去年四季度", fixedClock(2026, time.February, 10), 2025, 4},
		{"四季度", fixedClock(2026, time.November, 1), 2026, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetectorForTest(tt.now)
			intent, ok := d.Detect("receita do último trimestre")
			require.True(t, ok)
			assert.Equal(t, tt.year, intent.Params["year"])
			assert.Equal(t, tt.quarter, intent.Params["quarter"])
		})
	}
}

// TestBuildSQL 测试意图 SQL 模板
func TestBuildSQL(t *testing.T) {
	d := newDetectorForTest(fixedClock(2026, time.August, 28))

	sql, err := d.BuildSQL(&core.Intent{Name: IntentCountClients})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS total_clientes FROM dw_dim_client", sql)

	sql, err = d.BuildSQL(&core.Intent{Name: IntentRevenueQuarter, Params: map[string]any{"year": 2026, "quarter": 2}})
	require.NoError(t, err)
	assert.Contains(t, sql, "dd.year = 2026 AND dd.quarter = 2")

	sql, err = d.BuildSQL(&core.Intent{Name: IntentTopProducts})
	require.NoError(t, err)
	assert.Contains(t, sql, "dw_fact_billing")
	assert.Contains(t, sql, "project_name AS product_name")

	// 非法参数被拒绝
	_, err = d.BuildSQL(&core.Intent{Name: IntentRevenueQuarter, Params: map[string]any{"year": 2026, "quarter": 7}})
	assert.Error(t, err)
	_, err = d.BuildSQL(&core.Intent{Name: IntentRevenueYear, Params: map[string]any{"year": "2026; DROP"}})
	assert.Error(t, err)
	_, err = d.BuildSQL(&core.Intent{Name: "desconhecido"})
	assert.Error(t, err)
}

// TestMatchPredefined 测试预定义查询触发
func TestMatchPredefined(t *testing.T) {
	name, sql, ok := MatchPredefined("mostre a receita mensal por moeda")
	require.True(t, ok)
	assert.Equal(t, "receita_mensal", name)
	assert.Contains(t, sql, "dw_fact_billing")

	name, _, ok = MatchPredefined("qual o SLA dos tickets?")
	require.True(t, ok)
	assert.Equal(t, "sla_tickets", name)

	_, _, ok = MatchPredefined("bom dia")
	assert.False(t, ok)
}
