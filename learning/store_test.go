package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Anniext/askdata/core"
	"github.com/Anniext/askdata/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config := &core.LearningConfig{
		Path:       filepath.Join(t.TempDir(), "learning.db"),
		MinUsage:   3,
		MinSuccess: 0.7,
	}
	store, err := NewStore(config, monitor.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		config  *core.LearningConfig
		wantErr bool
	}{
		{name: "空配置", config: nil, wantErr: true},
		{name: "空路径", config: &core.LearningConfig{}, wantErr: true},
		{
			name: "自动创建目录",
			config: &core.LearningConfig{
				Path:     filepath.Join(t.TempDir(), "nested", "dir", "learning.db"),
				MinUsage: 3,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.config, monitor.NewNopLogger())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				store.Close()
			}
		})
	}
}

func TestExtractPatterns(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{
			name:     "领域关键词与结构",
			query:    "qual a receita total?",
			expected: []string{"keyword_receita", "keyword_total", "keyword_qual", "question_mark", "medium_query"},
		},
		{
			name:     "排名与时间模式",
			query:    "top clientes do último trimestre por faturamento e receita acumulada no período",
			expected: []string{"temporal_recent", "ranking", "long_query"},
		},
		{
			name:     "短问题",
			query:    "receita mensal",
			expected: []string{"keyword_receita", "short_query"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patterns := extractPatterns(tt.query)
			for _, expected := range tt.expected {
				assert.Contains(t, patterns, expected)
			}
		})
	}
}

func TestClassifyRequiresHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 没有任何历史时不给出分类
	category, ok := store.Classify(ctx, "qual a receita total deste ano?")
	assert.False(t, ok)
	assert.Empty(t, category)

	// 两次记录仍低于最小使用次数
	store.Record(ctx, "qual a receita total?", "sql", true, 12, "")
	store.Record(ctx, "qual a receita mensal?", "sql", true, 15, "")
	_, ok = store.Classify(ctx, "qual a receita anual?")
	assert.False(t, ok)
}

func TestClassifyAfterLearning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 积累足够多的成功历史后分类开始生效
	questions := []string{
		"qual a receita total?",
		"qual a receita mensal?",
		"qual a receita do ano?",
		"qual a receita por cliente?",
		"qual a receita acumulada?",
		"qual a receita do trimestre?",
		"qual a receita de projetos?",
		"qual a receita consolidada?",
		"qual a receita em dólar?",
		"qual a receita esperada?",
	}
	for _, question := range questions {
		store.Record(ctx, question, "sql", true, 10, "")
	}

	category, ok := store.Classify(ctx, "qual a receita do próximo mês?")
	assert.True(t, ok)
	assert.Equal(t, "sql", category)
}

func TestClassifyIgnoresUnreliablePatterns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 历史全部失败时成功率为零，不应给出分类
	for i := 0; i < 10; i++ {
		store.Record(ctx, "qual a receita total?", "sql", false, 10, "no such table: x")
	}

	_, ok := store.Classify(ctx, "qual a receita mensal?")
	assert.False(t, ok)
}

func TestRecordUpdatesSuccessRate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 三次成功一次失败，成功率应为 0.75
	store.Record(ctx, "receita mensal", "sql", true, 10, "")
	store.Record(ctx, "receita mensal", "sql", true, 10, "")
	store.Record(ctx, "receita mensal", "sql", true, 10, "")
	store.Record(ctx, "receita mensal", "sql", false, 10, "erro")

	insights, err := store.GetInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, insights.TotalQueries)
	assert.InDelta(t, 75.0, insights.SuccessRate, 0.001)

	require.NotEmpty(t, insights.TopPatterns)
	for _, stats := range insights.TopPatterns {
		if stats.Pattern == "keyword_receita" {
			assert.Equal(t, 4, stats.UsageCount)
			assert.InDelta(t, 0.75, stats.SuccessRate, 0.001)
		}
	}
}

func TestRecordIgnoresBlankInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, "   ", "sql", true, 10, "")
	store.Record(ctx, "receita", "", true, 10, "")

	insights, err := store.GetInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, insights.TotalQueries)
}

func TestGetInsightsQueryTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, "qual a receita total?", "sql", true, 10, "")
	store.Record(ctx, "quais serviços vocês oferecem?", "rag", true, 20, "")
	store.Record(ctx, "qual a receita mensal?", "sql", true, 12, "")

	insights, err := store.GetInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, insights.QueryTypeCounts["sql"])
	assert.Equal(t, 1, insights.QueryTypeCounts["rag"])
}

func TestCleanupKeepsRecentData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, "qual a receita total?", "sql", true, 10, "")

	// 保留期很长时不应删除任何数据
	deleted, err := store.Cleanup(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	insights, err := store.GetInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, insights.TotalQueries)
}
