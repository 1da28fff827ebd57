package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Anniext/askdata/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLoggerManager 测试创建日志管理器
func TestNewLoggerManager(t *testing.T) {
	tests := []struct {
		name    string
		config  *core.LogConfig
		wantErr bool
	}{
		{
			name:    "配置为空",
			config:  nil,
			wantErr: true,
		},
		{
			name: "标准输出JSON格式",
			config: &core.LogConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "控制台格式",
			config: &core.LogConfig{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "无效日志级别",
			config: &core.LogConfig{
				Level:  "verbose",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "文件模式缺路径",
			config: &core.LogConfig{
				Level:  "info",
				Format: "json",
				Output: "file",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewLoggerManager(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, manager.GetLogger())
			assert.NoError(t, manager.Close())
		})
	}
}

// TestLoggerFileOutput 测试文件输出与目录创建
func TestLoggerFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "askdata.log")
	manager, err := NewLoggerManager(&core.LogConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logPath,
		MaxSize:  10,
	})
	require.NoError(t, err)
	defer func() { _ = manager.Close() }()

	logger := manager.GetNamedLogger("test")
	logger.Info("查询完成", "row_count", 3, "duration_ms", 12)
	require.NoError(t, manager.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "查询完成")
	assert.Contains(t, string(data), "row_count")
}

// TestLoggerAfterClose 测试关闭后返回空日志记录器
func TestLoggerAfterClose(t *testing.T) {
	manager, err := NewLoggerManager(&core.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	logger := manager.GetLogger()
	assert.NotPanics(t, func() {
		logger.Info("关闭后写日志")
	})
}

// TestMetricsCounter 测试计数器指标
func TestMetricsCounter(t *testing.T) {
	metrics := NewMetricsManager()

	metrics.IncrementCounter("queries_total", map[string]string{"type": "sql"})
	metrics.IncrementCounter("queries_total", map[string]string{"type": "sql"})
	metrics.IncrementCounter("queries_total", map[string]string{"type": "rag"})

	assert.Equal(t, int64(2), metrics.CounterValue("queries_total", map[string]string{"type": "sql"}))
	assert.Equal(t, int64(1), metrics.CounterValue("queries_total", map[string]string{"type": "rag"}))
	assert.Equal(t, int64(0), metrics.CounterValue("queries_total", map[string]string{"type": "general"}))
}

// TestMetricsHistogram 测试直方图指标
func TestMetricsHistogram(t *testing.T) {
	metrics := NewMetricsManager()

	metrics.RecordHistogram("query_duration_ms", 10, nil)
	metrics.RecordHistogram("query_duration_ms", 30, nil)

	assert.Equal(t, 2, metrics.HistogramCount("query_duration_ms", nil))
	assert.InDelta(t, 20.0, metrics.HistogramAverage("query_duration_ms", nil), 0.001)
}

// TestMetricsGaugeAndReset 测试仪表指标与重置
func TestMetricsGaugeAndReset(t *testing.T) {
	metrics := NewMetricsManager()

	metrics.SetGauge("schema_tables", 12, nil)
	assert.InDelta(t, 12.0, metrics.GaugeValue("schema_tables", nil), 0.001)

	metrics.Reset()
	assert.InDelta(t, 0.0, metrics.GaugeValue("schema_tables", nil), 0.001)
	assert.Equal(t, 0, metrics.HistogramCount("query_duration_ms", nil))
}

// TestMetricKeyStable 测试标签序列化的稳定性
func TestMetricKeyStable(t *testing.T) {
	a := metricKey("m", map[string]string{"a": "1", "b": "2"})
	b := metricKey("m", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
}
