// 本文件实现了内存指标收集器，用于记录查询次数、修复次数、
// 响应时间分布等运行时指标，供日志与测试断言使用。

package monitor

import (
	"sort"
	"strings"
	"sync"
)

// MetricsManager 内存指标管理器，实现 core.MetricsCollector。
type MetricsManager struct {
	mutex      sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsManager 创建指标管理器实例
func NewMetricsManager() *MetricsManager {
	return &MetricsManager{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter 增加计数器的值
func (m *MetricsManager) IncrementCounter(name string, labels map[string]string) {
	key := metricKey(name, labels)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.counters[key]++
}

// RecordHistogram 记录直方图数据
func (m *MetricsManager) RecordHistogram(name string, value float64, labels map[string]string) {
	key := metricKey(name, labels)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.histograms[key] = append(m.histograms[key], value)
}

// SetGauge 设置仪表值
func (m *MetricsManager) SetGauge(name string, value float64, labels map[string]string) {
	key := metricKey(name, labels)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.gauges[key] = value
}

// CounterValue 读取计数器当前值
func (m *MetricsManager) CounterValue(name string, labels map[string]string) int64 {
	key := metricKey(name, labels)
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.counters[key]
}

// GaugeValue 读取仪表当前值
func (m *MetricsManager) GaugeValue(name string, labels map[string]string) float64 {
	key := metricKey(name, labels)
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.gauges[key]
}

// HistogramCount 读取直方图样本数
func (m *MetricsManager) HistogramCount(name string, labels map[string]string) int {
	key := metricKey(name, labels)
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.histograms[key])
}

// HistogramAverage 计算直方图样本均值，无样本返回 0
func (m *MetricsManager) HistogramAverage(name string, labels map[string]string) float64 {
	key := metricKey(name, labels)
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	samples := m.histograms[key]
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// Reset 清空全部指标
func (m *MetricsManager) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.histograms = make(map[string][]float64)
}

// metricKey 将指标名和标签序列化为稳定的键，标签按名称排序。
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('{')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
		sb.WriteByte('}')
	}
	return sb.String()
}
