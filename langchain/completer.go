// 本文件实现 LLM 补全客户端，是 SQL 生成、修正与答案合成的统一出口。
// 主要功能：
// 1. Completer：基于 langchaingo 的补全实现，支持 ollama 与 openai 服务商。
// 2. mockLLM：本地开发与测试用的固定回复模型。
// 所有请求都带上下文超时控制，并记录请求量与时延指标。

package langchain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer LLM 补全客户端，封装 llms.Model 并实现 core.Completer 接口
type Completer struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      core.Logger
	metrics     core.MetricsCollector

	provider  string
	modelName string

	requestCount int64
	errorCount   int64
	mutex        sync.Mutex
}

// NewCompleter 根据配置创建补全客户端
func NewCompleter(config *core.LLMConfig, logger core.Logger, metrics core.MetricsCollector) (*Completer, error) {
	if config == nil {
		return nil, fmt.Errorf("LLM 配置不能为空")
	}

	model, err := createModel(config)
	if err != nil {
		return nil, fmt.Errorf("创建 LLM 模型失败: %w", err)
	}

	return &Completer{
		model:       model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      logger,
		metrics:     metrics,
		provider:    config.Provider,
		modelName:   config.Model,
	}, nil
}

// createModel 根据服务商创建底层模型
func createModel(config *core.LLMConfig) (llms.Model, error) {
	switch config.Provider {
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(config.Model),
		}
		if config.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(config.ServerURL))
		}
		return ollama.New(opts...)

	case "openai":
		opts := []openai.Option{
			openai.WithModel(config.Model),
		}
		if config.ServerURL != "" {
			opts = append(opts, openai.WithBaseURL(config.ServerURL))
		}
		return openai.New(opts...)

	case "mock":
		// 本地开发与测试使用的固定回复模型
		return &mockLLM{}, nil

	default:
		return nil, fmt.Errorf("不支持的 LLM 服务商: %s", config.Provider)
	}
}

// Complete 执行一次补全请求
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()

	c.mutex.Lock()
	c.requestCount++
	c.mutex.Unlock()

	if c.metrics != nil {
		c.metrics.IncrementCounter("llm_requests_total", map[string]string{
			"provider": c.provider,
			"model":    c.modelName,
		})
	}

	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
	}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	latency := time.Since(startTime)

	if err != nil {
		c.mutex.Lock()
		c.errorCount++
		c.mutex.Unlock()

		if c.logger != nil {
			c.logger.Error("LLM 请求失败",
				"provider", c.provider,
				"latency", latency,
				"error", err,
			)
		}
		if c.metrics != nil {
			c.metrics.IncrementCounter("llm_errors_total", map[string]string{
				"provider": c.provider,
			})
		}
		return "", fmt.Errorf("LLM 生成失败: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordHistogram("llm_request_duration_ms",
			float64(latency.Milliseconds()), map[string]string{
				"provider": c.provider,
			})
	}
	if c.logger != nil {
		c.logger.Debug("LLM 请求完成",
			"provider", c.provider,
			"latency", latency,
			"response_length", len(response),
		)
	}

	return strings.TrimSpace(response), nil
}

// Stats 返回客户端统计信息
func (c *Completer) Stats() map[string]interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return map[string]interface{}{
		"provider":      c.provider,
		"model":         c.modelName,
		"request_count": c.requestCount,
		"error_count":   c.errorCount,
	}
}

// mockLLM 固定回复模型，供 mock 服务商使用
type mockLLM struct{}

// GenerateContent 返回固定内容
func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "SELECT 1"},
		},
	}, nil
}

// Call 兼容旧版单提示接口
func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "SELECT 1", nil
}
