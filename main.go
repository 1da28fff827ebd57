package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Anniext/askdata/config"
	"github.com/Anniext/askdata/core"
	"github.com/Anniext/askdata/knowledge"
	"github.com/Anniext/askdata/langchain"
	"github.com/Anniext/askdata/learning"
	"github.com/Anniext/askdata/monitor"
	"github.com/Anniext/askdata/orchestrator"
	"github.com/Anniext/askdata/query"
	"github.com/Anniext/askdata/schema"
	"github.com/Anniext/askdata/session"
)

func main() {
	// 加载配置
	configManager := config.NewManager()
	if err := configManager.Load(getConfigPath()); err != nil {
		log.Fatal("加载配置失败:", err)
	}
	cfg := configManager.GetConfig()

	// 初始化日志
	loggerManager, err := monitor.NewLoggerManager(cfg.Log)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer loggerManager.Close()
	logger := loggerManager.GetLogger()

	metrics := monitor.NewMetricsManager()

	// 配置热更新
	configManager.Watch()

	app, err := buildApplication(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("初始化应用失败", "error", err)
	}
	defer app.Close()

	logger.Info("分析问答系统启动成功",
		"driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go waitForSignal(cancel, logger)

	runInteractiveLoop(ctx, app, logger)

	logger.Info("分析问答系统已关闭")
}

// application 装配完成的应用实例
type application struct {
	orchestrator *orchestrator.Orchestrator
	memory       *session.Memory
	learning     *learning.Store
}

// Close 释放持有的资源
func (a *application) Close() {
	if a.learning != nil {
		a.learning.Close()
	}
}

// buildApplication 按配置装配全部组件
func buildApplication(cfg *core.Config, logger core.Logger, metrics core.MetricsCollector) (*application, error) {
	introspector, err := schema.NewIntrospector(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("创建 Schema 内省器失败: %w", err)
	}

	executor, err := query.NewExecutor(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("创建查询执行器失败: %w", err)
	}

	completer, err := langchain.NewCompleter(cfg.LLM, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("创建补全客户端失败: %w", err)
	}

	aliases := query.NewAliasStore(cfg.Normalizer.AliasFile, logger)
	normalizer := query.NewNormalizer(introspector, aliases, cfg.Normalizer, logger)
	intents := query.NewIntentDetector(cfg.Normalizer.TermBridges, time.Now)

	sqlAgent := query.NewSQLAgent(introspector, executor, completer,
		normalizer, intents, logger, metrics)

	retriever := knowledge.NewRetriever(logger)
	ragAgent := knowledge.NewRAGAgent(retriever, completer, logger, metrics)

	learningStore, err := learning.NewStore(cfg.Learning, logger)
	if err != nil {
		return nil, fmt.Errorf("创建学习存储失败: %w", err)
	}

	orch := orchestrator.NewOrchestrator(sqlAgent, ragAgent, completer,
		learningStore, introspector, cfg.Classifier, logger, metrics)

	return &application{
		orchestrator: orch,
		memory:       session.NewMemory(logger),
		learning:     learningStore,
	}, nil
}

// runInteractiveLoop 从标准输入逐行读取问题并输出回答
func runInteractiveLoop(ctx context.Context, app *application, logger core.Logger) {
	sessionID := app.memory.NewSessionID()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	fmt.Println("Sistema de perguntas analíticas. Digite sua pergunta (ou 'sair' para encerrar).")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			question := strings.TrimSpace(line)
			if question == "" {
				continue
			}
			if question == "sair" || question == "exit" {
				return
			}

			response := app.orchestrator.ProcessQuery(ctx, &core.QueryRequest{
				Question:  question,
				History:   app.memory.Turns(sessionID),
				SessionID: sessionID,
			})

			app.memory.Append(sessionID, &core.ChatHistoryEntry{
				Question:  question,
				Response:  response.Response,
				SQL:       response.SQL,
				QueryType: response.QueryType,
			})

			printResponse(response)
		}
	}
}

// printResponse 输出一次回答及其结构化细节
func printResponse(response *core.QueryResponse) {
	fmt.Println(response.Response)

	if response.SQL != "" {
		fmt.Printf("\n[SQL] %s\n", response.SQL)
	}
	if len(response.Results) > 0 {
		encoded, err := json.MarshalIndent(response.Results, "", "  ")
		if err == nil {
			fmt.Printf("[Dados] %s\n", encoded)
		}
	}
	if response.Metadata != nil && response.Metadata.Error != "" {
		fmt.Printf("[Erro] %s\n", response.Metadata.Error)
	}
	fmt.Println()
}

// getConfigPath 获取配置文件路径
func getConfigPath() string {
	if path := os.Getenv("ASKDATA_CONFIG_PATH"); path != "" {
		return path
	}

	defaultPaths := []string{
		"config/askdata.yaml",
		"./askdata.yaml",
	}
	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// 找不到配置文件时使用内置默认值
	return ""
}

// waitForSignal 等待系统信号
func waitForSignal(cancel context.CancelFunc, logger core.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("收到系统信号", "signal", sig.String())
	cancel()
}
