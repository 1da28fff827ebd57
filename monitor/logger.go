// 本文件实现了结构化日志记录系统，提供统一的日志接口和管理功能。
// 支持多种日志级别、格式化输出、文件轮转和归档机制。
// 主要功能：
// 1. 基于 zap 的高性能结构化日志记录
// 2. 支持控制台和文件输出
// 3. 日志文件轮转和归档管理
// 4. 不同级别的日志过滤

package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Anniext/askdata/core"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerManager 日志管理器，负责创建和管理日志记录器
type LoggerManager struct {
	config    *core.LogConfig
	zapLogger *zap.Logger
	mutex     sync.RWMutex
	closed    bool
}

// NewLoggerManager 创建日志管理器实例
func NewLoggerManager(config *core.LogConfig) (*LoggerManager, error) {
	if config == nil {
		return nil, fmt.Errorf("日志配置不能为空")
	}

	manager := &LoggerManager{config: config}
	if err := manager.initialize(); err != nil {
		return nil, fmt.Errorf("初始化日志管理器失败: %w", err)
	}
	return manager, nil
}

// initialize 初始化日志系统
func (lm *LoggerManager) initialize() error {
	encoderConfig := lm.createEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	syncers, err := lm.createWriteSyncers()
	if err != nil {
		return fmt.Errorf("创建写入器失败: %w", err)
	}

	level, err := lm.parseLogLevel(lm.config.Level)
	if err != nil {
		return fmt.Errorf("解析日志级别失败: %w", err)
	}

	cores := make([]zapcore.Core, 0, len(syncers))
	for _, syncer := range syncers {
		cores = append(cores, zapcore.NewCore(encoder, syncer, level))
	}

	lm.zapLogger = zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return nil
}

// createEncoderConfig 创建编码器配置
func (lm *LoggerManager) createEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"
	return config
}

// createWriteSyncers 创建写入器
func (lm *LoggerManager) createWriteSyncers() ([]zapcore.WriteSyncer, error) {
	var syncers []zapcore.WriteSyncer

	switch lm.config.Output {
	case "stdout":
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	case "stderr":
		syncers = append(syncers, zapcore.AddSync(os.Stderr))
	case "file":
		fileSyncer, err := lm.createFileSyncer()
		if err != nil {
			return nil, err
		}
		syncers = append(syncers, fileSyncer)
	case "both":
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
		fileSyncer, err := lm.createFileSyncer()
		if err != nil {
			return nil, err
		}
		syncers = append(syncers, fileSyncer)
	default:
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	return syncers, nil
}

// createFileSyncer 创建带轮转的文件写入器
func (lm *LoggerManager) createFileSyncer() (zapcore.WriteSyncer, error) {
	if lm.config.FilePath == "" {
		return nil, fmt.Errorf("文件输出模式下日志路径不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(lm.config.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   lm.config.FilePath,
		MaxSize:    lm.config.MaxSize,
		MaxBackups: lm.config.MaxBackups,
		MaxAge:     lm.config.MaxAge,
		Compress:   true,
	}
	return zapcore.AddSync(writer), nil
}

// parseLogLevel 解析日志级别字符串
func (lm *LoggerManager) parseLogLevel(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("未知的日志级别: %s", levelStr)
	}
}

// GetLogger 获取实现 core.Logger 的日志记录器
func (lm *LoggerManager) GetLogger() core.Logger {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	if lm.closed || lm.zapLogger == nil {
		return NewNopLogger()
	}
	return &zapLoggerWrapper{sugar: lm.zapLogger.Sugar()}
}

// GetNamedLogger 获取带名称的日志记录器
func (lm *LoggerManager) GetNamedLogger(name string) core.Logger {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	if lm.closed || lm.zapLogger == nil {
		return NewNopLogger()
	}
	return &zapLoggerWrapper{sugar: lm.zapLogger.Named(name).Sugar()}
}

// Sync 刷新缓冲的日志
func (lm *LoggerManager) Sync() error {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	if lm.zapLogger == nil {
		return nil
	}
	return lm.zapLogger.Sync()
}

// Close 关闭日志管理器
func (lm *LoggerManager) Close() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	if lm.closed {
		return nil
	}
	lm.closed = true
	if lm.zapLogger != nil {
		_ = lm.zapLogger.Sync()
	}
	return nil
}

// zapLoggerWrapper 将 zap 的 SugaredLogger 适配为 core.Logger，
// fields 约定为交替出现的键值对。
type zapLoggerWrapper struct {
	sugar *zap.SugaredLogger
}

func (w *zapLoggerWrapper) Debug(msg string, fields ...any) {
	w.sugar.Debugw(msg, fields...)
}

func (w *zapLoggerWrapper) Info(msg string, fields ...any) {
	w.sugar.Infow(msg, fields...)
}

func (w *zapLoggerWrapper) Warn(msg string, fields ...any) {
	w.sugar.Warnw(msg, fields...)
}

func (w *zapLoggerWrapper) Error(msg string, fields ...any) {
	w.sugar.Errorw(msg, fields...)
}

func (w *zapLoggerWrapper) Fatal(msg string, fields ...any) {
	w.sugar.Fatalw(msg, fields...)
}

// noopLogger 空实现，供测试和关闭后的兜底使用
type noopLogger struct{}

// NewNopLogger 创建空日志记录器
func NewNopLogger() core.Logger { return &noopLogger{} }

func (n *noopLogger) Debug(msg string, fields ...any) {}
func (n *noopLogger) Info(msg string, fields ...any)  {}
func (n *noopLogger) Warn(msg string, fields ...any)  {}
func (n *noopLogger) Error(msg string, fields ...any) {}
func (n *noopLogger) Fatal(msg string, fields ...any) {}
