// 本文件实现会话内存：按会话保存最近的问答轮次，供生成提示词引用。
// 存储为纯内存结构，过期清理在访问路径上触发，不启动后台协程。

package session

import (
	"strings"
	"sync"
	"time"

	"github.com/Anniext/askdata/core"

	"github.com/google/uuid"
)

const (
	// defaultMaxTurns 每个会话保留的最大轮次
	defaultMaxTurns = 20
	// defaultTTL 会话空闲过期时间
	defaultTTL = 2 * time.Hour
)

// sessionState 单个会话的状态
type sessionState struct {
	entries    []*core.ChatHistoryEntry
	lastAccess time.Time
}

// Memory 会话内存管理器
type Memory struct {
	maxTurns int
	ttl      time.Duration
	logger   core.Logger
	now      func() time.Time

	mutex    sync.Mutex
	sessions map[string]*sessionState
}

// Option 会话内存配置项
type Option func(*Memory)

// WithMaxTurns 设置每个会话保留的最大轮次
func WithMaxTurns(maxTurns int) Option {
	return func(m *Memory) {
		if maxTurns > 0 {
			m.maxTurns = maxTurns
		}
	}
}

// WithTTL 设置会话空闲过期时间
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory 创建会话内存管理器
func NewMemory(logger core.Logger, opts ...Option) *Memory {
	memory := &Memory{
		maxTurns: defaultMaxTurns,
		ttl:      defaultTTL,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(memory)
	}
	return memory
}

// NewSessionID 生成新的会话标识
func (m *Memory) NewSessionID() string {
	return uuid.New().String()
}

// Append 向会话追加一轮问答，超出上限时丢弃最早的轮次
func (m *Memory) Append(sessionID string, entry *core.ChatHistoryEntry) {
	if strings.TrimSpace(sessionID) == "" || entry == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evictExpiredLocked()

	state, ok := m.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		m.sessions[sessionID] = state
	}

	state.entries = append(state.entries, entry)
	if len(state.entries) > m.maxTurns {
		state.entries = state.entries[len(state.entries)-m.maxTurns:]
	}
	state.lastAccess = m.now()
}

// History 返回会话的全部历史轮次副本
func (m *Memory) History(sessionID string) []*core.ChatHistoryEntry {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evictExpiredLocked()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	state.lastAccess = m.now()

	history := make([]*core.ChatHistoryEntry, len(state.entries))
	copy(history, state.entries)
	return history
}

// Turns 将会话历史转换为提示词可用的轮次序列
func (m *Memory) Turns(sessionID string) []*core.ChatTurn {
	history := m.History(sessionID)
	if len(history) == 0 {
		return nil
	}

	turns := make([]*core.ChatTurn, 0, len(history)*2)
	for _, entry := range history {
		turns = append(turns, &core.ChatTurn{Role: "user", Content: entry.Question})
		turns = append(turns, &core.ChatTurn{
			Role:    "assistant",
			Content: entry.Response,
			SQL:     entry.SQL,
		})
	}
	return turns
}

// Clear 清空指定会话
func (m *Memory) Clear(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

// SessionCount 返回当前活跃会话数
func (m *Memory) SessionCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evictExpiredLocked()
	return len(m.sessions)
}

// evictExpiredLocked 清理空闲超时的会话，调用方需持锁
func (m *Memory) evictExpiredLocked() {
	cutoff := m.now().Add(-m.ttl)
	for sessionID, state := range m.sessions {
		if state.lastAccess.Before(cutoff) {
			delete(m.sessions, sessionID)
			if m.logger != nil {
				m.logger.Debug("会话过期清理", "session_id", sessionID)
			}
		}
	}
}
