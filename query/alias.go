// 本文件实现了表名别名学习存储。修复循环每成功把一个错误表名映射到
// 真实表名，就把这对映射持久化下来，后续请求在归一化第一步直接套用，
// 不必再走启发式或近似匹配。
// 映射按学习先后排序，先学到的先套用；重复学习同一错误表名只更新目标，
// 不改变它的次序。存储为单个 JSON 数组文件，写入采用临时文件加原子改名，
// 避免并发读到半个文件。

package query

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Anniext/askdata/core"
)

// AliasEntry 一条已学习的映射：错误表名 -> 正确表名。
type AliasEntry struct {
	Wrong   string `json:"wrong"`
	Correct string `json:"correct"`
}

// AliasStore 已学习别名存储，条目按学习先后排序。
type AliasStore struct {
	path    string
	logger  core.Logger
	mutex   sync.RWMutex
	entries []AliasEntry
	index   map[string]int
}

// NewAliasStore 创建别名存储并加载已有文件。文件不存在视为空存储，
// 文件损坏时记录警告并从空开始，不阻塞启动。
func NewAliasStore(path string, logger core.Logger) *AliasStore {
	store := &AliasStore{
		path:   path,
		logger: logger,
		index:  make(map[string]int),
	}
	store.load()
	return store
}

// load 从磁盘加载别名映射。优先按有序数组解析，
// 旧版的对象格式按键名排序加载，保证次序至少是确定的。
func (s *AliasStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("读取别名文件失败", "path", s.path, "error", err)
		}
		return
	}

	var entries []AliasEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		s.adopt(entries)
		return
	}

	var legacy map[string]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.logger.Warn("解析别名文件失败", "path", s.path, "error", err)
		return
	}
	keys := make([]string, 0, len(legacy))
	for k := range legacy {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	converted := make([]AliasEntry, 0, len(keys))
	for _, k := range keys {
		converted = append(converted, AliasEntry{Wrong: k, Correct: legacy[k]})
	}
	s.adopt(converted)
}

// adopt 替换内存中的条目并重建索引，跳过空键与重复键。
func (s *AliasStore) adopt(entries []AliasEntry) {
	s.entries = s.entries[:0]
	s.index = make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Wrong == "" || e.Correct == "" {
			continue
		}
		if _, ok := s.index[e.Wrong]; ok {
			continue
		}
		s.index[e.Wrong] = len(s.entries)
		s.entries = append(s.entries, e)
	}
}

// save 将别名条目写入磁盘。先写临时文件再原子改名。
// 调用方必须持有写锁。
func (s *AliasStore) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化别名失败: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建别名目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".aliases-*.json")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("替换别名文件失败: %w", err)
	}
	return nil
}

// Learn 记录一对别名映射并立即持久化。已学过的错误表名只更新目标，
// 保持原有次序。空键、空值或自映射直接忽略；
// 持久化失败只记录警告，内存中的映射仍然生效。
func (s *AliasStore) Learn(wrong, correct string) {
	wrong = strings.TrimSpace(wrong)
	if wrong == "" || correct == "" || wrong == correct {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if idx, ok := s.index[wrong]; ok {
		s.entries[idx].Correct = correct
	} else {
		s.index[wrong] = len(s.entries)
		s.entries = append(s.entries, AliasEntry{Wrong: wrong, Correct: correct})
	}
	if err := s.save(); err != nil {
		s.logger.Warn("持久化别名失败", "wrong", wrong, "correct", correct, "error", err)
	}
}

// Lookup 查找已学习的映射
func (s *AliasStore) Lookup(wrong string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	idx, ok := s.index[wrong]
	if !ok {
		return "", false
	}
	return s.entries[idx].Correct, true
}

// Entries 按学习先后返回全部条目的副本
func (s *AliasStore) Entries() []AliasEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]AliasEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// All 返回全部映射的副本
func (s *AliasStore) All() map[string]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		out[e.Wrong] = e.Correct
	}
	return out
}
