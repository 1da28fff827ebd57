package query

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Anniext/askdata/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAliasStoreLearnAndLookup 测试别名学习与查找
func TestAliasStoreLearnAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	store := NewAliasStore(path, monitor.NewNopLogger())

	_, ok := store.Lookup("fact_sales")
	assert.False(t, ok)

	store.Learn("fact_sales", "dw_fact_billing")
	target, ok := store.Lookup("fact_sales")
	assert.True(t, ok)
	assert.Equal(t, "dw_fact_billing", target)
}

// TestAliasStorePersistence 测试学习结果跨实例持久化
func TestAliasStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	store := NewAliasStore(path, monitor.NewNopLogger())
	store.Learn("oltp_fact_sales", "dw_fact_billing")
	store.Learn("clientes", "dw_dim_client")

	// 磁盘上是按学习先后排序的 JSON 数组
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []AliasEntry
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, 2)
	assert.Equal(t, AliasEntry{Wrong: "oltp_fact_sales", Correct: "dw_fact_billing"}, onDisk[0])
	assert.Equal(t, AliasEntry{Wrong: "clientes", Correct: "dw_dim_client"}, onDisk[1])

	// 新实例加载同一文件
	reloaded := NewAliasStore(path, monitor.NewNopLogger())
	target, ok := reloaded.Lookup("clientes")
	assert.True(t, ok)
	assert.Equal(t, "dw_dim_client", target)
	assert.Len(t, reloaded.All(), 2)
}

// TestAliasStoreLearnOrder 测试条目按学习先后排序，重复学习不改变次序
func TestAliasStoreLearnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	store := NewAliasStore(path, monitor.NewNopLogger())
	store.Learn("fact_sales", "dw_fact_billing")
	store.Learn("clientes", "dw_dim_client")
	store.Learn("moedas", "dw_dim_currency")

	// 重复学习第一条只更新目标，位置不变
	store.Learn("fact_sales", "dw_fact_timesheet")

	want := []AliasEntry{
		{Wrong: "fact_sales", Correct: "dw_fact_timesheet"},
		{Wrong: "clientes", Correct: "dw_dim_client"},
		{Wrong: "moedas", Correct: "dw_dim_currency"},
	}
	assert.Equal(t, want, store.Entries())

	// 跨实例重载后次序不变
	reloaded := NewAliasStore(path, monitor.NewNopLogger())
	assert.Equal(t, want, reloaded.Entries())
}

// TestAliasStoreLegacyFormat 测试旧版对象格式按键名排序加载
func TestAliasStoreLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	legacy := `{"clientes": "dw_dim_client", "billing": "dw_fact_billing"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	store := NewAliasStore(path, monitor.NewNopLogger())
	want := []AliasEntry{
		{Wrong: "billing", Correct: "dw_fact_billing"},
		{Wrong: "clientes", Correct: "dw_dim_client"},
	}
	assert.Equal(t, want, store.Entries())

	target, ok := store.Lookup("clientes")
	assert.True(t, ok)
	assert.Equal(t, "dw_dim_client", target)
}

// TestAliasStoreIgnoresInvalid 测试空键与自映射被忽略
func TestAliasStoreIgnoresInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	store := NewAliasStore(path, monitor.NewNopLogger())

	store.Learn("", "dw_dim_client")
	store.Learn("  ", "dw_dim_client")
	store.Learn("dw_dim_client", "dw_dim_client")
	store.Learn("x", "")

	assert.Empty(t, store.All())
	// 没有有效学习时不写文件
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// TestAliasStoreCorruptFile 测试损坏文件从空开始而非失败
func TestAliasStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte("{invalid"), 0o644))

	store := NewAliasStore(path, monitor.NewNopLogger())
	assert.Empty(t, store.All())

	// 仍然可以继续学习并覆盖损坏文件
	store.Learn("billing", "dw_fact_billing")
	reloaded := NewAliasStore(path, monitor.NewNopLogger())
	_, ok := reloaded.Lookup("billing")
	assert.True(t, ok)
}

// TestAliasStoreNoTempLeftover 测试原子写入不留临时文件
func TestAliasStoreNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.json")
	store := NewAliasStore(path, monitor.NewNopLogger())
	store.Learn("sales", "dw_fact_billing")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "aliases.json", entries[0].Name())
}
