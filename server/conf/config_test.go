package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewCfgDefaults(t *testing.T) {
	cfg := NewCfg()
	assert.Equal(t, 134217728, cfg.BTreePoolSize)
	assert.Equal(t, 4096, cfg.BTreePageSize)
	assert.Equal(t, 10, cfg.FieldCount)
	assert.Equal(t, "", cfg.BTreeDBName)
	assert.Equal(t, "snappy", cfg.DumpCompression)
	assert.Equal(t, "127.0.0.1:8379", cfg.ServerAddress())
}

func TestLoadIni(t *testing.T) {
	path := writeFile(t, "btreedb.ini", `
[btree]
dbname    = /tmp/ycsb.db
pool_size = 1048576
page_size = 8192

[workload]
fieldcount = 3

[logs]
log_level = DEBUG

[server]
port = 9000

[dump]
compression = LZ4
`)
	cfg, err := NewCfg().Load(&CommandLineArgs{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ycsb.db", cfg.BTreeDBName)
	assert.Equal(t, 1048576, cfg.BTreePoolSize)
	assert.Equal(t, 8192, cfg.BTreePageSize)
	assert.Equal(t, 3, cfg.FieldCount)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "lz4", cfg.DumpCompression)

	assert.Equal(t, "/tmp/ycsb.db", cfg.GetString("btree.dbname"))
	assert.Equal(t, 1048576, cfg.GetInt("btree.pool_size", 0))
	assert.Equal(t, 42, cfg.GetInt("btree.missing", 42))
	assert.Equal(t, "", cfg.GetString("nosection"))
}

func TestLoadToml(t *testing.T) {
	path := writeFile(t, "btreedb.toml", `
[btree]
dbname = "/data/t.db"
pool_size = 65536

[workload]
fieldcount = 4
`)
	cfg, err := NewCfg().Load(&CommandLineArgs{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/data/t.db", cfg.BTreeDBName)
	assert.Equal(t, 65536, cfg.BTreePoolSize)
	assert.Equal(t, 4, cfg.FieldCount)
	assert.Equal(t, 4096, cfg.BTreePageSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := NewCfg().Load(&CommandLineArgs{ConfigPath: filepath.Join(t.TempDir(), "nope.ini")})
	assert.Error(t, err)
}

func TestInvalidLogLevelFallsBack(t *testing.T) {
	path := writeFile(t, "bad.ini", "[logs]\nlog_level = loud\n")
	cfg, err := NewCfg().Load(&CommandLineArgs{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestSetProperty(t *testing.T) {
	cfg := NewCfg()
	require.NoError(t, cfg.SetProperty("btree.dbname=/tmp/x.db"))
	require.NoError(t, cfg.SetProperty("btree.pool_size = 4096"))
	assert.Equal(t, "/tmp/x.db", cfg.BTreeDBName)
	assert.Equal(t, 4096, cfg.BTreePoolSize)

	assert.Error(t, cfg.SetProperty("novalue"))
	assert.Error(t, cfg.Set("nosection", "1"))
}

func TestRejectsNonPositivePoolSize(t *testing.T) {
	cfg := NewCfg()
	assert.Error(t, cfg.Set("btree.pool_size", "-4096"))
	assert.Error(t, cfg.SetProperty("btree.pool_size=0"))
	assert.Error(t, cfg.Set("btree.page_size", "-1"))
	assert.Equal(t, DefaultPoolSize, cfg.BTreePoolSize)
	assert.Equal(t, DefaultPageSize, cfg.BTreePageSize)

	// a rejected value does not stick
	require.NoError(t, cfg.Set("btree.dbname", "/tmp/y.db"))
	assert.Equal(t, DefaultPoolSize, cfg.BTreePoolSize)

	path := writeFile(t, "neg.ini", "[btree]\npool_size = -1\n")
	_, err := NewCfg().Load(&CommandLineArgs{ConfigPath: path})
	assert.Error(t, err)
}
