package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
	"github.com/zhukovaskychina/ycsb-btreedb/ycsb"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func tempDB(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}

func TestPutGetDelete(t *testing.T) {
	db := tempDB(t, "kv.db")

	out, err := runCLI(t, "--db", db, "put", "user:1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored key 'user:1'")

	out, err = runCLI(t, "--db", db, "get", "user:1")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = runCLI(t, "--db", db, "delete", "user:1")
	require.NoError(t, err)

	_, err = runCLI(t, "--db", db, "get", "user:1")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	_, err = runCLI(t, "--db", db, "delete", "user:1")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	assert.Equal(t, 0, table.LiveInstances())
}

func TestScanFromStart(t *testing.T) {
	db := tempDB(t, "scan.db")
	for i := 5; i >= 1; i-- {
		_, err := runCLI(t, "--db", db, "put", fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}

	out, err := runCLI(t, "--db", db, "scan", "", "3")
	require.NoError(t, err)
	assert.Equal(t, "k1\tv1\nk2\tv2\nk3\tv3\n", out)

	out, err = runCLI(t, "--db", db, "scan", "k4", "10")
	require.NoError(t, err)
	assert.Equal(t, "k4\tv4\nk5\tv5\n", out)

	_, err = runCLI(t, "--db", db, "scan", "", "many")
	assert.Error(t, err)
}

func TestRequiresTableFile(t *testing.T) {
	_, err := runCLI(t, "get", "x")
	assert.Error(t, err)
	_, err = runCLI(t, "--db", tempDB(t, "x.db"), "-p", "novalue", "get", "x")
	assert.Error(t, err)
	_, err = runCLI(t, "--db", tempDB(t, "x.db"), "put", "only-key")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	db := tempDB(t, "stats.db")
	_, err := runCLI(t, "--db", db, "put", "a", "1")
	require.NoError(t, err)
	_, err = runCLI(t, "--db", db, "put", "b", "2")
	require.NoError(t, err)

	out, err := runCLI(t, "--db", db, "--pool-size", "65536", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keys=2")
	assert.Contains(t, out, "frames=16")
}

func TestDumpRestore(t *testing.T) {
	src := tempDB(t, "src.db")
	dst := tempDB(t, "dst.db")
	file := filepath.Join(t.TempDir(), "out", "src.dump")

	for i := 0; i < 50; i++ {
		_, err := runCLI(t, "--db", src, "put", fmt.Sprintf("key%03d", i), fmt.Sprintf("value-%d", i))
		require.NoError(t, err)
	}

	out, err := runCLI(t, "--db", src, "dump", "--compression", "lz4", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 50 records")

	out, err = runCLI(t, "--db", dst, "restore", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 50 records")

	out, err = runCLI(t, "--db", dst, "get", "key042")
	require.NoError(t, err)
	assert.Equal(t, "value-42\n", out)

	_, err = runCLI(t, "--db", dst, "dump", "--compression", "zip", file)
	assert.Error(t, err)
}

func TestRowGetThroughBinding(t *testing.T) {
	db := tempDB(t, "rows.db")

	props := conf.NewCfg()
	require.NoError(t, props.Set("btree.dbname", db))
	require.NoError(t, props.Set("workload.fieldcount", "2"))
	binding, err := ycsb.NewDB("btreedb", props)
	require.NoError(t, err)
	require.NoError(t, binding.Init())
	status := binding.Insert("usertable", "user1", []ycsb.Field{{Name: "f0", Value: "x"}, {Name: "f1", Value: "y"}})
	require.Equal(t, ycsb.StatusOK, status)
	require.NoError(t, binding.Cleanup())

	out, err := runCLI(t, "--db", db, "-p", "workload.fieldcount=2", "row-get", "user1")
	require.NoError(t, err)
	assert.Equal(t, "f0=x\nf1=y\n", out)

	out, err = runCLI(t, "--db", db, "-p", "workload.fieldcount=2", "row-get", "user1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1=y\n", out)

	_, err = runCLI(t, "--db", db, "-p", "workload.fieldcount=2", "row-get", "user2")
	assert.Error(t, err)
}

func TestRowGetOnPlainValueIsAnError(t *testing.T) {
	db := tempDB(t, "plain.db")
	_, err := runCLI(t, "--db", db, "put", "k", "hello")
	require.NoError(t, err)

	var out string
	require.NotPanics(t, func() {
		out, err = runCLI(t, "--db", db, "row-get", "k")
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ycsb.ErrMalformedRow))
	assert.Empty(t, out)
	assert.Equal(t, 0, table.LiveInstances())

	// a filter out of the stored order is reported the same way
	_, err = runCLI(t, "--db", db, "-p", "workload.fieldcount=2", "row-put", "r", "a=1", "b=2")
	require.NoError(t, err)
	require.NotPanics(t, func() {
		_, err = runCLI(t, "--db", db, "-p", "workload.fieldcount=2", "row-get", "r", "b", "a")
	})
	assert.True(t, errors.Is(err, ycsb.ErrMalformedRow))
	assert.Equal(t, 0, table.LiveInstances())
}

func TestRowPutInsertsThenReplaces(t *testing.T) {
	db := tempDB(t, "rowput.db")
	fc := "workload.fieldcount=2"

	out, err := runCLI(t, "--db", db, "-p", fc, "row-put", "user1", "f0=a", "f1=b")
	require.NoError(t, err)
	assert.Equal(t, "Inserted row 'user1'.\n", out)

	out, err = runCLI(t, "--db", db, "-p", fc, "row-put", "--latency", "user1", "f0=c", "f1=d")
	require.NoError(t, err)
	assert.Contains(t, out, "Replaced row 'user1'.\n")
	assert.Contains(t, out, "[READ: Count=1 ")
	assert.Contains(t, out, "[UPDATE: Count=1 ")
	assert.Contains(t, out, "[READMODIFYWRITE: Count=1 ")

	out, err = runCLI(t, "--db", db, "-p", fc, "row-get", "--latency", "user1")
	require.NoError(t, err)
	assert.Contains(t, out, "f0=c\nf1=d\n")
	assert.Contains(t, out, "[READ: Count=1 ")

	_, err = runCLI(t, "--db", db, "-p", fc, "row-put", "user1", "f0=only")
	assert.Error(t, err)
	_, err = runCLI(t, "--db", db, "-p", fc, "row-put", "user1", "novalue", "f1=x")
	assert.Error(t, err)
}

func TestNegativePoolSizeIsAnError(t *testing.T) {
	db := tempDB(t, "neg.db")
	require.NotPanics(t, func() {
		_, err := runCLI(t, "--db", db, "-p", "btree.pool_size=-4096", "put", "k", "v")
		assert.Error(t, err)
		_, err = runCLI(t, "--db", db, "--pool-size", "-4096", "put", "k", "v")
		assert.Error(t, err)
	})
	assert.Equal(t, 0, table.LiveInstances())
}
