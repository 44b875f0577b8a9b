package ycsb

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
)

var ErrUnknownDB = errors.New("ycsb: unknown db")

// DBCreator builds an uninitialized binding.
type DBCreator func(props *conf.Cfg) DB

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DBCreator)
)

// RegisterDB adds a binding under name. It returns false when name is taken.
func RegisterDB(name string, creator DBCreator) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return false
	}
	registry[name] = creator
	return true
}

// NewDB creates the binding registered under name.
func NewDB(name string, props *conf.Cfg) (DB, error) {
	registryMu.RLock()
	creator, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDB, "%q", name)
	}
	return creator(props), nil
}

// ListDBs 已注册的名称
func ListDBs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterDB("btreedb", func(props *conf.Cfg) DB {
		return NewBTreeDB(props)
	})
}
