package conf

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
	"gopkg.in/ini.v1"
)

const (
	DefaultConfigFile = "conf/btreedb.ini"

	DefaultPoolSize  = 134217728 // 128MB
	DefaultPageSize  = 4096
	DefaultFieldCnt  = 10
	DefaultTableName = "usertable"
	DefaultPort      = 8379
)

type CommandLineArgs struct {
	ConfigPath string
}

/*
[btree]
dbname        = /var/lib/btreedb/usertable.db
pool_size     = 134217728
page_size     = 4096
sync_on_flush = true

[workload]
fieldcount = 10
table      = usertable
*/
type Cfg struct {
	Raw *ini.File

	// btree
	BTreeDBName      string `default:"" yaml:"dbname" json:"dbname,omitempty"`
	BTreePoolSize    int    `default:"134217728" yaml:"pool_size" json:"pool_size,omitempty"`
	BTreePageSize    int    `default:"4096" yaml:"page_size" json:"page_size,omitempty"`
	BTreeSyncOnFlush bool   `default:"true" yaml:"sync_on_flush" json:"sync_on_flush,omitempty"`

	// workload
	FieldCount int    `default:"10" yaml:"fieldcount" json:"fieldcount,omitempty"`
	TableName  string `default:"usertable" yaml:"table" json:"table,omitempty"`

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// server
	BindAddress string `default:"127.0.0.1" yaml:"bind_address" json:"bind_address,omitempty"`
	Port        int    `default:"8379" yaml:"port" json:"port,omitempty"`

	// dump
	DumpCompression string `default:"snappy" yaml:"compression" json:"compression,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:              ini.Empty(),
		BTreePoolSize:    DefaultPoolSize,
		BTreePageSize:    DefaultPageSize,
		BTreeSyncOnFlush: true,
		FieldCount:       DefaultFieldCnt,
		TableName:        DefaultTableName,
		LogLevel:         "info",
		BindAddress:      "127.0.0.1",
		Port:             DefaultPort,
		DumpCompression:  "snappy",
	}
}

// Load reads the configuration file named in args (or the default one) and
// fills every section. A missing file leaves the defaults in place.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	raw, err := loadConfiguration(args)
	if err != nil {
		return nil, err
	}
	cfg.Raw = raw
	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Set overrides a "section.key" property, YCSB -p style, and re-parses.
func (cfg *Cfg) Set(key, value string) error {
	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	k := cfg.Raw.Section(section).Key(name)
	old := k.Value()
	k.SetValue(value)
	if err := cfg.parse(); err != nil {
		k.SetValue(old)
		cfg.parse()
		return err
	}
	return nil
}

// SetProperty parses "section.key=value".
func (cfg *Cfg) SetProperty(kv string) error {
	idx := strings.Index(kv, "=")
	if idx <= 0 {
		return fmt.Errorf("property %q is not of the form section.key=value", kv)
	}
	return cfg.Set(strings.TrimSpace(kv[:idx]), strings.TrimSpace(kv[idx+1:]))
}

func (cfg *Cfg) parse() error {
	if err := cfg.parseBTreeCfg(cfg.Raw.Section("btree")); err != nil {
		return err
	}
	cfg.parseWorkloadCfg(cfg.Raw.Section("workload"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	cfg.parseServerCfg(cfg.Raw.Section("server"))
	cfg.parseDumpCfg(cfg.Raw.Section("dump"))
	return nil
}

func splitKey(key string) (string, string, error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("property key %q must be section.key", key)
	}
	return parts[0], parts[1], nil
}

func loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := DefaultConfigFile
	explicit := false
	if args != nil && args.ConfigPath != "" {
		configFile = args.ConfigPath
		explicit = true
	}

	exists, err := util.PathExists(configFile)
	if err != nil {
		return nil, fmt.Errorf("stat config file %s: %v", configFile, err)
	}
	if !exists {
		if explicit {
			return nil, fmt.Errorf("config file %s does not exist", configFile)
		}
		logger.Debugf("配置文件不存在: %s，使用默认配置", configFile)
		return ini.Empty(), nil
	}

	if strings.EqualFold(filepath.Ext(configFile), ".toml") {
		return loadToml(configFile)
	}

	parsed, err := ini.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %v", configFile, err)
	}
	logger.Debugf("成功加载配置文件: %s", configFile)
	return parsed, nil
}

// loadToml flattens a two-level toml document into an ini file so that the
// section parsers below serve both formats.
func loadToml(configFile string) (*ini.File, error) {
	tree, err := toml.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %v", configFile, err)
	}
	raw := ini.Empty()
	for _, sectionName := range tree.Keys() {
		sub, ok := tree.Get(sectionName).(*toml.Tree)
		if !ok {
			continue
		}
		section := raw.Section(sectionName)
		for _, key := range sub.Keys() {
			section.Key(key).SetValue(fmt.Sprint(sub.Get(key)))
		}
	}
	logger.Debugf("成功加载配置文件: %s", configFile)
	return raw, nil
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) string {
	if section == nil {
		return defaultValue
	}
	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		value = defaultValue
	}
	return value
}

// GetString 获取配置项的字符串值, key 形如 "btree.dbname"
func (cfg *Cfg) GetString(key string) string {
	return cfg.GetStringDefault(key, "")
}

// GetStringDefault is GetString with a fallback for unset keys.
func (cfg *Cfg) GetStringDefault(key, defaultValue string) string {
	section, name, err := splitKey(key)
	if err != nil {
		return defaultValue
	}
	return valueAsString(cfg.Raw.Section(section), name, defaultValue)
}

// GetInt 获取配置项的整数值
func (cfg *Cfg) GetInt(key string, defaultValue int) int {
	section, name, err := splitKey(key)
	if err != nil {
		return defaultValue
	}
	return cfg.Raw.Section(section).Key(name).MustInt(defaultValue)
}

func (cfg *Cfg) parseBTreeCfg(section *ini.Section) error {
	poolSize := section.Key("pool_size").MustInt(DefaultPoolSize)
	if poolSize <= 0 {
		return fmt.Errorf("btree.pool_size must be positive, got %d", poolSize)
	}
	pageSize := section.Key("page_size").MustInt(DefaultPageSize)
	if pageSize <= 0 {
		return fmt.Errorf("btree.page_size must be positive, got %d", pageSize)
	}
	cfg.BTreeDBName = valueAsString(section, "dbname", "")
	cfg.BTreePoolSize = poolSize
	cfg.BTreePageSize = pageSize
	cfg.BTreeSyncOnFlush = section.Key("sync_on_flush").MustBool(true)
	return nil
}

func (cfg *Cfg) parseWorkloadCfg(section *ini.Section) {
	cfg.FieldCount = section.Key("fieldcount").MustInt(DefaultFieldCnt)
	cfg.TableName = valueAsString(section, "table", DefaultTableName)
}

func (cfg *Cfg) parseServerCfg(section *ini.Section) {
	cfg.BindAddress = valueAsString(section, "bind_address", "127.0.0.1")
	cfg.Port = section.Key("port").MustInt(DefaultPort)
}

func (cfg *Cfg) parseDumpCfg(section *ini.Section) {
	cfg.DumpCompression = strings.ToLower(valueAsString(section, "compression", "snappy"))
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	cfg.LogError = valueAsString(section, "log_error", "")
	cfg.LogInfos = valueAsString(section, "log_infos", "")

	logLevel := strings.ToLower(valueAsString(section, "log_level", "info"))
	switch logLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
		cfg.LogLevel = logLevel
	default:
		logger.Warnf("警告: 无效的日志级别 '%s', 使用默认级别 'info'", logLevel)
		cfg.LogLevel = "info"
	}
}

// ServerAddress is bind_address:port.
func (cfg *Cfg) ServerAddress() string {
	return cfg.BindAddress + ":" + strconv.Itoa(cfg.Port)
}
