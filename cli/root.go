package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dbPath     string
	poolSize   int
	props      []string
}

// Root command for the CLI
var RootCmd = NewRootCmd()

// NewRootCmd builds a fresh command tree. Tests use it so flag state does not
// leak from one run into the next.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "btreedb",
		Short:         "CLI for the B+tree key-value table",
		Long:          "A Command Line Interface for reading, writing, dumping and serving a disk-backed B+tree table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径 (ini or toml)")
	flags.StringVar(&opts.dbPath, "db", "", "table file, overrides btree.dbname")
	flags.IntVar(&opts.poolSize, "pool-size", 0, "buffer pool size in bytes, overrides btree.pool_size")
	flags.StringArrayVarP(&opts.props, "property", "p", nil, "section.key=value override, may be repeated")

	root.AddCommand(
		newGetCmd(opts),
		newPutCmd(opts),
		newDeleteCmd(opts),
		newScanCmd(opts),
		newStatsCmd(opts),
		newDumpCmd(opts),
		newRestoreCmd(opts),
		newServeCmd(opts),
		newRowGetCmd(opts),
		newRowPutCmd(opts),
	)
	return root
}

// Execute runs the root command
func Execute() {
	err := RootCmd.Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, then applies -p overrides and finally the
// dedicated --db and --pool-size flags.
func (o *options) loadConfig() (*conf.Cfg, error) {
	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: o.configPath})
	if err != nil {
		return nil, err
	}
	for _, p := range o.props {
		if err := cfg.SetProperty(p); err != nil {
			return nil, err
		}
	}
	if o.dbPath != "" {
		if err := cfg.Set("btree.dbname", o.dbPath); err != nil {
			return nil, err
		}
	}
	if o.poolSize != 0 {
		if err := cfg.Set("btree.pool_size", strconv.Itoa(o.poolSize)); err != nil {
			return nil, err
		}
	}

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	return cfg, nil
}

// withTable opens the shared table handle for the duration of fn.
func (o *options) withTable(fn func(cfg *conf.Cfg, h *table.Handle) error) (err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cfg.BTreeDBName == "" {
		return errors.New("no table file: pass --db or set btree.dbname")
	}

	h, err := table.Open(table.Options{
		Path:        cfg.BTreeDBName,
		PoolSize:    uint64(cfg.BTreePoolSize),
		PageSize:    cfg.BTreePageSize,
		SyncOnFlush: cfg.BTreeSyncOnFlush,
	})
	if err != nil {
		return errors.Wrapf(err, "open table %s", cfg.BTreeDBName)
	}
	defer func() {
		if cerr := h.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close table")
		}
	}()
	return fn(cfg, h)
}
