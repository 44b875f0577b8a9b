package cli

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/ycsb"
)

// withBinding runs fn against the btreedb binding wrapped in a DBWrapper, so
// every call is timed into m. The binding panics on rows it cannot decode;
// here that becomes an error, since the table may hold values put by hand.
func (o *options) withBinding(fn func(cfg *conf.Cfg, db *ycsb.DBWrapper) error) (m ycsb.Measurements, err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	binding, err := ycsb.NewDB("btreedb", cfg)
	if err != nil {
		return nil, err
	}
	m = ycsb.NewMeasurements(cfg)
	db := ycsb.NewDBWrapper(binding, m)
	if err := db.Init(); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Cleanup(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close table")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = errors.Wrap(rerr, "stored value is not a row")
				return
			}
			err = errors.Errorf("stored value is not a row: %v", r)
		}
	}()
	return m, fn(cfg, db)
}

func newRowGetCmd(opts *options) *cobra.Command {
	var latency bool
	cmd := &cobra.Command{
		Use:   "row-get [key] [field...]",
		Short: "Read a YCSB row through the btreedb binding and print its fields",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields []string
			if len(args) > 1 {
				fields = args[1:]
			}
			out := cmd.OutOrStdout()
			m, err := opts.withBinding(func(cfg *conf.Cfg, db *ycsb.DBWrapper) error {
				row, status := db.Read(cfg.TableName, args[0], fields)
				if status != ycsb.StatusOK {
					return errors.Errorf("read %q: %s", args[0], status)
				}
				for _, f := range row {
					fmt.Fprintf(out, "%s=%s\n", f.Name, f.Value)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if latency {
				fmt.Fprintln(out, m.StatusMsg())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latency, "latency", false, "print the measured latency after the row")
	return cmd
}

func newRowPutCmd(opts *options) *cobra.Command {
	var latency bool
	cmd := &cobra.Command{
		Use:   "row-put [key] [field=value...]",
		Short: "Write a YCSB row through the btreedb binding",
		Long: "Write a row of exactly workload.fieldcount fields. An existing row is read and " +
			"replaced as one read-modify-write; an absent one is inserted.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]ycsb.Field, 0, len(args)-1)
			for _, kv := range args[1:] {
				idx := strings.Index(kv, "=")
				if idx <= 0 {
					return errors.Errorf("field %q is not of the form name=value", kv)
				}
				values = append(values, ycsb.Field{Name: kv[:idx], Value: kv[idx+1:]})
			}

			out := cmd.OutOrStdout()
			m, err := opts.withBinding(func(cfg *conf.Cfg, db *ycsb.DBWrapper) error {
				if len(values) != cfg.FieldCount {
					return errors.Errorf("row has %d fields, workload.fieldcount is %d", len(values), cfg.FieldCount)
				}
				status := db.ReadModifyWrite(cfg.TableName, args[0], nil, values)
				verb := "Replaced"
				if status == ycsb.StatusNotFound {
					status = db.Insert(cfg.TableName, args[0], values)
					verb = "Inserted"
				}
				if status != ycsb.StatusOK {
					return errors.Errorf("write %q: %s", args[0], status)
				}
				fmt.Fprintf(out, "%s row '%s'.\n", verb, args[0])
				return nil
			})
			if err != nil {
				return err
			}
			if latency {
				fmt.Fprintln(out, m.StatusMsg())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latency, "latency", false, "print the measured latencies after the write")
	return cmd
}
