package cli

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
)

// ErrKeyNotFound is returned by get and delete for an absent key.
var ErrKeyNotFound = errors.New("key not found")

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				value, found, err := h.Get([]byte(args[0]))
				if err != nil {
					return err
				}
				if !found {
					return errors.Wrapf(ErrKeyNotFound, "%q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(value))
				return nil
			})
		},
	}
}

func newPutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Insert or replace a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				if err := h.Put([]byte(args[0]), []byte(args[1])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored key '%s'.\n", args[0])
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				found, err := h.Delete([]byte(args[0]))
				if err != nil {
					return err
				}
				if !found {
					return errors.Wrapf(ErrKeyNotFound, "%q", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted key '%s'.\n", args[0])
				return nil
			})
		},
	}
}

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [start] [count]",
		Short: "Print up to count pairs in key order, starting at the first key >= start",
		Long:  "Print up to count pairs in key order. An empty start (\"\") begins at the smallest key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil || count < 0 {
				return errors.Errorf("count must be a non-negative integer, got %q", args[1])
			}
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				it, err := h.Seek([]byte(args[0]))
				if err != nil {
					return err
				}
				defer it.Close()

				out := cmd.OutOrStdout()
				for i := 0; i < count && !it.IsEnd(); i++ {
					fmt.Fprintf(out, "%s\t%s\n", it.Key(), it.Value())
					if err := it.Next(); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
