package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/server/api"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/dump"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print table, tree and buffer pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				st, err := h.Stats()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "table:    %s (%s)\n", st.Path, st.TableID)
				fmt.Fprintf(out, "pages:    %d total, %d free, %d bytes each\n", st.Pages, st.FreePages, st.PageSize)
				fmt.Fprintf(out, "io:       reads=%d writes=%d\n", st.Reads, st.Writes)
				fmt.Fprintf(out, "tree:     height=%d keys=%d leaf=%d internal=%d overflow=%d\n",
					st.Tree.Height, st.Tree.Keys, st.Tree.LeafPages, st.Tree.InternalPages, st.Tree.OverflowPages)
				fmt.Fprintf(out, "pool:     frames=%d free=%d dirty=%d young=%d old=%d\n",
					st.Pool.TotalFrames, st.Pool.FreeFrames, st.Pool.DirtyPages, st.Pool.YoungPages, st.Pool.OldPages)
				fmt.Fprintf(out, "requests: %d (hit ratio %.2f%%), reads=%d writes=%d evictions=%d\n",
					st.Pool.PageRequests, st.Pool.HitRatio()*100, st.Pool.PageReads, st.Pool.PageWrites, st.Pool.PageEvictions)
				return nil
			})
		},
	}
}

func newDumpCmd(opts *options) *cobra.Command {
	var compression string
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Export every key-value pair to a dump file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(cfg *conf.Cfg, h *table.Handle) error {
				if compression == "" {
					compression = cfg.DumpCompression
				}
				c, err := dump.ParseCompression(compression)
				if err != nil {
					return err
				}
				if err := util.EnsureParentDir(args[0]); err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return errors.Wrapf(err, "create %s", args[0])
				}
				n, err := dump.Export(f, h, dump.Options{Compression: c})
				if cerr := f.Close(); err == nil && cerr != nil {
					err = errors.Wrapf(cerr, "close %s", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to '%s' (%s).\n", n, args[0], c)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "", "none, snappy or lz4 (default from dump.compression)")
	return cmd
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [file]",
		Short: "Import a dump file into the table, replacing existing keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(_ *conf.Cfg, h *table.Handle) error {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrapf(err, "open %s", args[0])
				}
				defer f.Close()

				n, err := dump.Import(f, h)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from '%s'.\n", n, args[0])
				return nil
			})
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the table over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withTable(func(cfg *conf.Cfg, h *table.Handle) error {
				srv := api.NewServer(h)
				addr := cfg.ServerAddress()

				errCh := make(chan error, 1)
				go func() {
					errCh <- srv.Serve(addr)
				}()
				logger.Infof("serving %s on %s", cfg.BTreeDBName, addr)

				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sig)

				select {
				case err := <-errCh:
					return err
				case <-cmd.Context().Done():
				case s := <-sig:
					logger.Infof("received %s, shutting down", s)
				}
				return srv.Shutdown()
			})
		},
	}
}
