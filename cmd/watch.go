package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ncmc/core/session"
	"ncmc/core/worker"
	"ncmc/logger"
	"ncmc/watch"
)

var watchQuiet time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "监听投放目录并持续解码",
	Long:  `监听 WATCH_DIR（或参数指定的目录），一阵连续出现的新文件视为一次拖放。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.WatchDir
		if len(args) == 1 {
			dir = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink, resultCache, cleanup, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		sess, err := session.New(session.Options{
			Worker:  worker.Options{Workers: cfg.DecodeWorkers, Sink: sink, Cache: resultCache},
			Timeout: cfg.DecodeTimeout,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		w, err := watch.New(dir, watchQuiet)
		if err != nil {
			return err
		}
		defer w.Close()

		revs, cancel := sess.Watch()
		defer cancel()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "监听 %s，Ctrl+C 退出\n", dir)
		p := &progress{w: out, last: sess.Snapshot()}
		errs := w.Errors
		for {
			select {
			case files, ok := <-w.Gestures:
				if !ok {
					return nil
				}
				if _, err := sess.Drop(ctx, files); err != nil {
					return err
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("投放目录监听出错", logger.ErrorField(err))
			case rev := <-revs:
				p.show(rev)
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchQuiet, "quiet", watch.DefaultQuiet, "最后一个文件事件之后等待多久再提交")
	rootCmd.AddCommand(watchCmd)
}
