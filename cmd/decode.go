package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"ncmc/core/session"
	"ncmc/core/worker"
	"ncmc/model"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file|dir>...",
	Short: "解码本地 .ncm 文件",
	Long:  `把命令行参数当作一次拖放: 目录会被展开，非 .ncm 文件被忽略。解码后的音频写入 OUTPUT_DIR（或 MinIO）。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandArgs(args)
		if err != nil {
			return err
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

		revs, cancel := sess.Watch()
		defer cancel()

		ids, err := sess.Drop(ctx, files)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d 个文件，%d 个待解码\n", len(files), len(ids))
		if len(ids) == 0 {
			return nil
		}

		p := &progress{w: out}
		p.show(sess.Snapshot())
		rev := sess.Snapshot()
		for !settled(rev) {
			select {
			case next, ok := <-revs:
				if !ok {
					return session.ErrClosed
				}
				rev = next
				p.show(rev)
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		failed := 0
		for _, t := range rev.Tracks() {
			if !t.Playable() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d/%d 个文件解码失败", failed, rev.Len())
		}
		fmt.Fprintln(out, "全部完成")
		return nil
	},
}

// expandArgs 展开目录，保持参数顺序
func expandArgs(args []string) ([]model.File, error) {
	var files []model.File
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, model.File{Name: d.Name(), Path: path, Size: info.Size()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

