// Package watch 把投放目录里的一阵新文件合并成一次拖放手势
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ncmc/logger"
	"ncmc/model"
)

// DefaultQuiet 最后一个事件之后等待多久才认为一阵投放结束。
// 文件大小要在一个窗口内保持不变才会提交。
const DefaultQuiet = 500 * time.Millisecond

// Watcher 监听单个目录
type Watcher struct {
	fs    *fsnotify.Watcher
	dir   string
	quiet time.Duration

	Gestures chan []model.File
	Errors   chan error

	closeCh chan struct{}
	runDone chan struct{}
	once    sync.Once
}

// New 开始监听 dir，目录不存在时创建
func New(dir string, quiet time.Duration) (*Watcher, error) {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fw,
		dir:      dir,
		quiet:    quiet,
		Gestures: make(chan []model.File, 4),
		Errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		runDone:  make(chan struct{}),
	}
	go w.run()
	logger.Info("开始监听投放目录", logger.String("dir", dir))
	return w, nil
}

// Close 停止监听并关闭两个通道
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.fs.Close()
		<-w.runDone
	})
	return err
}

func (w *Watcher) run() {
	defer func() {
		close(w.Gestures)
		close(w.Errors)
		close(w.runDone)
	}()

	pending := make(map[string]int64)
	seen := make(map[string]struct{})
	timer := time.NewTimer(w.quiet)
	timer.Stop()
	defer timer.Stop()
	var flush <-chan time.Time

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			// 移走或删除之后，同名文件可以再投放一次
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(seen, event.Name)
				delete(pending, event.Name)
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := seen[event.Name]; ok {
				continue
			}
			pending[event.Name] = -1
			timer.Reset(w.quiet)
			flush = timer.C

		case <-flush:
			flush = nil
			files := settle(pending, seen)
			if len(pending) > 0 {
				timer.Reset(w.quiet)
				flush = timer.C
			}
			if len(files) == 0 {
				continue
			}
			select {
			case w.Gestures <- files:
			case <-w.closeCh:
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
				logger.Warn("投放目录监听错误", logger.ErrorField(err))
			}

		case <-w.closeCh:
			return
		}
	}
}

// settle 取出大小在一个静默窗口内没有变化的文件，按名字排序。
// 大小还在变的留在 pending 里并记下新大小；已经交付过的、不存在的、
// 不是普通文件的直接丢掉。交付的文件记入 seen。
func settle(pending map[string]int64, seen map[string]struct{}) []model.File {
	var files []model.File
	for path, last := range pending {
		if _, ok := seen[path]; ok {
			delete(pending, path)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			delete(pending, path)
			continue
		}
		if info.Size() != last {
			pending[path] = info.Size()
			continue
		}
		delete(pending, path)
		seen[path] = struct{}{}
		files = append(files, model.File{
			Name: filepath.Base(path),
			Path: path,
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}
