// Package ingest 把一次拖放手势变成新的曲目记录和一次解码请求。
package ingest

import (
	"fmt"
	"strings"

	"ncmc/core/worker"
	"ncmc/logger"
	"ncmc/model"
)

// StoreOwner 持有当前版本的一方。Append 返回时新版本必须已经提交，
// 之后的完成事件才能找到这些记录。
type StoreOwner interface {
	Append(files []model.File) []int
}

// Dispatcher 解码请求的接收方
type Dispatcher interface {
	Post(req worker.Request) error
}

// Controller 拖放控制器
type Controller struct {
	Store    StoreOwner
	Dispatch Dispatcher
}

// Filter 只保留扩展名严格为 .ncm 的文件，其余静默丢弃
func Filter(files []model.File) []model.File {
	kept := make([]model.File, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name, model.ContainerExt) {
			kept = append(kept, f)
			continue
		}
		logger.Debug("忽略非 ncm 文件", logger.String("file", f.Name))
	}
	return kept
}

// Drop 处理一次拖放: 过滤、一次追加、然后一次投递。
// 没有可用文件时既不追加也不投递。
func (c *Controller) Drop(files []model.File) ([]int, error) {
	kept := Filter(files)
	if len(kept) == 0 {
		return nil, nil
	}

	// 第一步: 追加并提交
	ids := c.Store.Append(kept)
	if len(ids) != len(kept) {
		return nil, fmt.Errorf("ingest: store assigned %d ids for %d files", len(ids), len(kept))
	}

	// 第二步: 追加已可见，再投递
	items := make([]worker.Item, len(kept))
	for i, f := range kept {
		items[i] = worker.Item{ID: ids[i], File: f}
	}
	if err := c.Dispatch.Post(worker.Request{Items: items}); err != nil {
		return ids, fmt.Errorf("ingest: dispatch: %w", err)
	}

	logger.Info("拖放入队",
		logger.Int("files", len(files)),
		logger.Ints("ids", ids))
	return ids, nil
}
