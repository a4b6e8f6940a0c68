package store

import (
	"ncmc/core/worker"
	"ncmc/model"
)

// Update 对单条记录的一次合并，与 worker 的完成事件一一对应
type Update interface {
	trackID() int
}

// MetaUpdate 设置 meta
type MetaUpdate struct {
	ID   int
	Meta *model.Meta
}

// ImageUpdate 设置 image
type ImageUpdate struct {
	ID    int
	Image string
}

// URLUpdate 设置 url
type URLUpdate struct {
	ID  int
	URL string
}

// FinishUpdate 解码器不会再为该记录发送字段，仍在 pending 的字段转为 failed
type FinishUpdate struct {
	ID  int
	Err string
}

func (u MetaUpdate) trackID() int   { return u.ID }
func (u ImageUpdate) trackID() int  { return u.ID }
func (u URLUpdate) trackID() int    { return u.ID }
func (u FinishUpdate) trackID() int { return u.ID }

// FromCompletion 将 worker 完成事件转换为 Update
func FromCompletion(c worker.Completion) Update {
	switch v := c.(type) {
	case worker.MetaCompletion:
		return MetaUpdate{ID: v.ID, Meta: v.Meta}
	case worker.ImageCompletion:
		return ImageUpdate{ID: v.ID, Image: v.Image}
	case worker.URLCompletion:
		return URLUpdate{ID: v.ID, URL: v.URL}
	case worker.FinishedCompletion:
		return FinishUpdate{ID: v.ID, Err: v.Err}
	}
	return nil
}
