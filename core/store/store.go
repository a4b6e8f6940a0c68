// Package store 曲目记录的持久化（不可变）集合。
//
// 每次修改都返回新的 Store，未改动的记录以指针共享，
// 因此观察者可以用指针相等判断某条记录是否变化。旧版本永远不会被修改。
package store

import (
	"errors"
	"fmt"
	"time"

	"ncmc/model"
)

var (
	// ErrUnknownTrack 完成事件引用了不存在的 id
	ErrUnknownTrack = errors.New("store: unknown track id")
	// ErrFieldAlreadySet 同一 (id, 字段) 第二次写入
	ErrFieldAlreadySet = errors.New("store: field already set")
	// ErrEmptyValue 字段值为空
	ErrEmptyValue = errors.New("store: empty field value")
)

// Store 某一时刻的全部曲目
type Store struct {
	tracks  []*model.Track
	version uint64
	now     func() time.Time
}

// New 空的初始版本
func New() *Store {
	return &Store{now: time.Now}
}

// WithClock 替换时间源，测试使用
func (s *Store) WithClock(now func() time.Time) *Store {
	next := *s
	next.now = now
	return &next
}

// Len 记录数
func (s *Store) Len() int { return len(s.tracks) }

// Version 每次修改加一
func (s *Store) Version() uint64 { return s.version }

// Get 返回 id 对应的记录，越界时返回 nil
func (s *Store) Get(id int) *model.Track {
	if id < 0 || id >= len(s.tracks) {
		return nil
	}
	return s.tracks[id]
}

// Tracks 返回记录指针的副本，记录本身只读
func (s *Store) Tracks() []*model.Track {
	return append([]*model.Track(nil), s.tracks...)
}

// Append 在末尾追加占位记录，id 依次为 Len(), Len()+1, ...
func (s *Store) Append(files []model.File) (*Store, []int) {
	if len(files) == 0 {
		return s, nil
	}
	now := s.now()
	base := len(s.tracks)

	tracks := make([]*model.Track, base, base+len(files))
	copy(tracks, s.tracks)
	ids := make([]int, len(files))
	for i, f := range files {
		ids[i] = base + i
		tracks = append(tracks, model.NewTrack(base+i, f, now))
	}
	return s.derive(tracks), ids
}

// Merge 将一次 Update 合并到对应记录，返回新版本。
// 出错时返回原版本，其它记录和字段都不受影响。
func (s *Store) Merge(u Update) (*Store, error) {
	if u == nil {
		return s, fmt.Errorf("store: nil update")
	}
	id := u.trackID()
	old := s.Get(id)
	if old == nil {
		return s, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}

	t := *old
	switch v := u.(type) {
	case MetaUpdate:
		if v.Meta == nil {
			return s, fmt.Errorf("%w: meta for %d", ErrEmptyValue, id)
		}
		if err := setField(&t, model.FieldMeta); err != nil {
			return s, err
		}
		t.Meta = v.Meta
	case ImageUpdate:
		if v.Image == "" {
			return s, fmt.Errorf("%w: image for %d", ErrEmptyValue, id)
		}
		if err := setField(&t, model.FieldImage); err != nil {
			return s, err
		}
		t.Image = v.Image
	case URLUpdate:
		if v.URL == "" {
			return s, fmt.Errorf("%w: url for %d", ErrEmptyValue, id)
		}
		if err := setField(&t, model.FieldURL); err != nil {
			return s, err
		}
		t.URL = v.URL
	case FinishUpdate:
		if !failPending(&t) && v.Err == "" {
			return s, nil
		}
		if v.Err != "" {
			t.Error = v.Err
		}
	default:
		return s, fmt.Errorf("store: unsupported update %T", u)
	}
	t.UpdatedAt = s.now()
	return s.replace(id, &t), nil
}

// MergeField 按字段名合并，value 的类型必须与字段对应
func (s *Store) MergeField(id int, field model.Field, value interface{}) (*Store, error) {
	switch field {
	case model.FieldMeta:
		if m, ok := value.(*model.Meta); ok {
			return s.Merge(MetaUpdate{ID: id, Meta: m})
		}
	case model.FieldImage:
		if v, ok := value.(string); ok {
			return s.Merge(ImageUpdate{ID: id, Image: v})
		}
	case model.FieldURL:
		if v, ok := value.(string); ok {
			return s.Merge(URLUpdate{ID: id, URL: v})
		}
	default:
		return s, fmt.Errorf("store: unknown field %q", field)
	}
	return s, fmt.Errorf("store: value %T does not match field %q", value, field)
}

// ExpirePending 创建超过 timeout 仍未到达的字段标记为 failed
func (s *Store) ExpirePending(now time.Time, timeout time.Duration) (*Store, []int) {
	if timeout <= 0 {
		return s, nil
	}
	next := s
	var expired []int
	for _, old := range s.tracks {
		if old.Settled() || now.Sub(old.CreatedAt) < timeout {
			continue
		}
		t := *old
		failPending(&t)
		t.UpdatedAt = now
		next = next.replace(t.ID, &t)
		expired = append(expired, t.ID)
	}
	return next, expired
}

// Changed 返回与 prev 相比记录指针不同（含新增）的 id
func (s *Store) Changed(prev *Store) []int {
	var ids []int
	for i, t := range s.tracks {
		if prev == nil || i >= len(prev.tracks) || prev.tracks[i] != t {
			ids = append(ids, i)
		}
	}
	return ids
}

// replace 复制指针数组并替换一条记录
func (s *Store) replace(id int, t *model.Track) *Store {
	tracks := make([]*model.Track, len(s.tracks))
	copy(tracks, s.tracks)
	tracks[id] = t
	return s.derive(tracks)
}

func (s *Store) derive(tracks []*model.Track) *Store {
	return &Store{tracks: tracks, version: s.version + 1, now: s.now}
}

// setField 字段只能从缺失变为存在一次；超时后迟到的字段仍然接受
func setField(t *model.Track, f model.Field) error {
	if t.Has(f) {
		return fmt.Errorf("%w: %s of %d", ErrFieldAlreadySet, f, t.ID)
	}
	t.Status.Set(f, model.StateReady)
	return nil
}

func failPending(t *model.Track) bool {
	changed := false
	for _, f := range model.Fields {
		if t.State(f) == model.StatePending {
			t.Status.Set(f, model.StateFailed)
			changed = true
		}
	}
	return changed
}
