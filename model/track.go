package model

import "time"

// ContainerExt 可识别的容器扩展名，大小写敏感
const ContainerExt = ".ncm"

// Field 标识一次解码完成事件所填充的字段
type Field string

const (
	FieldMeta  Field = "meta"
	FieldImage Field = "image"
	FieldURL   Field = "url"
)

// Fields 按固定顺序列出全部可填充字段
var Fields = []Field{FieldMeta, FieldImage, FieldURL}

// FieldState 单个字段的完成状态
type FieldState string

const (
	StatePending FieldState = "pending"
	StateReady   FieldState = "ready"
	StateFailed  FieldState = "failed"
)

// File 拖入的原始容器文件引用。
// Path 指向本地可读副本，Name 保留用户看到的原始文件名。
type File struct {
	Name string `json:"name"`
	Path string `json:"-"`
	Size int64  `json:"size"`
}

// Status 记录 meta/image/url 三个字段各自的状态
type Status struct {
	Meta  FieldState `json:"meta"`
	Image FieldState `json:"image"`
	URL   FieldState `json:"url"`
}

// Track 一条曲目记录，创建时只有 File，随后由解码完成事件逐步填充。
// 发布到 Store 之后的 Track 视为只读，修改必须通过复制。
type Track struct {
	ID        int       `json:"id"`
	File      File      `json:"file"`
	Meta      *Meta     `json:"meta,omitempty"`
	Image     string    `json:"image,omitempty"` // data URI
	URL       string    `json:"url,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"` // 解码器报告的失败原因
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTrack 创建占位记录，三个字段都处于 pending
func NewTrack(id int, file File, now time.Time) *Track {
	return &Track{
		ID:   id,
		File: file,
		Status: Status{
			Meta:  StatePending,
			Image: StatePending,
			URL:   StatePending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Has 判断字段是否已经到达
func (t *Track) Has(f Field) bool {
	switch f {
	case FieldMeta:
		return t.Meta != nil
	case FieldImage:
		return t.Image != ""
	case FieldURL:
		return t.URL != ""
	}
	return false
}

// State 返回字段状态
func (t *Track) State(f Field) FieldState {
	switch f {
	case FieldMeta:
		return t.Status.Meta
	case FieldImage:
		return t.Status.Image
	case FieldURL:
		return t.Status.URL
	}
	return ""
}

// Set 仅用于 Store 内部对副本的修改
func (s *Status) Set(f Field, st FieldState) {
	switch f {
	case FieldMeta:
		s.Meta = st
	case FieldImage:
		s.Image = st
	case FieldURL:
		s.URL = st
	}
}

// Settled 所有字段都已 ready 或 failed
func (t *Track) Settled() bool {
	for _, f := range Fields {
		if t.State(f) == StatePending {
			return false
		}
	}
	return true
}

// Playable 只有拿到 url 的曲目才能播放
func (t *Track) Playable() bool {
	return t.URL != ""
}
