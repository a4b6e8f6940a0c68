package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"ncmc/model"
)

// Item 请求中的一项，ID 由 Ingestion 在同一次拖放中分配
type Item struct {
	ID   int        `json:"id"`
	File model.File `json:"file"`
}

// Request 一次拖放对应一个请求，只包含新加入的文件
type Request struct {
	Items []Item `json:"items"`
}

// Completion 解码完成事件。每个 (id, 类型) 最多出现一次，不保证顺序。
type Completion interface {
	TrackID() int
	Type() MessageType
}

// MetaCompletion 元数据到达
type MetaCompletion struct {
	ID   int
	Meta *model.Meta
}

// ImageCompletion 封面到达，Image 为 data URI
type ImageCompletion struct {
	ID    int
	Image string
}

// URLCompletion 可播放地址到达
type URLCompletion struct {
	ID  int
	URL string
}

// FinishedCompletion 该项已处理完毕，之后不会再有它的事件。
// Err 非空表示解码失败，仍未到达的字段不会再到达。
type FinishedCompletion struct {
	ID  int
	Err string
}

func (c MetaCompletion) TrackID() int     { return c.ID }
func (c ImageCompletion) TrackID() int    { return c.ID }
func (c URLCompletion) TrackID() int      { return c.ID }
func (c FinishedCompletion) TrackID() int { return c.ID }

func (MetaCompletion) Type() MessageType     { return TypeMeta }
func (ImageCompletion) Type() MessageType    { return TypeImage }
func (URLCompletion) Type() MessageType      { return TypeURL }
func (FinishedCompletion) Type() MessageType { return TypeFinished }

// MessageType 消息类型
type MessageType string

const (
	TypeMeta     MessageType = "meta"
	TypeImage    MessageType = "image"
	TypeURL      MessageType = "url"
	TypeFinished MessageType = "finished"
)

// ErrUnknownType 未知的消息类型
var ErrUnknownType = errors.New("worker: unknown message type")

// Message 完成事件的线上格式: {id, type, data}
type Message struct {
	ID   int             `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

type finishedData struct {
	Error string `json:"error,omitempty"`
}

// Encode 完成事件 -> 线上格式
func Encode(c Completion) (Message, error) {
	var payload interface{}
	switch v := c.(type) {
	case MetaCompletion:
		payload = v.Meta
	case ImageCompletion:
		payload = v.Image
	case URLCompletion:
		payload = v.URL
	case FinishedCompletion:
		payload = finishedData{Error: v.Err}
	default:
		return Message{}, fmt.Errorf("%w: %T", ErrUnknownType, c)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", c.Type(), err)
	}
	return Message{ID: c.TrackID(), Type: c.Type(), Data: data}, nil
}

// Decode 线上格式 -> 完成事件
func Decode(m Message) (Completion, error) {
	switch m.Type {
	case TypeMeta:
		var meta model.Meta
		if err := json.Unmarshal(m.Data, &meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		return MetaCompletion{ID: m.ID, Meta: &meta}, nil
	case TypeImage:
		var s string
		if err := json.Unmarshal(m.Data, &s); err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return ImageCompletion{ID: m.ID, Image: s}, nil
	case TypeURL:
		var s string
		if err := json.Unmarshal(m.Data, &s); err != nil {
			return nil, fmt.Errorf("decode url: %w", err)
		}
		return URLCompletion{ID: m.ID, URL: s}, nil
	case TypeFinished:
		var f finishedData
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &f); err != nil {
				return nil, fmt.Errorf("decode finished: %w", err)
			}
		}
		return FinishedCompletion{ID: m.ID, Err: f.Error}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
}
