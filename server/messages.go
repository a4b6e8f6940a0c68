package server

import "ncmc/model"

// 服务端 -> 页面
type tracksMessage struct {
	Type    string       `json:"type"` // tracks
	Version uint64       `json:"version"`
	Total   int          `json:"total"`
	Tracks  []model.View `json:"tracks"`
}

type playerMessage struct {
	Type   string `json:"type"`   // player
	Action string `json:"action"` // source | play
	URL    string `json:"url,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"` // error
	Message string `json:"message"`
}

// 页面 -> 服务端
type clientMessage struct {
	Type string `json:"type"` // play
	ID   int    `json:"id"`
}

type sessionResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type dropResponse struct {
	IDs     []int `json:"ids"`
	Ignored int   `json:"ignored"`
}
