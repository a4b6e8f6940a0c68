package model

import "strings"

const (
	unknownTitle = "??? - ???"
	unknownAlbum = "???"

	// PlaceholderCover 封面缺失时显示的占位图
	PlaceholderCover = `data:image/svg+xml;utf8,<svg width="200" height="200" xmlns="http://www.w3.org/2000/svg"><path fill="%23dedede" stroke="%23555" stroke-width="2" d="M2 2h196v196H2z" /><text x="50%" y="50%" font-size="32" text-anchor="middle" fill="%23555">cover</text></svg>`
)

// Title 形如 "歌手A/歌手B - 歌名"，meta 未到达时返回占位串
func (t *Track) Title() string {
	if t.Meta == nil {
		return unknownTitle
	}
	return t.Meta.ArtistNames("/") + " - " + t.Meta.MusicName
}

// AlbumName 专辑名或占位串
func (t *Track) AlbumName() string {
	if t.Meta == nil {
		return unknownAlbum
	}
	return t.Meta.Album
}

// Cover 封面或占位图
func (t *Track) Cover() string {
	if t.Image == "" {
		return PlaceholderCover
	}
	return t.Image
}

// DownloadName 去掉容器扩展名后接上解码格式: a.ncm -> a.mp3。
// meta 未到达时沿用原始文件名。
func (t *Track) DownloadName() string {
	if t.Meta == nil || t.Meta.Format == "" {
		return t.File.Name
	}
	base := strings.TrimSuffix(t.File.Name, ContainerExt)
	return base + "." + t.Meta.Format
}

// View 提供给前端的展示模型
type View struct {
	*Track
	Title       string `json:"title"`
	AlbumTitle  string `json:"albumTitle"`
	CoverURL    string `json:"cover"`
	DownloadAs  string `json:"downloadName"`
	CanPlay     bool   `json:"canPlay"`
	CanDownload bool   `json:"canDownload"`
}

// NewView 生成展示模型
func NewView(t *Track) View {
	return View{
		Track:       t,
		Title:       t.Title(),
		AlbumTitle:  t.AlbumName(),
		CoverURL:    t.Cover(),
		DownloadAs:  t.DownloadName(),
		CanPlay:     t.Playable(),
		CanDownload: t.Playable(),
	}
}
