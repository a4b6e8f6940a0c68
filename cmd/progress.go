package cmd

import (
	"fmt"
	"io"

	"ncmc/core/store"
	"ncmc/model"
)

// progress 打印每个版本中状态发生变化的曲目
type progress struct {
	w    io.Writer
	last *store.Store
}

func (p *progress) show(rev *store.Store) {
	for _, id := range rev.Changed(p.last) {
		t := rev.Get(id)
		fmt.Fprintf(p.w, "[%3d] %-28s %s\n", t.ID, t.File.Name, describe(t))
	}
	p.last = rev
}

func describe(t *model.Track) string {
	var s string
	for _, f := range model.Fields {
		s += fmt.Sprintf("%s:%-7s ", f, t.State(f))
	}
	switch {
	case t.Error != "":
		s += "error: " + t.Error
	case t.Playable():
		s += t.Title() + " -> " + t.URL
	}
	return s
}

func settled(rev *store.Store) bool {
	for _, t := range rev.Tracks() {
		if !t.Settled() {
			return false
		}
	}
	return true
}
