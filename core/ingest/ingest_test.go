package ingest

import (
	"errors"
	"reflect"
	"testing"

	"ncmc/core/store"
	"ncmc/core/worker"
	"ncmc/model"
)

// recorder 记录 Append 和 Post 的调用顺序
type recorder struct {
	rev     *store.Store
	calls   []string
	posts   []worker.Request
	postErr error
	// 投递时看到的记录数
	seenLen []int
}

func (r *recorder) Append(files []model.File) []int {
	r.calls = append(r.calls, "append")
	var ids []int
	r.rev, ids = r.rev.Append(files)
	return ids
}

func (r *recorder) Post(req worker.Request) error {
	r.calls = append(r.calls, "post")
	r.posts = append(r.posts, req)
	r.seenLen = append(r.seenLen, r.rev.Len())
	return r.postErr
}

func newController(r *recorder) *Controller {
	return &Controller{Store: r, Dispatch: r}
}

func names(files []model.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func dropped(ns ...string) []model.File {
	out := make([]model.File, len(ns))
	for i, n := range ns {
		out[i] = model.File{Name: n, Path: "/drop/" + n}
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"mixed case", []string{"a.ncm", "b.mp3", "c.NCM"}, []string{"a.ncm"}},
		{"all kept", []string{"x.ncm", "y.ncm"}, []string{"x.ncm", "y.ncm"}},
		{"none", []string{"song.flac", "ncm", "a.ncm.bak"}, []string{}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(Filter(dropped(tt.in...)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDropAppendsThenPostsOnce(t *testing.T) {
	r := &recorder{}
	r.rev, _ = store.New().Append(dropped("existing.ncm"))

	ids, err := newController(r).Drop(dropped("A.ncm", "notes.txt", "B.ncm"))
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{1, 2}) {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	if !reflect.DeepEqual(r.calls, []string{"append", "post"}) {
		t.Fatalf("calls = %v, want one append then one post", r.calls)
	}
	if r.seenLen[0] != 3 {
		t.Errorf("post saw %d records, want the appended revision (3)", r.seenLen[0])
	}

	items := r.posts[0].Items
	if len(items) != 2 || items[0].ID != 1 || items[0].File.Name != "A.ncm" ||
		items[1].ID != 2 || items[1].File.Name != "B.ncm" {
		t.Errorf("request items = %+v", items)
	}
}

func TestDropNothingMatching(t *testing.T) {
	r := &recorder{rev: store.New()}
	ids, err := newController(r).Drop(dropped("a.mp3", "b.NCM"))
	if err != nil || ids != nil {
		t.Fatalf("Drop = %v, %v", ids, err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("calls = %v, want none", r.calls)
	}
}

func TestDropIDsAcrossGestures(t *testing.T) {
	r := &recorder{rev: store.New()}
	c := newController(r)

	var all []int
	for _, batch := range [][]string{{"a.ncm"}, {"b.ncm", "c.ncm", "d.ncm"}, {"e.ncm"}} {
		before := r.rev.Len()
		ids, err := c.Drop(dropped(batch...))
		if err != nil {
			t.Fatal(err)
		}
		if r.rev.Len() != before+len(batch) {
			t.Fatalf("len %d -> %d for %d files", before, r.rev.Len(), len(batch))
		}
		all = append(all, ids...)
	}
	for i, id := range all {
		if id != i {
			t.Fatalf("ids = %v, want 0..4", all)
		}
		if r.rev.Get(id).File.Name != string(rune('a'+i))+".ncm" {
			t.Errorf("record %d holds %s", id, r.rev.Get(id).File.Name)
		}
	}
}

func TestDropDispatchError(t *testing.T) {
	r := &recorder{rev: store.New(), postErr: worker.ErrTerminated}
	ids, err := newController(r).Drop(dropped("a.ncm"))
	if !errors.Is(err, worker.ErrTerminated) {
		t.Fatalf("err = %v", err)
	}
	if len(ids) != 1 || r.rev.Len() != 1 {
		t.Errorf("append should stay committed: ids=%v len=%d", ids, r.rev.Len())
	}
}
