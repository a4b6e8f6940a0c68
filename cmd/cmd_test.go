package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ncmc/core/store"
	"ncmc/model"
)

func TestExpandArgs(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"album/01.ncm", "album/cover.jpg", "single.ncm"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := expandArgs([]string{filepath.Join(dir, "single.ncm"), filepath.Join(dir, "album")})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "single.ncm,01.ncm,cover.jpg" {
		t.Fatalf("names = %v", names)
	}
	if files[0].Size != 4 {
		t.Errorf("size = %d", files[0].Size)
	}

	if _, err := expandArgs([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("missing path accepted")
	}
}

func TestProgressPrintsChangedTracks(t *testing.T) {
	var buf bytes.Buffer
	p := &progress{w: &buf}

	rev, _ := store.New().Append([]model.File{{Name: "a.ncm"}, {Name: "b.ncm"}})
	p.show(rev)
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("first revision printed %d lines:\n%s", n, buf.String())
	}

	buf.Reset()
	next, err := rev.Merge(store.FinishUpdate{ID: 1, Err: "ncm: corrupt"})
	if err != nil {
		t.Fatal(err)
	}
	p.show(next)
	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "b.ncm") || !strings.Contains(out, "error: ncm: corrupt") {
		t.Fatalf("second revision output:\n%s", out)
	}

	if settled(next) {
		t.Error("track 0 is still pending")
	}
	done, _ := next.ExpirePending(time.Now().Add(time.Hour), time.Minute)
	if !settled(done) {
		t.Error("all tracks should be settled after expiry")
	}
}
