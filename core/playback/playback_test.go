package playback

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"ncmc/model"
)

func TestCoordinatorSingleSubscriber(t *testing.T) {
	c := NewCoordinator()
	if err := c.Publish("/media/a.mp3"); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("publish without subscriber: %v", err)
	}

	sub, err := c.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Subscribe(); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("second subscribe: %v", err)
	}
	if err := c.Publish(""); !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("empty url: %v", err)
	}

	if err := c.Publish("/media/a.mp3"); err != nil {
		t.Fatal(err)
	}
	select {
	case url := <-sub.Requests():
		if url != "/media/a.mp3" {
			t.Errorf("got %q", url)
		}
	case <-time.After(time.Second):
		t.Fatal("request not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := NewCoordinator()
	sub, _ := c.Subscribe()

	// 未读取的请求在注销时丢弃
	if err := c.Publish("/media/stale.mp3"); err != nil {
		t.Fatal(err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()

	if url, ok := <-sub.Requests(); ok {
		t.Fatalf("handler received %q after unsubscribe", url)
	}
	if err := c.Publish("/media/late.mp3"); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	if c.Subscribed() {
		t.Error("still subscribed")
	}

	// 可以重新订阅
	sub2, err := c.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	defer sub2.Unsubscribe()
	// 旧句柄再次注销不影响新订阅者
	sub.Unsubscribe()
	if !c.Subscribed() {
		t.Error("old handle removed the new subscriber")
	}
}

func TestPublishBusy(t *testing.T) {
	c := NewCoordinator()
	sub, _ := c.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < requestBuffer; i++ {
		if err := c.Publish("/media/x.mp3"); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := c.Publish("/media/x.mp3"); !errors.Is(err, ErrBusy) {
		t.Fatalf("full buffer: %v", err)
	}
}

type recordingBus struct{ urls []string }

func (b *recordingBus) Publish(url string) error {
	b.urls = append(b.urls, url)
	return nil
}

func TestCardPlayRequiresURL(t *testing.T) {
	bus := &recordingBus{}
	pending := model.NewTrack(0, model.File{Name: "a.ncm"}, time.Now())

	card := Card{Track: pending, Bus: bus}
	if card.CanPlay() {
		t.Fatal("card without url reports playable")
	}
	if err := card.Play(); !errors.Is(err, ErrNotPlayable) {
		t.Fatalf("Play = %v", err)
	}
	if len(bus.urls) != 0 {
		t.Fatalf("published %v for a track without url", bus.urls)
	}

	ready := *pending
	ready.URL = "/media/a.flac"
	card.Track = &ready
	if err := card.Play(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bus.urls, []string{"/media/a.flac"}) {
		t.Fatalf("published %v", bus.urls)
	}

	if (Card{Bus: bus}).CanPlay() {
		t.Error("nil track is playable")
	}
}

type fakePlayer struct {
	steps     []string
	renderErr error
}

func (p *fakePlayer) SetSource(url string) error {
	p.steps = append(p.steps, "source "+url)
	return nil
}

func (p *fakePlayer) Rendered(ctx context.Context) error {
	p.steps = append(p.steps, "rendered")
	return p.renderErr
}

func (p *fakePlayer) Play() error {
	p.steps = append(p.steps, "play")
	return nil
}

func TestSwitchOrder(t *testing.T) {
	p := &fakePlayer{}
	if err := Switch(context.Background(), p, "/media/a.mp3"); err != nil {
		t.Fatal(err)
	}
	want := []string{"source /media/a.mp3", "rendered", "play"}
	if !reflect.DeepEqual(p.steps, want) {
		t.Fatalf("steps = %v, want %v", p.steps, want)
	}

	p = &fakePlayer{renderErr: context.DeadlineExceeded}
	if err := Switch(context.Background(), p, "/media/b.mp3"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if p.steps[len(p.steps)-1] == "play" {
		t.Error("played before the source was rendered")
	}
}
