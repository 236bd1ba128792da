package bus

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/ksuid"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/scene"
)

func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

type recordingApplier struct {
	mu     sync.Mutex
	events []scene.EditEvent
	notify chan struct{}
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{notify: make(chan struct{}, 16)}
}

func (a *recordingApplier) ApplyRemote(_ context.Context, ev scene.EditEvent) error {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *recordingApplier) received() []scene.EditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]scene.EditEvent(nil), a.events...)
}

func testConfig() Config {
	return Config{Addr: "localhost:0", Channel: "test"}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	a := NewRedis(testConfig(), nil)
	b := NewRedis(testConfig(), nil)
	ev := scene.EditEvent{Target: "cube1", Scale: scene.Vector3{X: 2, Y: 2, Z: 2}}

	payload, err := a.encode(ev)
	if err != nil {
		t.Fatal(err)
	}

	got, foreign, err := b.decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !foreign {
		t.Error("message from another instance should be foreign")
	}
	if got != ev {
		t.Errorf("decoded %+v, want %+v", got, ev)
	}

	if _, foreign, _ := a.decode(payload); foreign {
		t.Error("own message should not be foreign")
	}
}

func TestDecode_Malformed(t *testing.T) {
	b := NewRedis(testConfig(), nil)
	for _, payload := range []string{"not json", `{"event":{"target":"x"}}`} {
		if _, _, err := b.decode([]byte(payload)); err == nil {
			t.Errorf("decode(%q) should fail", payload)
		}
	}
}

func TestReceive_SkipsOwnMessages(t *testing.T) {
	applier := newRecordingApplier()
	b := NewRedis(testConfig(), applier)

	own, _ := b.encode(scene.EditEvent{Target: "mine"})
	foreign, _ := json.Marshal(envelope{Origin: ksuid.New().String(), Event: scene.EditEvent{Target: "theirs"}})

	b.receive(context.Background(), own)
	b.receive(context.Background(), foreign)
	b.receive(context.Background(), []byte("garbage"))

	got := applier.received()
	if len(got) != 1 || got[0].Target != "theirs" {
		t.Errorf("applied %+v, want only the foreign edit", got)
	}
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	b := NewRedis(cfg, nil)

	done := make(chan struct{})
	go func() {
		b.Publish(scene.EditEvent{Target: "a"})
		b.Publish(scene.EditEvent{Target: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	if len(b.out) != 1 {
		t.Errorf("queue length = %d, want 1", len(b.out))
	}
}

func TestRedis_CrossInstance(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cfg := Config{Addr: addr, Channel: "scene-relay-test-" + ksuid.New().String()}
	appliedA := newRecordingApplier()
	appliedB := newRecordingApplier()
	a := NewRedis(cfg, appliedA)
	b := NewRedis(cfg, appliedB)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Serve(ctx) }()
	go func() { _ = b.Serve(ctx) }()

	// Give both subscriptions time to register.
	time.Sleep(200 * time.Millisecond)

	a.Publish(scene.EditEvent{Target: "cube1"})

	select {
	case <-appliedB.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("instance B did not receive the edit")
	}
	if got := appliedB.received(); len(got) != 1 || got[0].Target != "cube1" {
		t.Errorf("B applied %+v", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := appliedA.received(); len(got) != 0 {
		t.Errorf("publisher applied its own edit: %+v", got)
	}
}
