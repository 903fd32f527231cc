package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockNotifier is a test implementation of Notifier
type mockNotifier struct {
	id          string
	notifyFunc  func(context.Context, NotificationEvent) error
	closeFunc   func() error
	notifyCount int
	mu          sync.Mutex
}

func (m *mockNotifier) ID() string   { return m.id }
func (m *mockNotifier) Type() string { return "mock" }
func (m *mockNotifier) Notify(ctx context.Context, event NotificationEvent) error {
	m.mu.Lock()
	m.notifyCount++
	m.mu.Unlock()
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, event)
	}
	return nil
}
func (m *mockNotifier) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockNotifier) getNotifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifyCount
}

func testEvent(kind EventKind) NotificationEvent {
	return NewNotificationEvent(Event{ReactorID: "r1", Tick: 3, Kind: kind}, nil)
}

func TestNotificationManager_RegisterUnregister(t *testing.T) {
	nm := NewNotificationManager(nil)
	defer nm.Close()

	if err := nm.RegisterNotifier(nil); err == nil {
		t.Error("Expected error for nil notifier")
	}
	if err := nm.RegisterNotifier(&mockNotifier{}); err == nil {
		t.Error("Expected error for empty notifier ID")
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: "b"}); err != nil {
		t.Fatalf("RegisterNotifier: %v", err)
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: "a"}); err != nil {
		t.Fatalf("RegisterNotifier: %v", err)
	}
	if err := nm.RegisterNotifier(&mockNotifier{id: "a"}); err == nil {
		t.Error("Expected error for duplicate ID")
	}

	ids := nm.ListNotifiers()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListNotifiers = %v, want [a b]", ids)
	}

	closed := false
	nm.RegisterNotifier(&mockNotifier{id: "c", closeFunc: func() error { closed = true; return nil }})
	if err := nm.UnregisterNotifier("c"); err != nil {
		t.Fatalf("UnregisterNotifier: %v", err)
	}
	if !closed {
		t.Error("Expected unregister to close the notifier")
	}
	if err := nm.UnregisterNotifier("c"); err == nil {
		t.Error("Expected error for unknown notifier")
	}
}

func TestNotificationManager_EnqueueDelivers(t *testing.T) {
	nm := NewNotificationManager(nil)
	defer nm.Close()

	received := make(chan NotificationEvent, 1)
	nm.RegisterNotifier(&mockNotifier{id: "m", notifyFunc: func(_ context.Context, e NotificationEvent) error {
		received <- e
		return nil
	}})

	nm.Enqueue(testEvent(EventExploded), []string{"m"})
	select {
	case e := <-received:
		if e.Kind != EventExploded || e.ReactorID != "r1" || e.Tick != 3 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestNotificationManager_RetriesWithBackoff(t *testing.T) {
	nm := NewNotificationManager(nil)
	defer nm.Close()

	mock := &mockNotifier{id: "flaky"}
	mock.notifyFunc = func(context.Context, NotificationEvent) error {
		if mock.getNotifyCount() < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}
	nm.RegisterNotifier(mock)
	nm.Enqueue(testEvent(EventChanged), []string{"flaky"})

	waitFor(t, 2*time.Second, func() bool { return mock.getNotifyCount() == 3 })
	time.Sleep(50 * time.Millisecond)
	if got := mock.getNotifyCount(); got != 3 {
		t.Errorf("Expected delivery to stop after success, got %d attempts", got)
	}
}

func TestNotificationManager_DropsWhenFull(t *testing.T) {
	nm := NewNotificationManager(nil)

	block := make(chan struct{})
	nm.RegisterNotifier(&mockNotifier{id: "slow", notifyFunc: func(context.Context, NotificationEvent) error {
		<-block
		return nil
	}})
	var dropped int
	var mu sync.Mutex
	nm.OnDrop(func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	})

	// the worker holds one job, the queue holds the rest
	for i := 0; i < notificationQueueSize+10; i++ {
		nm.Enqueue(testEvent(EventChanged), []string{"slow"})
	}
	mu.Lock()
	if dropped < 9 {
		t.Errorf("Expected at least 9 dropped notifications, got %d", dropped)
	}
	mu.Unlock()

	close(block)
	if err := nm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	nm.Enqueue(testEvent(EventChanged), []string{"slow"})
}

func TestNotificationManager_NotifySync(t *testing.T) {
	nm := NewNotificationManager(nil)
	defer nm.Close()
	nm.RegisterNotifier(&mockNotifier{id: "ok"})
	nm.RegisterNotifier(&mockNotifier{id: "bad", notifyFunc: func(context.Context, NotificationEvent) error {
		return errors.New("boom")
	}})

	if err := nm.Notify(context.Background(), testEvent(EventChanged), []string{"ok"}); err != nil {
		t.Errorf("Notify: %v", err)
	}
	if err := nm.Notify(context.Background(), testEvent(EventChanged), []string{"ok", "bad", "missing"}); err == nil {
		t.Error("Expected aggregated error")
	}
}

func TestNotificationManager_CloseClosesNotifiers(t *testing.T) {
	nm := NewNotificationManager(nil)
	closed := 0
	for _, id := range []string{"a", "b"} {
		nm.RegisterNotifier(&mockNotifier{id: id, closeFunc: func() error { closed++; return nil }})
	}
	if err := nm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed != 2 {
		t.Errorf("Expected 2 notifiers closed, got %d", closed)
	}
	if err := nm.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if len(nm.ListNotifiers()) != 0 {
		t.Error("Expected no notifiers after Close")
	}
}

func TestNotificationConfig_Wants(t *testing.T) {
	tests := []struct {
		name string
		cfg  NotificationConfig
		kind EventKind
		want bool
	}{
		{"disabled", NotificationConfig{}, EventChanged, false},
		{"all kinds", NotificationConfig{Enabled: true}, EventExploded, true},
		{"filtered in", NotificationConfig{Enabled: true, Kinds: []EventKind{EventExploded}}, EventExploded, true},
		{"filtered out", NotificationConfig{Enabled: true, Kinds: []EventKind{EventExploded}}, EventChanged, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Wants(tt.kind); got != tt.want {
				t.Errorf("Wants(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestNotificationEvent_JSON(t *testing.T) {
	st := &Status{ID: "r1", Phase: PhaseMeltedDown}
	data, err := NewNotificationEvent(Event{ReactorID: "r1", Tick: 9, Kind: EventMeltedDown}, st).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["kind"] != "melted_down" || decoded["reactor_id"] != "r1" {
		t.Errorf("unexpected payload %s", data)
	}
	status, ok := decoded["status"].(map[string]any)
	if !ok || status["phase"] != "melted_down" {
		t.Errorf("Expected embedded status, got %s", data)
	}
}
