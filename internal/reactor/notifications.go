package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// NotificationEvent is a core event enriched with the core's state at the
// moment it was delivered to the pipeline.
type NotificationEvent struct {
	ReactorID ReactorID `json:"reactor_id"`
	Kind      EventKind `json:"kind"`
	Tick      int64     `json:"tick"`
	Timestamp int64     `json:"timestamp"`
	Status    *Status   `json:"status,omitempty"`
}

// NewNotificationEvent builds the outbound form of e.
func NewNotificationEvent(e Event, status *Status) NotificationEvent {
	return NotificationEvent{
		ReactorID: e.ReactorID,
		Kind:      e.Kind,
		Tick:      e.Tick,
		Timestamp: time.Now().Unix(),
		Status:    status,
	}
}

// JSON returns the event as JSON bytes.
func (ne NotificationEvent) JSON() ([]byte, error) {
	return json.Marshal(ne)
}

// Notifier is a channel reactor events can be delivered to.
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the kind of notifier (e.g. "webhook", "websocket")
	Type() string

	// Notify delivers one event. The context bounds the delivery.
	Notify(ctx context.Context, event NotificationEvent) error

	Close() error
}

// NotificationConfig selects which notifiers receive which events of a reactor.
// Empty Kinds means every kind; empty Notifiers means every registered notifier.
type NotificationConfig struct {
	Enabled   bool        `json:"enabled" yaml:"enabled"`
	Notifiers []string    `json:"notifiers,omitempty" yaml:"notifiers,omitempty"`
	Kinds     []EventKind `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// Wants reports whether kind passes the filter.
func (nc NotificationConfig) Wants(kind EventKind) bool {
	if !nc.Enabled {
		return false
	}
	return len(nc.Kinds) == 0 || slices.Contains(nc.Kinds, kind)
}

type notificationJob struct {
	Event       NotificationEvent
	NotifierIDs []string
}

const (
	notificationQueueSize = 1024
	notifyMaxRetries      = 3
	notifyInitialBackoff  = 100 * time.Millisecond
	notifyJobTimeout      = 30 * time.Second
)

// NotificationManager owns the notifiers and delivers events asynchronously.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger
	dropped   func()
}

// NewNotificationManager creates a manager with one delivery worker.
func NewNotificationManager(logger Logger) *NotificationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	mgr := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, notificationQueueSize),
		logger:    logger,
	}
	mgr.startWorkers(1)
	return mgr
}

// OnDrop installs a hook called whenever a notification is dropped.
func (nm *NotificationManager) OnDrop(fn func()) {
	nm.mu.Lock()
	nm.dropped = fn
	nm.mu.Unlock()
}

// RegisterNotifier adds a notifier. IDs must be unique.
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}
	nm.notifiers[id] = notifier
	return nil
}

// UnregisterNotifier closes and removes a notifier.
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}
	return nil
}

// GetNotifier retrieves a notifier by ID.
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	notifier, exists := nm.notifiers[id]
	return notifier, exists
}

// ListNotifiers returns the registered notifier IDs, sorted.
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Enqueue queues event for the given notifiers. It never blocks: when the
// queue is full the event is dropped and logged.
func (nm *NotificationManager) Enqueue(event NotificationEvent, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("notification queue full, dropping %s event for reactor %s", event.Kind, event.ReactorID)
		if nm.dropped != nil {
			nm.dropped()
		}
	}
}

func (nm *NotificationManager) startWorkers(n int) {
	for range n {
		nm.wg.Add(1)
		go nm.worker()
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyJobTimeout)
	defer cancel()
	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Event)
	}
}

func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event NotificationEvent) {
	notifier, ok := nm.GetNotifier(notifierID)
	if !ok {
		nm.logger.Warnf("notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	backoff := notifyInitialBackoff
	for attempt := 0; attempt <= notifyMaxRetries; attempt++ {
		err := notifier.Notify(ctx, event)
		if err == nil {
			return
		}
		nm.logger.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)
		if attempt == notifyMaxRetries {
			nm.logger.Errorf("notification failed after %d attempts: notifier=%s", notifyMaxRetries+1, notifierID)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Notify delivers event synchronously to the given notifiers.
func (nm *NotificationManager) Notify(ctx context.Context, event NotificationEvent, notifierIDs []string) error {
	var errs []error
	for _, id := range notifierIDs {
		notifier, exists := nm.GetNotifier(id)
		if !exists {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s failed: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close drains the queue, stops the worker and closes every notifier.
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	defer nm.mu.Unlock()
	var errs []error
	for id, notifier := range nm.notifiers {
		if err := notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	return errors.Join(errs...)
}
