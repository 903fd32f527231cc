package reactor

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Radiation is shared by every core the manager creates, so their leaks
	// feed each other. Nil creates an uncoupled grid.
	Radiation *RadiationGrid

	// Notifications receives events of cores with notifications enabled.
	Notifications *NotificationManager

	// Demolisher receives explosions and destroy requests after the manager
	// handled them. May be nil.
	Demolisher Demolisher

	// OnTick receives every scheduled, non-skipped report.
	OnTick func(TickReport)

	Logger Logger

	// CoreLogger, when set, builds the logger of each core created without one.
	CoreLogger func(ReactorID) Logger
}

type managedCore struct {
	core   *Core
	handle *Handle
	notify NotificationConfig
	unsub  func()
}

// Manager keeps the live cores of one process, keyed by ReactorID.
type Manager struct {
	mu        sync.RWMutex
	cores     map[ReactorID]*managedCore
	scheduler *Scheduler
	radiation *RadiationGrid
	notifier  *NotificationManager
	next      Demolisher
	logger    Logger
	coreLog   func(ReactorID) Logger
}

// NewManager creates an empty manager with its own scheduler.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	grid := opts.Radiation
	if grid == nil {
		grid = NewRadiationGrid(0, 0)
	}
	next := opts.Demolisher
	if next == nil {
		next = noDemolisher{}
	}
	return &Manager{
		cores:     make(map[ReactorID]*managedCore),
		scheduler: NewScheduler(logger, opts.OnTick),
		radiation: grid,
		notifier:  opts.Notifications,
		next:      next,
		logger:    logger,
		coreLog:   opts.CoreLogger,
	}
}

// Radiation returns the shared radiation grid.
func (m *Manager) Radiation() *RadiationGrid {
	return m.radiation
}

// Create builds a core with opts and registers it. The manager installs
// itself as the demolisher and the shared grid as the radiation field.
func (m *Manager) Create(opts Options) (*Core, error) {
	return m.adopt(opts.ID, func() (*Core, error) {
		return NewCore(m.wire(opts))
	})
}

// Restore rebuilds a core from snap and registers it.
func (m *Manager) Restore(snap Snapshot, opts Options) (*Core, error) {
	opts.ID = snap.ReactorID
	return m.adopt(snap.ReactorID, func() (*Core, error) {
		return Restore(snap, m.wire(opts))
	})
}

func (m *Manager) wire(opts Options) Options {
	opts.Radiation = m.radiation
	opts.Demolisher = managerDemolisher{m: m}
	if opts.Logger == nil && m.coreLog != nil {
		opts.Logger = m.coreLog(opts.ID)
	}
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	return opts
}

func (m *Manager) adopt(id ReactorID, build func() (*Core, error)) (*Core, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cores[id]; exists {
		return nil, fmt.Errorf("%w: reactor with id %s already exists", ErrInvalidOperation, id)
	}
	core, err := build()
	if err != nil {
		return nil, err
	}
	mc := &managedCore{core: core}
	mc.unsub = core.Subscribe(ObserverFunc(func(e Event) { m.forward(e) }))
	m.cores[id] = mc
	m.logger.Infof("reactor %s created", id)
	return core, nil
}

// Get retrieves a core by ID.
func (m *Manager) Get(id ReactorID) (*Core, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.cores[id]
	if !ok {
		return nil, false
	}
	return mc.core, true
}

// List returns every registered ID, sorted.
func (m *Manager) List() []ReactorID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]ReactorID, 0, len(m.cores))
	for id := range m.cores {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Start schedules the core every period. A running core is rescheduled.
func (m *Manager) Start(id ReactorID, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("%w: tick period must be positive", ErrInvalidOperation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.cores[id]
	if !ok {
		return fmt.Errorf("%w: reactor %s", ErrNotFound, id)
	}
	if mc.core.Destroyed() {
		return fmt.Errorf("%w: reactor %s is destroyed", ErrInvalidOperation, id)
	}
	mc.handle.Release()
	mc.handle = m.scheduler.Register(mc.core, period)
	m.logger.Infof("reactor %s running every %s", id, period)
	return nil
}

// Stop releases the core's schedule. Stopping an idle core is a no-op.
func (m *Manager) Stop(id ReactorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.cores[id]
	if !ok {
		return fmt.Errorf("%w: reactor %s", ErrNotFound, id)
	}
	mc.handle.Release()
	mc.handle = nil
	return nil
}

// Running reports whether the core has a live schedule.
func (m *Manager) Running(id ReactorID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.cores[id]
	return ok && mc.handle != nil
}

// SetNotifications replaces the core's notification routing.
func (m *Manager) SetNotifications(id ReactorID, cfg NotificationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.cores[id]
	if !ok {
		return fmt.Errorf("%w: reactor %s", ErrNotFound, id)
	}
	mc.notify = cfg
	return nil
}

// Delete stops, tears down and forgets the core.
func (m *Manager) Delete(id ReactorID) error {
	m.mu.Lock()
	mc, ok := m.cores[id]
	if ok {
		mc.handle.Release()
		mc.handle = nil
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: reactor %s", ErrNotFound, id)
	}

	// torn_down still reaches the notifiers before the core is forgotten
	mc.core.Teardown()
	m.mu.Lock()
	delete(m.cores, id)
	m.mu.Unlock()
	mc.unsub()
	m.radiation.Remove(id)
	m.logger.Infof("reactor %s deleted", id)
	return nil
}

// Close stops every schedule and waits for in-flight ticks. Cores stay registered.
func (m *Manager) Close() {
	m.scheduler.Close()
	m.mu.Lock()
	for _, mc := range m.cores {
		mc.handle = nil
	}
	m.mu.Unlock()
}

// destroy handles a core's own destroy request: the schedule goes first so
// no tick runs against a half torn-down core.
func (m *Manager) destroy(id ReactorID) {
	m.mu.Lock()
	mc, ok := m.cores[id]
	if ok {
		mc.handle.Release()
		mc.handle = nil
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	mc.core.Teardown()
	m.logger.Warnf("reactor %s destroyed", id)
}

func (m *Manager) forward(e Event) {
	if m.notifier == nil {
		return
	}
	m.mu.RLock()
	mc, ok := m.cores[e.ReactorID]
	var cfg NotificationConfig
	if ok {
		cfg = mc.notify
	}
	m.mu.RUnlock()
	if !ok || !cfg.Wants(e.Kind) {
		return
	}

	ids := cfg.Notifiers
	if len(ids) == 0 {
		ids = m.notifier.ListNotifiers()
	}
	status := mc.core.State()
	m.notifier.Enqueue(NewNotificationEvent(e, &status), ids)
}

type managerDemolisher struct {
	m *Manager
}

func (d managerDemolisher) Explode(at Position, yield float64) {
	d.m.logger.Errorf("explosion at (%d,%d,%d) with yield %.0f", at.X, at.Y, at.Z, yield)
	d.m.next.Explode(at, yield)
}

func (d managerDemolisher) Destroy(id ReactorID) {
	d.m.destroy(id)
	d.m.next.Destroy(id)
}
