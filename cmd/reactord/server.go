package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/logging"
	"github.com/daniacca/graphitecore/internal/metrics"
	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/daniacca/graphitecore/internal/reactor/notifiers"
	"github.com/daniacca/graphitecore/internal/store/sqlite"
	"github.com/daniacca/graphitecore/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	wsNotifierID    = "ws"
	snapshotTimeout = 5 * time.Second
)

// ServerOptions configures a Server. Store and Recorder may be nil.
type ServerOptions struct {
	Config             *config.Config
	Logger             *logging.Logger
	Store              *sqlite.Store
	Recorder           *telemetry.Recorder
	SnapshotEveryTicks int
	// SnapshotKeep bounds the stored snapshots per reactor; 0 keeps all.
	SnapshotKeep int
}

// tracked is what the server keeps beside each managed reactor.
type tracked struct {
	coolant config.CoolantConfig
	unsub   func()
}

// Server represents the HTTP server for the reactor plant
type Server struct {
	cfg           *config.Config
	manager       *reactor.Manager
	notifications *reactor.NotificationManager
	ws            *notifiers.WebSocketNotifier
	store         *sqlite.Store
	recorder      *telemetry.Recorder
	counters      *metrics.Counters
	registry      *prometheus.Registry
	logger        *logging.Logger
	snapshotEvery int
	snapshotKeep  int

	mu      sync.RWMutex
	tracked map[reactor.ReactorID]tracked
}

// NewServer creates a new server instance
func NewServer(opts ServerOptions) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Must("info")
	}

	s := &Server{
		cfg:           cfg,
		store:         opts.Store,
		recorder:      opts.Recorder,
		counters:      metrics.NewCounters(),
		registry:      prometheus.NewRegistry(),
		logger:        logger,
		snapshotEvery: opts.SnapshotEveryTicks,
		snapshotKeep:  opts.SnapshotKeep,
		tracked:       make(map[reactor.ReactorID]tracked),
	}

	s.notifications = reactor.NewNotificationManager(logger)
	s.notifications.OnDrop(s.counters.NotificationDropped)
	s.ws = notifiers.NewWebSocketNotifier(wsNotifierID)
	s.ws.SetCheckOrigin(func(*http.Request) bool { return true })
	if err := s.notifications.RegisterNotifier(s.ws); err != nil {
		return nil, err
	}

	s.manager = reactor.NewManager(reactor.ManagerOptions{
		Radiation:     cfg.NewRadiationGrid(),
		Notifications: s.notifications,
		OnTick:        s.onTick,
		Logger:        logger,
		CoreLogger: func(id reactor.ReactorID) reactor.Logger {
			return logger.With("reactor", string(id))
		},
	})

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewStateCollector(s.manager),
	)
	if err := s.counters.Register(s.registry); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	for _, nc := range cfg.Notifiers {
		if err := s.addNotifier(nc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// addNotifier registers a notifier declared in config or over HTTP.
func (s *Server) addNotifier(nc config.NotifierConfig) error {
	switch nc.Type {
	case config.NotifierWebhook:
		wh := notifiers.NewWebhookNotifier(nc.ID, nc.URL)
		for k, v := range nc.Headers {
			wh.SetHeader(k, v)
		}
		if nc.Secret != "" {
			wh.SetSecret(nc.Secret)
		}
		if err := s.notifications.RegisterNotifier(wh); err != nil {
			return err
		}
	case config.NotifierWebSocket:
		// every websocket client attaches to the shared /ws stream
		if nc.ID != wsNotifierID {
			return fmt.Errorf("websocket notifier must use id %q", wsNotifierID)
		}
		return nil
	default:
		return fmt.Errorf("unknown notifier type: %s", nc.Type)
	}
	s.logger.Infof("Notifier registered: id=%s type=%s", nc.ID, nc.Type)
	return nil
}

// createReactor builds, tracks and optionally starts a declared reactor.
func (s *Server) createReactor(rc config.ReactorConfig) (*reactor.Core, error) {
	core, err := s.cfg.BuildReactor(s.manager, rc)
	if err != nil {
		return nil, err
	}
	s.track(core, rc)
	if rc.Autostart {
		if err := s.manager.Start(core.ID(), s.cfg.Scheduler.TickInterval); err != nil {
			return nil, err
		}
	}
	return core, nil
}

// restoreReactor rebuilds a reactor from snap. rc supplies the coolant loop,
// consoles and notification routing.
func (s *Server) restoreReactor(snap reactor.Snapshot, rc config.ReactorConfig) (*reactor.Core, error) {
	opts := s.cfg.ReactorOptions(rc)
	if snap.Coolant != nil {
		opts.Fluid = nil
	}
	core, err := s.manager.Restore(snap, opts)
	if err != nil {
		return nil, err
	}
	if err := s.manager.SetNotifications(core.ID(), rc.Notifications); err != nil {
		return nil, err
	}
	s.track(core, rc)
	if rc.Autostart && !core.Destroyed() {
		if err := s.manager.Start(core.ID(), s.cfg.Scheduler.TickInterval); err != nil {
			return nil, err
		}
	}
	return core, nil
}

func (s *Server) track(core *reactor.Core, rc config.ReactorConfig) {
	unsub := core.Subscribe(reactor.ObserverFunc(s.counters.ObserveEvent))
	s.mu.Lock()
	s.tracked[core.ID()] = tracked{coolant: s.cfg.CoolantFor(rc), unsub: unsub}
	s.mu.Unlock()
}

// deleteReactor tears the reactor down and forgets it.
func (s *Server) deleteReactor(id reactor.ReactorID) error {
	if err := s.manager.Delete(id); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tracked[id]
	delete(s.tracked, id)
	s.mu.Unlock()
	if ok {
		t.unsub()
	}
	s.counters.Forget(id)
	return nil
}

// onTick runs on the scheduler goroutine after every scheduled tick.
func (s *Server) onTick(report reactor.TickReport) {
	s.counters.ObserveTick(report)
	if err := s.recorder.Record(report); err != nil {
		s.logger.Warnf("Telemetry write failed: reactor_id=%s error=%v", report.ReactorID, err)
	}
	s.exchangeHeat(report.ReactorID)

	if s.snapshotEvery > 0 && s.store != nil && report.Tick%int64(s.snapshotEvery) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if _, _, err := s.saveSnapshot(ctx, report.ReactorID); err != nil {
			s.logger.Errorf("Periodic snapshot failed: reactor_id=%s error=%v", report.ReactorID, err)
			return
		}
		if s.snapshotKeep > 0 {
			pruned, err := s.store.Prune(ctx, report.ReactorID, s.snapshotKeep)
			if err != nil {
				s.logger.Warnf("Snapshot prune failed: reactor_id=%s error=%v", report.ReactorID, err)
			} else if pruned > 0 {
				s.logger.Debugf("Snapshots pruned: reactor_id=%s removed=%d", report.ReactorID, pruned)
			}
		}
	}
}

// exchangeHeat lets the coolant loop pull the reactor's coolant toward ambient.
func (s *Server) exchangeHeat(id reactor.ReactorID) {
	s.mu.RLock()
	t, ok := s.tracked[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	core, ok := s.manager.Get(id)
	if !ok {
		return
	}
	core.WithFluid(func(fluid reactor.ThermalFluid) {
		if mix, ok := fluid.(*reactor.CoolantMix); ok {
			mix.Exchange(t.coolant.AmbientTemperature, t.coolant.Conductance)
		}
	})
}

func (s *Server) saveSnapshot(ctx context.Context, id reactor.ReactorID) (int64, reactor.Snapshot, error) {
	core, ok := s.manager.Get(id)
	if !ok {
		return 0, reactor.Snapshot{}, fmt.Errorf("%w: reactor %s", reactor.ErrNotFound, id)
	}
	snap := core.Snapshot()
	rowID, err := s.store.Save(ctx, snap)
	if err != nil {
		return 0, reactor.Snapshot{}, err
	}
	s.logger.Debugf("Snapshot saved: reactor_id=%s tick=%d row=%d", id, snap.Tick, rowID)
	return rowID, snap, nil
}

// Bootstrap creates the reactors declared in config. With restore set, a
// reactor whose latest stored snapshot is intact is rebuilt from it.
func (s *Server) Bootstrap(ctx context.Context, restore bool) error {
	for _, rc := range s.cfg.Reactors {
		if restore && s.store != nil {
			snap, err := s.store.Latest(ctx, reactor.ReactorID(rc.ID))
			if err == nil && !snap.Destroyed {
				if _, err := s.restoreReactor(snap, rc); err != nil {
					return fmt.Errorf("restore reactor %s: %w", rc.ID, err)
				}
				s.logger.Infof("Reactor restored: reactor_id=%s tick=%d", rc.ID, snap.Tick)
				continue
			}
		}
		if _, err := s.createReactor(rc); err != nil {
			return fmt.Errorf("create reactor %s: %w", rc.ID, err)
		}
		s.logger.Infof("Reactor created: reactor_id=%s rods=%d autostart=%t", rc.ID, len(rc.Rods), rc.Autostart)
	}
	return nil
}

// Close stops every schedule and the notification pipeline.
func (s *Server) Close() error {
	s.manager.Close()
	err := s.notifications.Close()
	if rerr := s.recorder.Close(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
