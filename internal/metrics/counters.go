package metrics

import (
	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/prometheus/client_golang/prometheus"
)

// Counters accumulate per-tick and per-event totals. ObserveTick is meant
// for the manager's OnTick hook and ObserveEvent for core observers.
type Counters struct {
	ticks         *prometheus.CounterVec
	spontaneous   *prometheus.CounterVec
	faults        *prometheus.CounterVec
	events        *prometheus.CounterVec
	boiledOff     *prometheus.CounterVec
	notifyDropped prometheus.Counter
}

// NewCounters creates the counters; register them with Register.
func NewCounters() *Counters {
	return &Counters{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Ticks processed.",
		}, []string{"reactor"}),
		spontaneous: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "spontaneous_neutrons_total",
			Help: "Ticks with a spontaneous neutron.",
		}, []string{"reactor"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "energy_faults_total",
			Help: "Ticks whose released energy was not finite and was clamped to 0.",
		}, []string{"reactor"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Reactor events by kind.",
		}, []string{"reactor", "kind"}),
		boiledOff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "coolant_boiled_off_moles_total",
			Help: "Coolant vented while the pipes were ruptured.",
		}, []string{"reactor"}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_dropped_total",
			Help: "Notification jobs dropped because the queue was full.",
		}),
	}
}

// Register registers every counter with reg.
func (c *Counters) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.ticks, c.spontaneous, c.faults, c.events, c.boiledOff, c.notifyDropped} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ObserveTick counts one report.
func (c *Counters) ObserveTick(r reactor.TickReport) {
	if r.Skipped {
		return
	}
	id := string(r.ReactorID)
	c.ticks.WithLabelValues(id).Inc()
	if r.Kinetics.Spontaneous {
		c.spontaneous.WithLabelValues(id).Inc()
	}
	if r.EnergyFaulted {
		c.faults.WithLabelValues(id).Inc()
	}
	if r.Thermal.BoiledOff > 0 {
		c.boiledOff.WithLabelValues(id).Add(r.Thermal.BoiledOff)
	}
}

// ObserveEvent counts one core event.
func (c *Counters) ObserveEvent(e reactor.Event) {
	c.events.WithLabelValues(string(e.ReactorID), string(e.Kind)).Inc()
}

// NotificationDropped counts one dropped notification job.
func (c *Counters) NotificationDropped() {
	c.notifyDropped.Inc()
}

// Forget drops the series of a deleted reactor.
func (c *Counters) Forget(id reactor.ReactorID) {
	match := prometheus.Labels{"reactor": string(id)}
	c.ticks.DeletePartialMatch(match)
	c.spontaneous.DeletePartialMatch(match)
	c.faults.DeletePartialMatch(match)
	c.events.DeletePartialMatch(match)
	c.boiledOff.DeletePartialMatch(match)
}
