// Package metrics exports live reactor state and tick counters to Prometheus.
package metrics

import (
	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graphitecore"

// Source is the set of live reactors the collector reads. *reactor.Manager
// implements it.
type Source interface {
	List() []reactor.ReactorID
	Get(id reactor.ReactorID) (*reactor.Core, bool)
	Running(id reactor.ReactorID) bool
	Radiation() *reactor.RadiationGrid
}

// StateCollector reads every reactor's status at scrape time.
type StateCollector struct {
	src Source

	neutrons    *prometheus.Desc
	kFactor     *prometheus.Desc
	temperature *prometheus.Desc
	pressure    *prometheus.Desc
	depth       *prometheus.Desc
	energy      *prometheus.Desc
	tick        *prometheus.Desc
	leak        *prometheus.Desc
	running     *prometheus.Desc
	safety      *prometheus.Desc
	rods        *prometheus.Desc
}

// NewStateCollector creates a collector over src.
func NewStateCollector(src Source) *StateCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "reactor", name), help,
			append([]string{"reactor"}, labels...), nil)
	}
	return &StateCollector{
		src:         src,
		neutrons:    desc("neutrons", "Neutron population after the last tick."),
		kFactor:     desc("k_factor", "Multiplication factor for the current rod layout."),
		temperature: desc("temperature_kelvin", "Coolant temperature."),
		pressure:    desc("pressure", "Derived chamber pressure."),
		depth:       desc("control_rod_depth", "Control rod insertion depth."),
		energy:      desc("energy_released_joules", "Energy released by the last tick."),
		tick:        desc("tick", "Ticks processed."),
		leak:        desc("leak_level", "Radiation leak level published by the reactor."),
		running:     desc("running", "1 while the reactor has a live schedule."),
		safety:      desc("safety", "1 while the safety facet is set.", "facet"),
		rods:        desc("rods", "Inserted rods by kind.", "kind"),
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.neutrons, c.kFactor, c.temperature, c.pressure, c.depth,
		c.energy, c.tick, c.leak, c.running, c.safety, c.rods,
	} {
		ch <- d
	}
}

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	grid := c.src.Radiation()
	for _, id := range c.src.List() {
		core, ok := c.src.Get(id)
		if !ok {
			continue
		}
		st := core.State()
		label := string(id)
		gauge := func(d *prometheus.Desc, v float64, extra ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, append([]string{label}, extra...)...)
		}

		gauge(c.neutrons, st.Neutrons)
		gauge(c.kFactor, st.KFactor)
		gauge(c.temperature, st.Temperature)
		gauge(c.pressure, st.Pressure)
		gauge(c.depth, st.ControlRodDepth)
		gauge(c.energy, st.EnergyReleased)
		ch <- prometheus.MustNewConstMetric(c.tick, prometheus.CounterValue, float64(st.Tick), label)
		if grid != nil {
			gauge(c.leak, grid.Level(id))
		}
		gauge(c.running, boolValue(c.src.Running(id)))
		gauge(c.safety, boolValue(st.Safety.MeltedDown), "melted_down")
		gauge(c.safety, boolValue(st.Safety.PipesRuptured), "pipes_ruptured")
		gauge(c.safety, boolValue(st.Safety.Exploded), "exploded")

		counts := map[reactor.RodKind]int{}
		for _, sv := range st.Rods {
			counts[sv.Rod.Kind]++
		}
		for _, kind := range []reactor.RodKind{reactor.RodFuel, reactor.RodControl, reactor.RodStarter} {
			gauge(c.rods, float64(counts[kind]), kind.String())
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
