package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/daniacca/graphitecore/internal/reactor"
)

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid config: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "config validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// Notifier types understood by the server.
const (
	NotifierWebhook   = "webhook"
	NotifierWebSocket = "websocket"
)

var validEventKinds = map[reactor.EventKind]bool{
	reactor.EventChanged:       true,
	reactor.EventMeltedDown:    true,
	reactor.EventPipesRuptured: true,
	reactor.EventExploded:      true,
	reactor.EventTornDown:      true,
}

// Validate performs comprehensive validation of the config
func (c *Config) Validate() error {
	err := &ValidationError{}

	if perr := c.Reactor.Validate(); perr != nil {
		for _, line := range strings.Split(perr.Error(), "\n") {
			err.Add("reactor: " + line)
		}
	}
	validateCoolant(c.Coolant, "coolant", err)
	if c.Radiation.Coupling < 0 || c.Radiation.Background < 0 {
		err.Add("radiation: coupling and background must be non-negative")
	}
	if c.Scheduler.TickInterval <= 0 {
		err.Addf("scheduler: tick_interval must be positive, got %s", c.Scheduler.TickInterval)
	}
	if c.Telemetry.Every < 0 {
		err.Addf("telemetry: every must be non-negative, got %d", c.Telemetry.Every)
	}

	notifierIDs := make(map[string]bool)
	for i, nc := range c.Notifiers {
		prefix := fmt.Sprintf("notifier at index %d", i)
		if nc.ID != "" {
			prefix = "notifier '" + nc.ID + "'"
		}
		if nc.ID == "" {
			err.Add(prefix + ": id is required")
		} else if notifierIDs[nc.ID] {
			err.Add("duplicate notifier id: " + nc.ID)
		} else {
			notifierIDs[nc.ID] = true
		}
		switch nc.Type {
		case NotifierWebhook:
			if u, perr := url.Parse(nc.URL); perr != nil || u.Scheme == "" || u.Host == "" {
				err.Add(prefix + ": webhook url '" + nc.URL + "' is not absolute")
			}
		case NotifierWebSocket:
		default:
			err.Add(prefix + ": type '" + nc.Type + "' must be one of: webhook, websocket")
		}
	}

	reactorIDs := make(map[string]bool)
	for i, rc := range c.Reactors {
		prefix := fmt.Sprintf("reactor at index %d", i)
		if rc.ID != "" {
			prefix = "reactor '" + rc.ID + "'"
		}
		if rc.ID == "" {
			err.Add(prefix + ": id is required")
		} else if reactorIDs[rc.ID] {
			err.Add("duplicate reactor id: " + rc.ID)
		} else {
			reactorIDs[rc.ID] = true
		}
		c.validateReactor(rc, prefix, notifierIDs, err)
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

func (c *Config) validateReactor(rc ReactorConfig, prefix string, notifierIDs map[string]bool, err *ValidationError) {
	if rc.Coolant != nil {
		validateCoolant(*rc.Coolant, prefix+" coolant", err)
	}
	if rc.ControlRodDepth != 0 &&
		(rc.ControlRodDepth < c.Reactor.MinControlRodDepth || rc.ControlRodDepth > c.Reactor.MaxControlRodDepth) {
		err.Addf("%s: control_rod_depth %g outside [%g, %g]", prefix, rc.ControlRodDepth,
			c.Reactor.MinControlRodDepth, c.Reactor.MaxControlRodDepth)
	}
	if len(rc.Rods) > c.Reactor.SlotCount {
		err.Addf("%s: %d rods do not fit in %d slots", prefix, len(rc.Rods), c.Reactor.SlotCount)
	}

	slots := make(map[int]bool)
	rodIDs := make(map[string]bool)
	for j, rod := range rc.Rods {
		rodPrefix := fmt.Sprintf("%s rod at index %d", prefix, j)
		if rod.Kind < reactor.RodFuel || rod.Kind > reactor.RodStarter {
			err.Add(rodPrefix + ": kind must be one of: fuel, control, starter")
		}
		if rod.Kind == reactor.RodStarter && len(rc.Consoles) == 0 {
			err.Add(rodPrefix + ": starter rod needs at least one console")
		}
		if rod.Slot != nil {
			if *rod.Slot < 0 || *rod.Slot >= c.Reactor.SlotCount {
				err.Addf("%s: slot %d outside 0..%d", rodPrefix, *rod.Slot, c.Reactor.SlotCount-1)
			} else if slots[*rod.Slot] {
				err.Addf("%s: slot %d is already taken", rodPrefix, *rod.Slot)
			} else {
				slots[*rod.Slot] = true
			}
		}
		if rod.ID != "" {
			if rodIDs[rod.ID] {
				err.Add(prefix + ": duplicate rod id: " + rod.ID)
			}
			rodIDs[rod.ID] = true
		}
	}

	for _, id := range rc.Notifications.Notifiers {
		if !notifierIDs[id] {
			err.Add(prefix + ": notifier '" + id + "' does not exist")
		}
	}
	for _, kind := range rc.Notifications.Kinds {
		if !validEventKinds[kind] {
			err.Add(prefix + ": unknown event kind '" + string(kind) + "'")
		}
	}
}

func validateCoolant(cc CoolantConfig, prefix string, err *ValidationError) {
	for name, v := range map[string]float64{
		"moles":               cc.Moles,
		"molar_heat_capacity": cc.MolarHeatCapacity,
		"temperature":         cc.Temperature,
		"ambient_temperature": cc.AmbientTemperature,
	} {
		if !(v >= 0) || math.IsInf(v, 1) {
			err.Addf("%s: %s must be finite and non-negative, got %g", prefix, name, v)
		}
	}
	if !(cc.Conductance >= 0 && cc.Conductance <= 1) {
		err.Addf("%s: conductance must be within [0, 1], got %g", prefix, cc.Conductance)
	}
}
