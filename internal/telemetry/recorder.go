// Package telemetry records per-tick reactor reports as CSV and summarizes
// windows of them.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/gocarina/gocsv"
)

// Row is one tick of one reactor.
type Row struct {
	ReactorID     string  `csv:"reactor"`
	Tick          int64   `csv:"tick"`
	Spontaneous   bool    `csv:"spontaneous"`
	Absorption    float64 `csv:"absorption"`
	KFactor       float64 `csv:"k_factor"`
	NeutronsAfter float64 `csv:"neutrons_after"`
	LeakLevel     float64 `csv:"leak_level"`
	FuelRods      int     `csv:"fuel_rods"`
	Energy        float64 `csv:"energy"`
	Temperature   float64 `csv:"temperature"`
	Pressure      float64 `csv:"pressure"`
	BoiledOff     float64 `csv:"boiled_off"`
	Neutrons      float64 `csv:"neutrons"`
	Phase         string  `csv:"phase"`
	MeltedDown    bool    `csv:"melted_down"`
	PipesRuptured bool    `csv:"pipes_ruptured"`
	Exploded      bool    `csv:"exploded"`
	EnergyFaulted bool    `csv:"energy_faulted"`
}

// RowFromReport flattens a tick report.
func RowFromReport(r reactor.TickReport) Row {
	return Row{
		ReactorID:     string(r.ReactorID),
		Tick:          r.Tick,
		Spontaneous:   r.Kinetics.Spontaneous,
		Absorption:    r.Kinetics.AbsorptionProbability,
		KFactor:       r.Kinetics.KFactor,
		NeutronsAfter: r.Kinetics.NeutronsAfter,
		LeakLevel:     r.Kinetics.LeakLevel,
		FuelRods:      r.Fission.FuelRods,
		Energy:        r.Fission.Energy,
		Temperature:   r.Thermal.Temperature,
		Pressure:      r.Thermal.Pressure,
		BoiledOff:     r.Thermal.BoiledOff,
		Neutrons:      r.Neutrons,
		Phase:         string(r.Safety.Phase()),
		MeltedDown:    r.Safety.MeltedDown,
		PipesRuptured: r.Safety.PipesRuptured,
		Exploded:      r.Safety.Exploded,
		EnergyFaulted: r.EnergyFaulted,
	}
}

// Recorder appends rows to a CSV stream. Only every Nth tick of a reactor is
// written; the header goes out with the first row. It is safe for use from
// several scheduler goroutines.
type Recorder struct {
	mu            sync.Mutex
	w             io.Writer
	file          *os.File
	every         int64
	headerWritten bool
	rows          int
}

// NewRecorder writes to w. every below 1 records every tick.
func NewRecorder(w io.Writer, every int) *Recorder {
	if every < 1 {
		every = 1
	}
	return &Recorder{w: w, every: int64(every)}
}

// Create opens path for writing, creating its directory. Returns nil if path
// is empty (telemetry disabled); a nil Recorder accepts and drops rows.
func Create(path string, every int) (*Recorder, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	rec := NewRecorder(f, every)
	rec.file = f
	return rec, nil
}

// Record writes the report if its tick is due. Skipped reports are ignored.
func (r *Recorder) Record(report reactor.TickReport) error {
	if r == nil || report.Skipped || report.Tick%r.every != 0 {
		return nil
	}
	return r.Write(RowFromReport(report))
}

// Write appends one row.
func (r *Recorder) Write(row Row) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []Row{row}
	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, r.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
	}
	r.rows++
	return nil
}

// Rows returns how many rows were written.
func (r *Recorder) Rows() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close closes the file opened by Create.
func (r *Recorder) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// ReadRows parses telemetry CSV back into rows.
func ReadRows(rd io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(rd, &rows); err != nil {
		return nil, fmt.Errorf("reading telemetry: %w", err)
	}
	return rows, nil
}
