package evbattery

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/synaptecltd/evbattery/anomaly"
	"github.com/synaptecltd/evbattery/telemetry"
	"go.uber.org/zap"
)

var (
	ErrInvalidRows           = errors.New("row count must be greater than 0")
	ErrInvalidSamplingPeriod = errors.New("sampling period must be greater than 0")
	ErrInvalidCells          = errors.New("series cell count must be greater than 0")
)

// Emulator encapsulates the emulation of battery pack telemetry: pack voltage,
// pack current, pack temperature and the extremal cell voltages, followed by
// fault injection.
type Emulator struct {
	Ts float64 // sampling period in seconds

	V     *SignalEmulation // pack voltage
	I     *SignalEmulation // pack current
	T     *SignalEmulation // pack temperature
	Cells *CellEmulation

	Faults anomaly.Container

	logger *zap.Logger
	r      *rand.Rand
}

// NewEmulator returns an emulator with the default pack model and fault profile.
// All randomness, for base signals and faults alike, is drawn from a single
// generator seeded with seed.
func NewEmulator(seed int64) *Emulator {
	return &Emulator{
		Ts: 1.0,
		V: &SignalEmulation{
			Mean:      360,
			Amplitude: 5,
			Period:    2 * math.Pi * 60,
			NoiseStd:  0.8,
		},
		I: &SignalEmulation{
			Amplitude: 50,
			Period:    2 * math.Pi * 30,
			NoiseStd:  5,
		},
		T: &SignalEmulation{
			Mean:      30,
			Amplitude: 3,
			Period:    2 * math.Pi * 120,
			NoiseStd:  0.5,
		},
		Cells: &CellEmulation{
			SeriesCells: 100,
			SpreadMean:  0.03,
			SpreadStd:   0.01,
			SpreadMin:   0.01,
			SpreadMax:   0.08,
		},
		Faults: anomaly.DefaultProfile(),
		logger: zap.NewNop(),
		r:      rand.New(rand.NewPCG(uint64(seed), 0)),
	}
}

// Generate returns rows samples of telemetry with the default faults injected.
// The result depends only on rows and seed.
func Generate(rows int, seed int64) (*telemetry.Series, error) {
	return NewEmulator(seed).Run(rows)
}

// SetLogger sets the logger used to report injected fault episodes.
func (e *Emulator) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
}

// Run generates a series of the given length. Each call continues the
// emulator's random stream, so only the first call on a new emulator is
// reproducible from the seed alone.
func (e *Emulator) Run(rows int) (*telemetry.Series, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRows, rows)
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	series := telemetry.NewSeries(rows)
	for i := range rows {
		e.step(series, i)
	}

	episodes := e.Faults.InjectAll(series, e.r)
	for _, ep := range episodes {
		e.logger.Debug("fault episode injected",
			zap.String("fault_id", ep.FaultID.String()),
			zap.String("type", ep.Type),
			zap.Int("start", ep.Start),
			zap.Int("end", ep.End),
		)
	}
	e.logger.Info("telemetry generated",
		zap.Int("rows", rows),
		zap.Int("faults", len(e.Faults)),
		zap.Int("episodes", len(episodes)),
	)

	return series, nil
}

func (e *Emulator) init() error {
	if !(e.Ts > 0) {
		return ErrInvalidSamplingPeriod
	}
	if e.Cells == nil || e.Cells.SeriesCells <= 0 {
		return ErrInvalidCells
	}
	for name, s := range map[string]*SignalEmulation{"voltage": e.V, "current": e.I, "temperature": e.T} {
		if s == nil {
			return fmt.Errorf("%s emulation is not set", name)
		}
		if err := s.init(); err != nil {
			return fmt.Errorf("%s emulation: %w", name, err)
		}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return nil
}

// step performs one iteration of the telemetry generation, writing row i.
func (e *Emulator) step(series *telemetry.Series, i int) {
	t := float64(i) * e.Ts

	series.TimeS[i] = t
	series.PackVoltage[i] = e.V.step(e.r, t)
	series.PackCurrent[i] = e.I.step(e.r, t)
	series.PackTemp[i] = e.T.step(e.r, t)
	series.CellVMin[i], series.CellVMax[i] = e.Cells.step(e.r, series.PackVoltage[i])
}
