package mathfuncs

import (
	"errors"
	"math"
	"sort"
)

// A mathematical function y=f(t,A,T). Takes amplitude, A, and period, T,
// as inputs and returns the value of the function at time, t.
type MathsFunction func(t, A, T float64) float64

// A map between string name and MathsFunction pairs. Only deterministic
// functions are registered: every source of randomness in a generated series
// must come from the emulator's seeded generator.
var mathsFunctions = map[string]MathsFunction{
	"linear":      linearRamp,
	"sine":        Sine,
	"cosine":      cosineWave,
	"exponential": exponentialRamp,
	"parabolic":   parabolicRamp,
	"step":        stepFunction,
	"square":      squareWave,
	"sawtooth":    sawtoothWave,
	"triangle":    triangleWave,
	"flat":        flat,
}

// Returns the sorted names of all registered functions.
func GetMathsFunctionNames() []string {
	names := make([]string, 0, len(mathsFunctions))
	for name := range mathsFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Returns the named function.
func GetTrendFunctionFromName(name string) (MathsFunction, error) {
	trendFunc, ok := mathsFunctions[name]
	if !ok {
		return nil, errors.New("trend function not found")
	}

	return trendFunc, nil
}

// Returns a linear ramp y=(A/T)*t where A is the magnitude of the ramp, T is
// its duration, and t is elapsed time.
func linearRamp(t, A, T float64) float64 {
	m := A / T // slope of the ramp
	return m * t
}

// Returns a sine wave y = A*sin(2π * t / PeriodDuration)
// PeriodDuration defines the cycle length in seconds.
func Sine(t, A, PeriodDuration float64) float64 {
	if PeriodDuration <= 0 {
		PeriodDuration = 86400.0 // default to 1 day
	}
	return A * math.Sin(2*math.Pi*t/PeriodDuration)
}

// Returns a cosine wave y=A*cos(2*pi*t/T) where A is the amplitude,
// T is the period, and t is elapsed time.
func cosineWave(t, A, T float64) float64 {
	return A * math.Cos(2*math.Pi*t/T)
}

// Returns an exponential ramp y=A*exp(t/T) - A where A is the amplitude,
// T is the time constant, and t is elapsed time.
func exponentialRamp(t, A, T float64) float64 {
	return A*math.Exp(t/T) - A
}

// Returns a parabolic ramp of amplitude A every period T.
func parabolicRamp(t, A, T float64) float64 {
	return A * (t / T) * (t / T)
}

// Returns a step function of amplitude A every period T.
func stepFunction(t, A, T float64) float64 {
	if math.Mod(t, T) < T/2 {
		return 0
	}
	return A
}

// Returns a square wave y=A if sin(2*pi*t/T) >= 0, else -A.
func squareWave(t, A, T float64) float64 {
	if math.Sin(2*math.Pi*t/T) >= 0 {
		return A
	}
	return -A
}

// Returns a sawtooth wave y=(2*A/pi)*atan(tan(pi*t/T)).
func sawtoothWave(t, A, T float64) float64 {
	return (2 * A / math.Pi) * math.Atan(math.Tan(math.Pi*t/T))
}

// Returns a triangle wave of period T rising from 0 to A at T/2 and back to 0 at T.
func triangleWave(t, A, T float64) float64 {
	phase := math.Mod(t, T) / T
	if phase < 0 {
		phase += 1
	}
	if phase < 0.5 {
		return 2 * A * phase
	}
	return 2 * A * (1 - phase)
}

// flat returns a constant value equal to A, independent of t and T.
func flat(_, A, _ float64) float64 {
	return A
}
