package rules_test

import (
	"math"
	"testing"

	"github.com/synaptecltd/evbattery"
	"github.com/synaptecltd/evbattery/anomaly"
	"github.com/synaptecltd/evbattery/rules"
	"github.com/synaptecltd/evbattery/telemetry"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func constantSeries(rows int) *telemetry.Series {
	s := telemetry.NewSeries(rows)
	for i := range rows {
		s.TimeS[i] = float64(i)
		s.PackVoltage[i] = 360
		s.PackCurrent[i] = 0
		s.PackTemp[i] = 25
		s.CellVMin[i] = 3.59
		s.CellVMax[i] = 3.61
	}
	return s
}

func TestEvaluate_SingleRules(t *testing.T) {
	type testcase struct {
		name   string
		modify func(s *telemetry.Series)
		rule   string
	}

	testcases := []testcase{
		{
			name: "temperature above limit",
			modify: func(s *telemetry.Series) {
				for i := range s.PackTemp {
					s.PackTemp[i] = 55.1
				}
			},
			rule: rules.TempHigh,
		},
		{
			name:   "negative current magnitude",
			modify: func(s *telemetry.Series) { s.PackCurrent[3] = -160.5 },
			rule:   rules.OverCurrent,
		},
		{
			name:   "cell spread",
			modify: func(s *telemetry.Series) { s.CellVMin[3] = 3.30 },
			rule:   rules.VImbalance,
		},
		{
			name:   "temperature rise",
			modify: func(s *telemetry.Series) { s.PackTemp[3] = 25.7 },
			rule:   rules.FastTempRise,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			s := constantSeries(8)
			tc.modify(s)
			f := rules.Evaluate(s, rules.DefaultThresholds())

			for _, name := range rules.Names {
				flags := f.Column(name)
				assert.Assert(t, is.Len(flags, 8))
				if name != tc.rule {
					assert.Equal(t, f.Count(name), 0, name)
				}
			}
			assert.Assert(t, f.Column(tc.rule)[3])
			assert.Assert(t, f.Any[3])
			assert.Equal(t, f.Count(rules.Any), f.Count(tc.rule))
		})
	}
}

func TestEvaluate_LimitsAreStrict(t *testing.T) {
	s := constantSeries(3)
	s.PackTemp[1] = 55
	s.PackCurrent[1] = 160
	s.CellVMin[1] = 3.0
	s.CellVMax[1] = 3.25

	th := rules.DefaultThresholds()
	th.MaxDTRiseC = 100
	f := rules.Evaluate(s, th)
	assert.Equal(t, f.Count(rules.TempHigh), 0)
	assert.Equal(t, f.Count(rules.OverCurrent), 0)
	assert.Equal(t, f.Count(rules.Any), 0)
}

func TestEvaluate_ConstantSeries(t *testing.T) {
	f := rules.Evaluate(constantSeries(10), rules.DefaultThresholds())
	assert.Equal(t, f.Len(), 10)
	assert.Equal(t, f.Count(rules.Any), 0)
}

func TestEvaluate_SingleRow(t *testing.T) {
	s := constantSeries(1)
	s.PackTemp[0] = 54

	f := rules.Evaluate(s, rules.DefaultThresholds())
	assert.Equal(t, f.Len(), 1)
	assert.Assert(t, !f.FastTempRise[0])
	assert.Assert(t, !f.Any[0])
}

func TestEvaluate_ZeroTimeStep(t *testing.T) {
	s := constantSeries(3)
	s.TimeS[2] = s.TimeS[1]
	s.PackTemp[2] = 25.5

	f := rules.Evaluate(s, rules.DefaultThresholds())
	assert.Assert(t, !f.FastTempRise[2], "0.5 °C over a substituted 1 s step")

	s.PackTemp[2] = 25.7
	f = rules.Evaluate(s, rules.DefaultThresholds())
	assert.Assert(t, f.FastTempRise[2])
}

func TestEvaluate_IrregularTimeStep(t *testing.T) {
	s := constantSeries(3)
	s.TimeS[2] = s.TimeS[1] + 2
	s.PackTemp[2] = 26

	f := rules.Evaluate(s, rules.DefaultThresholds())
	assert.Assert(t, !f.FastTempRise[2], "1 °C over 2 s")

	s.TimeS[2] = s.TimeS[1] + 0.5
	f = rules.Evaluate(s, rules.DefaultThresholds())
	assert.Assert(t, f.FastTempRise[2])
}

func TestEvaluate_DoesNotModifySeries(t *testing.T) {
	s, err := evbattery.Generate(500, 7)
	assert.NilError(t, err)
	before := s.Clone()

	rules.Evaluate(s, rules.DefaultThresholds())
	assert.DeepEqual(t, before, s)
}

func TestEvaluate_ThresholdMonotonicity(t *testing.T) {
	s, err := evbattery.Generate(2000, 7)
	assert.NilError(t, err)

	loose := rules.DefaultThresholds()
	strict := loose
	strict.MaxTempC -= 10
	strict.MaxAbsCurrentA -= 60
	strict.MaxCellDeltaV -= 0.2
	strict.MaxDTRiseC -= 0.3

	fLoose := rules.Evaluate(s, loose)
	fStrict := rules.Evaluate(s, strict)
	names := []string{rules.TempHigh, rules.OverCurrent, rules.VImbalance, rules.FastTempRise, rules.Any}
	for _, name := range names {
		looseFlags, strictFlags := fLoose.Column(name), fStrict.Column(name)
		for i := range looseFlags {
			if looseFlags[i] {
				assert.Assert(t, strictFlags[i], "%s row %d", name, i)
			}
		}
		assert.Assert(t, fStrict.Count(name) >= fLoose.Count(name))
	}
}

func TestEvaluate_CurrentSurge(t *testing.T) {
	s, err := evbattery.Generate(2000, 7)
	assert.NilError(t, err)

	start := 1000
	end := anomaly.InjectSpike(s.PackCurrent, start, 5, 200)
	assert.Equal(t, end, start+10)

	th := rules.DefaultThresholds()
	th.MaxAbsCurrentA = 160
	f := rules.Evaluate(s, th)

	flagged := 0
	for i := start; i < end; i++ {
		if f.OverCurrent[i] {
			flagged++
			assert.Assert(t, f.Any[i])
		}
	}
	assert.Assert(t, flagged > 0)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NilError(t, rules.DefaultThresholds().Validate())

	th := rules.DefaultThresholds()
	th.MaxCellDeltaV = math.NaN()
	assert.ErrorIs(t, th.Validate(), rules.ErrInvalidThreshold)

	th = rules.DefaultThresholds()
	th.MaxTempC = math.Inf(1)
	assert.ErrorIs(t, th.Validate(), rules.ErrInvalidThreshold)
}

func TestFlags_UnknownColumn(t *testing.T) {
	f := rules.Evaluate(constantSeries(2), rules.DefaultThresholds())
	assert.Assert(t, is.Nil(f.Column("r_soc_low")))
	assert.Equal(t, f.Count("r_soc_low"), 0)
}
