package anomaly

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/synaptecltd/evbattery/telemetry"
)

// AnomalyBase is the base struct for all fault types.
type AnomalyBase struct {
	typeName string    // the type of fault
	id       uuid.UUID // identifies the fault in logs, assigned by Container.AddAnomaly
	divisor  int       // one episode is injected per divisor rows, and at least one
	Off      bool      // true: fault deactivated, false: activated
}

// Returns the type of fault as a string.
func (a *AnomalyBase) TypeAsString() string {
	return a.typeName
}

// Returns the ID of the fault, or uuid.Nil if it has not been added to a container.
func (a *AnomalyBase) GetID() uuid.UUID {
	return a.id
}

func (a *AnomalyBase) setID(id uuid.UUID) {
	a.id = id
}

// Returns the number of rows per injected episode.
func (a *AnomalyBase) GetDivisor() int {
	return a.divisor
}

// Sets the number of rows per injected episode if divisor > 0.
func (a *AnomalyBase) SetDivisor(divisor int) error {
	if divisor <= 0 {
		return errors.New("divisor must be greater than 0")
	}
	a.divisor = divisor
	return nil
}

// Returns the number of episodes to inject into a series of the given length:
// rows/divisor, but never fewer than one.
func (a *AnomalyBase) EpisodeCount(rows int) int {
	return max(1, rows/a.divisor)
}

// checkPackColumn accepts the pack-level signals. Cell voltages are shaped
// only by imbalance faults, which keep cell_v_min <= cell_v_max.
func checkPackColumn(kind string, column telemetry.Column) error {
	switch column {
	case telemetry.PackVoltage, telemetry.PackCurrent, telemetry.PackTemp:
		return nil
	}
	if _, err := telemetry.ParseColumn(string(column)); err != nil {
		return fmt.Errorf("%s column: %w", kind, err)
	}
	return fmt.Errorf("%s faults cannot be injected into the %s column", kind, column)
}
