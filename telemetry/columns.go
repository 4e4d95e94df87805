package telemetry

import "fmt"

// Column names a telemetry signal in the delimited interchange format.
type Column string

const (
	TimeS       Column = "time_s"       // elapsed time in seconds
	PackVoltage Column = "pack_voltage" // pack voltage in volts
	PackCurrent Column = "pack_current" // signed pack current in amps, positive is discharge
	PackTemp    Column = "pack_temp"    // pack temperature in degrees C
	CellVMin    Column = "cell_v_min"   // lowest cell voltage in the pack
	CellVMax    Column = "cell_v_max"   // highest cell voltage in the pack
)

// RequiredColumns lists the columns every series must carry, in output order.
var RequiredColumns = []Column{TimeS, PackVoltage, PackCurrent, PackTemp, CellVMin, CellVMax}

// FeatureColumns are the signals fed to the outlier detector, in feature order.
var FeatureColumns = []Column{PackVoltage, PackCurrent, PackTemp, CellVMin, CellVMax}

func (c Column) String() string {
	return string(c)
}

// ParseColumn returns the Column with the given name if it is a known signal.
func ParseColumn(name string) (Column, error) {
	for _, c := range RequiredColumns {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown telemetry column %q", name)
}

// UnmarshalText allows columns to be decoded from yaml and mapstructure input.
func (c *Column) UnmarshalText(text []byte) error {
	parsed, err := ParseColumn(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
