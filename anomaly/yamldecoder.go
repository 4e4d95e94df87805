package anomaly

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Unmarshals a yaml list of fault entries into the container, in file order.
// Every decoded fault is given a fresh ID.
func (c *Container) UnmarshalYAML(unmarshal func(interface{}) error) error {
	// Temporary structure to unmarshal the yaml file
	var unmarshaledYaml []map[string]interface{}
	if err := unmarshal(&unmarshaledYaml); err != nil {
		return err
	}

	for i, yamlEntry := range unmarshaledYaml {
		ai, err := createAnomalyFromYamlEntry(yamlEntry)
		if err != nil {
			return fmt.Errorf("fault %d: %w", i, err)
		}
		c.AddAnomaly(ai)
	}

	return nil
}

// Returns a decodeHook function that can be used to unmarshal faults using mapstructure.
// This supports configuration solutions like spf13/viper that use mapstructure to unmarshal yaml files.
func GetDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, yamlEntry interface{}) (interface{}, error) {
		if t == reflect.TypeOf((*AnomalyInterface)(nil)).Elem() {
			// If the target type is AnomalyInterface, create the correct fault type from the yaml entry
			ai, err := createAnomalyFromYamlEntry(yamlEntry)
			if err != nil {
				return nil, err
			}
			ai.setID(uuid.New())
			return ai, nil
		}
		// Otherwise, return the yaml entry as is (default behaviour)
		return yamlEntry, nil
	}
}

// Creates a fault from a yaml entry based on the "type" (or "Type") field.
func createAnomalyFromYamlEntry(yamlEntry interface{}) (AnomalyInterface, error) {
	m, err := toStringMap(yamlEntry)
	if err != nil {
		return nil, err
	}

	// must check both m["type"] and m["Type"] because some yaml parsers convert to lower case and some don't
	typeStr, ok := m["type"].(string)
	if !ok {
		typeStr, ok = m["Type"].(string)
		if !ok {
			return nil, errors.New("fault type field is missing or not a string")
		}
	}
	delete(m, "type")
	delete(m, "Type")

	switch typeStr {
	case "spike":
		var params SpikeParams
		if err := decodeParams(m, &params); err != nil {
			return nil, err
		}
		return NewSpikeAnomaly(params)
	case "imbalance":
		var params ImbalanceParams
		if err := decodeParams(m, &params); err != nil {
			return nil, err
		}
		return NewImbalanceAnomaly(params)
	case "trend":
		var params TrendParams
		if err := decodeParams(m, &params); err != nil {
			return nil, err
		}
		return NewTrendAnomaly(params)
	default:
		return nil, fmt.Errorf("unknown fault type: %s", typeStr)
	}
}

// Use mapstructure to decode a yaml entry into fault parameters. Unknown keys are rejected.
func decodeParams[T any](m map[string]interface{}, params *T) error {
	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(), // parses telemetry columns
		),
		ErrorUnused: true,
		Result:      params,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return err
	}
	return decoder.Decode(m)
}

// yaml.v2 decodes nested maps with interface{} keys, viper with string keys.
func toStringMap(entry interface{}) (map[string]interface{}, error) {
	switch m := entry.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("fault entry key %v is not a string", k)
			}
			out[key] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fault entry cannot be parsed to map[string]interface{}: %v", entry)
	}
}
