package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// poundsToKilograms converts the dump's imperial weight to match the
// metric values the live sync writes.
const poundsToKilograms = 0.45359

// CastFunc converts a raw dump value into the field value written to the
// store. Raw values arrive as JSON strings or numbers depending on the
// dump file.
type CastFunc func(raw any) (any, error)

// ExtractFunc normalises one raw dump item into a flat field map.
// Returning an empty map drops the item (e.g. CSV header rows).
type ExtractFunc func(raw json.RawMessage) (map[string]any, error)

// Field pairs a dump field name with its cast. Order matters: the first
// field is the one counted for the already-loaded check.
type Field struct {
	Name string
	Cast CastFunc
}

// Measurement describes how one dump measurement is loaded.
type Measurement struct {
	// TimeField is the item key holding the timestamp.
	TimeField string

	// Extract optionally reshapes raw items before field casting.
	// When nil, items are decoded as flat JSON objects.
	Extract ExtractFunc

	// Fields lists the dump fields to load, in count-check order.
	Fields []Field
}

// Measurements is the full table of loadable dump measurements, keyed by
// the measurement name (also the dump filename prefix).
func Measurements() map[string]Measurement {
	return map[string]Measurement{
		"altitude":  {TimeField: "dateTime", Fields: []Field{{"value", castInt}}},
		"calories":  {TimeField: "dateTime", Fields: []Field{{"value", castMilli}}},
		"distance":  {TimeField: "dateTime", Fields: []Field{{"value", castInt}}},
		"heart_rate": {TimeField: "dateTime", Fields: []Field{
			{"bpm", castInt},
			{"confidence", castInt},
		}},
		"demographic_vo2_max": {TimeField: "dateTime", Fields: []Field{
			{"demographicVO2Max", castFloat},
			{"demographicVO2MaxError", castFloat},
			{"filteredDemographicVO2Max", castFloat},
			{"filteredDemographicVO2MaxError", castFloat},
		}},
		"run_vo2_max": {TimeField: "dateTime", Fields: []Field{
			{"runVO2Max", castFloat},
			{"runVO2MaxError", castFloat},
			{"filteredRunVO2Max", castFloat},
			{"filteredRunVO2MaxError", castFloat},
		}},
		"estimated_oxygen_variation": {
			TimeField: "dateTime",
			Extract:   extractOxygenVariation,
			Fields:    []Field{{"value", castInt}},
		},
		"lightly_active_minutes":    {TimeField: "dateTime", Fields: []Field{{"value", castInt}}},
		"moderately_active_minutes": {TimeField: "dateTime", Fields: []Field{{"value", castInt}}},
		"sedentary_minutes":         {TimeField: "dateTime", Fields: []Field{{"value", castFloat}}},
		"very_active_minutes":       {TimeField: "dateTime", Fields: []Field{{"value", castInt}}},
		"resting_heart_rate": {TimeField: "dateTime", Fields: []Field{
			{"value", castFloat},
			{"error", castFloat},
		}},
		"swim_lengths_data": {TimeField: "dateTime", Fields: []Field{
			{"lapDurationSec", castInt},
			{"strokeCount", castInt},
		}},
		"weight": {
			TimeField: "dateTime",
			Extract:   extractWeight,
			Fields: []Field{
				{"bmi", castFloat},
				{"fat", castFloat},
				{"weight", castKilograms},
			},
		},
	}
}

// rawFloat reads a raw dump value as a float64, accepting both JSON
// numbers and numeric strings.
func rawFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", raw)
	}
}

func castInt(raw any) (any, error) {
	f, err := rawFloat(raw)
	if err != nil {
		return nil, err
	}
	return int64(f), nil
}

func castFloat(raw any) (any, error) {
	f, err := rawFloat(raw)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// castMilli scales kcal-per-minute fractions into integer millicalories.
func castMilli(raw any) (any, error) {
	f, err := rawFloat(raw)
	if err != nil {
		return nil, err
	}
	return int64(f * 1000), nil
}

func castKilograms(raw any) (any, error) {
	f, err := rawFloat(raw)
	if err != nil {
		return nil, err
	}
	return f * poundsToKilograms, nil
}

// extractOxygenVariation handles the CSV-row format of
// estimated_oxygen_variation dumps: each item is a "timestamp,value"
// string. Header rows (containing "Infrared") are dropped.
func extractOxygenVariation(raw json.RawMessage) (map[string]any, error) {
	var row string
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("oxygen variation row is not a string: %w", err)
	}
	if strings.Contains(row, "Infrared") {
		return map[string]any{}, nil
	}
	parts := strings.SplitN(row, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed oxygen variation row %q", row)
	}
	return map[string]any{
		"dateTime": strings.TrimSpace(parts[0]),
		"value":    strings.TrimSpace(parts[1]),
	}, nil
}

// extractWeight joins the split date and time keys of weight dumps into
// the dateTime key the loader expects.
func extractWeight(raw json.RawMessage) (map[string]any, error) {
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding weight item: %w", err)
	}
	date, _ := item["date"].(string)
	clock, _ := item["time"].(string)
	if date == "" || clock == "" {
		return nil, fmt.Errorf("weight item missing date/time keys")
	}
	item["dateTime"] = date + " " + clock
	delete(item, "date")
	delete(item, "time")
	return item, nil
}
