package fitbit

import "encoding/json"

// Profile holds the subset of the user profile the sync engine needs.
type Profile struct {
	// MemberSince is the account creation date ("2016-01-01"). It bounds
	// how far back historical gap-filling can reach.
	MemberSince string `json:"memberSince"`
}

// TimeSeriesValue is the common daily time-series shape.
//
// Sample:
//
//	{
//	    "dateTime": "2020-01-05",
//	    "value": "12345"
//	}
//
// Value is left raw: numeric series deliver strings ("12345"), the heart
// series delivers a nested object (HeartValue).
type TimeSeriesValue struct {
	DateTime string          `json:"dateTime"`
	Value    json.RawMessage `json:"value"`
}

// HeartValue is the value object of one activities/heart day.
//
// Sample:
//
//	{
//	    "restingHeartRate": 68,
//	    "heartRateZones": [
//	        {"caloriesOut": 55.2, "max": 118, "min": 30, "minutes": 21, "name": "Out of Range"}
//	    ]
//	}
type HeartValue struct {
	RestingHeartRate float64         `json:"restingHeartRate"`
	HeartRateZones   []HeartRateZone `json:"heartRateZones"`
}

// HeartRateZone is one named heart-rate zone breakdown.
type HeartRateZone struct {
	Name        string  `json:"name"`
	CaloriesOut float64 `json:"caloriesOut"`
	Max         float64 `json:"max"`
	Min         float64 `json:"min"`
	Minutes     float64 `json:"minutes"`
}

// BodyLogEntry is one manually or device-logged body measurement.
// LogID doubles as the entry's creation timestamp in Unix milliseconds,
// which is why transforms timestamp body-log points from it rather than
// from the logged date.
type BodyLogEntry struct {
	LogID  int64   `json:"logId"`
	BMI    float64 `json:"bmi"`
	Fat    float64 `json:"fat"`
	Weight float64 `json:"weight"`
}

// SleepRecord is one sleep session from the v1.2 sleep endpoint.
type SleepRecord struct {
	StartTime           string       `json:"startTime"`
	Duration            int64        `json:"duration"` // milliseconds
	Efficiency          float64      `json:"efficiency"`
	IsMainSleep         bool         `json:"isMainSleep"`
	TimeInBed           float64      `json:"timeInBed"`
	MinutesAfterWakeup  float64      `json:"minutesAfterWakeup"`
	MinutesAsleep       float64      `json:"minutesAsleep"`
	MinutesAwake        float64      `json:"minutesAwake"`
	MinutesToFallAsleep float64      `json:"minutesToFallAsleep"`
	Levels              *SleepLevels `json:"levels"`
}

// SleepLevels carries the per-stage breakdown of a sleep record.
// All fields are optional; short sessions omit the stage data entirely.
type SleepLevels struct {
	Summary   map[string]SleepStageSummary `json:"summary"`
	Data      []SleepStageSegment          `json:"data"`
	ShortData []SleepStageSegment          `json:"shortData"`
}

// SleepStageSummary aggregates one sleep stage over the whole session.
type SleepStageSummary struct {
	Count               float64 `json:"count"`
	Minutes             float64 `json:"minutes"`
	ThirtyDayAvgMinutes float64 `json:"thirtyDayAvgMinutes"`
}

// SleepStageSegment is one fine-grained sleep stage interval, timestamped
// by its own start rather than the session start.
type SleepStageSegment struct {
	DateTime string  `json:"dateTime"`
	Level    string  `json:"level"`
	Seconds  float64 `json:"seconds"`
}
