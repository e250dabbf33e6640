package poller

import (
	"strings"
	"time"
)

// Series is one named time-series within a family.
//
// A plain series maps one raw {dateTime, value} item to one stored point.
// A composite series carries its own transform that fans a single raw item
// out into multiple points, plus a key series used for gap detection
// (composite payloads are fetched whole, so one representative series
// stands in for "has this family been fetched for this date").
type Series struct {
	// Name is the series name as it appears in the source resource path.
	Name string

	// KeySeries overrides the gap-detection field for composite series.
	// Empty means the series is its own key.
	KeySeries string

	// Transform converts one raw item into stored points. Nil selects the
	// default {dateTime, value} mapping.
	Transform TransformFunc
}

// Key returns the field used for gap-detection queries.
func (s Series) Key() string {
	if s.KeySeries != "" {
		return s.KeySeries
	}
	return s.Name
}

// Family is a named group of related series sharing a write precision.
type Family struct {
	// Name is both the family's resource prefix and, for plain series,
	// the measurement points are stored under.
	Name string

	// Series are fetched in order, one request sequence per series.
	Series []Series

	// Precision is the timestamp truncation unit for writes. It must
	// match what gap-detection queries read back, so daily aggregates
	// use hours and sleep (which has sub-minute stage segments) uses
	// seconds.
	Precision time.Duration
}

// ResourcePath builds the source API resource path for one series.
//
// The first underscore in the family name separates a resource category
// from its scope and becomes a path segment ("activities_tracker/steps"
// is requested as "activities/tracker/steps"). The sleep family is its
// own top-level resource, so "sleep/sleep" collapses to "sleep".
func (f Family) ResourcePath(s Series) string {
	resource := f.Name + "/" + s.Name
	if strings.Contains(f.Name, "_") {
		resource = strings.Replace(resource, "_", "/", 1)
	}
	if resource == "sleep/sleep" {
		resource = "sleep"
	}
	return resource
}

// Families returns the full synchronization table.
//
// The set is static: a fixed enumeration of hand-mapped series, not a
// discovery mechanism. Order matters only for log readability.
func Families() []Family {
	return []Family{
		{
			Name:      "activities",
			Precision: time.Hour,
			Series: []Series{
				{Name: "activityCalories"},
				{Name: "calories"},
				{Name: "caloriesBMR"},
				{Name: "distance"},
				{Name: "elevation"},
				{Name: "floors"},
				{Name: "heart", KeySeries: "restingHeartRate", Transform: transformHeart},
				{Name: "minutesFairlyActive"},
				{Name: "minutesLightlyActive"},
				{Name: "minutesSedentary"},
				{Name: "minutesVeryActive"},
				{Name: "steps"},
			},
		},
		{
			Name:      "activities_tracker",
			Precision: time.Hour,
			Series: []Series{
				{Name: "activityCalories"},
				{Name: "calories"},
				{Name: "distance"},
				{Name: "elevation"},
				{Name: "floors"},
				{Name: "minutesFairlyActive"},
				{Name: "minutesLightlyActive"},
				{Name: "minutesSedentary"},
				{Name: "minutesVeryActive"},
				{Name: "steps"},
			},
		},
		{
			Name:      "body",
			Precision: time.Hour,
			Series: []Series{
				{Name: "bmi"},
				{Name: "fat"},
				{Name: "weight"},
			},
		},
		{
			Name:      "body_log",
			Precision: time.Hour,
			Series: []Series{
				{Name: "fat", KeySeries: "fat_fat", Transform: transformBodyLogFat},
				{Name: "weight", KeySeries: "weight_weight", Transform: transformBodyLogWeight},
			},
		},
		{
			Name:      "foods_log",
			Precision: time.Hour,
			Series: []Series{
				{Name: "caloriesIn"},
				{Name: "water"},
			},
		},
		{
			Name:      "sleep",
			Precision: time.Second,
			Series: []Series{
				{Name: "sleep", KeySeries: "efficiency", Transform: transformSleep},
			},
		},
	}
}
