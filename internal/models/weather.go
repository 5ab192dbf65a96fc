package models

import (
	"fmt"
	"strings"
	"time"
)

// MissingValue is the source-file sentinel for "no measurement"
const MissingValue = -9999

// Accepted observation years, [MinYear, MaxYear)
const (
	MinYear = 1800
	MaxYear = 2100
)

// WeatherRecord is one station's observation for one day.
// Temperatures are tenths of a degree Celsius, precipitation tenths of a
// millimetre. nil means the source held the sentinel.
type WeatherRecord struct {
	StationID     string `json:"station_id" db:"station_id"`
	Date          string `json:"date" db:"date"`
	MaxTemp       *int   `json:"max_temp" db:"max_temp"`
	MinTemp       *int   `json:"min_temp" db:"min_temp"`
	Precipitation *int   `json:"precipitation" db:"precipitation"`
}

// AnnualStat is one station's yearly summary, derived from WeatherRecord rows
type AnnualStat struct {
	StationID          string   `json:"station_id" db:"station_id"`
	Year               int      `json:"year" db:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp" db:"avg_max_temp"`                 // °C
	AvgMinTemp         *float64 `json:"avg_min_temp" db:"avg_min_temp"`                 // °C
	TotalPrecipitation *float64 `json:"total_precipitation" db:"total_precipitation"` // cm
}

// RawWeatherRecord is a parsed but not yet validated line of a station file
type RawWeatherRecord struct {
	Date          string // YYYYMMDD as found in the file
	MaxTemp       int
	MinTemp       int
	Precipitation int
}

// Normalize validates the raw record and converts it to a WeatherRecord
// for stationID.
func (r *RawWeatherRecord) Normalize(stationID string) (*WeatherRecord, error) {
	if strings.TrimSpace(stationID) == "" {
		return nil, invalidParameter("station_id", stationID, "station id must not be empty")
	}

	date, err := normalizeDate(r.Date)
	if err != nil {
		return nil, err
	}

	return &WeatherRecord{
		StationID:     stationID,
		Date:          date,
		MaxTemp:       measurement(r.MaxTemp),
		MinTemp:       measurement(r.MinTemp),
		Precipitation: measurement(r.Precipitation),
	}, nil
}

func normalizeDate(raw string) (string, error) {
	if len(raw) != 8 || !allDigits(raw) {
		return "", &ValidationError{
			Kind:    KindInvalidDate,
			Field:   "date",
			Value:   raw,
			Message: "invalid date format, expected YYYYMMDD",
		}
	}

	t, err := time.Parse("20060102", raw)
	if err != nil {
		return "", &ValidationError{
			Kind:    KindInvalidDate,
			Field:   "date",
			Value:   raw,
			Message: fmt.Sprintf("invalid calendar date %s", raw),
		}
	}

	if t.Year() < MinYear || t.Year() >= MaxYear {
		return "", &ValidationError{
			Kind:    KindInvalidDate,
			Field:   "date",
			Value:   raw,
			Message: fmt.Sprintf("year %d outside [%d, %d)", t.Year(), MinYear, MaxYear),
		}
	}

	return t.Format("2006-01-02"), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func measurement(v int) *int {
	if v == MissingValue {
		return nil
	}
	return &v
}

// PrecipitationPolicy selects which records contribute to total_precipitation
type PrecipitationPolicy string

const (
	// PrecipitationJoint sums precipitation only for records where both
	// temperatures are present as well.
	PrecipitationJoint PrecipitationPolicy = "joint"
	// PrecipitationIndependent sums every present precipitation value.
	PrecipitationIndependent PrecipitationPolicy = "independent"
)

// ParsePrecipitationPolicy converts a configuration value into a policy
func ParsePrecipitationPolicy(s string) (PrecipitationPolicy, error) {
	switch PrecipitationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PrecipitationJoint:
		return PrecipitationJoint, nil
	case PrecipitationIndependent:
		return PrecipitationIndependent, nil
	}
	return "", invalidParameter("precipitation_policy", s, fmt.Sprintf("unknown precipitation policy %q", s))
}
