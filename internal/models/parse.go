package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLine splits one station-file line into its four fields:
// date, max temperature, min temperature and precipitation.
func ParseLine(line string) (*RawWeatherRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return nil, &ValidationError{
			Kind:    KindMalformedLine,
			Field:   "line",
			Value:   line,
			Message: fmt.Sprintf("expected 4 fields, got %d", len(fields)),
		}
	}

	names := [3]string{"max_temp", "min_temp", "precipitation"}
	var values [3]int
	for i, name := range names {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, &ValidationError{
				Kind:    KindMalformedLine,
				Field:   name,
				Value:   fields[i+1],
				Message: fmt.Sprintf("%s is not an integer: %q", name, fields[i+1]),
			}
		}
		values[i] = v
	}

	return &RawWeatherRecord{
		Date:          fields[0],
		MaxTemp:       values[0],
		MinTemp:       values[1],
		Precipitation: values[2],
	}, nil
}
