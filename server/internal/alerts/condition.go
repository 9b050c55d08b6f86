package alerts

import (
	"strconv"
	"strings"

	"github.com/sensorhub/sensorhub/pkg/types"
)

// evalCondition evaluates a rule condition string against a reading.
//
// Supported expressions (field operator value):
//
//	temperature > 30
//	temperature <= 2
//	humidity >= 80
//	alert == true
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, r types.Reading) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "alert":
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return false, 0
		}
		switch op {
		case "==":
			return r.Alert == want, r.Temperature
		case "!=":
			return r.Alert != want, r.Temperature
		}
		return false, 0

	case "temperature", "humidity":
		v := r.Temperature
		if field == "humidity" {
			v = r.Humidity
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v

	default:
		return false, 0
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
