package types

// Sample is the payload a device sends for one reading:
//
//	{"temperature": 21.5, "humidity": 40}
//
// Both fields must be JSON numbers. Decoding a string or other non-number
// into a field fails; a missing or null field leaves it nil.
type Sample struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// Values returns the temperature and humidity, and false if either is missing.
func (s Sample) Values() (temperature, humidity float64, ok bool) {
	if s.Temperature == nil || s.Humidity == nil {
		return 0, 0, false
	}
	return *s.Temperature, *s.Humidity, true
}
