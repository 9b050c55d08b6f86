package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 layout used for Reading.Timestamp on the wire:
// UTC with millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Reading is one sensor sample. It is immutable once created by the store.
type Reading struct {
	Temperature float64
	Humidity    float64
	Timestamp   time.Time
	// Alert is true when Temperature exceeded the alert threshold in force
	// at ingestion time.
	Alert bool
}

type readingJSON struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Date        string  `json:"date"`
	Alert       bool    `json:"alert"`
}

// MarshalJSON encodes the reading with its timestamp under "date".
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Date:        r.Timestamp.UTC().Format(DateLayout),
		Alert:       r.Alert,
	})
}

// UnmarshalJSON accepts any RFC 3339 timestamp in "date".
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Date)
	if err != nil {
		return fmt.Errorf("reading date %q: %w", raw.Date, err)
	}
	*r = Reading{
		Temperature: raw.Temperature,
		Humidity:    raw.Humidity,
		Timestamp:   ts.UTC(),
		Alert:       raw.Alert,
	}
	return nil
}
