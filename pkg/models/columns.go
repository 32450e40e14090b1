package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Column types below implement sql.Scanner and driver.Valuer so GORM rows
// can store them in jsonb columns.

// HRZones is a jsonb-backed list of heart-rate zones.
type HRZones []HRZone

// Scan implements sql.Scanner for HRZones.
func (z *HRZones) Scan(src interface{}) error {
	return scanJSON("HRZones", src, z)
}

// Value implements driver.Valuer for HRZones.
func (z HRZones) Value() (driver.Value, error) {
	if z == nil {
		return nil, nil
	}
	return json.Marshal(z)
}

// ZoneTimes is a jsonb-backed map of zone name to percentage of moving time.
type ZoneTimes map[string]float64

// Scan implements sql.Scanner for ZoneTimes.
func (z *ZoneTimes) Scan(src interface{}) error {
	return scanJSON("ZoneTimes", src, z)
}

// Value implements driver.Valuer for ZoneTimes.
func (z ZoneTimes) Value() (driver.Value, error) {
	if z == nil {
		return nil, nil
	}
	return json.Marshal(z)
}

// PlanWeeks is a jsonb-backed ordered list of plan weeks.
type PlanWeeks []PlanWeek

// Scan implements sql.Scanner for PlanWeeks.
func (w *PlanWeeks) Scan(src interface{}) error {
	return scanJSON("PlanWeeks", src, w)
}

// Value implements driver.Valuer for PlanWeeks.
func (w PlanWeeks) Value() (driver.Value, error) {
	if w == nil {
		return nil, nil
	}
	return json.Marshal(w)
}

func scanJSON(name string, src interface{}, dst interface{}) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("%s: unsupported type %T", name, src)
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, dst)
}
