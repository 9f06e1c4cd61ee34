package dto

import (
	"encoding/json"
	"time"
)

// PhotoInfo represents parsed metadata about a stored photo.
type PhotoInfo struct {
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
	Facing    string    `json:"facing"`
	Objects   []string  `json:"objects"` // Multiple detected objects
}

// MarshalJSON customizes JSON output for PhotoInfo to format date and time-of-day.
func (p PhotoInfo) MarshalJSON() ([]byte, error) {
	type Alias PhotoInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.Date.Format("02-01-2006"),
		TimeOfDay: p.TimeOfDay.Format("15:04:05"),
		Alias:     (Alias)(p),
	})
}
