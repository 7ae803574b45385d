package repository

import "time"

// Timestamps are stored as RFC3339 text; rows written before
// sub-second precision was recorded parse through the coarser layout.
var timeLayouts = []string{time.RFC3339Nano, time.RFC3339}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
