package database

import "time"

// SizeRecord is the last completed size calculation of an entry.
// It is stored as JSON keyed by path.
type SizeRecord struct {
	Path        string `json:"path"`
	Bytes       int64  `json:"bytes"`
	Files       int64  `json:"files"`
	Directories int64  `json:"directories"`

	// Unix nano
	CalculatedAt int64 `json:"calculated_at"`
}

func (r *SizeRecord) CalculatedAtTime() time.Time {
	return time.Unix(0, r.CalculatedAt)
}
