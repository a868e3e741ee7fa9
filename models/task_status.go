package models

import (
	"encoding/json"
)

// TaskStatus maps a catalog task id to whether it was completed today
type TaskStatus map[int]bool

// Clone returns a copy of the map
func (s TaskStatus) Clone() TaskStatus {
	if s == nil {
		return nil
	}
	out := make(TaskStatus, len(s))
	for id, done := range s {
		out[id] = done
	}
	return out
}

// DecodeTaskStatus parses the persisted JSON form. Anything that is not an
// object of task id to boolean yields an empty map and ok=false.
func DecodeTaskStatus(raw []byte) (status TaskStatus, ok bool) {
	if len(raw) == 0 {
		return TaskStatus{}, false
	}
	if err := json.Unmarshal(raw, &status); err != nil || status == nil {
		return TaskStatus{}, false
	}
	return status, true
}

// Encode returns the persisted JSON form
func (s TaskStatus) Encode() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}
