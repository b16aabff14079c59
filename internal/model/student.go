package model

import "time"

// Student is created lazily at first check-in. device_id is
// immutable by end users once set; only an admin reset clears it.
type Student struct {
	ID                 string     `json:"id"`
	StudentID          string     `json:"studentId"`
	Name               string     `json:"name,omitempty"`
	DeviceID           *string    `json:"deviceId,omitempty"`
	DeviceRegisteredAt *time.Time `json:"deviceRegisteredAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// HasDevice reports whether the student already has a bound device.
func (s *Student) HasDevice() bool {
	return s.DeviceID != nil && *s.DeviceID != ""
}
