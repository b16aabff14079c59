package model

import "time"

// AttendanceStatus is the state of one Attendance record.
// Transitions are monotonic: provisional -> confirmed or provisional ->
// cancelled. There are two exceptions, both in anomaly review: a
// confirm_proxy review can flip confirmed -> cancelled, and a later
// false_positive review can flip a proxy cancellation back to confirmed.
type AttendanceStatus string

const (
	StatusProvisional AttendanceStatus = "provisional"
	StatusConfirmed   AttendanceStatus = "confirmed"
	StatusCancelled   AttendanceStatus = "cancelled"
)

// Attendance is one student's attendance record for a (class, day). At
// most one exists per (student_id, class_id, session_date).
type Attendance struct {
	ID                 string           `json:"id"`
	StudentID          string           `json:"studentId"`
	ClassID            string           `json:"classId"`
	SessionDate        string           `json:"sessionDate"`
	DeviceID           string           `json:"deviceId"`
	Status             AttendanceStatus `json:"status"`
	CheckInTime        time.Time        `json:"checkInTime"`
	ConfirmedAt        *time.Time       `json:"confirmedAt,omitempty"`
	CancelledAt        *time.Time       `json:"cancelledAt,omitempty"`
	CancellationReason *string          `json:"cancellationReason,omitempty"`
	RSSI               *int             `json:"rssi,omitempty"`
	BeaconMajor        *int             `json:"beaconMajor,omitempty"`
	BeaconMinor        *int             `json:"beaconMinor,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// CooldownInfo describes the post-confirmation cooldown window exposed by
// QueryToday.
type CooldownInfo struct {
	CooldownEndsAt   time.Time `json:"cooldownEndsAt"`
	SecondsRemaining int64     `json:"secondsRemaining"`
}

// AttendanceView is the enriched, client-facing shape of an Attendance
// record returned by Confirm, CancelProvisional and QueryToday: adds remainingSeconds for
// provisional records and a cooldown block for confirmed ones.
type AttendanceView struct {
	Attendance
	RemainingSeconds *int64        `json:"remainingSeconds,omitempty"`
	Cooldown         *CooldownInfo `json:"cooldown,omitempty"`
}

// CheckInRequest is the body of POST /check-in.
type CheckInRequest struct {
	StudentID         string `json:"studentId" binding:"required"`
	ClassID           string `json:"classId" binding:"required"`
	DeviceID          string `json:"deviceId" binding:"required"`
	DeviceSignature   string `json:"deviceSignature" binding:"required"`
	DeviceSaltVersion int    `json:"deviceSaltVersion"`
	EventID           string `json:"eventId" binding:"required"`
	RSSI              *int   `json:"rssi"`
	BeaconMajor       *int   `json:"beaconMajor"`
	BeaconMinor       *int   `json:"beaconMinor"`
}

// CheckInResponse is the body returned by CheckIn.
type CheckInResponse struct {
	Success          bool             `json:"success"`
	Created          bool             `json:"created"`
	Status           AttendanceStatus `json:"status"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	Attendance       Attendance       `json:"attendance"`
}

// ConfirmRequest is the body of POST /attendance/confirm.
type ConfirmRequest struct {
	StudentID    string  `json:"studentId" binding:"required"`
	ClassID      string  `json:"classId" binding:"required"`
	DeviceID     string  `json:"deviceId" binding:"required"`
	EventID      string  `json:"eventId" binding:"required"`
	AttendanceID *string `json:"attendanceId"`
}

// CancelProvisionalRequest is the body of POST /attendance/cancel-provisional.
type CancelProvisionalRequest struct {
	StudentID string  `json:"studentId" binding:"required"`
	ClassID   string  `json:"classId" binding:"required"`
	EventID   string  `json:"eventId" binding:"required"`
	Reason    *string `json:"reason"`
}
