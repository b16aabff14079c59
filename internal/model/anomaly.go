package model

import "time"

// AnomalySeverity classifies how confident the correlation engine is that
// a flagged pair is proxy attendance.
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyStatus is the review lifecycle of an Anomaly.
type AnomalyStatus string

const (
	AnomalyPending        AnomalyStatus = "pending"
	AnomalyConfirmedProxy AnomalyStatus = "confirmed_proxy"
	AnomalyFalsePositive  AnomalyStatus = "false_positive"
)

// ReviewAction is the action accepted by the Review operation.
type ReviewAction string

const (
	ActionConfirmProxy  ReviewAction = "confirm_proxy"
	ActionFalsePositive ReviewAction = "false_positive"
)

// Anomaly is one flagged correlated pair for a (class, date). Unique on
// (class_id, session_date, student_id_1, student_id_2) with
// student_id_1 < student_id_2 canonical ordering.
type Anomaly struct {
	ID                string          `json:"id"`
	ClassID           string          `json:"classId"`
	SessionDate       string          `json:"sessionDate"`
	StudentID1        string          `json:"studentId1"`
	StudentID2        string          `json:"studentId2"`
	CorrelationScore  float64         `json:"correlationScore"`
	Severity          AnomalySeverity `json:"severity"`
	Status            AnomalyStatus   `json:"status"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	ReviewedAt        *time.Time      `json:"reviewedAt,omitempty"`
}

// ReviewRequest is the body of PUT /anomalies/:id/review.
type ReviewRequest struct {
	Action ReviewAction `json:"action" binding:"required,oneof=confirm_proxy false_positive"`
	Notes  *string      `json:"notes"`
}

// AnomalyFilter narrows a GET /anomalies listing.
type AnomalyFilter struct {
	ClassID     *string
	SessionDate *string
	Status      *AnomalyStatus
}
