package model

import "time"

// RssiSample is one corrected-and-audited signal reading. Samples are
// appended in upload order; the analyzer re-sorts by Timestamp, so
// storage order is not semantically significant.
type RssiSample struct {
	Timestamp         time.Time  `json:"timestamp"`
	RSSI              int        `json:"rssi"`
	OriginalTimestamp *time.Time `json:"originalTimestamp,omitempty"`
	ClockOffsetMs     *int64     `json:"clockOffsetMs,omitempty"`
}

// RssiStream is the append-only time series for one (student, class,
// day); further uploads append to the same stream.
type RssiStream struct {
	ID                string       `json:"id"`
	StudentID         string       `json:"studentId"`
	ClassID           string       `json:"classId"`
	SessionDate       string       `json:"sessionDate"`
	Samples           []RssiSample `json:"samples"`
	StartedAt         time.Time    `json:"startedAt"`
	CompletedAt       time.Time    `json:"completedAt"`
	SampleCount       int          `json:"sampleCount"`
	LastClockOffsetMs int64        `json:"lastClockOffsetMs"`
}

// RssiSampleInput is one incoming sample in the AppendStream request body.
// Distance is accepted for forward compatibility with client payloads but
// is not part of the correlation model.
type RssiSampleInput struct {
	Timestamp time.Time `json:"timestamp" binding:"required"`
	RSSI      *int      `json:"rssi" binding:"required,min=-127,max=0"`
	Distance  *float64  `json:"distance"`
}

// AppendStreamRequest is the body of POST /attendance/rssi-stream.
type AppendStreamRequest struct {
	StudentID       string            `json:"studentId" binding:"required"`
	ClassID         string            `json:"classId" binding:"required"`
	SessionDate     *string           `json:"sessionDate"`
	DeviceTimestamp *time.Time        `json:"deviceTimestamp"`
	RSSIData        []RssiSampleInput `json:"rssiData" binding:"required,min=1,dive"`
}

// AppendStreamResponse is returned by AppendStream.
type AppendStreamResponse struct {
	Success     bool `json:"success"`
	SampleCount int  `json:"sampleCount"`
}
