package models

import "time"

// ParseResult is what the text parsing service extracts from raw content.
type ParseResult struct {
	Kind          Kind     `json:"kind"`
	DownloadLinks []string `json:"download_links"`
	CaseNumbers   []string `json:"case_numbers"`
	PartyNames    []string `json:"party_names"`
}

type DownloadOutcome string

const (
	DownloadPending DownloadOutcome = "pending"
	DownloadSuccess DownloadOutcome = "success"
	DownloadFailure DownloadOutcome = "failure"
)

// DownloadEvent reports the completion of a download job.
type DownloadEvent struct {
	JobID   string          `json:"job_id"`
	Outcome DownloadOutcome `json:"outcome"`
	Files   []string        `json:"files"`
	Error   string          `json:"error,omitempty"`
}

// DownloadTask is the acquisition service's view of a job.
type DownloadTask struct {
	JobID     string          `json:"job_id"`
	RecordID  string          `json:"record_id"`
	Link      string          `json:"link"`
	Outcome   DownloadOutcome `json:"outcome"`
	Files     []string        `json:"files"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// InboundMessage is the wire shape of a raw court message.
type InboundMessage struct {
	Content    string     `json:"content"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// MessageResult is the messaging service's reply.
type MessageResult struct {
	Success bool
	Message string
}
