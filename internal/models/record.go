package models

import "time"

// Status is the pipeline state of a notification record.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusParsing        Status = "PARSING"
	StatusDownloading    Status = "DOWNLOADING"
	StatusDownloadFailed Status = "DOWNLOAD_FAILED"
	StatusMatching       Status = "MATCHING"
	StatusPendingManual  Status = "PENDING_MANUAL"
	StatusRenaming       Status = "RENAMING"
	StatusNotifying      Status = "NOTIFYING"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
)

// InFlightStatuses are the states a live stage handler owns. DOWNLOADING is
// a suspension waiting on the acquirer and is not among them.
var InFlightStatuses = []Status{
	StatusParsing,
	StatusMatching,
	StatusRenaming,
	StatusNotifying,
}

// Terminal reports whether the pipeline will not move the record on its own.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPendingManual:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusParsing, StatusDownloading, StatusDownloadFailed, StatusMatching,
		StatusPendingManual, StatusRenaming, StatusNotifying, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Kind classifies the inbound message.
type Kind string

const (
	KindDocumentDelivery Kind = "document_delivery"
	KindInfo             Kind = "info"
	KindFilingNotice     Kind = "filing_notice"
)

// Record tracks one inbound court message through the pipeline.
type Record struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`

	Kind          *Kind    `json:"kind,omitempty"`
	DownloadLinks []string `json:"download_links"`
	CaseNumbers   []string `json:"case_numbers"`
	PartyNames    []string `json:"party_names"`

	Status       Status  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   int     `json:"retry_count"`

	DownloadTaskID *string    `json:"download_task_id,omitempty"`
	Files          []string   `json:"files"`
	RenamedFiles   []string   `json:"renamed_files"`
	CaseID         *int64     `json:"case_id,omitempty"`
	CaseLogID      *int64     `json:"case_log_id,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	NotifyError    *string    `json:"notify_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Parsed reports whether the parse stage has populated the record.
func (r *Record) Parsed() bool {
	return r.Kind != nil
}

// SetError records msg as the record's error message.
func (r *Record) SetError(msg string) {
	r.ErrorMessage = &msg
}

// ClearLinks drops every reference produced after parsing, keeping parsed fields.
func (r *Record) ClearLinks() {
	r.ErrorMessage = nil
	r.DownloadTaskID = nil
	r.Files = nil
	r.RenamedFiles = nil
	r.CaseID = nil
	r.CaseLogID = nil
	r.SentAt = nil
	r.NotifyError = nil
}
