package pipeline

import "court-intake-service/internal/models"

// Stage names one schedulable unit of pipeline work.
type Stage string

const (
	StageParse          Stage = "parse"
	StageDownload       Stage = "download"
	StageAwaitDownload  Stage = "await_download"
	StageDownloadFailed Stage = "download_failed"
	StageMatch          Stage = "match"
	StageRename         Stage = "rename"
	StageNotify         Stage = "notify"
)

// Job asks a worker to run one stage for one record.
type Job struct {
	RecordID string
	Stage    Stage
}

// expectedStatus is the state a record must be in for a stage to act on it.
var expectedStatus = map[Stage]models.Status{
	StageParse:          models.StatusPending,
	StageDownload:       models.StatusParsing,
	StageAwaitDownload:  models.StatusDownloading,
	StageDownloadFailed: models.StatusDownloadFailed,
	StageMatch:          models.StatusMatching,
	StageRename:         models.StatusRenaming,
	StageNotify:         models.StatusNotifying,
}

// StageFor returns the stage that drives a record out of status, if any.
func StageFor(status models.Status) (Stage, bool) {
	for stage, s := range expectedStatus {
		if s == status {
			return stage, true
		}
	}
	return "", false
}
