package models

import "time"

type CaseStatus string

const (
	CaseActive CaseStatus = "ACTIVE"
	CaseClosed CaseStatus = "CLOSED"
)

type CaseType string

const (
	CaseTypeCivil          CaseType = "CIVIL"
	CaseTypeCriminal       CaseType = "CRIMINAL"
	CaseTypeAdministrative CaseType = "ADMINISTRATIVE"
	CaseTypeArbitration    CaseType = "ARBITRATION"
	CaseTypeNonLitigation  CaseType = "NON_LITIGATION"
)

type CaseStage string

const (
	StageFirstTrial  CaseStage = "FIRST_TRIAL"
	StageSecondTrial CaseStage = "SECOND_TRIAL"
	StageEnforcement CaseStage = "ENFORCEMENT"
	StageRetrial     CaseStage = "RETRIAL"
)

// Case is a case file owned by the case directory.
type Case struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      CaseStatus `json:"status"`
	Type        CaseType   `json:"case_type"`
	Stage       CaseStage  `json:"current_stage"`
	PartyNames  []string   `json:"party_names"`
	CaseNumbers []string   `json:"case_numbers"`
	ChatID      int64      `json:"chat_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Party is a known person or organisation in the case directory.
type Party struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IsStaff bool   `json:"is_staff"`
}
