package domain

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeveritySuccess:
		return true
	}
	return false
}

type AccountKind string

const (
	AccountUser  AccountKind = "user"
	AccountAdmin AccountKind = "admin"
)

// AccountRef addresses an inbox owner.
type AccountRef struct {
	Kind AccountKind
	ID   string
}

func UserAccount(id string) AccountRef  { return AccountRef{Kind: AccountUser, ID: id} }
func AdminAccount(id string) AccountRef { return AccountRef{Kind: AccountAdmin, ID: id} }

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"type"`
	IsRead    bool      `json:"isRead"`
	Timestamp time.Time `json:"timestamp"`
}
