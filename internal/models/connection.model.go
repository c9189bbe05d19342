package models

import "time"

const (
	ConnectionActive       = "active"
	ConnectionDisconnected = "disconnected"
	ConnectionReassigned   = "reassigned"
)

const (
	ReasonPractitionerDeleted      = "practitioner_deleted"
	ReasonFraudAppealExpired       = "fraud_appeal_deadline_expired"
	ReasonClientDisconnected       = "client_disconnected"
	ReasonAdminManualReassignment  = "admin_manual_reassignment"
)

// Connection is one historical link between a client and a practitioner.
// Rows are never deleted; status transitions keep the audit trail intact.
type Connection struct {
	BaseUUIDModel
	ClientID       string `gorm:"type:varchar(64);not null;index" json:"clientId"`
	PractitionerID string `gorm:"type:varchar(64);not null;index" json:"practitionerId"`
	Status         string `gorm:"type:varchar(20);not null;index" json:"status"` // 'active', 'disconnected', 'reassigned'

	EndedAt                *time.Time `gorm:"type:datetime"    json:"endedAt,omitempty"`
	PreviousPractitionerID *string    `gorm:"type:varchar(64)" json:"previousPractitionerId,omitempty"`
	Reason                 *string    `gorm:"type:varchar(64)" json:"reason,omitempty"`
}

type ConnectRequest struct {
	PractitionerID string `json:"practitionerId"`
}
