package models

const (
	ApplicationSubmitted    = "submitted"
	ApplicationApproved     = "approved"
	ApplicationSuspended    = "suspended"
	ApplicationDeleted      = "deleted"
	ApplicationFraudTagged  = "fraud_tagged"
	ApplicationFraudCleared = "fraud_cleared"
)

// Application is an append-only record of the practitioner approval
// workflow. It is never consulted for access or matching decisions; the
// account's practitioner status is the single authoritative gate.
type Application struct {
	BaseUUIDModel
	AccountID string  `gorm:"type:varchar(64);not null;index" json:"accountId"`
	Action    string  `gorm:"type:varchar(20);not null"       json:"action"`
	ActorID   *string `gorm:"type:varchar(64)"                json:"actorId,omitempty"`
	Notes     *string `gorm:"type:text"                       json:"notes,omitempty"`
}
