package models

import "time"

// OperationLog is one audit event per mutating operation: who did what to
// which entity. Written best-effort, never failing the triggering request.
type OperationLog struct {
	ID       uint64  `gorm:"primaryKey" json:"id"`
	Actor    string  `gorm:"size:100"   json:"actor"`
	Action   string  `gorm:"size:50"    json:"action"`
	Entity   string  `gorm:"size:50"    json:"entity"`
	EntityID *uint64 `json:"entity_id"`
	// Payload is a JSON blob with operation specific details.
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides GORM's default pluralization.
func (OperationLog) TableName() string {
	return "operation_logs"
}
