package models

import "time"

// Moiety is the abstract therapeutic substance (VTM). Superseded moieties keep
// their identity and point at their predecessor through PreviousID.
type Moiety struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false" json:"moiety_id"`
	Name       string     `gorm:"not null" json:"name"`
	Invalid    bool       `gorm:"not null;default:false" json:"invalid"`
	PreviousID *int64     `gorm:"index" json:"previous_id,omitempty"`
	ChangedOn  *time.Time `json:"changed_on,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
