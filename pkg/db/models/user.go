package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// User represents the canonical identity entity. Authentication lives with
// the surrounding application; the escrow engine only needs stable IDs and
// the marketplace role.
type User struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username  string          `gorm:"type:text;not null;uniqueIndex"`
	Email     string          `gorm:"type:text;not null;uniqueIndex"`
	Role      *enums.UserRole `gorm:"column:role;type:user_role_enum"`
	IsActive  bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
