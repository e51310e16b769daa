package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleOperator   = "operator"
)

// SystemActorID identifies platform-initiated actions (auto-approval sweeps).
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is the resolved identity every core operation receives explicitly.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// SystemActor is the actor used by scheduled jobs.
func SystemActor() Actor { return Actor{ID: SystemActorID, Role: RoleOperator} }
