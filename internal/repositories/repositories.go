package repositories

import (
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/db"
)

// Repositories groups the repositories of every table
type Repositories struct {
	Users             ports.UserRepository
	Sessions          ports.SessionRepository
	SessionEvents     ports.SessionEventRepository
	SelfVerifications ports.SelfVerificationRepository
	Activities        ports.ActivityRepository
}

// New returns the postgres repositories sharing storage
func New(storage db.Storage) *Repositories {
	return &Repositories{
		Users:             NewUser(storage),
		Sessions:          NewSession(storage),
		SessionEvents:     NewSessionEvent(storage),
		SelfVerifications: NewSelfVerification(storage),
		Activities:        NewActivity(storage),
	}
}

// Repositories returns the in memory repositories sharing m
func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		Users:             m.Users(),
		Sessions:          m.Sessions(),
		SessionEvents:     m.SessionEvents(),
		SelfVerifications: m.SelfVerifications(),
		Activities:        m.Activities(),
	}
}
