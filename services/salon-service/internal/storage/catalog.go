package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrMissingReference = errors.New("referenced record does not exist")
)

type Salon struct {
	ID          string
	Name        string
	Address     string
	Phone       string
	OpensAt     string // HH:MM
	ClosesAt    string
	Description string
	Active      bool
	CreatedAt   time.Time
}

type Service struct {
	ID              string
	SalonID         string
	Name            string
	Description     string
	Kind            string
	DurationMinutes int
	Price           decimal.Decimal
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Trainer struct {
	ID          string
	SalonID     string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Specialties string
	Bio         string
	Active      bool
	ServiceIDs  []string
	CreatedAt   time.Time
}

type ServiceFilter struct {
	SalonID         string
	IncludeInactive bool
}

type TrainerFilter struct {
	SalonID         string
	ServiceID       string
	IncludeInactive bool
}
