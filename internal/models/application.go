package models

import (
	"fmt"
	"time"
)

// ApplicationStatus represents the lifecycle of a pre-order lead
type ApplicationStatus string

const (
	ApplicationNew        ApplicationStatus = "new"
	ApplicationInProgress ApplicationStatus = "in_progress"
	ApplicationConverted  ApplicationStatus = "converted"
	ApplicationRejected   ApplicationStatus = "rejected"
)

var validApplicationStatuses = map[ApplicationStatus]struct{}{
	ApplicationNew:        {},
	ApplicationInProgress: {},
	ApplicationConverted:  {},
	ApplicationRejected:   {},
}

// ToApplicationStatus validates a raw status string against the closed enum
func ToApplicationStatus(s string) (ApplicationStatus, error) {
	status := ApplicationStatus(s)
	if _, ok := validApplicationStatuses[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid application status: %s", s)
}

// Application represents a pre-order lead that staff may convert into an Order
type Application struct {
	ID          int               `json:"id,omitempty" db:"id"`
	ClientName  string            `json:"client_name" db:"client_name"`
	ClientEmail string            `json:"client_email" db:"client_email"`
	ClientPhone *string           `json:"client_phone,omitempty" db:"client_phone"`
	EventDate   *time.Time        `json:"event_date,omitempty" db:"event_date"`
	Guests      *int              `json:"guests,omitempty" db:"guests"`
	Comment     *string           `json:"comment,omitempty" db:"comment"`
	Status      ApplicationStatus `json:"status" db:"status"`
	CreatedAt   time.Time         `json:"created_at,omitempty" db:"created_at"`
}

// CreateApplicationRequest represents the request to submit a new application
type CreateApplicationRequest struct {
	ClientName  string  `json:"client_name"`
	ClientEmail string  `json:"client_email"`
	ClientPhone *string `json:"client_phone,omitempty"`
	EventDate   string  `json:"event_date,omitempty"`
	Guests      *int    `json:"guests,omitempty"`
	Comment     *string `json:"comment,omitempty"`
}

// Validate validates the create application request
func (req *CreateApplicationRequest) Validate() error {
	if err := validateClientName(req.ClientName); err != nil {
		return err
	}
	if err := validateEmail(req.ClientEmail); err != nil {
		return err
	}
	if req.EventDate != "" {
		if _, err := time.Parse("2006-01-02", req.EventDate); err != nil {
			return fmt.Errorf("event_date must be in YYYY-MM-DD format")
		}
	}
	if req.Guests != nil && *req.Guests < 1 {
		return fmt.Errorf("guests must be positive")
	}
	return nil
}
