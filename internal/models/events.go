package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a domain event that may produce notifications
type EventType string

const (
	EventApplicationCreated       EventType = "application_created"
	EventApplicationStatusChanged EventType = "application_status_changed"
	EventOrderCreated             EventType = "order_created"
	EventOrderStatusChanged       EventType = "order_status_changed"
	EventPaymentFailed            EventType = "payment_failed"
	EventUpcomingEventReminder    EventType = "upcoming_event_reminder"
	EventWeeklyReport             EventType = "weekly_report"
)

// Event is the envelope published to the notifications exchange
type Event struct {
	Type        EventType                `json:"type"`
	Timestamp   time.Time                `json:"timestamp"`
	Order       *OrderEventPayload       `json:"order,omitempty"`
	Application *ApplicationEventPayload `json:"application,omitempty"`
	Reminder    *ReminderPayload         `json:"reminder,omitempty"`
	Report      *WeeklyReportPayload     `json:"report,omitempty"`
}

// OrderEventPayload carries order context for order-related events
type OrderEventPayload struct {
	OrderID       int             `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	OldStatus     string          `json:"old_status,omitempty"`
	NewStatus     string          `json:"new_status,omitempty"`
	PaymentStatus string          `json:"payment_status,omitempty"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// ApplicationEventPayload carries application context
type ApplicationEventPayload struct {
	ApplicationID int    `json:"application_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	EventDate     string `json:"event_date,omitempty"`
	Guests        int    `json:"guests,omitempty"`
	OldStatus     string `json:"old_status,omitempty"`
	NewStatus     string `json:"new_status,omitempty"`
}

// ReminderPayload carries delivery details for the upcoming-event reminder
type ReminderPayload struct {
	OrderNumber     string          `json:"order_number"`
	ClientName      string          `json:"client_name"`
	ClientEmail     string          `json:"client_email"`
	DeliveryDate    string          `json:"delivery_date"`
	DeliveryTime    string          `json:"delivery_time,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
}

// WeeklyReportPayload carries aggregate order stats for the staff report
type WeeklyReportPayload struct {
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	Revenue         decimal.Decimal `json:"revenue"`
}

// NewOrderEvent builds an order event envelope
func NewOrderEvent(eventType EventType, order *Order, oldStatus OrderStatus, failureReason string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Order: &OrderEventPayload{
			OrderID:       order.ID,
			OrderNumber:   order.Number,
			ClientName:    order.ClientName,
			ClientEmail:   order.ClientEmail,
			OldStatus:     string(oldStatus),
			NewStatus:     string(order.Status),
			PaymentStatus: string(order.PaymentStatus),
			FinalAmount:   order.FinalAmount,
			FailureReason: failureReason,
		},
	}
}

// NewApplicationEvent builds an application event envelope
func NewApplicationEvent(eventType EventType, app *Application, oldStatus ApplicationStatus) *Event {
	eventDate := ""
	if app.EventDate != nil {
		eventDate = app.EventDate.Format("2006-01-02")
	}
	guests := 0
	if app.Guests != nil {
		guests = *app.Guests
	}

	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Application: &ApplicationEventPayload{
			ApplicationID: app.ID,
			ClientName:    app.ClientName,
			ClientEmail:   app.ClientEmail,
			EventDate:     eventDate,
			Guests:        guests,
			OldStatus:     string(oldStatus),
			NewStatus:     string(app.Status),
		},
	}
}
