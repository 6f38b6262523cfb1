package notification

import (
	"catering-system/internal/config"
	"catering-system/internal/models"
)

// recipient pairs an address with the role it is notified as
type recipient struct {
	address string
	role    models.RecipientRole
}

// resolveRecipients expands an event into the concrete addresses to notify.
// The client address comes from the event payload; staff addresses come from
// configuration. Duplicates keep the first role they appeared under.
func resolveRecipients(event *models.Event, cfg config.NotificationsConfig) []recipient {
	var out []recipient
	seen := make(map[string]struct{})

	add := func(address string, role models.RecipientRole) {
		if address == "" {
			return
		}
		if _, ok := seen[address]; ok {
			return
		}
		seen[address] = struct{}{}
		out = append(out, recipient{address: address, role: role})
	}

	addAll := func(addresses []string, role models.RecipientRole) {
		for _, a := range addresses {
			add(a, role)
		}
	}

	switch event.Type {
	case models.EventOrderCreated:
		if event.Order != nil {
			add(event.Order.ClientEmail, models.RoleClient)
		}
		addAll(cfg.Coordinators, models.RoleCoordinator)
		addAll(cfg.ExtraRecipients, models.RoleExtra)

	case models.EventOrderStatusChanged:
		if event.Order != nil {
			add(event.Order.ClientEmail, models.RoleClient)
		}
		addAll(cfg.Coordinators, models.RoleCoordinator)

	case models.EventPaymentFailed:
		if event.Order != nil {
			add(event.Order.ClientEmail, models.RoleClient)
		}
		addAll(cfg.Coordinators, models.RoleCoordinator)
		addAll(cfg.Observers, models.RoleObserver)

	case models.EventApplicationCreated, models.EventApplicationStatusChanged:
		addAll(cfg.Coordinators, models.RoleCoordinator)

	case models.EventUpcomingEventReminder:
		if event.Reminder != nil {
			add(event.Reminder.ClientEmail, models.RoleClient)
		}
		addAll(cfg.Coordinators, models.RoleCoordinator)

	case models.EventWeeklyReport:
		addAll(cfg.Coordinators, models.RoleCoordinator)
		addAll(cfg.Observers, models.RoleObserver)
	}

	return out
}
