package gateway

import "catering-system/internal/models"

// MapProviderStatus maps the provider's open status vocabulary onto the
// internal payment status enum. Total: any unrecognized input maps to unknown.
func MapProviderStatus(providerStatus string) models.PaymentStatus {
	switch providerStatus {
	case "new", "prepared":
		return models.PaymentPending
	case "authorized":
		return models.PaymentAuthorized
	case "charged":
		return models.PaymentCharged
	case "reversed", "rejected", "fraud", "declined", "chargedback", "error":
		return models.PaymentFailed
	case "refunded":
		return models.PaymentRefunded
	case "credited":
		return models.PaymentCredited
	default:
		return models.PaymentUnknown
	}
}
