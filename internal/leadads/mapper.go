package leadads

import (
	"fmt"
	"strings"

	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/phone"
)

// MappedLead holds the customer fields extracted from a lead form.
type MappedLead struct {
	CustomerName    *string
	CustomerEmail   *string
	CustomerPhone   *string
	VehicleInterest *string
	InitialMessage  *string
}

var (
	nameFields    = []string{"full_name", "name", "first_name"}
	emailFields   = []string{"email"}
	phoneFields   = []string{"phone_number", "phone", "mobile"}
	vehicleFields = []string{"vehicle_interest", "which_car", "car_interest", "vehicle"}
)

// MapFields folds field_data into lead columns. Known names fill customer
// fields (the last answer wins); everything else becomes a "question: answer"
// line of the initial message. Empty answers are ignored, and an email the
// store would reject is kept only as a message line.
func MapFields(fields []FieldValue, phoneRegion string) MappedLead {
	var out MappedLead
	var questions []string

	for _, field := range fields {
		name := strings.ToLower(strings.TrimSpace(field.Name))
		value := firstValue(field.Values)
		if value == "" {
			continue
		}

		switch {
		case contains(nameFields, name):
			out.CustomerName = &value
		case contains(emailFields, name):
			email := strings.ToLower(value)
			if valid := leads.ValidEmail(&email); valid != nil {
				out.CustomerEmail = valid
			} else {
				questions = append(questions, fmt.Sprintf("%s: %s", name, value))
			}
		case contains(phoneFields, name):
			normalized := phone.NormalizeE164(value, phoneRegion)
			out.CustomerPhone = &normalized
		case contains(vehicleFields, name):
			out.VehicleInterest = &value
		default:
			questions = append(questions, fmt.Sprintf("%s: %s", name, value))
		}
	}

	if len(questions) > 0 {
		msg := strings.Join(questions, "\n")
		out.InitialMessage = &msg
	}
	return out
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
