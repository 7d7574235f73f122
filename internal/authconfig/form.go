package authconfig

import "slices"

// invertedKeys are stored as the logical opposite of what the form shows:
// the server enables auto-confirm, the form asks whether confirmation is
// required.
var invertedKeys = []string{"MAILER_AUTOCONFIRM", "SMS_AUTOCONFIRM"}

func isInverted(key string) bool {
	return slices.Contains(invertedKeys, key)
}

// ToForm converts a server config into form values.
func ToForm(server Config) Config {
	form := server.Clone()
	for _, key := range invertedKeys {
		if v, ok := form[key]; ok && v != nil {
			form[key] = !server.Bool(key)
		}
	}
	return form
}

// GenerateUpdatePayload returns the keys of edited whose value differs from
// original, converted back to server form. Both arguments are form values.
// Empty strings are sent as null.
func GenerateUpdatePayload(original, edited Config) Config {
	payload := Config{}
	for key, value := range edited {
		if equalValue(original[key], value) {
			continue
		}
		switch {
		case isBlank(value):
			payload[key] = nil
		case isInverted(key):
			payload[key] = !edited.Bool(key)
		default:
			payload[key] = value
		}
	}
	return payload
}
