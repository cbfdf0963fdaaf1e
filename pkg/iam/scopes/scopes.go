// Package scopes defines the closed set of integration scopes recognized by
// the API key layer. The set is fixed at compile time; unknown scopes are
// rejected everywhere, never silently accepted.
package scopes

// Integration scopes. Each one gates exactly one downstream capability.
const (
	WhatsAppMarketing = "whatsapp_marketing"
	DeviceManagement  = "device_management"
	EmailMarketing    = "email_marketing"
	SMSMarketing      = "sms_marketing"
)

// all is the canonical ordering used when generating key bundles.
var all = []string{
	WhatsAppMarketing,
	DeviceManagement,
	EmailMarketing,
	SMSMarketing,
}

// Descriptions maps each scope to a short human-readable explanation,
// surfaced by the API key listing endpoint.
var Descriptions = map[string]string{
	WhatsAppMarketing: "Send WhatsApp campaigns and templates",
	DeviceManagement:  "Register and manage sending devices",
	EmailMarketing:    "Send email campaigns via the email provider",
	SMSMarketing:      "Send SMS campaigns via the SMS provider",
}

// All returns the recognized scopes in canonical order. The caller gets a
// copy; the set itself never changes at runtime.
func All() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

// IsRecognized reports whether s is one of the closed scope set.
func IsRecognized(s string) bool {
	for _, scope := range all {
		if scope == s {
			return true
		}
	}
	return false
}
