package events

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// Description is the static self-description served at /schema.
type Description struct {
	EventTypes []EventType                      `json:"event_types"`
	MetaSchema map[EventType]*jsonschema.Schema `json:"meta_schema"`
	Examples   map[EventType]map[string]any     `json:"examples"`
}

var (
	describeOnce sync.Once
	description  *Description
)

// Describe returns the event type list, a JSON schema per meta struct and one
// example payload per type. The result is built once and shared; callers must
// not modify it.
func Describe() *Description {
	describeOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			ExpandedStruct: true,
			DoNotReference: true,
		}
		schemas := make(map[EventType]*jsonschema.Schema, len(Types))
		for _, t := range Types {
			s := reflector.Reflect(newMeta(t))
			s.Version = ""
			schemas[t] = s
		}
		description = &Description{
			EventTypes: append([]EventType(nil), Types...),
			MetaSchema: schemas,
			Examples:   examples(),
		}
	})
	return description
}

func examples() map[EventType]map[string]any {
	return map[EventType]map[string]any{
		TypePIIInput: {
			"type": "pii_input",
			"url":  "https://example.com/signup",
			"meta": map[string]any{"fields": []string{"email", "phone"}, "count": 2, "has_email": true, "has_phone": true},
		},
		TypePayment: {
			"type": "payment",
			"url":  "https://pay.example.com/checkout",
			"meta": map[string]any{"amount": 49.9, "currency": "USD", "card_present": true, "merchant_domain": "example.com"},
		},
		TypeDownload: {
			"type": "download",
			"url":  "https://files.example.com/setup.exe",
			"meta": map[string]any{"filename": "setup.exe", "file_ext": "exe", "size_bytes": 204800},
		},
		TypeLogin: {
			"type": "login",
			"url":  "https://login.example.com",
			"meta": map[string]any{"username_present": true, "form_action_domain": "evil.com", "page_domain": "login.example.com"},
		},
		TypePasswordInput: {
			"type": "password_input",
			"url":  "https://login.example.com",
			"meta": map[string]any{"password_field_present": true, "form_action_domain": "login.example.com", "page_domain": "login.example.com"},
		},
		TypeClipboard: {
			"type": "clipboard",
			"url":  "https://example.com",
			"meta": map[string]any{"action": "write", "contains_crypto_address": true},
		},
		TypeRedirect: {
			"type": "redirect",
			"url":  "https://example.com",
			"meta": map[string]any{"chain_length": 4, "final_domain": "final.example.com"},
		},
		TypeFormSubmit: {
			"type": "form_submit",
			"url":  "https://example.com/upload",
			"meta": map[string]any{"form_action_domain": "example.com", "page_domain": "example.com", "has_file_upload": true},
		},
	}
}
