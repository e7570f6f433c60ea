// Package events defines the behavioral events observed on a web page and the
// fixed per-type rules that turn each event into reason tags.
//
// An event is a discriminated union: its "type" selects which meta struct its
// optional "meta" payload decodes into. Decoding validates the shape, so the
// classifier only ever sees well-typed input and never fails.
package events

import "time"

// EventType identifies the kind of client-side action.
type EventType string

const (
	TypePIIInput      EventType = "pii_input"
	TypePayment       EventType = "payment"
	TypeDownload      EventType = "download"
	TypeLogin         EventType = "login"
	TypePasswordInput EventType = "password_input"
	TypeClipboard     EventType = "clipboard"
	TypeRedirect      EventType = "redirect"
	TypeFormSubmit    EventType = "form_submit"
)

// TypePhishing marks events synthesized by the server from a phishing verdict.
// Clients cannot submit it.
const TypePhishing EventType = "phishing"

// Types lists the client-submittable event types in canonical order.
var Types = []EventType{
	TypePIIInput,
	TypePayment,
	TypeDownload,
	TypeLogin,
	TypePasswordInput,
	TypeClipboard,
	TypeRedirect,
	TypeFormSubmit,
}

// Valid reports whether t is one of the client-submittable types.
func (t EventType) Valid() bool {
	switch t {
	case TypePIIInput, TypePayment, TypeDownload, TypeLogin,
		TypePasswordInput, TypeClipboard, TypeRedirect, TypeFormSubmit:
		return true
	}
	return false
}

// Meta is the type-specific payload of an event. Only the meta structs in
// this package implement it.
type Meta interface {
	EventType() EventType
}

// PIIInputMeta describes personal data typed into a form.
type PIIInputMeta struct {
	Fields     []string `json:"fields,omitempty"`
	Count      *int     `json:"count,omitempty"`
	HasSSN     *bool    `json:"has_ssn,omitempty"`
	HasPhone   *bool    `json:"has_phone,omitempty"`
	HasEmail   *bool    `json:"has_email,omitempty"`
	HasAddress *bool    `json:"has_address,omitempty"`
}

// PaymentMeta describes a checkout attempt.
type PaymentMeta struct {
	Amount         *float64 `json:"amount,omitempty"`
	Currency       *string  `json:"currency,omitempty"`
	CardBIN        *string  `json:"card_bin,omitempty"`
	CardPresent    *bool    `json:"card_present,omitempty"`
	MerchantDomain *string  `json:"merchant_domain,omitempty"`
}

// DownloadMeta describes a file download.
type DownloadMeta struct {
	Filename      *string `json:"filename,omitempty"`
	FileExt       *string `json:"file_ext,omitempty"`
	MIME          *string `json:"mime,omitempty"`
	SizeBytes     *int64  `json:"size_bytes,omitempty"`
	FromNewDomain *bool   `json:"from_new_domain,omitempty"`
}

// LoginMeta describes a login form interaction.
type LoginMeta struct {
	UsernamePresent   *bool   `json:"username_present,omitempty"`
	UsernameFieldName *string `json:"username_field_name,omitempty"`
	FormActionDomain  *string `json:"form_action_domain,omitempty"`
	PageDomain        *string `json:"page_domain,omitempty"`
}

// PasswordInputMeta describes typing into a password field.
type PasswordInputMeta struct {
	PasswordFieldPresent *bool   `json:"password_field_present,omitempty"`
	Strength             *string `json:"strength,omitempty"`
	FormActionDomain     *string `json:"form_action_domain,omitempty"`
	PageDomain           *string `json:"page_domain,omitempty"`
}

// Clipboard actions.
const (
	ClipboardRead  = "read"
	ClipboardWrite = "write"
)

// ClipboardMeta describes a clipboard access.
type ClipboardMeta struct {
	Action                *string `json:"action,omitempty" jsonschema:"enum=read,enum=write"`
	ContainsCryptoAddress *bool   `json:"contains_crypto_address,omitempty"`
}

// RedirectMeta describes a redirect chain the page went through.
type RedirectMeta struct {
	ChainLength *int    `json:"chain_length,omitempty"`
	FinalDomain *string `json:"final_domain,omitempty"`
}

// FormSubmitMeta describes a form submission.
type FormSubmitMeta struct {
	FormActionDomain *string `json:"form_action_domain,omitempty"`
	PageDomain       *string `json:"page_domain,omitempty"`
	HasFileUpload    *bool   `json:"has_file_upload,omitempty"`
	HasPaymentFields *bool   `json:"has_payment_fields,omitempty"`
}

func (*PIIInputMeta) EventType() EventType      { return TypePIIInput }
func (*PaymentMeta) EventType() EventType       { return TypePayment }
func (*DownloadMeta) EventType() EventType      { return TypeDownload }
func (*LoginMeta) EventType() EventType         { return TypeLogin }
func (*PasswordInputMeta) EventType() EventType { return TypePasswordInput }
func (*ClipboardMeta) EventType() EventType     { return TypeClipboard }
func (*RedirectMeta) EventType() EventType      { return TypeRedirect }
func (*FormSubmitMeta) EventType() EventType    { return TypeFormSubmit }

// newMeta returns an empty meta struct for t, or nil for unknown types.
func newMeta(t EventType) Meta {
	switch t {
	case TypePIIInput:
		return &PIIInputMeta{}
	case TypePayment:
		return &PaymentMeta{}
	case TypeDownload:
		return &DownloadMeta{}
	case TypeLogin:
		return &LoginMeta{}
	case TypePasswordInput:
		return &PasswordInputMeta{}
	case TypeClipboard:
		return &ClipboardMeta{}
	case TypeRedirect:
		return &RedirectMeta{}
	case TypeFormSubmit:
		return &FormSubmitMeta{}
	}
	return nil
}

// Event is one observed client-side action.
type Event struct {
	Type EventType `json:"type"`
	URL  string    `json:"url"`
	Meta Meta      `json:"meta,omitempty"`
}

// BatchEvent is an Event with the time it was observed.
type BatchEvent struct {
	Event
	TS time.Time `json:"-"`
}

// Reasons classifies the event.
func (e *Event) Reasons() []string {
	return Classify(e.Type, e.Meta)
}

// FormatTime renders t as UTC RFC 3339 with sub-second precision when present.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
