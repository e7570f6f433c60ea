package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mbd888/pagewatch/internal/validation"
)

// timeLayouts are tried in order for string timestamps. Layouts without a
// zone are interpreted as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Unix timestamps above this magnitude are taken as milliseconds.
const unixMillisCutoff = 2e10

// DecodeEvent parses and validates a single event body.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, AsValidation(err)
	}
	return &e, nil
}

// UnmarshalJSON decodes the discriminated union. It returns
// validation.ValidationErrors describing every field problem found.
func (e *Event) UnmarshalJSON(data []byte) error {
	raw, errs := decodeObject(data)
	if errs != nil {
		return errs
	}
	ev, errs := decodeEventFields(raw)
	if len(errs) > 0 {
		return errs
	}
	*e = ev
	return nil
}

// UnmarshalJSON decodes an event carrying a required "ts".
func (e *BatchEvent) UnmarshalJSON(data []byte) error {
	raw, errs := decodeObject(data)
	if errs != nil {
		return errs
	}
	ev, errs := decodeEventFields(raw)

	ts, tsErr := requiredTime(raw, "ts")
	if tsErr != nil {
		errs = append(errs, *tsErr)
	}
	if len(errs) > 0 {
		return errs
	}
	*e = BatchEvent{Event: ev, TS: ts}
	return nil
}

// MarshalJSON renders the event with its timestamp normalized to UTC.
func (e BatchEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TS   string    `json:"ts"`
		Type EventType `json:"type"`
		URL  string    `json:"url"`
		Meta Meta      `json:"meta,omitempty"`
	}{FormatTime(e.TS), e.Type, e.URL, e.Meta})
}

func decodeObject(data []byte) (map[string]json.RawMessage, validation.ValidationErrors) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, validation.ValidationErrors{{Field: "body", Message: "input should be a valid object"}}
	}
	return raw, nil
}

func decodeEventFields(raw map[string]json.RawMessage) (Event, validation.ValidationErrors) {
	var (
		ev   Event
		errs validation.ValidationErrors
	)

	typeStr, verr := requiredString(raw, "type")
	switch {
	case verr != nil:
		errs = append(errs, *verr)
	default:
		t, err := ParseType(typeStr)
		if err != nil {
			errs.Add("type", err.Error())
		}
		ev.Type = t
	}

	urlStr, verr := requiredString(raw, "url")
	if verr != nil {
		errs = append(errs, *verr)
	} else if verr := validation.AbsoluteURL("url", urlStr)(); verr != nil {
		errs = append(errs, *verr)
	} else {
		ev.URL = strings.TrimSpace(urlStr)
	}

	// The meta shape can only be checked once the discriminator is known.
	if rawMeta, ok := raw["meta"]; ok && ev.Type != "" && !isNull(rawMeta) {
		meta, metaErrs := decodeMeta(ev.Type, rawMeta)
		if len(metaErrs) > 0 {
			errs = append(errs, metaErrs.Prefixed("meta")...)
		} else {
			ev.Meta = meta
		}
	}

	return ev, errs
}

// decodeMeta decodes raw into the meta struct owned by t.
func decodeMeta(t EventType, raw json.RawMessage) (Meta, validation.ValidationErrors) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, validation.ValidationErrors{{Message: "input should be a valid object"}}
	}

	meta := newMeta(t)
	if err := json.Unmarshal(trimmed, meta); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, validation.ValidationErrors{{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("input should be a valid %s, got %s", typeErr.Type.String(), typeErr.Value),
			}}
		}
		return nil, validation.ValidationErrors{{Message: "invalid meta: " + err.Error()}}
	}

	var errs validation.ValidationErrors
	if m, ok := meta.(*ClipboardMeta); ok && m.Action != nil {
		if *m.Action != ClipboardRead && *m.Action != ClipboardWrite {
			errs.Add("action", "input should be 'read' or 'write'")
		}
	}
	return meta, errs
}

// ParseType returns s as a client-submittable EventType.
func ParseType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("input tag '%s' does not match any of the expected tags: %s", s, expectedTags())
	}
	return t, nil
}

// ParseTime decodes a JSON timestamp: an RFC 3339-like string (zone optional,
// UTC assumed) or a number of Unix seconds (milliseconds above 2e10).
func ParseTime(raw json.RawMessage) (time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return time.Time{}, errors.New("timestamp is null")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	if math.Abs(n) > unixMillisCutoff {
		n /= 1000
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func requiredString(raw map[string]json.RawMessage, field string) (string, *validation.ValidationError) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return "", &validation.ValidationError{Field: field, Message: "field required"}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &validation.ValidationError{Field: field, Message: "input should be a valid string"}
	}
	return s, nil
}

func requiredTime(raw map[string]json.RawMessage, field string) (time.Time, *validation.ValidationError) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return time.Time{}, &validation.ValidationError{Field: field, Message: "field required"}
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, &validation.ValidationError{Field: field, Message: "input should be a valid datetime"}
	}
	return t, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func expectedTags() string {
	quoted := make([]string, len(Types))
	for i, t := range Types {
		quoted[i] = "'" + string(t) + "'"
	}
	return strings.Join(quoted, ", ")
}

// AsValidation converts a decode error into field errors. ValidationErrors
// pass through unchanged; anything else is reported against the body.
func AsValidation(err error) validation.ValidationErrors {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return validation.ValidationErrors{{Field: "body", Message: "JSON decode error: " + err.Error()}}
}
