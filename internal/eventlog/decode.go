package eventlog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/validation"
)

// DecodeStoredEvent parses a client-submitted stored event. ts, type and url
// are required; meta, reasons and ok are optional. Clients cannot submit the
// phishing type.
func DecodeStoredEvent(data []byte) (StoredEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return StoredEvent{}, validation.ValidationErrors{{Field: "body", Message: "input should be a valid object"}}
	}

	var (
		e    StoredEvent
		errs validation.ValidationErrors
	)

	if v, ok := present(raw, "ts"); !ok {
		errs.Add("ts", "field required")
	} else if ts, err := events.ParseTime(v); err != nil {
		errs.Add("ts", "input should be a valid datetime")
	} else {
		e.TS = ts
	}

	if s, ok := stringField(raw, "type", &errs); ok {
		t, err := events.ParseType(s)
		if err != nil {
			errs.Add("type", err.Error())
		}
		e.Type = t
	}

	if s, ok := stringField(raw, "url", &errs); ok {
		if verr := validation.AbsoluteURL("url", s)(); verr != nil {
			errs = append(errs, *verr)
		} else {
			e.URL = strings.TrimSpace(s)
		}
	}

	if v, ok := present(raw, "meta"); ok {
		if !isObject(v) || json.Unmarshal(v, &e.Meta) != nil {
			errs.Add("meta", "input should be a valid dictionary")
		}
	}

	if v, ok := present(raw, "reasons"); ok {
		if err := json.Unmarshal(v, &e.Reasons); err != nil {
			errs.Add("reasons", "input should be a valid list of strings")
		}
	}
	if e.Reasons == nil {
		e.Reasons = []string{}
	}

	if v, ok := present(raw, "ok"); ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			errs.Add("ok", "input should be a valid boolean")
		} else {
			e.OK = &b
		}
	}

	if len(errs) > 0 {
		return StoredEvent{}, errs
	}
	return e, nil
}

// DomainRequest is the body of POST /domains.
type DomainRequest struct {
	URL string `json:"url"`
}

// Validate checks the URL is absolute http(s).
func (r DomainRequest) Validate() validation.ValidationErrors {
	return validation.Validate(validation.AbsoluteURL("url", r.URL))
}

// present returns the raw value of key unless it is missing or null.
func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func stringField(raw map[string]json.RawMessage, key string, errs *validation.ValidationErrors) (string, bool) {
	v, ok := present(raw, key)
	if !ok {
		errs.Add(key, "field required")
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		errs.Add(key, "input should be a valid string")
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
