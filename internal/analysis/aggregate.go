// Package analysis classifies single events and aggregates batches of events
// observed on one page, combined with the phishing analyzer's verdict for
// that page.
package analysis

import (
	"slices"

	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/metrics"
)

// EventDetail is one classified event in a batch summary.
type EventDetail struct {
	TS      string   `json:"ts"`
	Type    string   `json:"type"`
	URL     string   `json:"url"`
	Reasons []string `json:"reasons"`
}

// BatchSummary is the derived view of a batch.
type BatchSummary struct {
	TotalEvents int            `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	Reasons     map[string]int `json:"reasons"`

	// Number of events whose reasons contain the tag at least once.
	FormActionDomainMismatchEvents int `json:"form_action_domain_mismatch_events"`
	RiskyDownloadEvents            int `json:"risky_download_events"`
	ClipboardWriteEvents           int `json:"clipboard_write_events"`
	CryptoAddressEvents            int `json:"crypto_address_events"`
	RedirectChainLongEvents        int `json:"redirect_chain_long_events"`
	PaymentFieldsEvents            int `json:"payment_fields_events"`
	FileUploadEvents               int `json:"file_upload_events"`

	EventSequence []string      `json:"event_sequence"`
	Events        []EventDetail `json:"events"`
}

// Aggregate classifies every event and folds the results, preserving
// submission order in EventSequence and Events.
func Aggregate(evs []events.BatchEvent) *BatchSummary {
	s := &BatchSummary{
		TotalEvents:   len(evs),
		EventTypes:    make(map[string]int),
		Reasons:       make(map[string]int),
		EventSequence: make([]string, 0, len(evs)),
		Events:        make([]EventDetail, 0, len(evs)),
	}

	for _, e := range evs {
		reasons := e.Reasons()
		metrics.ObserveClassification(string(e.Type), reasons)

		s.EventTypes[string(e.Type)]++
		for _, r := range reasons {
			s.Reasons[r]++
		}

		countIf(&s.FormActionDomainMismatchEvents, reasons, events.ReasonFormActionMismatch)
		countIf(&s.RiskyDownloadEvents, reasons, events.ReasonDownloadRiskyExtension)
		countIf(&s.ClipboardWriteEvents, reasons, events.ReasonClipboardWrite)
		countIf(&s.CryptoAddressEvents, reasons, events.ReasonCryptoAddressPresent)
		countIf(&s.RedirectChainLongEvents, reasons, events.ReasonRedirectChainLong)
		countIf(&s.PaymentFieldsEvents, reasons, events.ReasonPaymentFieldsPresent)
		countIf(&s.FileUploadEvents, reasons, events.ReasonFileUploadPresent)

		s.EventSequence = append(s.EventSequence, string(e.Type))
		s.Events = append(s.Events, EventDetail{
			TS:      events.FormatTime(e.TS),
			Type:    string(e.Type),
			URL:     e.URL,
			Reasons: reasons,
		})
	}

	metrics.BatchSize.Observe(float64(len(evs)))
	return s
}

func countIf(counter *int, reasons []string, tag string) {
	if slices.Contains(reasons, tag) {
		*counter++
	}
}
