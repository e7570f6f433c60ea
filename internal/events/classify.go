package events

import "strings"

// Reason tags emitted by Classify.
const (
	ReasonPIIFieldsPresent       = "pii_fields_present"
	ReasonMultiplePIIFields      = "multiple_pii_fields"
	ReasonSSNPresent             = "ssn_present"
	ReasonPhonePresent           = "phone_present"
	ReasonEmailPresent           = "email_present"
	ReasonAddressPresent         = "address_present"
	ReasonCardPresent            = "card_present"
	ReasonPaymentAmountPresent   = "payment_amount_present"
	ReasonCardBINPresent         = "card_bin_present"
	ReasonMerchantDomainPresent  = "merchant_domain_present"
	ReasonDownloadFilename       = "download_filename_present"
	ReasonDownloadExt            = "download_ext_present"
	ReasonDownloadRiskyExtension = "download_risky_extension"
	ReasonDownloadFromNewDomain  = "download_from_new_domain"
	ReasonUsernamePresent        = "username_present"
	ReasonPasswordPresent        = "password_present"
	ReasonFormActionMismatch     = "form_action_domain_mismatch"
	ReasonClipboardWrite         = "clipboard_write"
	ReasonCryptoAddressPresent   = "crypto_address_present"
	ReasonRedirectChainLong      = "redirect_chain_long"
	ReasonRedirectFinalDomain    = "redirect_final_domain_present"
	ReasonFileUploadPresent      = "file_upload_present"
	ReasonPaymentFieldsPresent   = "payment_fields_present"
)

const (
	multiplePIIThreshold = 3
	longRedirectChain    = 3
)

var riskyExtensions = map[string]struct{}{
	"exe": {}, "msi": {}, "bat": {}, "cmd": {},
	"js": {}, "vbs": {}, "ps1": {}, "scr": {},
}

// IsRiskyExtension reports whether ext (without dot, any case) is an
// executable or script type.
func IsRiskyExtension(ext string) bool {
	_, ok := riskyExtensions[strings.ToLower(ext)]
	return ok
}

// Classify returns the reason tags for an event of type t. The first tag is
// always the type itself; rule tags follow in fixed per-type order. A nil meta,
// or a meta that belongs to another type, yields only the type tag.
func Classify(t EventType, meta Meta) []string {
	reasons := []string{string(t)}

	switch m := meta.(type) {
	case *PIIInputMeta:
		if t == TypePIIInput && m != nil {
			reasons = classifyPIIInput(reasons, m)
		}
	case *PaymentMeta:
		if t == TypePayment && m != nil {
			reasons = classifyPayment(reasons, m)
		}
	case *DownloadMeta:
		if t == TypeDownload && m != nil {
			reasons = classifyDownload(reasons, m)
		}
	case *LoginMeta:
		if t == TypeLogin && m != nil {
			reasons = appendIf(reasons, isTrue(m.UsernamePresent), ReasonUsernamePresent)
			reasons = appendIf(reasons, domainMismatch(m.FormActionDomain, m.PageDomain), ReasonFormActionMismatch)
		}
	case *PasswordInputMeta:
		if t == TypePasswordInput && m != nil {
			reasons = appendIf(reasons, isTrue(m.PasswordFieldPresent), ReasonPasswordPresent)
			reasons = appendIf(reasons, domainMismatch(m.FormActionDomain, m.PageDomain), ReasonFormActionMismatch)
		}
	case *ClipboardMeta:
		if t == TypeClipboard && m != nil {
			reasons = appendIf(reasons, m.Action != nil && *m.Action == ClipboardWrite, ReasonClipboardWrite)
			reasons = appendIf(reasons, isTrue(m.ContainsCryptoAddress), ReasonCryptoAddressPresent)
		}
	case *RedirectMeta:
		if t == TypeRedirect && m != nil {
			reasons = appendIf(reasons, m.ChainLength != nil && *m.ChainLength >= longRedirectChain, ReasonRedirectChainLong)
			reasons = appendIf(reasons, nonEmpty(m.FinalDomain), ReasonRedirectFinalDomain)
		}
	case *FormSubmitMeta:
		if t == TypeFormSubmit && m != nil {
			reasons = appendIf(reasons, domainMismatch(m.FormActionDomain, m.PageDomain), ReasonFormActionMismatch)
			reasons = appendIf(reasons, isTrue(m.HasFileUpload), ReasonFileUploadPresent)
			reasons = appendIf(reasons, isTrue(m.HasPaymentFields), ReasonPaymentFieldsPresent)
		}
	}

	return reasons
}

func classifyPIIInput(reasons []string, m *PIIInputMeta) []string {
	reasons = appendIf(reasons, len(m.Fields) > 0, ReasonPIIFieldsPresent)
	reasons = appendIf(reasons, m.Count != nil && *m.Count >= multiplePIIThreshold, ReasonMultiplePIIFields)
	reasons = appendIf(reasons, isTrue(m.HasSSN), ReasonSSNPresent)
	reasons = appendIf(reasons, isTrue(m.HasPhone), ReasonPhonePresent)
	reasons = appendIf(reasons, isTrue(m.HasEmail), ReasonEmailPresent)
	return appendIf(reasons, isTrue(m.HasAddress), ReasonAddressPresent)
}

func classifyPayment(reasons []string, m *PaymentMeta) []string {
	reasons = appendIf(reasons, isTrue(m.CardPresent), ReasonCardPresent)
	// Zero is not an amount.
	reasons = appendIf(reasons, m.Amount != nil && *m.Amount != 0, ReasonPaymentAmountPresent)
	reasons = appendIf(reasons, nonEmpty(m.CardBIN), ReasonCardBINPresent)
	return appendIf(reasons, nonEmpty(m.MerchantDomain), ReasonMerchantDomainPresent)
}

func classifyDownload(reasons []string, m *DownloadMeta) []string {
	reasons = appendIf(reasons, nonEmpty(m.Filename), ReasonDownloadFilename)
	reasons = appendIf(reasons, nonEmpty(m.FileExt), ReasonDownloadExt)
	reasons = appendIf(reasons, nonEmpty(m.FileExt) && IsRiskyExtension(*m.FileExt), ReasonDownloadRiskyExtension)
	return appendIf(reasons, isTrue(m.FromNewDomain), ReasonDownloadFromNewDomain)
}

// domainMismatch is true only when both domains are present and differ.
func domainMismatch(formAction, page *string) bool {
	return nonEmpty(formAction) && nonEmpty(page) && *formAction != *page
}

func appendIf(reasons []string, cond bool, reason string) []string {
	if cond {
		return append(reasons, reason)
	}
	return reasons
}

func isTrue(b *bool) bool { return b != nil && *b }

func nonEmpty(s *string) bool { return s != nil && *s != "" }
