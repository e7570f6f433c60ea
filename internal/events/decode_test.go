package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mbd888/pagewatch/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verrs validation.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	out := make([]string, len(verrs))
	for i, v := range verrs {
		out[i] = v.Field
	}
	return out
}

func TestDecodeEvent(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"type":"clipboard","url":"https://example.com","meta":{"action":"write","contains_crypto_address":true}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeClipboard, e.Type)
	assert.Equal(t, "https://example.com", e.URL)

	m, ok := e.Meta.(*ClipboardMeta)
	require.True(t, ok)
	assert.Equal(t, "write", *m.Action)
	assert.True(t, *m.ContainsCryptoAddress)
}

func TestDecodeEvent_NullMeta(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"type":"login","url":"https://login.example.com","meta":null}`))
	require.NoError(t, err)
	assert.Nil(t, e.Meta)
	assert.Equal(t, []string{"login"}, e.Reasons())
}

func TestDecodeEvent_UnknownMetaKeysIgnored(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"type":"redirect","url":"https://a.com","meta":{"chain_length":5,"extra":1}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"redirect", "redirect_chain_long"}, e.Reasons())
}

func TestDecodeEvent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"not an object", `[1,2]`, []string{"body"}},
		{"malformed", `{"type":`, []string{"body"}},
		{"missing everything", `{}`, []string{"type", "url"}},
		{"unknown type", `{"type":"teleport","url":"https://a.com"}`, []string{"type"}},
		{"phishing not submittable", `{"type":"phishing","url":"https://a.com"}`, []string{"type"}},
		{"relative url", `{"type":"login","url":"/login"}`, []string{"url"}},
		{"non-string url", `{"type":"login","url":42}`, []string{"url"}},
		{"meta not object", `{"type":"login","url":"https://a.com","meta":"x"}`, []string{"meta"}},
		{"meta wrong field type", `{"type":"redirect","url":"https://a.com","meta":{"chain_length":"four"}}`, []string{"meta.chain_length"}},
		{"bad clipboard action", `{"type":"clipboard","url":"https://a.com","meta":{"action":"cut"}}`, []string{"meta.action"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, tc.fields, fieldsOf(t, err))
		})
	}
}

func TestDecodeEvent_UnknownTypeMessage(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"teleport","url":"https://a.com"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input tag 'teleport'")
	assert.Contains(t, err.Error(), "'form_submit'")
}

func TestBatchEvent_Decode(t *testing.T) {
	var e BatchEvent
	err := json.Unmarshal([]byte(`{"ts":"2024-01-01T00:00:01+02:00","type":"download","url":"https://f.com/a.exe","meta":{"file_ext":"exe"}}`), &e)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 22, 0, 1, 0, time.UTC), e.TS)
	assert.Equal(t, TypeDownload, e.Type)
}

func TestBatchEvent_MissingTS(t *testing.T) {
	var e BatchEvent
	err := json.Unmarshal([]byte(`{"type":"download","url":"https://f.com"}`), &e)
	require.Error(t, err)
	assert.Equal(t, []string{"ts"}, fieldsOf(t, err))
}

func TestBatchEvent_MarshalJSON(t *testing.T) {
	e := BatchEvent{
		Event: Event{Type: TypeRedirect, URL: "https://a.com", Meta: &RedirectMeta{ChainLength: ptr(4)}},
		TS:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ts":"2024-01-01T00:00:00Z","type":"redirect","url":"https://a.com","meta":{"chain_length":4}}`, string(data))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2024-01-01T00:00:00Z"`, want},
		{`"2024-01-01T00:00:00"`, want},
		{`"2024-01-01 00:00:00"`, want},
		{`"2024-01-01"`, want},
		{`"2024-01-01T01:00:00+01:00"`, want},
		{`1704067200`, want},
		{`1704067200000`, want},
		{`1704067200.5`, want.Add(500 * time.Millisecond)},
	}
	for _, tc := range tests {
		got, err := ParseTime(json.RawMessage(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.True(t, tc.want.Equal(got), "%s: got %s", tc.raw, got)
	}

	for _, bad := range []string{`null`, `"yesterday"`, `true`, `{}`} {
		_, err := ParseTime(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

func TestDescribe(t *testing.T) {
	d := Describe()
	assert.Equal(t, Types, d.EventTypes)
	for _, typ := range Types {
		assert.NotNil(t, d.MetaSchema[typ], typ)
		example, ok := d.Examples[typ]
		require.True(t, ok, typ)

		// Every example must decode and classify cleanly.
		data, err := json.Marshal(example)
		require.NoError(t, err)
		e, err := DecodeEvent(data)
		require.NoError(t, err, typ)
		assert.Equal(t, string(typ), e.Reasons()[0])
	}

	_, ok := d.MetaSchema[TypeClipboard].Properties.Get("action")
	assert.True(t, ok)
}
