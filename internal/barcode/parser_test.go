package barcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Parse(t *testing.T) {
	p := DefaultParser()

	tests := []struct {
		name      string
		raw       string
		wantNil   bool
		value     string
		prefix    string
		docNumber string
	}{
		{name: "plain", raw: "SH25001367", value: "SH25001367", prefix: "SH", docNumber: "25001367"},
		{name: "trim and upper", raw: "  sh-2500-1367 \t", value: "SH-2500-1367", prefix: "SH", docNumber: "25001367"},
		{name: "four letters mixed separators", raw: "ABCD/123.456_7", value: "ABCD/123.456_7", prefix: "ABCD", docNumber: "1234567"},
		{name: "three letters underscore", raw: "inv_42", value: "INV_42", prefix: "INV", docNumber: "42"},
		{name: "one letter", raw: "A123", wantNil: true},
		{name: "five letters", raw: "ABCDE123", wantNil: true},
		{name: "no digits", raw: "SH", wantNil: true},
		{name: "dangling separator", raw: "SH-", wantNil: true},
		{name: "double separator", raw: "SH--123", wantNil: true},
		{name: "trailing separator", raw: "SH123-", wantNil: true},
		{name: "digits first", raw: "123SH", wantNil: true},
		{name: "embedded text", raw: "XSH123Y", wantNil: true},
		{name: "empty", raw: "   ", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.value, got.Value)
			assert.Equal(t, tt.prefix, got.Prefix)
			assert.Equal(t, tt.docNumber, got.DocNumber)
		})
	}
}

func TestParser_CanonicalIDReconstructsValue(t *testing.T) {
	p := DefaultParser()
	for _, raw := range []string{"SH25001367", "po-1-2-3", "ABCD.99/01", "qa_7"} {
		res := p.Parse(raw)
		require.NotNil(t, res, raw)
		want := stripSeparators(strings.ToUpper(raw))
		assert.Equal(t, want, res.CanonicalID(), raw)
	}
}

func TestParser_RuleOrder(t *testing.T) {
	p, err := NewParser([]Rule{
		{Name: "invoice", Pattern: `(?P<prefix>IN)V(?P<number>[0-9]{4})`},
		{Name: "fallback", Pattern: DefaultPattern},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice", "fallback"}, p.RuleNames())

	res := p.Parse("INV1234")
	require.NotNil(t, res)
	assert.Equal(t, "IN", res.Prefix)
	assert.Equal(t, "1234", res.DocNumber)

	res = p.Parse("INV12345")
	require.NotNil(t, res)
	assert.Equal(t, "INV", res.Prefix)
	assert.Equal(t, "12345", res.DocNumber)
}

func TestNewParser_Errors(t *testing.T) {
	_, err := NewParser(nil)
	assert.Error(t, err)

	_, err = NewParser([]Rule{{Name: "bad", Pattern: `(?P<prefix>[A-Z`}})
	assert.ErrorContains(t, err, `rule "bad"`)

	_, err = NewParser([]Rule{{Pattern: `(?P<prefix>[A-Z]+)[0-9]+`}})
	assert.ErrorContains(t, err, `rule "rule1"`)
}
