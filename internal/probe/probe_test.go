package probe

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsharma/form_tail/internal/tracking"
)

func TestScriptsEmbedded(t *testing.T) {
	assert.Contains(t, Script(), BindingName)
	assert.Contains(t, Script(), "attributeOldValue: true")
	assert.Contains(t, Script(), "window.__formTail = { scan: scan }")
	for _, marker := range tracking.SuccessMarkers {
		assert.Contains(t, Script(), marker)
		assert.Contains(t, DiagnoseScript(), marker)
	}
	assert.Contains(t, RescanExpression, "__formTail.scan()")
}

func TestDecodeRegister(t *testing.T) {
	payload := `{"type":"register","forms":[{
		"key":"contact","id":"contact","index":0,"action":"https://example.com/submit",
		"hasParent":true,"hasWrapper":true,"fields":3,"submitButtons":1,
		"indicators":[{"scope":"wrapper","tag":"DIV","classes":["w-form-done"],
			"display":"block","visibility":"visible","opacity":"1","text":"Thank you!"}]}]}`

	m, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageRegister, m.Type)
	require.Len(t, m.Forms, 1)

	snap := m.Forms[0]
	assert.Equal(t, "contact", snap.Key)
	assert.True(t, snap.HasWrapper)
	assert.Equal(t, 1, snap.SubmitButtons)
	require.Len(t, snap.Indicators, 1)
	assert.Equal(t, tracking.ScopeWrapper, snap.Indicators[0].Scope)
	assert.True(t, tracking.HasPreexistingSuccess(snap.Indicators))
}

func TestDecodeInteraction(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    tracking.InteractionKind
		valid   *bool
	}{
		{
			name:    "click",
			payload: `{"type":"interaction","form":"form_0","kind":"click"}`,
			kind:    tracking.InteractionClick,
		},
		{
			name:    "submit click with validity",
			payload: `{"type":"interaction","form":"form_0","kind":"submit_click","buttonText":"Send","valid":false}`,
			kind:    tracking.InteractionSubmitClick,
			valid:   new(bool),
		},
		{
			name:    "submit click without validity",
			payload: `{"type":"interaction","form":"form_0","kind":"submit_click","buttonText":"Send","valid":null}`,
			kind:    tracking.InteractionSubmitClick,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, "form_0", m.Form)
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.valid, m.Valid)
		})
	}
}

func TestDecodeMutations(t *testing.T) {
	payload := `{"type":"mutations","form":"contact","records":[
		{"type":"attributes","attributeName":"style","oldValue":"display: none;","scope":"parent",
		 "target":{"tag":"DIV","classes":["w-form-done"],"inlineDisplay":"block"}},
		{"type":"childList","oldValue":null,"scope":"form","target":{"tag":"FORM","classes":[],"inlineDisplay":""}}]}`

	m, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, m.Records, 2)

	style := m.Records[0]
	require.NotNil(t, style.OldValue)
	assert.Equal(t, "display: none;", *style.OldValue)
	assert.True(t, tracking.Classify(style, tracking.TransitionDiff).IsSuccess())

	assert.Nil(t, m.Records[1].OldValue)
	assert.Equal(t, tracking.MutationChildList, m.Records[1].Type)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"bogus"}`},
		{"interaction without form", `{"type":"interaction","kind":"click"}`},
		{"unknown kind", `{"type":"interaction","form":"f","kind":"hover"}`},
		{"mutations without form", `{"type":"mutations","records":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			assert.Error(t, err)
		})
	}

	_, err := Decode(`{"type":"mutations"}`)
	assert.ErrorIs(t, err, ErrMissingForm)
}

func TestDecodePageAndScroll(t *testing.T) {
	m, err := Decode(`{"type":"page","url":"https://example.com/contact?x=1","path":"/contact","title":"Contact"}`)
	require.NoError(t, err)
	assert.Equal(t, "/contact", m.Path)
	assert.Equal(t, "Contact", m.Title)

	m, err = Decode(`{"type":"scroll","percent":52}`)
	require.NoError(t, err)
	assert.Equal(t, 52, m.Percent)

	m, err = Decode(`{"type":"unload"}`)
	require.NoError(t, err)
	assert.Equal(t, MessageUnload, m.Type)
}

func TestReport(t *testing.T) {
	raw := []byte(`{"url":"https://example.com/","title":"Home","forms":[
		{"index":0,"id":"contact","classes":"form","action":"/submit","fields":3,
		 "indicators":[{"tag":"DIV","classes":"w-form-done","display":"none","visibility":"visible","opacity":"1","text":"Thanks","visible":false}],
		 "hasWrapper":true,"wrapperMatches":1},
		{"index":1,"id":"","classes":"","action":"","fields":1,
		 "indicators":[{"tag":"DIV","classes":"w-form-done","display":"block","visibility":"visible","opacity":"1","text":"Thanks","visible":true}],
		 "hasWrapper":false,"wrapperMatches":0}]}`)

	r, err := ParseReport(raw)
	require.NoError(t, err)
	require.Len(t, r.Forms, 2)
	assert.False(t, r.Forms[0].VisibleOnLoad())
	assert.True(t, r.Forms[1].VisibleOnLoad())
	require.Len(t, r.Problems(), 1)
	assert.Equal(t, 1, r.Problems()[0].Index)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "Found 2 forms")
	assert.Contains(t, out, "ID:      contact")
	assert.Contains(t, out, "ID:      (no id)")
	assert.Contains(t, out, "VISIBLE ON LOAD")
	assert.Contains(t, out, "Webflow wrapper: 1")
	assert.Equal(t, 1, strings.Count(out, "show a success message on load"))

	_, err = ParseReport([]byte(`[`))
	assert.Error(t, err)
}
