package caldav

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <response>
    <href>/calendars/bob/work/</href>
    <propstat>
      <prop><C:calendar-description/></prop>
      <status>HTTP/1.1 404 Not Found</status>
    </propstat>
    <propstat>
      <prop>
        <displayname> Work </displayname>
        <C:calendar-description>Work items</C:calendar-description>
      </prop>
      <status>HTTP/1.1 200 OK</status>
    </propstat>
  </response>
</multistatus>`

func TestFollowTreeTakesFirstMatch(t *testing.T) {
	root, err := parseTree(strings.NewReader(sampleMultistatus))
	require.NoError(t, err)

	_, err = followTree(root, "response.propstat.prop.displayname", nsDAV)
	assert.ErrorIs(t, err, ErrMissingNode, "first propstat is the 404 one")

	href, err := followTree(root, "response.href", nsDAV)
	require.NoError(t, err)
	assert.Equal(t, "/calendars/bob/work/", href.trimmed())

	_, err = followTree(root, "response.href", nsCalDAV)
	assert.ErrorIs(t, err, ErrMissingNode, "names match by namespace as well as local name")
}

func TestFindProp(t *testing.T) {
	root, err := parseTree(strings.NewReader(sampleMultistatus))
	require.NoError(t, err)
	resps, err := responses(root)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	name := findProp(resps[0], "displayname", nsDAV)
	require.NotNil(t, name)
	assert.Equal(t, "Work", name.trimmed())

	desc := findProp(resps[0], "calendar-description", nsCalDAV)
	require.NotNil(t, desc)
	assert.Equal(t, "Work items", desc.trimmed(), "the 404 propstat is skipped")

	assert.Nil(t, findProp(resps[0], "getctag", nsCalServer))
}

func TestParseTreeErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "<a><b></a>", "not xml at all"} {
		_, err := parseTree(strings.NewReader(in))
		assert.Error(t, err, "%q", in)
	}
}

func TestRequestBodies(t *testing.T) {
	root, err := parseTree(strings.NewReader(todoQueryBody(FilterIncomplete)))
	require.NoError(t, err)
	assert.True(t, root.is("calendar-query", nsCalDAV))
	match, err := followTree(root, "filter.comp-filter.comp-filter.prop-filter.text-match", nsCalDAV)
	require.NoError(t, err)
	assert.Equal(t, "100", match.trimmed())
	assert.Equal(t, "yes", match.attr("negate-condition"))
	assert.Equal(t, "i;ascii-numeric", match.attr("collation"))

	root, err = parseTree(strings.NewReader(propfindBody(calendarProps)))
	require.NoError(t, err)
	prop, err := followTree(root, "prop", nsDAV)
	require.NoError(t, err)
	assert.NotNil(t, prop.child("getctag", nsCalServer))
	assert.NotNil(t, prop.child("calendar-color", nsApple))
	assert.NotNil(t, prop.child("supported-calendar-component-set", nsCalDAV))
}

func TestColor(t *testing.T) {
	testCases := []struct {
		color  string
		want   string
		swatch string
	}{
		{color: "#FF2968FF", want: "#FF2968FF", swatch: "\x1b[48;2;255;41;104m  \x1b[0m"},
		{color: "#0000ff", want: "#0000ff", swatch: "\x1b[48;2;0;0;255m  \x1b[0m"},
		{color: "", want: DefaultColor, swatch: "\x1b[48;2;255;255;255m  \x1b[0m"},
		{color: "blue", want: "blue", swatch: "\x1b[48;2;255;255;255m  \x1b[0m"},
	}
	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			cal := newCalendar("https://example.com/cal/", Metadata{Name: "c", Color: tc.color})
			assert.Equal(t, tc.want, cal.Color())
			assert.Equal(t, tc.swatch, cal.Swatch())
		})
	}
}
