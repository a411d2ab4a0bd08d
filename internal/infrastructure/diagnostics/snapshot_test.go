package diagnostics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSnapshot_RemovesScripts(t *testing.T) {
	raw := `<html><head><script>window.secret = 1</script><style>.x{}</style></head>
<body><div id="main">Hello</div><script>alert("hi")</script><noscript>js off</noscript></body></html>`

	out := SanitizeSnapshot(raw, nil)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "window.secret")
	assert.NotContains(t, out, "<noscript")
	assert.Contains(t, out, `id="main"`)
	assert.Contains(t, out, "<style>", "styles are kept so the snapshot renders")
}

func TestSanitizeSnapshot_RemovesCommentsAndHandlers(t *testing.T) {
	raw := `<body><!-- build 123 --><button onclick="steal()" data-testid="LoginForm_Login_Button">Log in</button></body>`

	out := SanitizeSnapshot(raw, nil)

	assert.NotContains(t, out, "build 123")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, `data-testid="LoginForm_Login_Button"`)
}

func TestSanitizeSnapshot_RedactsTypedValues(t *testing.T) {
	raw := `<body><form>
		<input name="text" value="alice">
		<input type="password" name="password" value="hunter2">
		<input type="submit" value="">
		<textarea name="note">my secret note</textarea>
	</form></body>`

	out := SanitizeSnapshot(raw, nil)

	assert.NotContains(t, out, "alice")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "my secret note")
	assert.Equal(t, 3, strings.Count(out, redacted))
	assert.Contains(t, out, `name="password"`)
}

func TestSanitizeSnapshot_Truncates(t *testing.T) {
	raw := "<body>" + strings.Repeat("<p>row</p>", 1000) + "</body>"
	out := SanitizeSnapshot(raw, &SnapshotConfig{MaxOutputSize: 100})
	assert.True(t, strings.HasSuffix(out, "<!-- snapshot truncated -->"))
	assert.Less(t, len(out), 200)
}

func TestSanitizeSnapshot_TruncatesOnRuneBoundary(t *testing.T) {
	raw := "<body><p>" + strings.Repeat("日本語テキスト", 200) + "</p></body>"
	for size := 90; size < 100; size++ {
		out := SanitizeSnapshot(raw, &SnapshotConfig{MaxOutputSize: size})
		assert.True(t, utf8.ValidString(out), "max size %d", size)
		assert.True(t, strings.HasSuffix(out, "<!-- snapshot truncated -->"))
	}
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))
	assert.Equal(t, "ab", truncateUTF8("abcdef", 2))
	assert.Equal(t, "a", truncateUTF8("a€b", 3), "three-byte rune does not fit")
	assert.Equal(t, "a€", truncateUTF8("a€b", 4))
	assert.Equal(t, "", truncateUTF8("😀", 3))
}

func TestInventory_LongTextStaysValidUTF8(t *testing.T) {
	label := strings.Repeat("ü", 100)
	fields := Inventory(`<body><button>` + label + `</button></body>`)

	assert.Len(t, fields, 1)
	assert.True(t, utf8.ValidString(fields[0].Text))
	assert.LessOrEqual(t, len(fields[0].Text), maxFieldText)
	assert.Equal(t, strings.Repeat("ü", maxFieldText/2), fields[0].Text)
}

func TestInventory(t *testing.T) {
	raw := `<body>
		<input type="hidden" name="csrf" value="x">
		<input autocomplete="username" name="text" type="text" value="alice">
		<div style="display:none"><input name="ghost"></div>
		<div role="button" data-testid="next"><span>Next</span></div>
		<button aria-label="Close">X</button>
	</body>`

	fields := Inventory(raw)

	assert.Len(t, fields, 3)
	assert.Equal(t, "input", fields[0].Tag)
	assert.Equal(t, "username", fields[0].Autocomplete)
	assert.Empty(t, fields[0].Text, "input values are never copied into the inventory")
	assert.Equal(t, "next", fields[1].TestID)
	assert.Equal(t, "Next", fields[1].Text)
	assert.Equal(t, "Close", fields[2].Text)
}
