package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func TestExtractJoinsParagraphs(t *testing.T) {
	t.Parallel()

	html := `<html><head><title> Weekly Update </title></head>
<body><p>First point.</p><p>   </p><div><p>Second
   point.</p></div></body></html>`

	title, text, err := New().Extract([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "Weekly Update", title)
	require.Equal(t, "First point. Second point.", text)
}

func TestExtractStripsTrailer(t *testing.T) {
	t.Parallel()

	html := `<title>T</title><p>Body text.</p><p>No posts</p><p>Ready for more?</p>`
	_, text, err := New().Extract([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "Body text.", text)
}

func TestExtractEmptyContent(t *testing.T) {
	t.Parallel()

	title, text, err := New().Extract([]byte(`<html><head><title>Only</title></head><body><div>no paragraphs</div></body></html>`))
	require.ErrorIs(t, err, harvest.ErrEmptyContent)
	require.Equal(t, harvest.KindEmptyContent, harvest.KindOf(err))
	require.Equal(t, "Only", title)
	require.Empty(t, text)
}

func TestExtractTrailerOnlyIsEmpty(t *testing.T) {
	t.Parallel()

	_, _, err := New().Extract([]byte(`<p>No posts Ready for more?</p>`))
	require.ErrorIs(t, err, harvest.ErrEmptyContent)
}

func TestCleanCustomTrailers(t *testing.T) {
	t.Parallel()

	e := New("Subscribe now", "Share this")
	require.Equal(t, "Hello world", e.Clean("  Hello \n world Share this "))
}
