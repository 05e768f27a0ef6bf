package mailtpl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderVerification(t *testing.T) {
	rendered, err := RenderVerification("Ada", "https://resonate.fm/verify?token=abc123")
	require.NoError(t, err)

	require.Equal(t, "Confirm your Resonate account", rendered.Subject)
	require.Contains(t, rendered.HTMLBody, "Welcome to Resonate, Ada!")
	require.Contains(t, rendered.HTMLBody, `href="https://resonate.fm/verify?token=abc123"`)
	require.Contains(t, rendered.TextBody, "https://resonate.fm/verify?token=abc123")
	require.NotContains(t, rendered.TextBody, "<")
}

func TestRenderVerificationEscapesName(t *testing.T) {
	rendered, err := RenderVerification("<script>alert(1)</script>", "https://resonate.fm/verify?token=abc123")
	require.NoError(t, err)

	require.NotContains(t, rendered.HTMLBody, "<script>")
	require.Contains(t, rendered.HTMLBody, "&lt;script&gt;alert(1)&lt;/script&gt;")
}

func TestRenderVerificationWithoutName(t *testing.T) {
	rendered, err := RenderVerification("  ", "https://resonate.fm/verify?token=abc123")
	require.NoError(t, err)
	require.Contains(t, rendered.HTMLBody, "Welcome to Resonate!")
}

func TestRenderVerificationDeterministic(t *testing.T) {
	first, err := RenderVerification("Ada", "https://resonate.fm/verify?token=abc123")
	require.NoError(t, err)
	second, err := RenderVerification("Ada", "https://resonate.fm/verify?token=abc123")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestStripTags(t *testing.T) {
	text := StripTags("<p>Hello &amp; welcome</p><p>Second   line</p>")
	require.Equal(t, "Hello & welcome\n\nSecond line", text)
}

func TestStripTagsCollapsesBlankRuns(t *testing.T) {
	text := StripTags("<div><br><br><br>spaced</div>")
	require.False(t, strings.Contains(text, "\n\n\n"))
	require.Contains(t, text, "spaced")
}
