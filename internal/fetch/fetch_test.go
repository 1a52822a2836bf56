package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected Platform
	}{
		{"greenhouse board", "https://boards.greenhouse.io/acme/jobs/123", PlatformGreenhouse},
		{"lever posting", "https://jobs.lever.co/acme/abc-def", PlatformLever},
		{"workday", "https://acme.wd5.myworkdayjobs.com/en-US/careers/job/123", PlatformWorkday},
		{"company site", "https://acme.com/careers/123", PlatformUnknown},
		{"not a url", "://bad", PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectPlatform(tt.url))
		})
	}
}

func TestExtractMainText(t *testing.T) {
	html := `<html><body>
		<nav>Site navigation</nav>
		<div class="job-description">
			<p>Senior Go engineer.</p>
			<p>Build platform tooling.</p>
		</div>
		<form id="application-form">First name</form>
		<footer>Copyright</footer>
	</body></html>`

	text, err := ExtractMainText(html, JobPostingSelectors(), PlatformNoiseSelectors(PlatformUnknown)...)
	require.NoError(t, err)

	assert.Contains(t, text, "Senior Go engineer.")
	assert.Contains(t, text, "Build platform tooling.")
	assert.NotContains(t, text, "Site navigation")
	assert.NotContains(t, text, "First name")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractMainTextFallsBackToBody(t *testing.T) {
	html := `<html><body><p>Plain description text.</p></body></html>`

	text, err := ExtractMainText(html, []string{".does-not-exist"})
	require.NoError(t, err)
	assert.Contains(t, text, "Plain description text.")
}

func TestURLInvalid(t *testing.T) {
	_, err := URL(context.Background(), "not-a-url", nil)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "invalid URL")
}

func TestURLNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := URL(context.Background(), srv.URL, nil)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "404")
}

func TestTargetDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<main><p>Go engineer role with Kubernetes experience.</p></main>
		</body></html>`))
	}))
	defer srv.Close()

	text, err := TargetDescription(context.Background(), srv.URL, false, false)
	require.NoError(t, err)
	assert.Contains(t, text, "Go engineer role with Kubernetes experience.")
}

func TestTargetDescriptionEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><script>app()</script></body></html>`))
	}))
	defer srv.Close()

	_, err := TargetDescription(context.Background(), srv.URL, false, false)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "no text content")
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser("short"))
	assert.True(t, ShouldUseBrowser("   "))
	assert.False(t, ShouldUseBrowser(strings.Repeat("long enough content ", 30)))
}
