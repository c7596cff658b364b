package jira

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragr/supportdesk/internal/remote"
)

func TestClient_DownloadAttachment_RejectsUntrustedHosts(t *testing.T) {
	urls := map[string]string{
		"foreign host":       "https://evil.example.com/file",
		"suffix without dot": "https://evilatlassian.net/file",
		"allowed as prefix":  "https://atlassian.net.evil.com/file",
		"plain http":         "http://acme.atlassian.net/file",
		"metadata address":   "https://169.254.169.254/latest/meta-data",
		"unparseable":        "https://acme.atlassian.net/%zz",
		"relative":           "/rest/api/3/attachment/content/1",
	}

	for name, raw := range urls {
		t.Run(name, func(t *testing.T) {
			transport := &countingTransport{}
			server := httptest.NewTLSServer(http.NotFoundHandler())
			defer server.Close()

			client := NewClient(ResolveConfig(testDefaults(server), nil), newTestLogger(),
				WithHTTPClient(&http.Client{Transport: transport}))

			content, err := client.DownloadAttachment(context.Background(), raw)

			assert.Nil(t, content)
			assert.True(t, remote.IsKind(err, remote.KindUntrustedHost))
			assert.Equal(t, int32(0), transport.calls.Load())
		})
	}
}

func TestClient_DownloadAttachment_UntrustedBeforeConfigured(t *testing.T) {
	client := NewClient(ResolveConfig(Defaults{}, nil), newTestLogger())

	_, err := client.DownloadAttachment(context.Background(), "https://evil.example.com/file")
	assert.True(t, remote.IsKind(err, remote.KindUntrustedHost))

	_, err = client.DownloadAttachment(context.Background(), "https://acme.atlassian.net/file")
	assert.True(t, remote.IsKind(err, remote.KindNotConfigured))
}

func TestClient_DownloadAttachment(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.True(t, ok)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG"))
	}))
	defer server.Close()

	client := newTestClient(server, WithAttachmentHosts("127.0.0.1"))

	content, err := client.DownloadAttachment(context.Background(), server.URL+"/rest/api/3/attachment/content/5001")
	require.NoError(t, err)

	assert.Equal(t, "image/png", content.ContentType)
	assert.Equal(t, []byte("\x89PNG"), content.Data)
}

func TestClient_DownloadAttachment_BlocksRedirectToUntrustedHost(t *testing.T) {
	var followed bool
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed = true
	}))
	defer target.Close()

	// Same listener, but reached by a name that is not on the allow-list.
	untrusted := strings.Replace(target.URL, "127.0.0.1", "localhost", 1) + "/secret"

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, untrusted, http.StatusFound)
	}))
	defer server.Close()

	client := newTestClient(server, WithAttachmentHosts("127.0.0.1"))

	_, err := client.DownloadAttachment(context.Background(), server.URL+"/attachment")

	assert.True(t, remote.IsKind(err, remote.KindUntrustedHost))
	assert.False(t, followed)
}

func TestClient_DownloadAttachment_RemoteRejected(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server, WithAttachmentHosts("127.0.0.1")).
		DownloadAttachment(context.Background(), server.URL+"/attachment")

	assert.Equal(t, remote.KindRemoteRejected, remote.KindOf(err))
	assert.Equal(t, http.StatusForbidden, remote.StatusCode(err))
}
