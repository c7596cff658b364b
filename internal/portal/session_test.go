package portal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSession_Identity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "111")
	req.Header.Set(HeaderUsername, "alice")
	req.Header.Set(HeaderTenantID, "tenant-1")
	req.Header.Set(HeaderStaff, "yes")

	id, ok := HeaderSession{}.Identity(req)

	require.True(t, ok)
	assert.Equal(t, "111", id.UserID)
	assert.Equal(t, "alice", id.DisplayName)
	assert.Equal(t, "tenant-1", id.TenantID)
	assert.False(t, id.Staff)

	_, ok = HeaderSession{}.Identity(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestHeaderSession_ValidCSRF(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{name: "matching", cookie: "tok-1", header: "tok-1", want: true},
		{name: "mismatch", cookie: "tok-1", header: "tok-2", want: false},
		{name: "no header", cookie: "tok-1", want: false},
		{name: "no cookie", header: "tok-1", want: false},
		{name: "both empty", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(HeaderCSRF, tt.header)
			}

			assert.Equal(t, tt.want, HeaderSession{}.ValidCSRF(req))
		})
	}
}
