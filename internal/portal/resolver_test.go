package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
	"github.com/cragr/supportdesk/internal/tokenstore"
)

var resolverNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	calls []string
	fn    func(sealed string) (*models.TokenSet, error)
}

func (f *fakeRefresher) RefreshAccessToken(ctx context.Context, sealed string) (*models.TokenSet, error) {
	f.calls = append(f.calls, sealed)
	return f.fn(sealed)
}

// failingStore fails every operation.
type failingStore struct {
	loadErr error
	saveErr error
	conn    *tokenstore.Connection
}

func (s *failingStore) Load(context.Context, string) (*tokenstore.Connection, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	c := *s.conn
	return &c, nil
}

func (s *failingStore) Save(context.Context, string, *tokenstore.Connection) error {
	return s.saveErr
}

func (s *failingStore) Delete(context.Context, string) error { return nil }

func testConnection(access, sealed string, expiresAt time.Time) *tokenstore.Connection {
	return &tokenstore.Connection{
		CloudID: "cloud-1",
		SiteURL: "https://acme.atlassian.net",
		Tokens: models.TokenSet{
			AccessToken:  access,
			RefreshToken: sealed,
			ExpiresAt:    expiresAt,
		},
	}
}

func newTestResolver(store tokenstore.Store, refresher Refresher, opts ...jira.Option) *TenantResolver {
	r := NewTenantResolver(jira.Defaults{
		Domain:        "acme.atlassian.net",
		Email:         "ops@example.com",
		APIToken:      "api-token",
		ServiceDeskID: "4",
	}, store, refresher, newTestLogger(), opts...)
	r.now = func() time.Time { return resolverNow }
	return r
}

func rotated(access, sealed string) *models.TokenSet {
	return &models.TokenSet{
		AccessToken:  access,
		RefreshToken: sealed,
		ExpiresIn:    3600,
		ExpiresAt:    resolverNow.Add(time.Hour),
	}
}

func TestTenantResolver_CredentialMode(t *testing.T) {
	store := tokenstore.NewMemory()
	refresher := &fakeRefresher{}
	r := newTestResolver(store, refresher)

	for _, tenant := range []string{"", "tenant-without-grant"} {
		client, err := r.Client(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, "basic", client.Mode())
		assert.True(t, client.Configured())
	}

	client, err := NewTenantResolver(jira.Defaults{}, nil, nil, newTestLogger()).Client(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.False(t, client.Configured())
	assert.Empty(t, refresher.calls)
}

func TestTenantResolver_ValidToken(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "tenant-1", testConnection("access-1", "sealed-1", resolverNow.Add(10*time.Minute))))
	refresher := &fakeRefresher{}
	r := newTestResolver(store, refresher)

	client, err := r.Client(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, "oauth", client.Mode())
	assert.Empty(t, refresher.calls)
}

func TestTenantResolver_RefreshesExpiringToken(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "tenant-1", testConnection("access-1", "sealed-1", resolverNow.Add(30*time.Second))))
	refresher := &fakeRefresher{fn: func(string) (*models.TokenSet, error) {
		return rotated("access-2", "sealed-2"), nil
	}}
	r := newTestResolver(store, refresher)

	conn, err := r.connection(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"sealed-1"}, refresher.calls)
	assert.Equal(t, "access-2", conn.Tokens.AccessToken)

	stored, err := store.Load(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.Tokens.AccessToken)
	assert.Equal(t, "sealed-2", stored.Tokens.RefreshToken)
	assert.Equal(t, "cloud-1", stored.CloudID)
}

func TestTenantResolver_RefreshSurvivesCanceledRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := tokenstore.NewRedis(rdb)
	require.NoError(t, store.Save(context.Background(), "tenant-1", testConnection("access-1", "sealed-1", resolverNow.Add(30*time.Second))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher := &fakeRefresher{fn: func(string) (*models.TokenSet, error) {
		cancel()
		return rotated("access-2", "sealed-2"), nil
	}}
	r := newTestResolver(store, refresher)

	_, err := r.Client(ctx, "tenant-1")
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	stored, err := store.Load(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.Tokens.AccessToken)
	assert.Equal(t, "sealed-2", stored.Tokens.RefreshToken)
}

func TestTenantResolver_RefreshRace(t *testing.T) {
	rejected := &remote.Error{Kind: remote.KindRemoteRejected, Op: "refresh_token", StatusCode: http.StatusForbidden}

	tests := []struct {
		name       string
		winner     *tokenstore.Connection
		second     func(string) (*models.TokenSet, error)
		wantErr    bool
		wantAccess string
		wantCalls  []string
	}{
		{
			name:       "another instance already rotated",
			winner:     testConnection("access-9", "sealed-9", resolverNow.Add(time.Hour)),
			wantAccess: "access-9",
			wantCalls:  []string{"sealed-1"},
		},
		{
			name:   "rotated tokens also expiring",
			winner: testConnection("access-9", "sealed-9", resolverNow.Add(10*time.Second)),
			second: func(string) (*models.TokenSet, error) {
				return rotated("access-10", "sealed-10"), nil
			},
			wantAccess: "access-10",
			wantCalls:  []string{"sealed-1", "sealed-9"},
		},
		{
			name:      "store unchanged",
			wantErr:   true,
			wantCalls: []string{"sealed-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := tokenstore.NewMemory()
			require.NoError(t, store.Save(ctx, "tenant-1", testConnection("access-1", "sealed-1", resolverNow.Add(-time.Minute))))

			refresher := &fakeRefresher{}
			refresher.fn = func(sealed string) (*models.TokenSet, error) {
				if sealed == "sealed-1" {
					if tt.winner != nil {
						require.NoError(t, store.Save(ctx, "tenant-1", tt.winner))
					}
					return nil, rejected
				}
				return tt.second(sealed)
			}
			r := newTestResolver(store, refresher)

			conn, err := r.connection(ctx, "tenant-1")

			assert.Equal(t, tt.wantCalls, refresher.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, remote.IsKind(err, remote.KindRemoteRejected))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccess, conn.Tokens.AccessToken)

			stored, err := store.Load(ctx, "tenant-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccess, stored.Tokens.AccessToken)
		})
	}
}

func TestTenantResolver_StoreFailures(t *testing.T) {
	refresher := &fakeRefresher{fn: func(string) (*models.TokenSet, error) {
		return rotated("access-2", "sealed-2"), nil
	}}

	r := newTestResolver(&failingStore{loadErr: errors.New("connection refused")}, refresher)
	_, err := r.Client(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.Empty(t, refresher.calls)

	r = newTestResolver(&failingStore{
		saveErr: errors.New("read only replica"),
		conn:    testConnection("access-1", "sealed-1", resolverNow),
	}, refresher)
	conn, err := r.connection(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", conn.Tokens.AccessToken)
}

func TestTenantResolver_DelegatedRequests(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"10001","key":"SUP-1","fields":{"summary":"Bot offline"}}`))
	}))
	defer server.Close()

	store := tokenstore.NewMemory()
	require.NoError(t, store.Save(context.Background(), "tenant-1", testConnection("access-1", "sealed-1", resolverNow.Add(-time.Minute))))
	refresher := &fakeRefresher{fn: func(string) (*models.TokenSet, error) {
		return rotated("access-2", "sealed-2"), nil
	}}
	r := newTestResolver(store, refresher, jira.WithGatewayURL(server.URL), jira.WithHTTPClient(server.Client()))

	client, err := r.Client(context.Background(), "tenant-1")
	require.NoError(t, err)

	ticket, err := client.GetTicket(context.Background(), "SUP-1")
	require.NoError(t, err)
	assert.Equal(t, "SUP-1", ticket.Key)
	assert.Equal(t, "Bearer access-2", gotAuth)
	assert.Equal(t, "/ex/jira/cloud-1/rest/api/3/issue/SUP-1", gotPath)
}
