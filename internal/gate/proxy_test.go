package gate

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chabaqa/backend/internal/routes"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/tokenstore"
	userdomain "chabaqa/backend/internal/user/domain"
)

func TestProxy_ForwardsIdentity(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path+"|"+r.Header.Get(HeaderUserRole)+"|"+r.Host)
	}))
	defer upstream.Close()
	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	tokens := security.NewTestHMACProvider()
	g := New(tokens, StaticRules{C: routes.Default()}, Options{})
	front := httptest.NewServer(g.Middleware(NewProxy(u)))
	defer front.Close()

	req, err := http.NewRequest(http.MethodGet, front.URL+"/dashboard", nil)
	require.NoError(t, err)
	req.Host = "app.chabaqa.dev"
	req.AddCookie(&http.Cookie{Name: tokenstore.AccessCookie, Value: tokenFor(t, tokens, userdomain.RoleUser)})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "/dashboard|user|app.chabaqa.dev", string(body))
}

func TestProxy_UpstreamDown(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:1")
	w := httptest.NewRecorder()
	NewProxy(u).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/explore", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
