package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServesSPAFromStaticDir(t *testing.T) {
	tmp := t.TempDir()
	staticDir := filepath.Join(tmp, "web")
	require.NoError(t, os.MkdirAll(staticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>spa</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log(1)"), 0o644))

	server, _ := newTestServer(t, WithUI(staticDir, true))

	for _, url := range []string{"/", "/jobs/abc", "/missing.css"} {
		rec := do(server, http.MethodGet, url, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "spa")
	}

	rec := do(server, http.MethodGet, "/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")
}

func TestServer_UIDisabled(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(server, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clipwave is running")

	assert.Equal(t, http.StatusNotFound, do(server, http.MethodGet, "/jobs/abc", nil).Code)
}
