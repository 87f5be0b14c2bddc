package update

import (
	"bytes"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(t testing.TB, h http.Handler, field string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "plen.bin")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/update", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "plen")
	require.NoError(t, ioutil.WriteFile(target, []byte("old"), 0755))
	done := 0
	u := New(log2.NewTest(t, log2.LDebug), target, 0, func() { done++ })

	w := httptest.NewRecorder()
	u.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/update", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "multipart/form-data")

	w = upload(t, u, "other", []byte("x"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, done)

	w = upload(t, u, "update", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Update Failed!"))

	w = upload(t, u, "update", []byte("new image"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Update Success! Rebooting...", w.Body.String())
	assert.Equal(t, 1, done)
	b, err := ioutil.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new image", string(b))

	w = httptest.NewRecorder()
	u.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/update", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
