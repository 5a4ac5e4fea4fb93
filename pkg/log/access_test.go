package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, buf *bytes.Buffer, path string, status int) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base := Build(Config{Level: "debug", ServiceName: "test"}, buf)
	r := gin.New()
	r.Use(AccessLog(base, "/static/"))
	r.GET("/*any", func(c *gin.Context) {
		c.Set(FieldUserID, uint(7))
		l := Ctx(c.Request.Context())
		l.Info().Msg("inside")
		c.Status(status)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func TestAccessLog_ScopesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	w := serve(t, &buf, "/products", http.StatusOK)

	reqID := w.Header().Get(HeaderRequestID)
	require.NotEmpty(t, reqID)

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "inside", got[0]["message"])
	assert.Equal(t, reqID, got[0][FieldRequestID])
	assert.Equal(t, "test", got[0][FieldService])

	assert.Equal(t, "info", got[1]["level"])
	assert.Equal(t, float64(200), got[1][FieldStatus])
	assert.Equal(t, float64(7), got[1][FieldUserID])
}

func TestAccessLog_LevelByStatus(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
	}{
		{"/x", http.StatusBadGateway, "error"},
		{"/x", http.StatusNotFound, "warn"},
		{"/static/css/market.css", http.StatusOK, "debug"},
		{"/static/missing.css", http.StatusNotFound, "warn"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		serve(t, &buf, tc.path, tc.status)
		got := lines(t, &buf)
		assert.Equal(t, tc.level, got[len(got)-1]["level"], tc.path)
	}
}

func TestBuild_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := Build(Config{Level: "chatty"}, &buf)
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "shown", got[0]["message"])
}
