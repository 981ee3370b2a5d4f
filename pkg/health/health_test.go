package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.RegisterOptional("redis", down)
	r := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	require.Len(t, r.Components, 2)
	assert.Equal(t, "index", r.Components[0].Name)
	assert.Equal(t, "redis", r.Components[1].Name)
	assert.Equal(t, "connection refused", r.Components[1].Message)

	c.Register("sql", down)
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.RegisterOptional("redis", down)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, StatusDegraded, r.Status)

	c.Register("index", down)
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	assert.NoError(t, DirCheck(dir, true)(ctx))

	missing := filepath.Join(dir, "missing")
	assert.NoError(t, DirCheck(missing, false)(ctx))
	assert.ErrorIs(t, DirCheck(missing, true)(ctx), os.ErrNotExist)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, DirCheck(file, false)(ctx))
}
