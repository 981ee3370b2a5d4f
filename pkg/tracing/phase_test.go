package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseTree(t *testing.T) {
	ctx, root := Start(context.Background(), "run", "run-1")
	bctx, build := Start(ctx, "build", "ignored")
	_, index := Start(bctx, "index", "")
	index.SetAttr("documents", 3)
	index.End()
	build.End()
	_, queries := Start(ctx, "queries", "")
	queries.End()
	root.End()

	assert.Same(t, root, FromContext(ctx))
	assert.Equal(t, "run-1", build.RunID)
	assert.Equal(t, "run-1", index.RunID)
	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "build", children[0].Name)
	assert.Equal(t, "queries", children[1].Name)
	assert.GreaterOrEqual(t, root.Duration, build.Duration)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "phase=index")
	assert.Contains(t, lines[2], "depth=2")
	assert.Contains(t, lines[2], "documents=3")
}

func TestNilPhaseIsSafe(t *testing.T) {
	var p *Phase
	p.End()
	p.SetAttr("k", "v")
	assert.Nil(t, FromContext(context.Background()))
}
