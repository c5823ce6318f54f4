package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("honeysensor", "test", "bogus-level", "logfmt")
	require.Error(t, err)
}

func TestInitRejectsUnknownEncoding(t *testing.T) {
	err := Init("honeysensor", "test", "info", "xml")
	require.Error(t, err)
}

func TestContextFieldsAreMerged(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init("honeysensor", "test", "info", "json", WithOutput(&buf), WithCaller(false)))

	ctx := NewContext(context.Background(), "session_id", 7)
	ctx = NewContext(ctx, "flow", "a-b-6")

	WithContext(ctx).Info("hello")

	out := buf.String()
	require.Contains(t, out, `"session_id":7`)
	require.Contains(t, out, `"flow":"a-b-6"`)
}
