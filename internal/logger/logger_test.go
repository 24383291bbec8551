package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogFieldsMerges(t *testing.T) {
	ctx := WithLogFields(context.Background(), LogFields{RequestID: "req-1", Component: "app"})
	ctx = WithLogFields(ctx, LogFields{UserID: Ptr("user-1"), Component: "app.convert"})

	fields := GetLogFields(ctx)
	assert.Equal(t, "req-1", fields.RequestID)
	require.NotNil(t, fields.UserID)
	assert.Equal(t, "user-1", *fields.UserID)
	assert.Equal(t, "app.convert", fields.Component)
	assert.Nil(t, fields.DocumentID)
}

func TestContextHandlerAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithLogFields(context.Background(), LogFields{
		RequestID:  "req-42",
		DocumentID: Ptr("doc-7"),
	})
	log.InfoContext(ctx, "converted")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, "document_id=doc-7")
	assert.NotContains(t, out, "user_id")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
