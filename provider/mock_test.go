package provider_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptctx/provider"
)

func TestMockClient_SequentialResponses(t *testing.T) {
	mock := provider.NewMockClient("").WithResponses("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "first"} {
		resp, err := mock.Complete(ctx, provider.Request{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	assert.Len(t, mock.Calls, 3)
}

func TestMockClient_StreamFragments(t *testing.T) {
	mock := provider.NewMockClient("hello brave new world")

	ch, err := mock.Stream(context.Background(), provider.Request{Prompt: "p", ID: "req-1"})
	require.NoError(t, err)

	var sb strings.Builder
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Error)
		sb.WriteString(chunk.Content)
		done = chunk.Done
	}
	assert.True(t, done)
	assert.Equal(t, "hello brave new world", sb.String())
	assert.Equal(t, "req-1", mock.LastCall().ID)
}

func TestMockClient_WithError(t *testing.T) {
	want := errors.New("backend down")
	mock := provider.NewMockClient("").WithError(want)

	_, err := mock.Complete(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, want)

	_, err = mock.Stream(context.Background(), provider.Request{})
	assert.ErrorIs(t, err, want)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, provider.IsRetryable(provider.NewError("local", "complete", errors.New("x"), true)))
	assert.False(t, provider.IsRetryable(provider.NewError("local", "complete", errors.New("x"), false)))
	assert.True(t, provider.IsRetryable(provider.ErrTimeout))
	assert.False(t, provider.IsRetryable(provider.ErrInvalidRequest))
}

func TestError_Message(t *testing.T) {
	err := provider.NewError("local", "stream", errors.New("pipe closed"), false)
	assert.Equal(t, "local stream: pipe closed", err.Error())

	err = provider.NewError("", "tokenize", errors.New("bad input"), false)
	assert.Equal(t, "tokenize: bad input", err.Error())
}
