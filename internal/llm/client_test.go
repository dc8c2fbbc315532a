package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/iotloader/internal/models"
)

type scriptedBackend struct {
	calls   int32
	steps   []func(ctx context.Context) (Response, error)
	lastReq Request
}

func (b *scriptedBackend) Name() string { return "scripted" }
func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) Generate(ctx context.Context, req Request) (Response, error) {
	n := atomic.AddInt32(&b.calls, 1)
	b.lastReq = req
	step := b.steps[len(b.steps)-1]
	if int(n) <= len(b.steps) {
		step = b.steps[n-1]
	}
	return step(ctx)
}

func ok(text string) func(context.Context) (Response, error) {
	return func(context.Context) (Response, error) {
		return Response{Text: text, Usage: &models.GenerationUsage{TotalTokens: 7}}, nil
	}
}

func fail(err error) func(context.Context) (Response, error) {
	return func(context.Context) (Response, error) { return Response{}, err }
}

func block() func(context.Context) (Response, error) {
	return func(ctx context.Context) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}
}

func TestGenerateSucceedsAfterTransientFailures(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (Response, error){
		fail(errors.New("connection reset")),
		fail(APIError(errors.New("unavailable"), true)),
		ok("  {\"a\":1}\n"),
	}}
	c := NewClient(b, time.Second)

	res, err := c.Generate(context.Background(), "m", "sys", "user", 2)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, res.Text)
	assert.Equal(t, 3, res.Attempts)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 7, res.Usage.TotalTokens)
	assert.Equal(t, Request{Model: "m", SystemPrompt: "sys", UserPrompt: "user"}, b.lastReq)
}

func TestGenerateExhaustsRetriesWithLastCause(t *testing.T) {
	last := errors.New("second failure")
	b := &scriptedBackend{steps: []func(context.Context) (Response, error){
		fail(errors.New("first failure")),
		fail(last),
	}}
	c := NewClient(b, time.Second)

	_, err := c.Generate(context.Background(), "m", "s", "u", 1)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindTransport, gerr.Kind)
	assert.Equal(t, 2, gerr.Attempts)
	assert.ErrorIs(t, err, last)
	assert.EqualValues(t, 2, b.calls)
}

func TestGenerateDoesNotRetryPermanentAPIError(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (Response, error){
		fail(APIError(errors.New("invalid argument"), false)),
		ok("{}"),
	}}
	c := NewClient(b, time.Second)

	_, err := c.Generate(context.Background(), "m", "s", "u", 3)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindAPI, gerr.Kind)
	assert.Equal(t, 1, gerr.Attempts)
	assert.EqualValues(t, 1, b.calls)
}

func TestGenerateClassifiesPerCallTimeout(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (Response, error){block()}}
	c := NewClient(b, 20*time.Millisecond)

	_, err := c.Generate(context.Background(), "m", "s", "u", 2)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindTimeout, gerr.Kind)
	assert.Equal(t, 3, gerr.Attempts)
}

func TestGenerateStopsOnCallerCancel(t *testing.T) {
	b := &scriptedBackend{steps: []func(context.Context) (Response, error){ok("{}")}}
	c := NewClient(b, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, "m", "s", "u", 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, b.calls)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"x":1}`, StripFences("```json\n{\"x\":1}\n```"))
	assert.Equal(t, `{"x":1}`, StripFences("```\n{\"x\":1}```"))
	assert.Equal(t, `not json`, StripFences("  not json \n"))
}
