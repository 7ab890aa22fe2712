package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type bindTarget struct {
	Name string `json:"name" validate:"required"`
}

func TestHttpContextBindInvalidJSON(t *testing.T) {
	ctx, w, _ := newTestHttpContext(1024, "3")
	go func() {
		w.waitReady()
		w.feed([]byte("not"), true)
	}()

	var dst bindTarget
	err := ctx.Bind(&dst)
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestHttpContextBindValidationFailed(t *testing.T) {
	payload := []byte(`{"name": ""}`)
	ctx, w, _ := newTestHttpContext(1024, "12")
	go func() {
		w.waitReady()
		w.feed(payload, true)
	}()

	var dst bindTarget
	err := ctx.Bind(&dst)
	require.Error(t, err)

	engErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindValidationFailed, engErr.Kind())
	require.Equal(t, 400, engErr.Status())
}

func TestHttpContextBindSuccess(t *testing.T) {
	payload := []byte(`{"name": "ok"}`)
	ctx, w, _ := newTestHttpContext(1024, "14")
	go func() {
		w.waitReady()
		w.feed(payload, true)
	}()

	var dst bindTarget
	err := ctx.Bind(&dst)
	require.NoError(t, err)
	require.Equal(t, "ok", dst.Name)
}

func TestHttpContextSendDispatchesByType(t *testing.T) {
	cases := []struct {
		name        string
		value       any
		wantStatus  string
		wantCT      string
		wantContain string
	}{
		{"nil", nil, "204", "text/plain; charset=utf-8", ""},
		{"string", "hi", "200", "text/plain; charset=utf-8", "hi"},
		{"bytes", []byte("raw"), "200", "application/octet-stream", "raw"},
		{"struct", bindTarget{Name: "x"}, "200", "application/json; charset=utf-8", `"name":"x"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, w, _ := newTestHttpContext(1024, "0")
			err := ctx.Send(tc.value)
			require.NoError(t, err)
			require.Contains(t, w.statusLine, tc.wantStatus)
			require.Equal(t, tc.wantCT, w.headers["Content-Type"])
			if tc.wantContain != "" {
				require.Contains(t, string(w.endChunk), tc.wantContain)
			}
		})
	}
}

func TestHttpContextSendErrorUsesStatusErrorInterface(t *testing.T) {
	ctx, w, _ := newTestHttpContext(1024, "0")
	ctx.SendError(ErrBodyTooLarge)

	require.Contains(t, w.statusLine, "413")
	require.Equal(t, ErrBodyTooLarge.Error(), string(w.endChunk))
}

func TestHttpContextFinalizeExactlyOnce(t *testing.T) {
	ctx, _, _ := newTestHttpContext(1024, "0")
	ctx.finalize()
	require.True(t, ctx.done)

	// A second finalize (e.g. a stray callback after release) must not
	// panic or double-release into a nil server.
	require.NotPanics(t, func() { ctx.finalize() })
}

func TestHttpContextReplyNoOpsWhileStreaming(t *testing.T) {
	ctx, w, _ := newTestHttpContext(1024, "0")

	ctx.StartStreaming(200, PresetTextPlain, nil)
	require.Equal(t, "200 OK", w.statusLine)
	require.True(t, ctx.streaming)
	require.False(t, ctx.replied)

	// Reply (and everything that funnels through it) must be a no-op
	// while a stream is open: replied and streaming must never both be
	// true, and a second begin()/tryEnd() would re-emit framing onto a
	// connection already mid-stream.
	require.NoError(t, ctx.Send("late reply"))
	require.Equal(t, 0, w.tryEndCalls)
	require.False(t, ctx.replied)

	ctx.SendText("also late")
	ctx.SendBuffer([]byte("also late"))
	ctx.SendError(ErrServerError)
	require.Equal(t, 0, w.tryEndCalls)

	require.NoError(t, ctx.Stream(nil, 200, PresetTextPlain, nil))
	require.Equal(t, 0, w.tryEndCalls)

	ok, done := ctx.TryEnd([]byte("real body"), 9)
	require.True(t, ok)
	require.True(t, done)
	require.Equal(t, 1, w.tryEndCalls)
	require.True(t, ctx.replied)
	require.False(t, ctx.streaming)
}

func TestHttpContextOnAbortIsIdempotent(t *testing.T) {
	ctx, w, _ := newTestHttpContext(1024, "0")
	ctx.onAbort()
	require.True(t, ctx.aborted)
	require.True(t, ctx.done)

	// A second abort callback (double-fire from a racy transport) must
	// not re-run body.abort()/streamer teardown.
	require.NotPanics(t, func() { ctx.onAbort() })
	_ = w
}
