package infra

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var initPC = caller()

func caller() Frame {
	var PCs [3]uintptr
	n := runtime.Callers(2, PCs[:])
	frames := runtime.CallersFrames(PCs[:n])
	frame, _ := frames.Next()
	return Frame(frame.PC)
}

func TestFrameFormat(t *testing.T) {
	testcases := []struct {
		Frame
		format string
		want   string
	}{
		{initPC, "%s", "err_stack_test.go"},
		{initPC, "%n", "init"},
		{initPC, "%d", "14"},
		{initPC, "%v", "err_stack_test.go:14"},
		{Frame(0), "%s", "unknownFile"},
		{Frame(0), "%n", "unknownFunc"},
		{Frame(0), "%d", "0"},
	}

	for _, tc := range testcases {
		require.Equal(t, tc.want, fmt.Sprintf(tc.format, tc.Frame))
	}
	require.True(t, strings.HasPrefix(fmt.Sprintf("%+s", initPC), "github.com/benz9527/xarena/lib/infra.init\n\t"))
}

func TestFrameMarshalText(t *testing.T) {
	text, err := initPC.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "github.com/benz9527/xarena/lib/infra.init err_stack_test.go:14", string(text))

	text, err = Frame(0).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "unknownFrame", string(text))
}

var errTest = errors.New("test sentinel")

func TestErrorStackWrap(t *testing.T) {
	require.Nil(t, WrapErrorStack(nil))
	require.Nil(t, WrapErrorStackWithMessage(nil, "ignored"))

	es := WrapErrorStack(errTest)
	require.ErrorIs(t, es, errTest)
	require.Equal(t, "test sentinel", es.Error())
	require.NotEmpty(t, es.Frames())
	require.Contains(t, fmt.Sprintf("%v", es.Frames()[0]), "err_stack_test.go")

	// Wrapping twice keeps the first stack.
	require.Same(t, es, WrapErrorStack(es))

	es = WrapErrorStackWithMessage(errTest, "arena a1")
	require.ErrorIs(t, es, errTest)
	require.Equal(t, "arena a1: test sentinel", es.Error())
	require.Equal(t, "arena a1: test sentinel", fmt.Sprintf("%s", es))
	require.True(t, strings.Count(fmt.Sprintf("%+v", es), "\n") >= 1)

	es = NewErrorStack("plain")
	require.Equal(t, "plain", es.Error())
	var target ErrorStack
	require.True(t, errors.As(fmt.Errorf("outer: %w", es), &target))
}

func TestErrorStackMarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	es := WrapErrorStack(errTest)
	require.NoError(t, es.MarshalLogObject(enc))
	require.Equal(t, "test sentinel", enc.Fields["error"])
	frames, ok := enc.Fields["errorStack"].([]any)
	require.True(t, ok)
	require.Equal(t, len(es.Frames()), len(frames))
}
