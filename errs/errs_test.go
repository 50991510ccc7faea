package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaiseProgrammingErrorPanicsInDebug(t *testing.T) {
	Debug = true
	defer func() { Debug = true }()

	assert.Panics(t, func() {
		RaiseProgrammingError("bad offset %d", 7)
	})
}

func TestRaiseProgrammingErrorLogsInRelease(t *testing.T) {
	Debug = false
	defer func() { Debug = true }()

	assert.NotPanics(t, func() {
		RaiseProgrammingError("bad offset %d", 7)
	})
}

func TestErrorHandlerAccumulatesWithStackContext(t *testing.T) {
	h := NewErrorHandler()

	h.Push("Widgets")
	h.Push("[2]")
	h.ReportError("expected int, got string")
	h.Pop()
	h.ReportWarning("unknown attribute %q ignored", "legacy_flag")
	h.Pop()

	require.Equal(t, 1, h.NErrors())
	require.Equal(t, 1, h.NWarnings())

	assert.Equal(t, "Widgets/[2]: expected int, got string", h.Errors()[0].Error())
	assert.Equal(t, "Widgets: unknown attribute \"legacy_flag\" ignored", h.Warnings()[0].Error())
}

func TestErrorHandlerReset(t *testing.T) {
	h := NewErrorHandler()
	h.ReportError("boom")
	h.Reset()
	assert.Equal(t, 0, h.NErrors())
	assert.Empty(t, h.Format())
}
