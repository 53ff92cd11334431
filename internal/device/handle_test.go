package device

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/metrics"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	collector := metrics.NewDeviceCollector(prometheus.NewRegistry())
	return NewHandle("10.0.0.1", NewMockDriver(zerolog.Nop()), zerolog.Nop(), collector)
}

func TestHandlePushRecordsMetrics(t *testing.T) {
	h := newTestHandle(t)
	h.Canvas().DrawPixel(0, 0, canvas.Opaque(1, 2, 3))

	require.NoError(t, h.Push(context.Background()))

	m, _, _ := h.Snapshot()
	assert.Equal(t, uint64(1), m.Pushes)
	assert.Equal(t, uint64(0), m.Errors)
	assert.False(t, m.LastSeen.IsZero())
}

func TestHandleSwitchDriverPreservesCanvas(t *testing.T) {
	h := newTestHandle(t)
	h.Canvas().DrawPixel(3, 3, canvas.Opaque(9, 9, 9))

	h.SwitchDriver(NewMockDriver(zerolog.Nop()))
	assert.Equal(t, KindMock, h.DriverKind())
	assert.Equal(t, canvas.Opaque(9, 9, 9), h.Canvas().At(3, 3))
}

func TestHandleBrightnessAndDisplayOn(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.SetBrightness(context.Background(), 42))
	require.NoError(t, h.SetDisplayOn(context.Background(), false))

	_, brightness, displayOn := h.Snapshot()
	assert.Equal(t, 42, brightness)
	assert.False(t, displayOn)
}
