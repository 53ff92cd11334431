package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixoo-scened/internal/device"
)

func TestOkPublisherPublishesOkEvent(t *testing.T) {
	fp := &fakePublisher{}
	publish := NewOkPublisher(fp)

	publish("10.0.0.1", "gradient", 42, 7, map[string]interface{}{"phase": 3})

	got, ok := fp.last()
	require.True(t, ok)
	assert.Equal(t, "pixoo/10.0.0.1/ok", got.topic)

	var evt OkEvent
	require.NoError(t, json.Unmarshal(got.payload, &evt))
	assert.Equal(t, "10.0.0.1", evt.Host)
	assert.Equal(t, "gradient", evt.Scene)
	assert.EqualValues(t, 42, evt.FrametimeMs)
	assert.Equal(t, 7, evt.DiffPixels)
}

func TestPublishMetricsEmitsMetricsEvent(t *testing.T) {
	fp := &fakePublisher{}

	err := PublishMetrics(fp, "10.0.0.1", device.Metrics{
		LastFrametimeMs: 12,
		Pushes:          5,
		Skipped:         1,
		Errors:          2,
	})
	require.NoError(t, err)

	got, ok := fp.last()
	require.True(t, ok)
	assert.Equal(t, "pixoo/10.0.0.1/metrics", got.topic)

	var evt MetricsEvent
	require.NoError(t, json.Unmarshal(got.payload, &evt))
	assert.Equal(t, "10.0.0.1", evt.DeviceID)
	assert.EqualValues(t, 5, evt.Pushes)
	assert.EqualValues(t, 1, evt.Skipped)
	assert.EqualValues(t, 2, evt.Errors)
}
