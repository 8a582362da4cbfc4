package moisture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEngine runs an engine until the test ends.
func startEngine(t *testing.T, rig *testRig, batteryInterval time.Duration) *Engine {
	engine := NewEngine(rig.sched, batteryInterval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return engine
}

func requestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEngineMeasuresBatteryAtStart(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{1201}, 2200))
	engine := startEngine(t, rig, 0)

	st, err := engine.Status(requestContext(t))
	require.NoError(t, err)
	require.NotNil(t, st.Battery)
	assert.Equal(t, 2200, st.Battery.Millivolts)
	assert.Equal(t, 100, st.Battery.Percent)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.Joined)
	assert.Nil(t, st.Moisture)
}

func TestEngineManualMoisture(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{1201}, 2200))
	engine := startEngine(t, rig, 0)

	st, err := engine.MeasureMoisture(requestContext(t))
	require.NoError(t, err)
	require.NotNil(t, st.Moisture)
	assert.Equal(t, 1201, st.Moisture.Filtered)
	assert.Equal(t, 7700, st.Moisture.Smoothed)
	assert.True(t, st.Moisture.Report)
	assert.Empty(t, st.Fault)

	r, ok := rig.store.Get(attribute.RelativeHumidity, attribute.MeasuredValue)
	require.True(t, ok)
	assert.Equal(t, 7700, r.Value)
}

func TestEngineManualMoistureFault(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{5}, 2200))
	engine := startEngine(t, rig, 0)

	st, err := engine.MeasureMoisture(requestContext(t))
	require.NoError(t, err)
	assert.Contains(t, st.Fault, "probe disconnected")
	assert.Nil(t, st.Moisture)
}

func TestEngineManualBattery(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{1201}, 2200))
	engine := startEngine(t, rig, 0)

	_, err := engine.MeasureBattery(requestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, rig.reader.readCount(BatteryChannel))
}

func TestEngineBatteryPeriod(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{1201}, 2200))
	startEngine(t, rig, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return rig.reader.readCount(BatteryChannel) >= 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEngineStartsMeasuringOnJoin(t *testing.T) {
	settings := testSettings(t)
	settings.Timing.JoinPoll = 5 * time.Millisecond
	rig := newTestRig(t, settings, newFakeReader([]int{1201}, 2200))
	engine := startEngine(t, rig, 0)

	// Blinking while not joined.
	require.Eventually(t, func() bool {
		return len(rig.led.states()) >= 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rig.reader.readCount(ProbeChannel))

	engine.SetJoined(true)
	require.Eventually(t, func() bool {
		return rig.store.Count(attribute.RelativeHumidity, attribute.MeasuredValue) == 1
	}, 5*time.Second, 5*time.Millisecond)

	st, err := engine.Status(requestContext(t))
	require.NoError(t, err)
	assert.True(t, st.Joined)
	assert.Equal(t, "cooldown", st.State)
	assert.True(t, st.NextCycle.After(time.Now().Add(30*time.Second)))
}

func TestEngineRequestCancelled(t *testing.T) {
	rig := newTestRig(t, testSettings(t), newFakeReader([]int{1201}, 2200))
	// Not running, so nothing ever answers.
	engine := NewEngine(rig.sched, 0)
	for i := 0; i < cap(engine.requests); i++ {
		engine.requests <- request{kind: requestStatus, response: make(chan Status, 1)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := engine.Status(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
