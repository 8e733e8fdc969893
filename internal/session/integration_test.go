package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagmachine-remote/internal/device"
	"bagmachine-remote/internal/logging"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/params"
)

func newLiveController(t *testing.T) (*Controller, *device.MockServer) {
	t.Helper()
	srv := device.NewMockServer()
	t.Cleanup(srv.Close)

	log := logging.Discard()
	client := device.New(srv.URL(), 500*time.Millisecond, device.WithLogger(log))
	ctrl := New(client, params.NewStore(), notify.New(time.Hour), WithLogger(log))
	t.Cleanup(ctrl.Close)
	return ctrl, srv
}

func currentMessage(ctrl *Controller) string {
	snap := ctrl.Snapshot()
	if snap.Notification == nil {
		return ""
	}
	return snap.Notification.Message
}

func TestLive_EmptySpeedFallsBack(t *testing.T) {
	ctrl, srv := newLiveController(t)
	srv.SetSpeedBody("")
	srv.SetBagLengthBody("33")

	require.NoError(t, ctrl.Initialize(context.Background()))

	snap := ctrl.Snapshot()
	assert.Equal(t, 30, snap.Speed.Value)
	assert.Equal(t, 33, snap.BagLength.Value)
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Equal(t, "", currentMessage(ctrl))
}

func TestLive_RoundTrip(t *testing.T) {
	ctrl, srv := newLiveController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx))

	ctrl.AdjustBagLength(1)
	require.NoError(t, ctrl.CommitBagLength(ctx))
	assert.Equal(t, "Bag length updated: 21 cm", currentMessage(ctrl))
	assert.Equal(t, "21", srv.LastData("/baglength"))

	ctrl.AdjustSpeed(12)
	require.NoError(t, ctrl.CommitSpeed(ctx))
	assert.Equal(t, "BPM set to 42", currentMessage(ctrl))

	require.NoError(t, ctrl.Start(ctx))
	assert.Equal(t, StatusRunning, ctrl.Status())

	// the device now reports what was saved
	require.NoError(t, ctrl.Initialize(ctx))
	snap := ctrl.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 21, snap.BagLength.Value)
	assert.Equal(t, 42, snap.Speed.Value)
}

func TestLive_RejectedWrite(t *testing.T) {
	ctrl, srv := newLiveController(t)
	srv.SetFailures("/baglength", 1)

	require.NoError(t, ctrl.CommitBagLength(context.Background()))
	assert.Equal(t, MsgBagLengthError, currentMessage(ctrl))
	assert.False(t, ctrl.Pending(ActionSaveBagLength))
}

func TestLive_DeviceDown(t *testing.T) {
	ctrl, srv := newLiveController(t)
	srv.Close()

	require.NoError(t, ctrl.Initialize(context.Background()))
	assert.Equal(t, StatusUnknown, ctrl.Status())
	assert.Equal(t, MsgUnreachable, currentMessage(ctrl))

	require.NoError(t, ctrl.Stop(context.Background()))
	assert.Equal(t, MsgUnreachable, currentMessage(ctrl))
	assert.Equal(t, StatusUnknown, ctrl.Status())
}

func TestLive_UnparseableBagLength(t *testing.T) {
	ctrl, srv := newLiveController(t)
	srv.SetBagLengthBody("error")

	require.NoError(t, ctrl.Initialize(context.Background()))
	assert.Equal(t, 15, ctrl.Snapshot().BagLength.Value)
	assert.Equal(t, MsgUnreachable, currentMessage(ctrl))
}
