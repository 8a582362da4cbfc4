package i2crequest

import (
	"errors"
	"testing"

	"github.com/godbus/dbus"
	"github.com/stretchr/testify/require"
)

func TestMockedTx(t *testing.T) {
	defer StopMocking()
	MockTxResponses([]TxResponse{{Response: []byte{0x12, 0x34}}})

	data, err := Tx(0x48, []byte{0x00}, 2, 100)
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x34}, data)
	require.Equal(t, [][]byte{{0x00}}, MockedWrites())

	_, err = Tx(0x48, []byte{0x01}, 2, 100)
	require.ErrorIs(t, err, errNoMockResponse)
}

func TestCheckAddress(t *testing.T) {
	defer StopMocking()
	MockTxResponses([]TxResponse{
		{Response: []byte{0x00}},
		{Err: dbus.Error{Name: ErrorUsingI2CBus}},
		{Err: &dbus.Error{Name: ErrorUsingI2CBus}},
		{Err: dbus.Error{Name: dbusName + ".BusyTimeout"}},
		{Err: errors.New("no system bus")},
	})

	present, err := CheckAddress(0x48, 100)
	require.NoError(t, err)
	require.True(t, present)

	for i := 0; i < 2; i++ {
		present, err = CheckAddress(0x48, 100)
		require.NoError(t, err)
		require.False(t, present)
	}

	for i := 0; i < 2; i++ {
		present, err = CheckAddress(0x48, 100)
		require.Error(t, err)
		require.False(t, present)
	}
}
