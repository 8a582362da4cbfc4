package adc

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/ads1115"
	"github.com/TheCacophonyProject/soil-moisture-node/i2crequest"
	"github.com/stretchr/testify/require"
)

func TestHexStringToByte(t *testing.T) {
	b, err := hexStringToByte("0x48")
	require.NoError(t, err)
	require.Equal(t, byte(0x48), b)

	_, err = hexStringToByte("48")
	require.Error(t, err)
	_, err = hexStringToByte("0xZZ")
	require.Error(t, err)
}

func TestRead(t *testing.T) {
	sleepFn = func(time.Duration) {}
	defer i2crequest.StopMocking()
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{}},
		{Response: []byte{0x80, 0x00}},
		{Response: []byte{0x25, 0x88}},
		{Response: []byte{}},
		{Response: []byte{0x80, 0x00}},
		{Response: []byte{0x25, 0x88}},
	})

	require.NoError(t, read(ads1115.New(0), 2, 2))
	require.Len(t, i2crequest.MockedWrites(), 6)
}

func TestFind(t *testing.T) {
	defer i2crequest.StopMocking()
	i2crequest.MockTxResponses([]i2crequest.TxResponse{{Response: []byte{0x00}}})
	require.NoError(t, find(ads1115.New(0)))
}
