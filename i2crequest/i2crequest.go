// Package i2crequest sends transactions to the org.cacophony.i2c service so
// several processes can share the bus without stepping on each other.
package i2crequest

import (
	"errors"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

// TxResponse is a canned reply used when transactions are mocked.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mockMu        sync.Mutex
	mocking       bool
	mockResponses []TxResponse
	mockWrites    [][]byte
)

var errNoMockResponse = errors.New("no mocked i2c response left")

// MockTxResponses routes every following Tx to the given responses, in order,
// instead of the D-Bus service.
func MockTxResponses(responses []TxResponse) {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = true
	mockResponses = append([]TxResponse(nil), responses...)
	mockWrites = nil
}

// MockedWrites returns the write payloads seen since MockTxResponses was called.
func MockedWrites() [][]byte {
	mockMu.Lock()
	defer mockMu.Unlock()
	return append([][]byte(nil), mockWrites...)
}

// StopMocking sends transactions to the D-Bus service again.
func StopMocking() {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = false
	mockResponses = nil
	mockWrites = nil
}

func mockedTx(write []byte) (bool, []byte, error) {
	mockMu.Lock()
	defer mockMu.Unlock()
	if !mocking {
		return false, nil, nil
	}
	mockWrites = append(mockWrites, append([]byte(nil), write...))
	if len(mockResponses) == 0 {
		return true, nil, errNoMockResponse
	}
	r := mockResponses[0]
	mockResponses = mockResponses[1:]
	return true, r.Response, r.Err
}

// Tx writes to and then reads from the device at address. timeout is in milliseconds.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if ok, response, err := mockedTx(write); ok {
		return response, err
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}

	return response, nil
}

// ErrorUsingI2CBus is the D-Bus error name for a transaction the device did
// not acknowledge.
const ErrorUsingI2CBus = dbusName + ".ErrorUsingI2CBus"

// CheckAddress reports whether a device answers at address. A transaction
// that is not acknowledged means nothing is there, any other failure is
// returned as an error.
func CheckAddress(address byte, timeout int) (bool, error) {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	if isBusError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isBusError(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == ErrorUsingI2CBus
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == ErrorUsingI2CBus
	}
	return false
}
