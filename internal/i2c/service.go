package i2c

import (
	"errors"
	"sync"
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/i2crequest"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"

	txRetries       = 2
	txRetryInterval = 20 * time.Millisecond
)

var sleepFn = time.Sleep

// service serialises every transaction on one bus. An optional busy pin is
// shared with other bus masters: it is driven high while a transaction runs
// and released afterwards.
type service struct {
	requests     chan Request
	busyPin      gpio.PinIO
	bus          i2c.Bus
	mutex        sync.Mutex
	requestCount int
}

type Request struct {
	RequestTime time.Time
	RequestID   int
	Address     byte
	Write       []byte
	ReadLen     int
	Timeout     int
	Response    chan Response
}

type Response struct {
	Data []byte
	Err  *dbus.Error
}

func newService(bus i2c.Bus, busyPin gpio.PinIO) *service {
	s := &service{
		bus:      bus,
		busyPin:  busyPin,
		requests: make(chan Request, 20),
	}
	go func() {
		for req := range s.requests {
			req.Response <- s.processTransaction(req)
		}
	}()
	return s
}

func startService(bus i2c.Bus, busyPin gpio.PinIO) error {
	log.Info("Starting I2C service")
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := newService(bus, busyPin)
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

/*
// Read the ADS1115 config register.
dbus-send --system --print-reply --dest=org.cacophony.i2c /org/cacophony/i2c org.cacophony.i2c.Tx \
byte:0x48 \
array:byte:0x01 \
int32:2 \
int32:100
*/

// Tx queues a write then read on the bus and waits for it to be processed.
// timeout is how long to wait for the busy pin, in milliseconds.
func (s *service) Tx(address byte, write []byte, readLen int, timeout int) ([]byte, *dbus.Error) {
	s.mutex.Lock()
	requestID := s.requestCount
	s.requestCount++
	s.mutex.Unlock()

	responseChan := make(chan Response, 1)
	s.requests <- Request{
		RequestTime: time.Now(),
		RequestID:   requestID,
		Address:     address,
		Write:       write,
		ReadLen:     readLen,
		Timeout:     timeout,
		Response:    responseChan,
	}
	log.Debugf("Added request '%d' to the queue", requestID)

	response := <-responseChan
	return response.Data, response.Err
}

func (s *service) acquireBusyPin(req Request) *dbus.Error {
	if s.busyPin == nil {
		return nil
	}
	startTime := time.Now()
	for {
		if s.busyPin.Read() == gpio.Low {
			log.Debugf("Waited %s for I2C busy pin to go low.", time.Since(startTime))
			if err := s.busyPin.Out(gpio.High); err != nil {
				return dbus.NewError("org.cacophony.i2c.ErrorUsingBusyBusPin", nil)
			}
			return nil
		}
		if time.Since(startTime) > time.Duration(req.Timeout)*time.Millisecond {
			log.Infof("Request '%d' timed out waiting for bus pin", req.RequestID)
			return dbus.NewError("org.cacophony.i2c.BusyTimeout", nil)
		}
		sleepFn(2 * time.Millisecond)
	}
}

func (s *service) releaseBusyPin() {
	if s.busyPin == nil {
		return
	}
	if err := s.busyPin.In(gpio.Float, gpio.NoEdge); err != nil {
		log.Errorf("Failed to release I2C busy pin: %v", err)
	}
}

func (s *service) processTransaction(req Request) Response {
	log.Debugf("Waited %s for request '%d' to be processed.", time.Since(req.RequestTime), req.RequestID)
	if err := s.acquireBusyPin(req); err != nil {
		return Response{Err: err}
	}
	defer s.releaseBusyPin()

	read := make([]byte, req.ReadLen)
	for i := 0; i <= txRetries; i++ {
		err := s.bus.Tx(uint16(req.Address), req.Write, read)
		if err == nil {
			log.Debugf("I2C Tx succeeded after %d retries, response %v", i, read)
			return Response{Data: read}
		}
		if i < txRetries {
			log.Debugf("I2C Tx failed, retrying %d more times: %s", txRetries-i, err)
			sleepFn(txRetryInterval)
		}
	}
	log.Errorf("I2C Tx failed. Address 0x%x, Write %v, ReadLen %d", req.Address, req.Write, req.ReadLen)
	return Response{
		Err: dbus.NewError(i2crequest.ErrorUsingI2CBus, nil),
	}
}
