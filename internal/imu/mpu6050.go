package imu

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/logger"
	"github.com/golang/geo/r3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// MPU-6050 register map (RM-MPU-6000A rev 4.2, offset registers per InvenSense AN).
const (
	DefaultMPU6050Address = 0x68
	AltMPU6050Address     = 0x69

	regAccelOffset = 0x06 // XA_OFFS_H .. ZA_OFFS_L
	regGyroOffset  = 0x13 // XG_OFFS_USRH .. ZG_OFFS_USRL
	regAccelXOut   = 0x3B // ACCEL_XOUT_H, followed by temp and gyro
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75

	whoAmIValue = 0x68
	burstLength = 14
)

// MPU6050 reads an InvenSense MPU-6050 over I2C and exposes its offset
// registers through OffsetSetter.
type MPU6050 struct {
	dev    *i2c.Dev
	closer interface{ Close() error }
	mu     sync.Mutex
	logger logger.Logger
}

// OpenMPU6050 initializes the periph host drivers, opens the named I2C bus
// ("" selects the first available) and wakes the chip at addr.
func OpenMPU6050(busName string, addr uint16, log logger.Logger) (*MPU6050, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Bus   string
			Error string
		}{
			Bus:   busName,
			Error: err.Error(),
		})
	}

	m, err := NewMPU6050(bus, addr, log)
	if err != nil {
		bus.Close()
		return nil, err
	}
	m.closer = bus

	return m, nil
}

// NewMPU6050 talks to a chip on an already opened bus.
func NewMPU6050(bus i2c.Bus, addr uint16, log logger.Logger) (*MPU6050, error) {
	errFactory := errors.New()
	m := &MPU6050{
		dev:    &i2c.Dev{Bus: bus, Addr: addr},
		logger: log,
	}

	id := make([]byte, 1)
	if err := m.dev.Tx([]byte{regWhoAmI}, id); err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}
	if id[0] != whoAmIValue {
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Address uint16
			WhoAmI  byte
		}{
			Address: addr,
			WhoAmI:  id[0],
		})
	}

	// The chip powers up asleep; clearing PWR_MGMT_1 starts measurement.
	if err := m.dev.Tx([]byte{regPwrMgmt1, 0x00}, nil); err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	log.Debug().Uint16("address", addr).Msg("MPU-6050 awake")

	return m, nil
}

func (m *MPU6050) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, burstLength)
	if err := m.dev.Tx([]byte{regAccelXOut}, buf); err != nil {
		return Sample{}, errors.New().Wrap(ErrReadFailed, err)
	}

	return Sample{
		Accel: vectorBE(buf[0:6]),
		Gyro:  vectorBE(buf[8:14]),
	}, nil
}

// SetOffsets writes offsets rounded and clamped to int16. Bit 0 of each accel
// offset low byte is reserved and keeps its current value.
func (m *MPU6050) SetOffsets(ctx context.Context, offsets Offsets) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make([]byte, 6)
	if err := m.dev.Tx([]byte{regAccelOffset}, current); err != nil {
		return errFactory.Wrap(ErrSetOffsetsFailed, err)
	}

	accel := encodeBE(offsets.Accel)
	for i := 1; i < len(accel); i += 2 {
		accel[i] = accel[i]&^1 | current[i]&1
	}

	if err := m.dev.Tx(append([]byte{regAccelOffset}, accel...), nil); err != nil {
		return errFactory.Wrap(ErrSetOffsetsFailed, err)
	}
	if err := m.dev.Tx(append([]byte{regGyroOffset}, encodeBE(offsets.Gyro)...), nil); err != nil {
		return errFactory.Wrap(ErrSetOffsetsFailed, err)
	}

	m.logger.Debug().
		Interface("accel", offsets.Accel).
		Interface("gyro", offsets.Gyro).
		Msg("Offsets written to device")

	return nil
}

func (m *MPU6050) Close() error {
	if m.closer == nil {
		return nil
	}
	if err := m.closer.Close(); err != nil {
		return errors.New().Wrap(ErrShutdownFailed, err)
	}
	return nil
}

func vectorBE(b []byte) r3.Vector {
	return r3.Vector{
		X: float64(int16(binary.BigEndian.Uint16(b[0:2]))),
		Y: float64(int16(binary.BigEndian.Uint16(b[2:4]))),
		Z: float64(int16(binary.BigEndian.Uint16(b[4:6]))),
	}
}

func encodeBE(v r3.Vector) []byte {
	b := make([]byte, 6)
	binary.BigEndian.PutUint16(b[0:2], uint16(toInt16(v.X)))
	binary.BigEndian.PutUint16(b[2:4], uint16(toInt16(v.Y)))
	binary.BigEndian.PutUint16(b[4:6], uint16(toInt16(v.Z)))
	return b
}

func toInt16(v float64) int16 {
	r := math.Round(v)
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	default:
		return int16(r)
	}
}
