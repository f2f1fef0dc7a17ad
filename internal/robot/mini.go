package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Mini is a Reachy Mini driven over a Feetech STS bus.
type Mini struct {
	port        string
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

var _ Robot = (*Mini)(nil)

// BusSettings configures the serial bus.
type BusSettings struct {
	BaudRate int
	Timeout  time.Duration
}

// OpenMini opens the bus on port and checks that every motor in cal
// answers. The bus is closed again if the scan fails.
func OpenMini(ctx context.Context, port string, settings BusSettings, cal Calibration) (*Mini, error) {
	if cal == nil {
		cal = DefaultCalibration()
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: settings.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  settings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", port, err)
	}

	ids := cal.MotorIDs()
	servos, err := bus.Scan(ctx, 1, maxID(ids))
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan %s: %w", port, err)
	}
	if !hasAll(servos, ids) {
		bus.Close()
		return nil, fmt.Errorf("scan %s: found %d of %d servos", port, len(servos), len(ids))
	}

	return &Mini{
		port:        port,
		bus:         bus,
		group:       feetech.NewServoGroupByIDs(bus, ids...),
		calibration: cal,
	}, nil
}

func maxID(ids []int) int {
	m := 1
	for _, id := range ids {
		if id > m {
			m = id
		}
	}
	return m
}

func hasAll(servos []feetech.FoundServo, ids []int) bool {
	found := make(map[int]bool, len(servos))
	for _, s := range servos {
		found[s.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return false
		}
	}
	return true
}

// Name returns a label including the serial port.
func (m *Mini) Name() string {
	return "reachy-mini@" + m.port
}

// Motors returns the calibrated motors in ID order.
func (m *Mini) Motors() []MotorName {
	var out []MotorName
	for _, name := range AllMotors() {
		if _, ok := m.calibration[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Close closes the bus connection.
func (m *Mini) Close() error {
	return m.bus.Close()
}

// Enable enables torque on all servos.
func (m *Mini) Enable(ctx context.Context) error {
	return m.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (m *Mini) Disable(ctx context.Context) error {
	return m.group.DisableAll(ctx)
}

// ReadPositions reads normalized positions from all motors.
func (m *Mini) ReadPositions(ctx context.Context) (Positions, error) {
	raw, err := m.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	positions := make(Positions, len(raw))
	for id, value := range raw {
		name, cal, ok := m.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(value)
	}
	return positions, nil
}

// WritePositions writes normalized target positions. Unknown motors are
// ignored.
func (m *Mini) WritePositions(ctx context.Context, positions Positions) error {
	raw := make(feetech.PositionMap, len(positions))
	for name, norm := range positions {
		cal, ok := m.calibration[name]
		if !ok {
			continue
		}
		raw[cal.ID] = cal.Denormalize(norm)
	}

	if err := m.group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}
