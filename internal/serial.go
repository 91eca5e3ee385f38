// Serial line configuration: a thin config-record round-trip
// only. The transmission line itself (the actual UART/USART device)
// has no host-side equivalent and is out of scope; what is kept is the
// record and its Get/Set accessors, grounded on
// original_source/sys/include/Lazuli/serial.h's Lz_SerialConfiguration
// and src/kern/modules/serial/serial.c's null-check-then-copy shape.

package lazuli_internal

import "sync"

type SerialEnableFlags uint8

const (
	SerialDisableAll     SerialEnableFlags = 0
	SerialEnableTransmit SerialEnableFlags = 1 << 0
	SerialEnableReceive  SerialEnableFlags = 1 << 1
	SerialEnableAll                        = SerialEnableTransmit | SerialEnableReceive
)

type SerialStopBits int

const (
	SerialStopBits1 SerialStopBits = iota
	SerialStopBits2
)

type SerialParityBit int

const (
	SerialParityNone SerialParityBit = iota
	SerialParityEven
	SerialParityOdd
)

type SerialCharSize int

const (
	SerialSize5 SerialCharSize = iota
	SerialSize6
	SerialSize7
	SerialSize8
)

type SerialSpeed int

const (
	SerialSpeed2400 SerialSpeed = iota
	SerialSpeed4800
	SerialSpeed9600
	SerialSpeed19200
)

// SerialConfig mirrors Lz_SerialConfiguration; it applies to both
// transmission and reception.
type SerialConfig struct {
	EnableFlags SerialEnableFlags
	StopBits    SerialStopBits
	ParityBit   SerialParityBit
	Size        SerialCharSize
	Speed       SerialSpeed
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		EnableFlags: SerialDisableAll,
		StopBits:    SerialStopBits1,
		ParityBit:   SerialParityNone,
		Size:        SerialSize8,
		Speed:       SerialSpeed9600,
	}
}

var (
	serialMu  sync.Mutex
	serialCfg = DefaultSerialConfig()
)

// GetSerialConfiguration copies the current serial line configuration
// into *cfg. A nil cfg is a task-context misuse, reported via
// ManageFailure the same way a nil mutex is.
func GetSerialConfiguration(h *TaskHandle, cfg *SerialConfig) {
	if cfg == nil {
		if CheckNullParametersInLists {
			ManageFailure(h.task, "nil serial configuration")
		}
		return
	}
	serialMu.Lock()
	*cfg = serialCfg
	serialMu.Unlock()
}

// SetSerialConfiguration replaces the current serial line configuration
// with *cfg.
func SetSerialConfiguration(h *TaskHandle, cfg *SerialConfig) {
	if cfg == nil {
		if CheckNullParametersInLists {
			ManageFailure(h.task, "nil serial configuration")
		}
		return
	}
	serialMu.Lock()
	serialCfg = *cfg
	serialMu.Unlock()
}
