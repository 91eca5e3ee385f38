// The public face of the kernel for the users of this package.
//
// lazuli is a thin re-export layer over internal: it exposes the types
// and functions a host program needs to build and run a kernel
// instance, without pulling in the package that does the actual work.

package lazuli

import (
	"flag"
	"time"

	"github.com/bgp59/logrusx"
	"github.com/sirupsen/logrus"

	lazuli_internal "github.com/randruc/lazuli/internal"
)

type (
	Kernel            = lazuli_internal.Kernel
	KernelConfig      = lazuli_internal.KernelConfig
	ModuleSwitches    = lazuli_internal.ModuleSwitches
	PanicBehavior     = lazuli_internal.PanicBehavior
	LoggerConfig      = lazuli_internal.LoggerConfig
	SchedulingPolicy  = lazuli_internal.SchedulingPolicy
	TaskConfiguration = lazuli_internal.TaskConfiguration
	TaskHandle        = lazuli_internal.TaskHandle
	Mutex             = lazuli_internal.Mutex
	Clock24           = lazuli_internal.Clock24

	SerialConfig      = lazuli_internal.SerialConfig
	SerialEnableFlags = lazuli_internal.SerialEnableFlags
	SerialStopBits    = lazuli_internal.SerialStopBits
	SerialParityBit   = lazuli_internal.SerialParityBit
	SerialCharSize    = lazuli_internal.SerialCharSize
	SerialSpeed       = lazuli_internal.SerialSpeed
)

const (
	CyclicRT   = lazuli_internal.CyclicRT
	PriorityRT = lazuli_internal.PriorityRT

	PanicHalt  = lazuli_internal.PanicHalt
	PanicReset = lazuli_internal.PanicReset

	SystemStatusPanicked       = lazuli_internal.SystemStatusPanicked
	SystemStatusDeadlineMissed = lazuli_internal.SystemStatusDeadlineMissed

	SerialDisableAll     = lazuli_internal.SerialDisableAll
	SerialEnableTransmit = lazuli_internal.SerialEnableTransmit
	SerialEnableReceive  = lazuli_internal.SerialEnableReceive
	SerialEnableAll      = lazuli_internal.SerialEnableAll

	SerialStopBits1 = lazuli_internal.SerialStopBits1
	SerialStopBits2 = lazuli_internal.SerialStopBits2

	SerialParityNone = lazuli_internal.SerialParityNone
	SerialParityEven = lazuli_internal.SerialParityEven
	SerialParityOdd  = lazuli_internal.SerialParityOdd

	SerialSize5 = lazuli_internal.SerialSize5
	SerialSize6 = lazuli_internal.SerialSize6
	SerialSize7 = lazuli_internal.SerialSize7
	SerialSize8 = lazuli_internal.SerialSize8

	SerialSpeed2400  = lazuli_internal.SerialSpeed2400
	SerialSpeed4800  = lazuli_internal.SerialSpeed4800
	SerialSpeed9600  = lazuli_internal.SerialSpeed9600
	SerialSpeed19200 = lazuli_internal.SerialSpeed19200
)

var ErrOutOfMemory = lazuli_internal.ErrOutOfMemory

// NewKernel builds a Kernel from cfg; a nil cfg uses DefaultKernelConfig().
func NewKernel(cfg *KernelConfig) (*Kernel, error) {
	return lazuli_internal.NewKernel(cfg)
}

func DefaultKernelConfig() *KernelConfig {
	return lazuli_internal.DefaultKernelConfig()
}

func DefaultTaskConfiguration() *TaskConfiguration {
	return lazuli_internal.DefaultTaskConfiguration()
}

// LoadKernelConfig loads a KernelConfig from cfgFile's "kernel" YAML
// section; any other top-level section is ignored, left for the host
// program's own configuration.
func LoadKernelConfig(cfgFile string) (*KernelConfig, error) {
	return lazuli_internal.LoadKernelConfig(cfgFile, nil)
}

func NewMutex() *Mutex       { return lazuli_internal.NewMutex() }
func NewLockedMutex() *Mutex { return lazuli_internal.NewLockedMutex() }

func NewClock24() *Clock24 { return lazuli_internal.NewClock24() }

func DefaultSerialConfig() SerialConfig { return lazuli_internal.DefaultSerialConfig() }

// GetSerialConfiguration copies the current serial line configuration
// into *cfg, as seen by any task (the configuration is process-wide).
func GetSerialConfiguration(h *TaskHandle, cfg *SerialConfig) {
	lazuli_internal.GetSerialConfiguration(h, cfg)
}

// SetSerialConfiguration replaces the current serial line configuration.
func SetSerialConfiguration(h *TaskHandle, cfg *SerialConfig) {
	lazuli_internal.SetSerialConfiguration(h, cfg)
}

// SerialOutputSnapshot returns everything written so far via any
// TaskHandle.WriteString call.
func SerialOutputSnapshot() string { return lazuli_internal.SerialOutputSnapshot() }

// Panic reports a kernel-context fatal condition; see internal.Panic.
func Panic(reason string) { lazuli_internal.Panic(reason) }

// The root logger. Needed only for tests where the logger is captured
// (see testutils/log_collector.go); its actual type is obscured.
func GetRootLogger() any { return lazuli_internal.GetRootLogger() }

// Create a new component logger w/ comp=compName field.
func NewCompLogger(comp string) *logrus.Entry {
	return lazuli_internal.NewCompLogger(comp)
}

// When logging files, the log file name is derived from the file path,
// typically relative to the module root dir. The logger maintains a
// list of prefixes to strip and the following function will add the
// caller's module path to it, inferred from the caller's file path,
// going up N dirs. Typically the call is made from main.init(), so the
// parameter is 0 (assuming main.go is at the root dir of the module).
func AddCallerSrcPathPrefixToLogger(upNDirs int) {
	// skip = 1 below to base the caller's path on the caller of this function.
	lazuli_internal.AddCallerSrcPathPrefixToLogger(upNDirs, 1)
}

// Command line args for a standalone simulator binary; defined at
// package scope since flags must be parsed before Run is called.
var configFileArg = flag.String(
	"config",
	"lazuli-config.yaml",
	`Config file to load`,
)

func init() {
	logrusx.EnableLoggerArgs()
}

var runLog = NewCompLogger("run")

// Run loads the kernel configuration from the -config flag, applies any
// command line logger overrides, starts the kernel and blocks until a
// SIGINT/SIGTERM is received or the kernel is explicitly shut down, then
// waits (up to gracePeriod) for the scheduler to stop. It is the
// simulator-host analogue of falling into the idle loop on real
// hardware: build registers tasks against the kernel before Run blocks.
//
// build is called once cfg has been loaded and the kernel constructed,
// but before the scheduler starts, so it can register tasks.
func Run(gracePeriod time.Duration, build func(k *Kernel) error) int {
	if !flag.Parsed() {
		flag.Parse()
	}

	cfg, err := LoadKernelConfig(*configFileArg)
	if err != nil {
		runLog.Errorf("error loading config file: %v", err)
		return 1
	}

	logrusx.ApplySetLoggerArgs(cfg.LoggerConfig)

	k, err := NewKernel(cfg)
	if err != nil {
		runLog.Errorf("error creating kernel: %v", err)
		return 1
	}

	if build != nil {
		if err := build(k); err != nil {
			runLog.Errorf("error building tasks: %v", err)
			return 1
		}
	}

	if err := k.Run(gracePeriod); err != nil {
		runLog.Errorf("kernel run error: %v", err)
		return 1
	}

	return 0
}
