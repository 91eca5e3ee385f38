// Kernel configuration
//
// The configuration is loaded from a YAML file, with the following
// structure:
//
//  kernel:
//    tick_frequency_hz: 50
//    default_stack_size: 128
//    default_priority: 0
//    idle_on_sleep: true
//    check_null_parameters: true
//    check_interrupt_code_over_last_entry: true
//    panic_behavior: halt
//    modules:
//      clock24: true
//      mutex: true
//      serial: true
//
// The "kernel" section maps to the KernelConfig structure defined in
// this package. Any other top-level section is ignored: a host program
// embedding this kernel is expected to own its own application-level
// configuration in the same file.

package lazuli_internal

import (
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	KERNEL_CONFIG_SECTION_NAME = "kernel"

	KERNEL_CONFIG_TICK_FREQUENCY_HZ_DEFAULT                    = 50
	KERNEL_CONFIG_DEFAULT_STACK_SIZE_DEFAULT                   = 128
	KERNEL_CONFIG_DEFAULT_PRIORITY_DEFAULT                     = 0
	KERNEL_CONFIG_IDLE_ON_SLEEP_DEFAULT                        = true
	KERNEL_CONFIG_CHECK_NULL_PARAMETERS_DEFAULT                = true
	KERNEL_CONFIG_CHECK_INTERRUPT_CODE_OVER_LAST_ENTRY_DEFAULT = true
	KERNEL_CONFIG_MAX_IRQ_DEFAULT                              = 7

	// Minimum stack size: a task StackSize below it is replaced by
	// DefaultStackSize at registration, and a DefaultStackSize below it
	// fails Validate with a human readable error via go-units.
	KERNEL_CONFIG_MIN_STACK_SIZE = 32
)

var KERNEL_CONFIG_PANIC_BEHAVIOR_DEFAULT = PanicHalt

// PanicBehavior selects what Panic() does once a kernel-context fatal
// misuse is detected. Exactly one is in effect at any time.
type PanicBehavior int

const (
	// PanicHalt blocks forever, the Go analogue of looping with
	// interrupts disabled.
	PanicHalt PanicBehavior = iota
	// PanicReset simulates a watchdog-triggered system reset.
	PanicReset
)

var panicBehaviorNames = map[PanicBehavior]string{
	PanicHalt:  "halt",
	PanicReset: "reset",
}

func (b PanicBehavior) String() string {
	return panicBehaviorNames[b]
}

func (b PanicBehavior) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b *PanicBehavior) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "halt":
		*b = PanicHalt
	case "reset":
		*b = PanicReset
	default:
		return fmt.Errorf("invalid panic_behavior %q", s)
	}
	return nil
}

// ModuleSwitches selects which optional modules are compiled in, the
// Go analogue of the LZ_CONFIG_MODULE_*_USED compile-time switches.
type ModuleSwitches struct {
	Clock24 bool `yaml:"clock24"`
	Mutex   bool `yaml:"mutex"`
	Serial  bool `yaml:"serial"`
}

// KernelConfig is the kernel's compile-time configuration surface.
type KernelConfig struct {
	// Tick source frequency, in Hz.
	TickFrequencyHz int `yaml:"tick_frequency_hz"`

	// Default task stack size, in bytes, applied when a registered
	// task's configuration doesn't specify one (or specifies less than
	// KERNEL_CONFIG_MIN_STACK_SIZE).
	DefaultStackSize int `yaml:"default_stack_size"`

	// Default task priority for PriorityRT tasks that don't specify one.
	DefaultPriority int32 `yaml:"default_priority"`

	// Idle CPU behavior: sleep (true) or busy-loop (false). Loaded and
	// kept in the config only; the scheduler has no idle task (an idle
	// CPU is a nil current task), so nothing reads it.
	IdleOnSleep bool `yaml:"idle_on_sleep"`

	// Whether list/mutex operations validate nil arguments.
	CheckNullParameters bool `yaml:"check_null_parameters"`

	// Whether WaitInterrupt validates its irq id against MaxIRQ.
	CheckInterruptCodeOverLastEntry bool `yaml:"check_interrupt_code_over_last_entry"`

	// The highest valid interrupt id; waitingInterrupt is sized MaxIRQ+1.
	MaxIRQ uint8 `yaml:"max_irq"`

	// What Panic() does.
	PanicBehavior PanicBehavior `yaml:"panic_behavior"`

	// Optional module switches.
	Modules ModuleSwitches `yaml:"modules"`

	// Logger configuration; applied to the component logger by NewKernel.
	LoggerConfig *LoggerConfig `yaml:"log_config"`
}

func DefaultKernelConfig() *KernelConfig {
	return &KernelConfig{
		TickFrequencyHz:                 KERNEL_CONFIG_TICK_FREQUENCY_HZ_DEFAULT,
		DefaultStackSize:                KERNEL_CONFIG_DEFAULT_STACK_SIZE_DEFAULT,
		DefaultPriority:                 KERNEL_CONFIG_DEFAULT_PRIORITY_DEFAULT,
		IdleOnSleep:                     KERNEL_CONFIG_IDLE_ON_SLEEP_DEFAULT,
		CheckNullParameters:             KERNEL_CONFIG_CHECK_NULL_PARAMETERS_DEFAULT,
		CheckInterruptCodeOverLastEntry: KERNEL_CONFIG_CHECK_INTERRUPT_CODE_OVER_LAST_ENTRY_DEFAULT,
		MaxIRQ:                          KERNEL_CONFIG_MAX_IRQ_DEFAULT,
		PanicBehavior:                   KERNEL_CONFIG_PANIC_BEHAVIOR_DEFAULT,
		Modules: ModuleSwitches{
			Clock24: true,
			Mutex:   true,
			Serial:  true,
		},
		LoggerConfig: DefaultLoggerConfig(),
	}
}

// Validate checks stack/tick defaults and returns a human readable
// error (sized with go-units) if they are unusable.
func (cfg *KernelConfig) Validate() error {
	if cfg.DefaultStackSize < KERNEL_CONFIG_MIN_STACK_SIZE {
		return fmt.Errorf(
			"default_stack_size: %s is below the minimum of %s",
			units.HumanSize(float64(cfg.DefaultStackSize)),
			units.HumanSize(float64(KERNEL_CONFIG_MIN_STACK_SIZE)),
		)
	}
	if cfg.TickFrequencyHz <= 0 {
		return fmt.Errorf("tick_frequency_hz: must be > 0, got %d", cfg.TickFrequencyHz)
	}
	return nil
}

// LoadKernelConfig loads the configuration from the specified YAML file
// (or buf, for testing) as follows:
//   - the "kernel" section is decoded into a *KernelConfig
//   - any other top-level section is ignored.
func LoadKernelConfig(cfgFile string, buf []byte) (*KernelConfig, error) {
	if buf == nil {
		// Normal case, buf is pre-populated only for testing.
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	if err := yaml.Unmarshal(buf, &docNode); err != nil {
		return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	kernelConfig := DefaultKernelConfig()
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		var toCfg any = nil
		for _, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode {
				if n.Value == KERNEL_CONFIG_SECTION_NAME {
					toCfg = kernelConfig
				} else {
					toCfg = nil
				}
				continue
			}
			if n.Kind == yaml.MappingNode && toCfg != nil {
				if err := n.Decode(toCfg); err != nil {
					return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			}
			toCfg = nil
		}
	}

	if err := kernelConfig.Validate(); err != nil {
		return nil, err
	}

	return kernelConfig, nil
}

// CheckNullParametersInLists mirrors LZ_CONFIG_CHECK_NULL_PARAMETERS_IN_LISTS.
// It is process-wide, set from the active KernelConfig by NewKernel,
// and read by list.go.
var CheckNullParametersInLists = KERNEL_CONFIG_CHECK_NULL_PARAMETERS_DEFAULT

// CheckNullParametersInMutexes mirrors LZ_CONFIG_CHECK_NULL_PARAMETERS_IN_MUTEXES.
var CheckNullParametersInMutexes = KERNEL_CONFIG_CHECK_NULL_PARAMETERS_DEFAULT

// activePanicBehavior is read by Panic() in kernel.go.
var activePanicBehavior = KERNEL_CONFIG_PANIC_BEHAVIOR_DEFAULT

// applyConfig propagates the process-wide switches derived from cfg.
// Called once by NewKernel.
func applyConfig(cfg *KernelConfig) {
	CheckNullParametersInLists = cfg.CheckNullParameters
	CheckNullParametersInMutexes = cfg.CheckNullParameters
	activePanicBehavior = cfg.PanicBehavior
}
