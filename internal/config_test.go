package lazuli_internal

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type LoadConfigTestCase struct {
	Name             string
	Description      string
	Data             string
	WantKernelConfig *KernelConfig
	WantErr          bool
}

func testLoadConfig(t *testing.T, tc *LoadConfigTestCase) {
	if tc.Description != "" {
		t.Log(tc.Description)
	}
	gotKernelConfig, err := LoadKernelConfig("", []byte(strings.ReplaceAll(tc.Data, "\t", "  ")))
	if tc.WantErr {
		if err == nil {
			t.Fatal("want error, got nil")
		}
		return
	}
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(tc.WantKernelConfig, gotKernelConfig); diff != "" {
		t.Fatalf("KernelConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKernelConfig(t *testing.T) {
	cfgTickFreq := DefaultKernelConfig()
	cfgTickFreq.TickFrequencyHz = 100

	cfgPanicReset := DefaultKernelConfig()
	cfgPanicReset.PanicBehavior = PanicReset

	cfgStackAndPriority := DefaultKernelConfig()
	cfgStackAndPriority.DefaultStackSize = 256
	cfgStackAndPriority.DefaultPriority = 3

	cfgMaxIRQ := DefaultKernelConfig()
	cfgMaxIRQ.MaxIRQ = 15

	cfgChecks := DefaultKernelConfig()
	cfgChecks.CheckNullParameters = false
	cfgChecks.CheckInterruptCodeOverLastEntry = false

	cfgModules := DefaultKernelConfig()
	cfgModules.Modules = ModuleSwitches{Clock24: false, Mutex: true, Serial: false}

	ignoredData := `
		app_config:
			instance: foo
	`

	for _, tc := range []*LoadConfigTestCase{
		{
			Name:             "default",
			WantKernelConfig: DefaultKernelConfig(),
		},
		{
			Name: "kernel_empty",
			Data: `
				kernel:
			`,
			WantKernelConfig: DefaultKernelConfig(),
		},
		{
			Name: "tick_frequency_hz",
			Data: `
				kernel:
					tick_frequency_hz: 100
			`,
			WantKernelConfig: cfgTickFreq,
		},
		{
			Name: "panic_behavior_reset",
			Data: `
				kernel:
					panic_behavior: reset
			`,
			WantKernelConfig: cfgPanicReset,
		},
		{
			Name: "panic_behavior_invalid",
			Data: `
				kernel:
					panic_behavior: explode
			`,
			WantErr: true,
		},
		{
			Name: "stack_and_priority",
			Data: `
				kernel:
					default_stack_size: 256
					default_priority: 3
			`,
			WantKernelConfig: cfgStackAndPriority,
		},
		{
			Name: "stack_too_small",
			Data: `
				kernel:
					default_stack_size: 8
			`,
			WantErr: true,
		},
		{
			Name: "max_irq",
			Data: `
				kernel:
					max_irq: 15
			`,
			WantKernelConfig: cfgMaxIRQ,
		},
		{
			Name: "checks_disabled",
			Data: `
				kernel:
					check_null_parameters: false
					check_interrupt_code_over_last_entry: false
			`,
			WantKernelConfig: cfgChecks,
		},
		{
			Name: "modules",
			Data: `
				kernel:
					modules:
						clock24: false
						mutex: true
						serial: false
			`,
			WantKernelConfig: cfgModules,
		},
		{
			Name:             "unrelated_section_ignored",
			Data:             ignoredData,
			WantKernelConfig: DefaultKernelConfig(),
		},
		{
			Name: "kernel_section_plus_ignored",
			Data: `
				kernel:
					tick_frequency_hz: 100
				app_config:
					instance: foo
			`,
			WantKernelConfig: cfgTickFreq,
		},
	} {
		t.Run(
			tc.Name,
			func(t *testing.T) { testLoadConfig(t, tc) },
		)
	}
}
