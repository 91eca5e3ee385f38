// rms-demo runs three CyclicRT tasks at different periods, the Go
// analogue of example-programs/rms.c: the point is to watch the
// scheduler interleave them rate-monotonically rather than in
// registration order.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/randruc/lazuli"
)

func countingTask(name string, period time.Duration) *lazuli.TaskConfiguration {
	return &lazuli.TaskConfiguration{
		Name:   name,
		Policy: lazuli.CyclicRT,
		Period: period,
		// Generous relative to the counting loop body, which never blocks
		// on anything: real overruns aren't the point of this demo.
		Completion: period / 2,
		Activity: func(h *lazuli.TaskHandle) {
			var count uint64
			for {
				count++
				if count%50 == 0 {
					fmt.Printf("%s: %d releases\n", name, count)
				}
				h.WaitActivation()
			}
		},
	}
}

func main() {
	lazuli.AddCallerSrcPathPrefixToLogger(2)

	// Run blocks until SIGINT/SIGTERM; gracePeriod bounds the shutdown wait.
	rc := lazuli.Run(5*time.Second, func(k *lazuli.Kernel) error {
		for _, cfg := range []*lazuli.TaskConfiguration{
			countingTask("fast", 40*time.Millisecond),
			countingTask("medium", 60*time.Millisecond),
			countingTask("slow", 120*time.Millisecond),
		} {
			if _, err := k.RegisterTask(cfg); err != nil {
				return err
			}
		}
		return nil
	})
	os.Exit(rc)
}
