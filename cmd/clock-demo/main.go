// clock-demo is the Go analogue of example-programs/clock24.c: a
// CyclicRT task reads the wall clock module once a second and prints
// it, demonstrating Clock24's lock-free reader protocol running
// concurrently with the tick source that increments it.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/randruc/lazuli"
)

func main() {
	lazuli.AddCallerSrcPathPrefixToLogger(2)

	rc := lazuli.Run(5*time.Second, func(k *lazuli.Kernel) error {
		_, err := k.RegisterTask(&lazuli.TaskConfiguration{
			Name:       "clock-printer",
			Policy:     lazuli.CyclicRT,
			Period:     time.Second,
			Completion: 100 * time.Millisecond,
			Activity: func(h *lazuli.TaskHandle) {
				for {
					hh, mm, ss := k.Clock.Get()
					fmt.Printf("%02d:%02d:%02d\n", hh, mm, ss)
					h.WaitActivation()
				}
			},
		})
		return err
	})
	os.Exit(rc)
}
