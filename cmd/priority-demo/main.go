// priority-demo is the Go analogue of
// example-programs/highest_priority_first.c: two PriorityRT tasks each
// wait on a distinct interrupt id and print a burst of letters once
// woken. In place of the original's EICRA/EIMSK-triggered external
// interrupts, a background goroutine fires HandleInterrupt on a timer
// to simulate INT0/INT1 activity.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/randruc/lazuli"
)

const (
	int0 = 0
	int1 = 1
)

func letterBurst(name string, irq uint8, from, to byte) *lazuli.TaskConfiguration {
	return &lazuli.TaskConfiguration{
		Name:     name,
		Policy:   lazuli.PriorityRT,
		Priority: int32(irq) + 1,
		Activity: func(h *lazuli.TaskHandle) {
			for {
				h.WaitInterrupt(irq)
				for c := from; c <= to; c++ {
					fmt.Printf("%c", c)
				}
				fmt.Println()
			}
		},
	}
}

func main() {
	lazuli.AddCallerSrcPathPrefixToLogger(2)

	rc := lazuli.Run(5*time.Second, func(k *lazuli.Kernel) error {
		if _, err := k.RegisterTask(letterBurst("lower", int0, 'a', 'j')); err != nil {
			return err
		}
		if _, err := k.RegisterTask(letterBurst("upper", int1, 'A', 'J')); err != nil {
			return err
		}

		go func() {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			irq := uint8(int0)
			for range ticker.C {
				k.Scheduler.HandleInterrupt(irq)
				if irq == int0 {
					irq = int1
				} else {
					irq = int0
				}
			}
		}()
		return nil
	})
	os.Exit(rc)
}
