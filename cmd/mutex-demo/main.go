// mutex-demo is the Go analogue of
// example-programs/mutex_alternating_tasks.c: two tasks hand-off
// between a pair of mutexes to print a strictly alternating A, B, A,
// B, ... sequence, demonstrating that Mutex.Lock/Unlock never lets the
// same letter print twice in a row.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/randruc/lazuli"
)

const loopCount = 10

func main() {
	lazuli.AddCallerSrcPathPrefixToLogger(2)

	mutexA := lazuli.NewLockedMutex()
	mutexB := lazuli.NewLockedMutex()

	rc := lazuli.Run(5*time.Second, func(k *lazuli.Kernel) error {
		_, err := k.RegisterTask(&lazuli.TaskConfiguration{
			Name:     "A",
			Policy:   lazuli.PriorityRT,
			Priority: 1,
			Activity: func(h *lazuli.TaskHandle) {
				for i := 0; i < loopCount; i++ {
					mutexA.Lock(h)
					fmt.Println("A")
					mutexB.Unlock(h)
				}
			},
		})
		if err != nil {
			return err
		}

		_, err = k.RegisterTask(&lazuli.TaskConfiguration{
			Name:     "B",
			Policy:   lazuli.PriorityRT,
			Priority: 1,
			Activity: func(h *lazuli.TaskHandle) {
				mutexA.Unlock(h)
				for i := 0; i < loopCount; i++ {
					mutexB.Lock(h)
					fmt.Println("B")
					mutexA.Unlock(h)
				}
			},
		})
		return err
	})
	os.Exit(rc)
}
