package utils

import (
	"fmt"
	"sync"
)

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunPartitions starts one worker goroutine per partition. Workers send their
// output on out, which is closed once every worker has returned. The returned
// channel reports each worker's exit (Result is the worker index) and is
// closed after out. A panicking worker is reported as an error.
func RunPartitions[In any, Out any](worker func(id int, part []In, out chan<- Out) error, parts [][]In, out chan Out) <-chan CompletedTask[int] {
	done := make(chan CompletedTask[int], len(parts))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(len(parts))

		for i, part := range parts {
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						done <- CompletedTask[int]{Result: i, Error: fmt.Errorf("worker %d panicked: %v", i, r)}
					}
				}()

				err := worker(i, part, out)
				done <- CompletedTask[int]{Result: i, Error: err}
			}()
		}

		wg.Wait()

		close(out)
		close(done)
	}()

	return done
}
