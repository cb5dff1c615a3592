package utils_test

import (
	"audio-tagging/internal/core/utils"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunPartitions(t *testing.T) {
	parts := [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8, 9}}

	worker := func(id int, part []int, out chan<- string) error {
		for _, i := range part {
			if i%4 == 3 {
				time.Sleep(time.Duration(10-i) * time.Millisecond)
			}
			out <- fmt.Sprintf("%d-%d", id, i)
		}
		if id == 1 {
			return fmt.Errorf("error")
		}
		return nil
	}

	output := make(chan string, 2)

	done := utils.RunPartitions(worker, parts, output)

	var results []string
	for result := range output {
		results = append(results, result)
	}
	assert.Len(t, results, 10)

	var finished []int
	errors := 0
	for task := range done {
		finished = append(finished, task.Result)
		if task.Error != nil {
			errors++
			assert.Equal(t, 1, task.Result)
		}
	}
	sort.Ints(finished)
	assert.Equal(t, []int{0, 1, 2}, finished)
	assert.Equal(t, 1, errors)
}

func TestRunPartitionsRecoversPanics(t *testing.T) {
	parts := [][]int{{1}, {2}}

	worker := func(id int, part []int, out chan<- int) error {
		if id == 0 {
			panic("boom")
		}
		out <- part[0]
		return nil
	}

	output := make(chan int, 2)
	done := utils.RunPartitions(worker, parts, output)

	var results []int
	for r := range output {
		results = append(results, r)
	}
	assert.Equal(t, []int{2}, results)

	var errs []error
	for task := range done {
		if task.Error != nil {
			errs = append(errs, task.Error)
		}
	}
	assert.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "panicked: boom")
}

func TestRunPartitionsEmpty(t *testing.T) {
	output := make(chan int)
	done := utils.RunPartitions(func(int, []int, chan<- int) error { return nil }, nil, output)

	_, ok := <-output
	assert.False(t, ok)
	_, ok = <-done
	assert.False(t, ok)
}
