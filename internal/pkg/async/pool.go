// Package async runs independent named tasks on a bounded worker pool and
// collects their results. The dashboard uses it to fan out its aggregation
// queries instead of running them back to back.
package async

import (
	"context"
	"sync"
)

// Task is a unit of work identified by name.
type Task struct {
	Name    string
	Execute func() (any, error)
}

// Result carries a task's outcome back under its name.
type Result struct {
	Name string
	Data any
	Err  error
}

// Pool runs tasks with a fixed number of workers. A Pool is stateless and
// safe to reuse across Execute calls.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Execute runs every task and returns results keyed by task name. When the
// context is cancelled it returns whatever has finished so far.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	pending := make(chan Task, len(tasks))
	done := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-pending:
					if !ok {
						return
					}
					data, err := task.Execute()
					done <- Result{Name: task.Name, Data: data, Err: err}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, task := range tasks {
		pending <- task
	}
	close(pending)

	results := make(map[string]Result, len(tasks))
	for range tasks {
		select {
		case result := <-done:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	wg.Wait()
	return results
}
