// Package ordering computes a linear, dependency-respecting task order.
package ordering

import (
	"sort"

	"github.com/aescanero/localdag/pkg/domain"
)

// Topological orders tasks with Kahn's algorithm. Among tasks that are
// ready at the same time the lexicographically smallest goes first, so the
// order is stable across runs.
type Topological struct{}

// NewTopological creates a topological orderer
func NewTopological() *Topological {
	return &Topological{}
}

// Order implements ports.GraphOrderer.
func (t *Topological) Order(deps map[string][]string) ([]string, error) {
	inDeg := make(map[string]int, len(deps))
	blocks := make(map[string][]string, len(deps))

	for task, upstream := range deps {
		seen := make(map[string]bool, len(upstream))
		for _, up := range upstream {
			if _, ok := deps[up]; !ok {
				return nil, domain.NewSpecError(domain.ErrUnknownTask, up, "task %q depends on an undefined task", task)
			}
			if seen[up] {
				continue
			}
			seen[up] = true
			inDeg[task]++
			blocks[up] = append(blocks[up], task)
		}
	}

	// Seed with zero in-degree tasks
	var ready []string
	for task := range deps {
		if inDeg[task] == 0 {
			ready = append(ready, task)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		task := ready[0]
		ready = ready[1:]
		order = append(order, task)

		var unlocked []string
		for _, down := range blocks[task] {
			inDeg[down]--
			if inDeg[down] == 0 {
				unlocked = append(unlocked, down)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(deps) {
		return nil, domain.NewSpecError(domain.ErrCyclicDependency, "",
			"ordered %d of %d tasks", len(order), len(deps))
	}
	return order, nil
}
