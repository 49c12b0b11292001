// Package inmemdb keeps the repositories in process memory. It backs the
// development server and the tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
)

type (
	DB struct {
		user         *table[user.User]
		issue        *table[issue.Issue]
		notification *table[issue.Notification]
	}

	table[T any] struct {
		rows  map[int]*T
		pk    int
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:         newTable[user.User](),
		issue:        newTable[issue.Issue](),
		notification: newTable[issue.Notification](),
	}
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int]*T)}
}

// nextPK must be called with the write lock held.
func (t *table[T]) nextPK() int {
	t.pk++
	return t.pk
}

// all returns copies of the rows; must be called with a lock held.
func (t *table[T]) all() []T {
	rows := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, *r)
	}
	return rows
}
