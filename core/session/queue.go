package session

import "context"

type outcome struct {
	token string
	err   error
}

// waiter is a request continuation parked until the in-flight refresh settles.
type waiter struct {
	result chan outcome // buffered: settling never blocks on an abandoned waiter
}

func (w *waiter) resolve(token string) { w.result <- outcome{token: token} }
func (w *waiter) reject(err error)     { w.result <- outcome{err: err} }

func (w *waiter) wait(ctx context.Context) (string, error) {
	select {
	case o := <-w.result:
		return o.token, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pendingQueue holds waiters in arrival order. It is not safe for concurrent
// use; the Coordinator guards it with its mutex.
type pendingQueue struct {
	waiters []*waiter
}

func (q *pendingQueue) enqueue() *waiter {
	w := &waiter{result: make(chan outcome, 1)}
	q.waiters = append(q.waiters, w)
	return w
}

// drain empties the queue and returns its waiters, oldest first.
func (q *pendingQueue) drain() []*waiter {
	ws := q.waiters
	q.waiters = nil
	return ws
}

// remove drops w if it is still queued.
func (q *pendingQueue) remove(w *waiter) {
	for i, qw := range q.waiters {
		if qw == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

func (q *pendingQueue) len() int { return len(q.waiters) }

func settle(waiters []*waiter, token string, err error) {
	for _, w := range waiters {
		if err != nil {
			w.reject(err)
		} else {
			w.resolve(token)
		}
	}
}
