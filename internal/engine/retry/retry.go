// Package retry encodes the fixed per-attempt backoff table used by the
// Worker Pool before it hands a retried job to the Executor.
package retry

import "time"

// TableBackOff looks up the delay for a given attempt index from a fixed,
// ordered delay table. Index i corresponds to attempt i+1; any attempt
// beyond the table length is clamped to the last defined delay.
type TableBackOff struct {
	table []time.Duration
}

// New builds a TableBackOff from a list of per-attempt delays in seconds,
// e.g. []int{1, 3, 5} for backoff(1)=1, backoff(2)=3, backoff(3)=5.
func New(secondsTable []int) *TableBackOff {
	table := make([]time.Duration, len(secondsTable))
	for i, s := range secondsTable {
		table[i] = time.Duration(s) * time.Second
	}
	return &TableBackOff{table: table}
}

// ForAttempt returns the delay for a specific 1-based attempt index. Jobs
// are retried across independent Dispatch Queue redeliveries rather than a
// single in-process retry loop, and many jobs are in flight across worker
// goroutines at once, so the lookup is a stateless function of the job's own
// persisted attempt counter rather than an internally-advancing sequence.
func (b *TableBackOff) ForAttempt(attempt int) time.Duration {
	if len(b.table) == 0 || attempt < 1 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(b.table) {
		idx = len(b.table) - 1
	}
	return b.table[idx]
}
