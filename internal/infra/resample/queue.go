package resample

import "github.com/gopxl/beep/v2"

var _ beep.Streamer = (*queue)(nil)

// queue feeds pushed samples to beep's resampler.
// A short read tells the resampler the input has ended, so the converter
// only pulls while enough input is buffered, and only closes on Flush.
type queue struct {
	samples  [][2]float64
	closed   bool
	underrun int // short reads before close
}

func (q *queue) push(samples [][2]float64) {
	q.samples = append(q.samples, samples...)
}

func (q *queue) close() {
	q.closed = true
}

func (q *queue) buffered() int {
	return len(q.samples)
}

// Stream implements beep.Streamer.
func (q *queue) Stream(samples [][2]float64) (n int, ok bool) {
	n = copy(samples, q.samples)
	q.samples = q.samples[n:]
	if n < len(samples) && !q.closed {
		q.underrun++
	}
	if len(q.samples) == 0 {
		// release the backing array once drained
		q.samples = nil
	}
	return n, n > 0 || !q.closed
}

// Err implements beep.Streamer.
func (q *queue) Err() error {
	return nil
}
