package upload

import (
	"io"
	"sync"
)

// ProgressFunc receives a fraction-complete in [0, 1]. Reports are
// best-effort and must never block an upload; callbacks should return fast.
type ProgressFunc func(fraction float64)

// tracker guards monotonicity across retried attempts: a replayed body must
// not make the reported fraction go backwards.
type tracker struct {
	mu   sync.Mutex
	last float64
	fn   ProgressFunc
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn}
}

func (t *tracker) report(fraction float64) {
	if t == nil || t.fn == nil {
		return
	}
	t.mu.Lock()
	if fraction <= t.last {
		t.mu.Unlock()
		return
	}
	t.last = fraction
	t.mu.Unlock()
	t.fn(fraction)
}

func (t *tracker) done() {
	t.report(1)
}

// progressReader reports read progress against a known total.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	t     *tracker
}

func newProgressReader(r io.Reader, total int64, t *tracker) *progressReader {
	return &progressReader{r: r, total: total, t: t}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		p.t.report(float64(p.read) / float64(p.total))
	}
	return n, err
}
