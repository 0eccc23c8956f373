package readiness

import "sync"

// Latch accumulates Scan results over one process lifetime: readiness never
// resets once seen, and the first URL observed is kept for good.
type Latch struct {
	detector *Detector

	mu    sync.Mutex
	ready bool
	url   string
}

// NewLatch creates a latch scanning with d.
func NewLatch(d *Detector) *Latch {
	return &Latch{detector: d}
}

// Feed scans chunk and reports whether this chunk made the process ready and
// whether it supplied the process URL for the first time.
func (l *Latch) Feed(chunk string) (becameReady, foundURL bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready && l.url != "" {
		return false, false
	}

	res := l.detector.Scan(chunk)
	if res.Ready && !l.ready {
		l.ready = true
		becameReady = true
	}
	if res.URL != "" && l.url == "" {
		l.url = res.URL
		foundURL = true
	}
	return becameReady, foundURL
}

// Ready reports whether a readiness marker has been seen.
func (l *Latch) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// URL returns the first endpoint URL seen, or "".
func (l *Latch) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}
