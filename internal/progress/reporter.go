// internal/progress/reporter.go
package progress

import (
	"sync"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
)

// Counts of a batch so far
type Counts struct {
	Total      int
	Located    int
	NoLocation int
	Rejected   int
	Errors     int
}

// Processed returns how many photos have been handled
func (c Counts) Processed() int {
	return c.Located + c.NoLocation + c.Rejected + c.Errors
}

// Reporter tracks and reports batch inspection progress
type Reporter struct {
	mu             sync.Mutex
	counts         Counts
	startTime      time.Time
	lastUpdateTime time.Time
	updateInterval time.Duration
	now            func() time.Time
}

// New creates a new progress reporter
func New() *Reporter {
	return &Reporter{
		updateInterval: 2 * time.Second,
		now:            time.Now,
	}
}

// Start initializes the progress reporter with the total number of photos
func (r *Reporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts = Counts{Total: total}
	r.startTime = r.now()
	r.lastUpdateTime = r.startTime

	logger.Info("Inspecting %d photos", total)
}

// Located marks a photo whose coordinates were resolved
func (r *Reporter) Located() {
	r.record(func(c *Counts) { c.Located++ })
}

// NoLocation marks a photo with metadata but no usable coordinates
func (r *Reporter) NoLocation() {
	r.record(func(c *Counts) { c.NoLocation++ })
}

// Rejected marks a photo without EXIF or without any field of interest
func (r *Reporter) Rejected() {
	r.record(func(c *Counts) { c.Rejected++ })
}

// Error marks a photo that could not be read
func (r *Reporter) Error(name string, err error) {
	logger.Warn("Photo %s failed: %v", name, err)
	r.record(func(c *Counts) { c.Errors++ })
}

// Counts returns a snapshot
func (r *Reporter) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

// Finish completes the progress reporting
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.counts
	duration := r.now().Sub(r.startTime)

	logger.Info("Inspection complete: %d/%d photos, %d located, %d without location, %d rejected, %d errors in %s",
		c.Processed(), c.Total, c.Located, c.NoLocation, c.Rejected, c.Errors, duration.Round(time.Millisecond))
}

func (r *Reporter) record(update func(*Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	update(&r.counts)
	r.updateProgress()
}

// updateProgress updates and displays the progress
func (r *Reporter) updateProgress() {
	now := r.now()
	if now.Sub(r.lastUpdateTime) < r.updateInterval {
		return
	}

	r.lastUpdateTime = now
	processed := r.counts.Processed()
	if processed == 0 || r.counts.Total == 0 {
		return
	}

	percentage := float64(processed) / float64(r.counts.Total) * 100
	perPhoto := now.Sub(r.startTime) / time.Duration(processed)
	eta := (perPhoto * time.Duration(r.counts.Total-processed)).Round(time.Second)

	logger.Info("Progress: %.1f%% (%d/%d) ETA: %s", percentage, processed, r.counts.Total, eta)
}
