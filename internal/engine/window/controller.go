package window

import (
	"errors"
	"sync"
	"time"

	"nettop/internal/engine/flowaggregator"
	"nettop/internal/engine/protocol"
	"nettop/internal/engine/ranking"
	"nettop/internal/metrics"
	"nettop/internal/model"

	"github.com/sirupsen/logrus"
)

// Options configures a Controller.
type Options struct {
	RunID        string
	Interface    string
	Interval     time.Duration
	PollInterval time.Duration
	Mode         model.SortMode
	TopN         int
	NumShards    uint32
	NumWorkers   int
	QueueSize    int
}

// Controller drives the reporting cycle. Frames are decoded and accounted by a pool of
// workers; a poll loop checks the wall clock and, once an interval has elapsed, trims the
// flow table, snapshots it, hands the ranked report to every writer and resets the counters.
type Controller struct {
	opts    Options
	agg     *flowaggregator.Aggregator
	writers []model.Writer
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// Worker pool for concurrent frame processing
	input     chan model.Frame
	workerWg  sync.WaitGroup
	stopInput sync.Once

	done   chan struct{}
	pollWg sync.WaitGroup

	// decoder serves Observe; workers own their decoders.
	decoder *protocol.Decoder

	mu          sync.Mutex
	windowStart time.Time
	seq         uint64
}

// New creates a Controller. m may be nil.
func New(opts Options, writers []model.Writer, log logrus.FieldLogger, m *metrics.Metrics) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Mode == 0 {
		opts.Mode = model.SortBytes
	}
	if opts.TopN <= 0 {
		opts.TopN = ranking.DefaultTopN
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}

	return &Controller{
		opts:    opts,
		agg:     flowaggregator.New(opts.NumShards),
		writers: writers,
		log:     log,
		metrics: m,
		input:   make(chan model.Frame, opts.QueueSize),
		done:    make(chan struct{}),
		decoder: protocol.NewDecoder(),
	}
}

// Aggregator exposes the flow table for inspection.
func (c *Controller) Aggregator() *flowaggregator.Aggregator {
	return c.agg
}

// Start begins the worker pool and the boundary poll loop. The first window starts now.
func (c *Controller) Start() {
	c.Begin(time.Now())

	c.workerWg.Add(c.opts.NumWorkers)
	for i := 0; i < c.opts.NumWorkers; i++ {
		go c.worker()
	}

	c.pollWg.Add(1)
	go c.runPoller()

	c.log.WithFields(logrus.Fields{
		"workers":  c.opts.NumWorkers,
		"interval": c.opts.Interval,
		"sort":     c.opts.Mode.String(),
	}).Info("Window controller started")
}

// Stop stops accepting frames, drains the workers and ends the poll loop. No report is
// emitted for the partial window.
func (c *Controller) Stop() {
	c.stopInput.Do(func() { close(c.input) })
	c.workerWg.Wait()

	close(c.done)
	c.pollWg.Wait()
	c.log.Info("Window controller stopped")
}

// Enqueue hands a frame to the worker pool without blocking. It reports false, and the frame
// is dropped, when the queue is full.
func (c *Controller) Enqueue(f model.Frame) bool {
	select {
	case c.input <- f:
		return true
	default:
		c.metrics.ObserveDrop()
		return false
	}
}

// Begin marks the start of the first window. Advance calls it implicitly on a zero start.
func (c *Controller) Begin(t time.Time) {
	c.mu.Lock()
	c.windowStart = t
	c.mu.Unlock()
}

// Observe decodes a frame and accounts it. It shares one decoder and must not be called from
// more than one goroutine; the worker pool has its own decoders.
func (c *Controller) Observe(f model.Frame) {
	c.process(c.decoder, f)
}

// Advance fires a window boundary when at least one interval has passed since the current
// window started. It reports whether a boundary fired.
func (c *Controller) Advance(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.windowStart.IsZero() {
		c.windowStart = now
		return false
	}
	if now.Sub(c.windowStart) < c.opts.Interval {
		return false
	}
	c.boundary(now)
	c.windowStart = now
	return true
}

// Flush forces a boundary regardless of elapsed time.
func (c *Controller) Flush(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundary(now)
	c.windowStart = now
}

// boundary must be called with c.mu held.
func (c *Controller) boundary(now time.Time) {
	snap, trimmed := c.agg.Rotate()
	c.seq++

	report := &model.Report{
		RunID:      c.opts.RunID,
		Sequence:   c.seq,
		Interface:  c.opts.Interface,
		Timestamp:  now,
		Interval:   c.opts.Interval,
		Mode:       c.opts.Mode,
		TotalFlows: len(snap),
		Trimmed:    trimmed,
		Rows:       ranking.Render(snap, c.opts.Mode, c.opts.Interval, c.opts.TopN),
	}
	c.metrics.ObserveWindow(len(snap), trimmed)

	for _, w := range c.writers {
		if err := w.Write(report); err != nil {
			c.metrics.ObserveWriterError(w.Name())
			c.log.WithError(err).WithField("writer", w.Name()).Warn("Failed to write report")
		}
	}
}

func (c *Controller) worker() {
	defer c.workerWg.Done()
	dec := protocol.NewDecoder()
	for f := range c.input {
		c.process(dec, f)
	}
}

func (c *Controller) process(dec *protocol.Decoder, f model.Frame) {
	rec, err := dec.Decode(f.Data)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnsupported):
		c.metrics.ObservePacket(metrics.ResultUnsupported, 0)
		return
	default:
		c.metrics.ObservePacket(metrics.ResultMalformed, 0)
		return
	}
	rec.Timestamp = f.Timestamp
	c.agg.Update(rec)
	c.metrics.ObservePacket(metrics.ResultDecoded, rec.WireLength)
}

func (c *Controller) runPoller() {
	defer c.pollWg.Done()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.Advance(now)
		case <-c.done:
			return
		}
	}
}
