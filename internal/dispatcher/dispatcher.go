// Package dispatcher maintains the FIFO queue of triplets built from the
// work directory and hands each one's composed payload to the session
// layer, archiving it afterward.
package dispatcher

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/yaoqih/material-identification-upper-computer/internal/grouping"
	"github.com/yaoqih/material-identification-upper-computer/internal/ingress"
	"github.com/yaoqih/material-identification-upper-computer/internal/mapping"
)

// Payload is the (indices, attrs, colors) triple Mapping composes for one
// dispatched triplet. Attrs is nil when blink is disabled or no item reaches
// the blink threshold; Colors is nil only when the triplet yields no items,
// matching Mapping.ComposeForTriplet.
type Payload struct {
	Indices []int
	Attrs   []int
	Colors  []int
}

// Dispatcher holds the pending queue and the most recently dispatched
// triplet, awaiting archival. Reload runs from a periodic rescan goroutine
// while RequestNextPayload/ArchivePending run from the session's RX
// goroutine, so access to queue/pending is guarded by mu.
type Dispatcher struct {
	workDir  string
	doneDir  string
	errorDir string

	grouping *grouping.Grouper
	mapper   *mapping.Mapper
	logger   *log.Logger

	mu      sync.Mutex
	queue   []grouping.Triplet
	pending *grouping.Triplet
}

// New builds a Dispatcher and performs an initial Reload.
func New(workDir, doneDir, errorDir string, grouper *grouping.Grouper, mapper *mapping.Mapper, logger *log.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		workDir:  workDir,
		doneDir:  doneDir,
		errorDir: errorDir,
		grouping: grouper,
		mapper:   mapper,
		logger:   logger,
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rebuilds the queue from scratch by re-running Grouping over the
// work directory. The previous run's partial trailing triplet is naturally
// completed here, since groups are recomputed over the directory's current
// contents rather than carried across calls.
func (d *Dispatcher) Reload() error {
	triplets, err := d.grouping.Group(d.workDir)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.queue = triplets
	d.mu.Unlock()
	return nil
}

// RequestNextPayload pops the head of the queue, remembers it as pending,
// and returns its composed payload. Returns a zero Payload with nil slices
// when the queue is empty.
func (d *Dispatcher) RequestNextPayload() (Payload, error) {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return Payload{}, nil
	}
	next := d.queue[0]
	d.queue = d.queue[1:]
	d.pending = &next
	d.mu.Unlock()

	indices, attrs, colors, err := d.mapper.ComposeForTriplet(next, nil)
	if err != nil {
		d.logger.Error("compose failed", "key", next.Key, "err", err)
		return Payload{}, err
	}
	return Payload{Indices: indices, Attrs: attrs, Colors: colors}, nil
}

// ArchivePending moves every file of the pending triplet to done_dir (on
// success) or error_dir (on failure) and clears the pending reference. This
// never fails the pipeline: individual move errors are logged and
// otherwise ignored, matching Dispatcher.archive_group's try/except-per-file
// behavior.
func (d *Dispatcher) ArchivePending(success bool) {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	if pending == nil {
		d.logger.Debug("archive_pending: no task to archive")
		return
	}
	dst := d.doneDir
	if !success {
		dst = d.errorDir
	}

	for color, pair := range pending.Files {
		for _, src := range []string{pair.TxtPath, pair.ImgPath} {
			if src == "" {
				continue
			}
			if _, err := ingress.MoveFile(src, dst); err != nil {
				d.logger.Error("archive failed", "path", src, "color", color, "err", err)
				continue
			}
			d.logger.Info("archive", "path", src, "color", color, "dst", dst)
		}
	}
}

// QueueLen reports the number of triplets still queued, for diagnostics.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// PendingKey returns the key of the triplet awaiting archival, or "" when
// nothing is pending. Used to label traceability output (e.g. the printer
// stub) without exposing the pending triplet itself.
func (d *Dispatcher) PendingKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return ""
	}
	return d.pending.Key
}
