// Package pipeline runs the bounded-concurrency ingestion pipeline:
// scan, change-detect, process, extract, insert.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Stats is a snapshot of pipeline progress plus derived rates.
type Stats struct {
	FilesProcessed   int64         `json:"files_processed"`
	FilesFailed      int64         `json:"files_failed"`
	DocumentsCreated int64         `json:"documents_created"`
	CryptoAddresses  int64         `json:"crypto_addresses_extracted"`
	Incidents        int64         `json:"incidents_extracted"`
	Iocs             int64         `json:"iocs_extracted"`
	TotalBytes       int64         `json:"total_bytes_processed"`
	Duration         time.Duration `json:"duration"`
}

// FilesPerSecond returns the processing rate.
func (s *Stats) FilesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.FilesProcessed) / s.Duration.Seconds()
}

// BytesPerSecond returns the throughput.
func (s *Stats) BytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / s.Duration.Seconds()
}

// SuccessRate returns the fraction of attempted files that succeeded,
// 1.0 when nothing was attempted.
func (s *Stats) SuccessRate() float64 {
	attempted := s.FilesProcessed + s.FilesFailed
	if attempted == 0 {
		return 1.0
	}
	return float64(s.FilesProcessed) / float64(attempted)
}

// TotalEntities returns the number of entities extracted across all
// types.
func (s *Stats) TotalEntities() int64 {
	return s.CryptoAddresses + s.Incidents + s.Iocs
}

// Tracker accumulates pipeline counters. All methods are safe for
// concurrent use; the progress bar is optional.
type Tracker struct {
	filesProcessed   atomic.Int64
	filesFailed      atomic.Int64
	documentsCreated atomic.Int64
	cryptoAddresses  atomic.Int64
	incidents        atomic.Int64
	iocs             atomic.Int64
	totalBytes       atomic.Int64

	started time.Time
	bar     *progressbar.ProgressBar
}

// NewTracker starts tracking a run over totalFiles. quiet suppresses
// the progress bar.
func NewTracker(totalFiles int, quiet bool) *Tracker {
	t := &Tracker{started: time.Now()}
	if !quiet && totalFiles > 0 {
		t.bar = progressbar.NewOptions(totalFiles,
			progressbar.OptionSetDescription("processing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return t
}

// FileProcessed records one successful file of the given size.
func (t *Tracker) FileProcessed(bytes int64) {
	t.filesProcessed.Add(1)
	t.totalBytes.Add(bytes)
	t.step()
}

// FileFailed records one failed file.
func (t *Tracker) FileFailed() {
	t.filesFailed.Add(1)
	t.step()
}

// DocumentCreated records one document carried through processing and
// insertion. Store-level deduplication does not reduce this count.
func (t *Tracker) DocumentCreated() {
	t.documentsCreated.Add(1)
}

// InsertFailed reclassifies one already-processed file as failed after
// its insert errored.
func (t *Tracker) InsertFailed() {
	t.filesProcessed.Add(-1)
	t.filesFailed.Add(1)
}

// EntitiesExtracted records extraction counts for one file.
func (t *Tracker) EntitiesExtracted(addresses, incidents, iocs int) {
	t.cryptoAddresses.Add(int64(addresses))
	t.incidents.Add(int64(incidents))
	t.iocs.Add(int64(iocs))
}

func (t *Tracker) step() {
	if t.bar != nil {
		_ = t.bar.Add(1)
	}
}

// Finish closes the progress bar and returns the final stats.
func (t *Tracker) Finish() *Stats {
	if t.bar != nil {
		_ = t.bar.Finish()
	}
	return t.Stats()
}

// Stats returns a consistent-enough snapshot of the counters.
func (t *Tracker) Stats() *Stats {
	return &Stats{
		FilesProcessed:   t.filesProcessed.Load(),
		FilesFailed:      t.filesFailed.Load(),
		DocumentsCreated: t.documentsCreated.Load(),
		CryptoAddresses:  t.cryptoAddresses.Load(),
		Incidents:        t.incidents.Load(),
		Iocs:             t.iocs.Load(),
		TotalBytes:       t.totalBytes.Load(),
		Duration:         time.Since(t.started),
	}
}
