// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/mf4bridge/internal/encode"
	"github.com/pdiddy/mf4bridge/internal/mdf"
	"github.com/pdiddy/mf4bridge/pkg/types"
)

// Stage fraction boundaries: parsing ends at 0.1, decode+extract span to
// 0.7, encoding fills the rest.
const (
	fracParsed    = 0.1
	fracExtracted = 0.7
)

// job is one (input file x output formats) unit of work. It owns its
// container, record buffers and output handles exclusively.
type job struct {
	id      string
	input   string
	outDir  string
	formats []types.FormatTag
	key     []byte

	cancelled atomic.Bool
	done      chan struct{}

	mu       sync.Mutex
	stage    types.JobStage
	fraction float64
	frames   int
	results  []types.FormatResult
	groupErr []string
	err      error
}

func newJob(id, input, outDir string, formats []types.FormatTag, key []byte) *job {
	results := make([]types.FormatResult, len(formats))
	for i, tag := range formats {
		results[i] = types.FormatResult{Format: tag, State: types.FormatPending}
	}
	return &job{
		id:      id,
		input:   input,
		outDir:  outDir,
		formats: formats,
		key:     key,
		done:    make(chan struct{}),
		stage:   types.StageQueued,
		results: results,
	}
}

// status returns a snapshot of the job for Poll and Wait.
func (j *job) status() types.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := types.JobStatus{
		ID:       j.id,
		Input:    j.input,
		Stage:    j.stage,
		Fraction: j.fraction,
		Frames:   j.frames,
		Formats:  append([]types.FormatResult(nil), j.results...),
	}
	s.GroupErrors = append(s.GroupErrors, j.groupErr...)
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// setStage records a stage transition and emits a progress event.
func (j *job) setStage(e *Engine, stage types.JobStage, fraction float64) {
	j.mu.Lock()
	j.stage = stage
	j.fraction = fraction
	j.mu.Unlock()
	e.emit(types.ProgressEvent{JobID: j.id, Stage: stage, Fraction: fraction})
}

// run executes the job pipeline on the calling worker. Stages are
// data-dependent and run sequentially; only the per-format encoders at the
// end fan out concurrently over the shared read-only frame slice.
func (j *job) run(e *Engine) {
	defer close(j.done)

	fail := func(err error) {
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
		j.markSkipped()
		j.setStage(e, types.StageFailed, j.fraction)
	}
	if j.cancelled.Load() {
		j.markSkipped()
		j.setStage(e, types.StageCancelled, 0)
		return
	}

	j.setStage(e, types.StageParsing, 0.02)
	f, err := os.Open(j.input)
	if err != nil {
		fail(fmt.Errorf("%w: %s: %v", ErrInvalidInput, j.input, err))
		return
	}
	defer f.Close()

	c, err := mdf.Parse(f)
	if err != nil {
		fail(err)
		return
	}
	j.setStage(e, types.StageDecoding, fracParsed)

	frames, err := j.extractAll(e, c, f)
	if err != nil {
		fail(err)
		return
	}
	if j.cancelled.Load() {
		j.markSkipped()
		j.setStage(e, types.StageCancelled, j.fraction)
		return
	}

	// The invariant consumers rely on: ordered by timestamp. Stable so
	// equal-time frames keep record order.
	sort.SliceStable(frames, func(a, b int) bool {
		return frames[a].Timestamp < frames[b].Timestamp
	})
	j.mu.Lock()
	j.frames = len(frames)
	j.mu.Unlock()

	j.setStage(e, types.StageEncoding, fracExtracted)
	meta := encode.Meta{
		Source: filepath.Base(j.input),
		Start:  time.Unix(0, int64(c.StartTimeNs)).UTC(),
	}
	j.encodeAll(frames, meta)
	if j.cancelled.Load() {
		j.markSkipped()
		j.setStage(e, types.StageCancelled, j.fraction)
		return
	}

	j.mu.Lock()
	failed := 0
	var firstErr error
	for _, r := range j.results {
		if r.State == types.FormatFailed {
			failed++
			if firstErr == nil {
				firstErr = errors.New(r.Error)
			}
		}
	}
	allFailed := failed == len(j.results)
	j.mu.Unlock()

	if allFailed {
		fail(fmt.Errorf("all output formats failed: %w", firstErr))
		return
	}
	j.setStage(e, types.StageSucceeded, 1)
}

// extractAll walks the container's data groups and produces the merged frame
// sequence. Malformed channel groups are recorded and skipped; sibling
// groups continue. Container-level decode errors are returned and fatal.
func (j *job) extractAll(e *Engine, c *mdf.Container, f *os.File) ([]types.Frame, error) {
	dec := mdf.NewDecoder(f, j.key)

	var total, seen uint64
	for _, dg := range c.DataGroups {
		for _, cg := range dg.Groups {
			total += cg.RecordCount
		}
	}

	var frames []types.Frame
	for gi, dg := range c.DataGroups {
		if j.cancelled.Load() {
			return frames, nil
		}
		if len(dg.Groups) == 0 || dg.DataBlock == 0 {
			continue
		}
		if dg.RecordIDSize == 0 {
			part, n, err := j.extractSorted(e, dec, dg, gi, total, seen)
			if err != nil {
				return nil, err
			}
			seen += n
			frames = append(frames, part...)
			continue
		}
		part, n, err := j.extractUnsorted(dec, dg, gi)
		if err != nil {
			return nil, err
		}
		seen += n
		frames = append(frames, part...)
		j.progressRecords(e, seen, total)
	}
	return frames, nil
}

// extractSorted processes a sorted data group in record-aligned chunks,
// checking for cancellation at each chunk boundary.
func (j *job) extractSorted(e *Engine, dec *mdf.Decoder, dg mdf.DataGroup, gi int, total, seen uint64) ([]types.Frame, uint64, error) {
	ex, err := mdf.NewExtractor(dg.Groups[0])
	if err != nil {
		if errors.Is(err, mdf.ErrMalformedChannelGroup) {
			j.noteGroupError(gi, 0, err)
			return nil, dg.Groups[0].RecordCount, nil
		}
		return nil, 0, err
	}
	cr, err := dec.Chunks(dg, e.cfg.MemoryCeiling)
	if err != nil {
		return nil, 0, err
	}

	recSize := uint64(dg.Groups[0].RecordSize())
	var frames []types.Frame
	var n uint64
	for {
		if j.cancelled.Load() {
			return frames, n, nil
		}
		chunk, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		part, err := ex.Extract(chunk)
		if err != nil {
			if errors.Is(err, mdf.ErrMalformedChannelGroup) {
				// Drop the whole group, not just this chunk.
				j.noteGroupError(gi, 0, err)
				return nil, dg.Groups[0].RecordCount, nil
			}
			return nil, 0, err
		}
		frames = append(frames, part...)
		n += uint64(len(chunk)) / recSize
		j.progressRecords(e, seen+n, total)
	}
	return frames, n, nil
}

// extractUnsorted decodes the whole data block and demultiplexes records by
// their channel-group record ID.
func (j *job) extractUnsorted(dec *mdf.Decoder, dg mdf.DataGroup, gi int) ([]types.Frame, uint64, error) {
	buf, err := dec.RecordBuffer(dg)
	if err != nil {
		return nil, 0, err
	}
	parts, err := mdf.Demux(dg, buf)
	if err != nil {
		return nil, 0, err
	}
	var frames []types.Frame
	var n uint64
	for ci, cg := range dg.Groups {
		n += cg.RecordCount
		ex, err := mdf.NewExtractor(cg)
		if err != nil {
			j.noteGroupError(gi, ci, err)
			continue
		}
		part, err := ex.Extract(parts[cg.RecordID])
		if err != nil {
			j.noteGroupError(gi, ci, err)
			continue
		}
		frames = append(frames, part...)
	}
	return frames, n, nil
}

// encodeAll runs one encoder goroutine per requested format against the
// shared read-only frame slice. An I/O failure is retried once before the
// format is reported failed; sibling formats are unaffected. A cancel
// observed before a format starts writing leaves that format skipped.
func (j *job) encodeAll(frames []types.Frame, meta encode.Meta) {
	var wg sync.WaitGroup
	for i, tag := range j.formats {
		wg.Add(1)
		go func(i int, tag types.FormatTag) {
			defer wg.Done()
			if j.cancelled.Load() {
				j.mu.Lock()
				j.results[i].State = types.FormatSkipped
				j.mu.Unlock()
				return
			}
			path := filepath.Join(j.outDir, encode.OutputName(j.input, tag))
			err := writeFormat(path, tag, frames, meta)
			if err != nil {
				err = writeFormat(path, tag, frames, meta)
			}
			j.mu.Lock()
			j.results[i].Path = path
			if err != nil {
				j.results[i].State = types.FormatFailed
				j.results[i].Error = err.Error()
			} else {
				j.results[i].State = types.FormatWritten
			}
			j.mu.Unlock()
		}(i, tag)
	}
	wg.Wait()
}

// writeFormat writes one output file. Partial output from a failed attempt
// is left on disk; the handle is always released.
func writeFormat(path string, tag types.FormatTag, frames []types.Frame, meta encode.Meta) error {
	enc, err := encode.ForFormat(tag)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", encode.ErrEncodingFailed, err)
	}
	encErr := enc.Encode(f, frames, meta)
	if closeErr := f.Close(); encErr == nil && closeErr != nil {
		encErr = fmt.Errorf("%w: %v", encode.ErrEncodingFailed, closeErr)
	}
	return encErr
}

// noteGroupError records a non-fatal per-group extraction failure.
func (j *job) noteGroupError(dataGroup, channelGroup int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.groupErr = append(j.groupErr,
		fmt.Sprintf("data group %d, channel group %d: %v", dataGroup, channelGroup, err))
}

// markSkipped flags still-pending formats as skipped on failure or
// cancellation.
func (j *job) markSkipped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.results {
		if j.results[i].State == types.FormatPending {
			j.results[i].State = types.FormatSkipped
		}
	}
}

// progressRecords maps record progress onto the extract stage's fraction
// span and emits a notification.
func (j *job) progressRecords(e *Engine, seen, total uint64) {
	frac := fracExtracted
	if total > 0 && seen < total {
		frac = fracParsed + (fracExtracted-fracParsed)*float64(seen)/float64(total)
	}
	j.mu.Lock()
	j.stage = types.StageExtracting
	j.fraction = frac
	j.mu.Unlock()
	e.emit(types.ProgressEvent{JobID: j.id, Stage: types.StageExtracting, Fraction: frac})
}
