package wordcount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/abadojack/whatlanggo"
	pb "github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	mapreduce "github.com/kevwan/mapreduce/v2"

	"github.com/tequalsme/hadoop-examples/internal/logging"
)

// State is the position of a Driver in its run lifecycle.
type State int32

const (
	Idle State = iota
	Reading
	Mapping
	Grouping
	Reducing
	Done
	Failed
)

var stateNames = [...]string{"Idle", "Reading", "Mapping", "Grouping", "Reducing", "Done", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// languageSampleSize is how much input text is fed to language detection.
const languageSampleSize = 4096

// Result is the outcome of a successful run.
type Result struct {
	RunID      string           `json:"run_id"`
	Aggregates []Aggregate      `json:"-"`
	Keys       int              `json:"distinct_keys"`
	Pairs      int              `json:"pairs"`
	Records    int64            `json:"records"`
	Counters   map[string]int64 `json:"counters"`
	Language   string           `json:"language,omitempty"`
}

// Driver runs the read, map, shuffle, reduce and commit stages over one input.
type Driver struct {
	cfg     Config
	metrics *Metrics
	mapper  Mapper
	state   atomic.Int32
	running atomic.Bool
	// final holds the counters of the last run that reached Done.
	final atomic.Pointer[map[string]int64]
}

func MakeDriver(cfg Config) (*Driver, error) {
	if cfg.Source == nil {
		return nil, errors.New("wordcount: no input source configured")
	}
	if cfg.Sink == nil {
		return nil, errors.New("wordcount: no output sink configured")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Reducer == nil {
		cfg.Reducer = SumReducer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	metrics := MakeMetrics(cfg.Counters...)
	var counter *Counter
	if cfg.WordCounter != "" {
		counter = metrics.Counter(cfg.WordCounter)
	}
	return &Driver{
		cfg:     cfg,
		metrics: metrics,
		mapper:  MakeWordCountMapper(counter),
	}, nil
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

// Counter reads a counter of the latest run. It reports false unless that
// run is Done; a failed run yields no counter values.
func (d *Driver) Counter(name string) (int64, bool) {
	final := d.final.Load()
	if final == nil || d.State() != Done {
		return 0, false
	}
	v, ok := (*final)[name]
	return v, ok
}

// advance moves to `to` only from one of the expected states, so that stages
// still draining after a failure cannot overwrite Failed.
func (d *Driver) advance(to State, from ...State) bool {
	for _, f := range from {
		if d.state.CompareAndSwap(int32(f), int32(to)) {
			return true
		}
	}
	return false
}

// Run executes one complete run. Either every aggregate is committed to the
// sink and a Result is returned, or the sink is aborted and an error returned.
func (d *Driver) Run(ctx context.Context) (res *Result, err error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer d.running.Store(false)

	runID := uuid.NewString()
	logger := d.cfg.Logger
	d.final.Store(nil)
	d.metrics.Reset()
	d.state.Store(int32(Reading))
	logger.Infof("run %s started, workers=%d", runID, d.cfg.Workers)

	defer func() {
		if err == nil {
			return
		}
		d.state.Store(int32(Failed))
		if abortErr := d.cfg.Sink.Abort(); abortErr != nil {
			logger.Warnf("run %s: aborting sink %s failed: %v", runID, describe(d.cfg.Sink), abortErr)
		}
		logger.Errorf("run %s failed: %v", runID, err)
	}()

	var bar *pb.ProgressBar
	if d.cfg.Progress != nil {
		bar = pb.New(0)
		bar.SetWriter(d.cfg.Progress)
		bar.Start()
		defer bar.Finish()
	}

	mapped, err := d.mapPhase(ctx, bar)
	if err != nil {
		return nil, err
	}
	groups := mapped.shuffle.Groups()
	logger.Debugf("run %s: %d records, %d pairs, %d groups", runID, mapped.records, mapped.shuffle.Len(), len(groups))

	if !d.advance(Reducing, Grouping) {
		return nil, fmt.Errorf("wordcount: run %s left grouping in state %s", runID, d.State())
	}
	aggregates, err := d.reducePhase(ctx, groups)
	if err != nil {
		return nil, err
	}

	if err := d.commit(aggregates); err != nil {
		return nil, err
	}

	counters := d.metrics.Snapshot()
	if d.cfg.Publisher != nil {
		// the output is already committed, a failed export does not undo it
		if err := d.cfg.Publisher.PublishCounters(ctx, runID, counters); err != nil {
			logger.Warnf("run %s: publishing counters failed: %v", runID, err)
		}
	}

	final := d.metrics.Snapshot()
	d.final.Store(&final)
	d.state.Store(int32(Done))
	logger.Infof("run %s done, %d keys, counters=%v", runID, len(aggregates), counters)
	return &Result{
		RunID:      runID,
		Aggregates: aggregates,
		Keys:       len(aggregates),
		Pairs:      mapped.shuffle.Len(),
		Records:    mapped.records,
		Counters:   counters,
		Language:   mapped.language,
	}, nil
}

type sourceItem struct {
	seq int
	rec *Record
	err error
}

type mappedRecord struct {
	seq   int
	pairs []Pair
}

type mapOutput struct {
	shuffle  *Shuffle
	records  int64
	language string
}

// mapPhase streams records through the mappers and shuffles the full pair
// stream once every mapper has finished.
func (d *Driver) mapPhase(ctx context.Context, bar *pb.ProgressBar) (*mapOutput, error) {
	var records atomic.Int64
	sample := &languageSample{limit: languageSampleSize}
	sourceName := describe(d.cfg.Source)

	generate := func(source chan<- sourceItem) {
		for seq := 0; ; seq++ {
			if ctx.Err() != nil {
				return
			}
			rec, err := d.cfg.Source.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				source <- sourceItem{seq: seq, err: err}
				return
			}
			records.Add(1)
			if d.cfg.DetectLanguage && rec != nil {
				sample.add(rec.Text)
			}
			source <- sourceItem{seq: seq, rec: rec}
		}
	}

	mapper := func(item sourceItem, writer mapreduce.Writer[mappedRecord], cancel func(error)) {
		if item.err != nil {
			cancel(asInputError(sourceName, item.err))
			return
		}
		d.advance(Mapping, Reading)
		var pairs []Pair
		for p := range d.mapper.Map(item.rec) {
			pairs = append(pairs, p)
		}
		writer.Write(mappedRecord{seq: item.seq, pairs: pairs})
		if bar != nil {
			bar.Increment()
		}
	}

	reducer := func(pipe <-chan mappedRecord, writer mapreduce.Writer[*Shuffle], cancel func(error)) {
		var batches []mappedRecord
		for batch := range pipe {
			batches = append(batches, batch)
		}
		d.advance(Grouping, Mapping, Reading)
		// mappers finish out of order; restore input order before grouping
		sort.Slice(batches, func(i, j int) bool {
			return batches[i].seq < batches[j].seq
		})
		shuffle := MakeShuffle()
		for _, batch := range batches {
			shuffle.AddAll(batch.pairs)
		}
		shuffle.Groups()
		writer.Write(shuffle)
	}

	shuffle, err := mapreduce.MapReduce(generate, mapper, reducer,
		mapreduce.WithWorkers(d.cfg.Workers),
		mapreduce.WithContext(ctx),
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	out := &mapOutput{shuffle: shuffle, records: records.Load()}
	if d.cfg.DetectLanguage {
		out.language = sample.detect()
	}
	return out, nil
}

type indexedGroup struct {
	index int
	group Group
}

type indexedAggregate struct {
	index     int
	aggregate Aggregate
}

// reducePhase reduces groups in parallel; each result lands in its group's
// slot, so the output keeps the key order of groups.
func (d *Driver) reducePhase(ctx context.Context, groups []Group) ([]Aggregate, error) {
	aggregates, err := mapreduce.MapReduce(
		func(source chan<- indexedGroup) {
			for i, g := range groups {
				source <- indexedGroup{index: i, group: g}
			}
		},
		func(item indexedGroup, writer mapreduce.Writer[indexedAggregate], cancel func(error)) {
			writer.Write(indexedAggregate{index: item.index, aggregate: ReduceGroup(d.cfg.Reducer, item.group)})
		},
		func(pipe <-chan indexedAggregate, writer mapreduce.Writer[[]Aggregate], cancel func(error)) {
			out := make([]Aggregate, len(groups))
			for ia := range pipe {
				out[ia.index] = ia.aggregate
			}
			writer.Write(out)
		},
		mapreduce.WithWorkers(d.cfg.Workers),
		mapreduce.WithContext(ctx),
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return aggregates, nil
}

func (d *Driver) commit(aggregates []Aggregate) error {
	sinkName := describe(d.cfg.Sink)
	for _, a := range aggregates {
		if err := d.cfg.Sink.Write(a); err != nil {
			return asOutputError(sinkName, err)
		}
	}
	if err := d.cfg.Sink.Commit(); err != nil {
		return asOutputError(sinkName, err)
	}
	return nil
}

func asInputError(source string, err error) error {
	if IsInputError(err) {
		return err
	}
	return &InputError{Source: source, Err: err}
}

func asOutputError(sink string, err error) error {
	if IsOutputError(err) {
		return err
	}
	return &OutputError{Sink: sink, Err: err}
}

func describe(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}

// languageSample keeps the first bytes of input text for language detection.
// Only the generator goroutine writes to it.
type languageSample struct {
	limit int
	buf   strings.Builder
}

func (s *languageSample) add(text string) {
	if s.buf.Len() >= s.limit {
		return
	}
	s.buf.WriteString(text)
	s.buf.WriteByte('\n')
}

func (s *languageSample) detect() string {
	text := s.buf.String()
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return whatlanggo.DetectLang(text).Iso6391()
}
