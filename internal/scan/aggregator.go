package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/detector"
	"github.com/dbsmedya/smdedupe/internal/lock"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
	"github.com/dbsmedya/smdedupe/internal/types"
)

// State is the lifecycle state of the aggregator.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Options selects the detectors for one scan and carries their inputs.
type Options struct {
	Duplicates  bool
	Grouping    detector.GroupingOptions
	Tags        bool
	TagList     []string
	Compare     bool
	CompareMode string
	// Timeout bounds the whole scan; zero disables it.
	Timeout time.Duration
}

// OptionsFromConfig builds scan options from configuration, applying preset
// fallbacks for empty lists.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Duplicates: cfg.Duplicates.Enabled,
		Grouping: detector.GroupingOptions{
			Rules: cfg.EffectiveOrder(),
		},
		Tags:        cfg.Tags.Enabled,
		TagList:     cfg.EffectiveTags(),
		Compare:     cfg.Compare.Enabled,
		CompareMode: cfg.Compare.Mode,
		Timeout:     cfg.ScanTimeout(),
	}
	if cfg.Grouping.Enabled {
		opts.Grouping.GroupColumn = cfg.Grouping.Column
		opts.Grouping.IncludeNullGroup = cfg.Grouping.IncludeNull
	}
	return opts
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	o.Grouping = o.Grouping.Clone()
	o.TagList = append([]string(nil), o.TagList...)
	return o
}

// Enabled lists the enabled detectors in dispatch order.
func (o Options) Enabled() []detector.Kind {
	var kinds []detector.Kind
	if o.Duplicates {
		kinds = append(kinds, detector.KindDuplicates)
	}
	if o.Tags {
		kinds = append(kinds, detector.KindTags)
	}
	if o.Compare {
		kinds = append(kinds, detector.KindCompare)
	}
	return kinds
}

// Validate rejects input no detector could run with. It never touches the
// database.
func (o Options) Validate() error {
	if len(o.Enabled()) == 0 {
		return &types.ConfigurationError{Field: "detectors", Message: "no detector enabled"}
	}
	if o.Duplicates {
		if _, err := detector.ParseRules(o.Grouping.Rules); err != nil {
			return err
		}
	}
	if o.Tags {
		usable := false
		for _, t := range o.TagList {
			if t != "" {
				usable = true
				break
			}
		}
		if !usable {
			return &types.ConfigurationError{Field: "tags", Message: "tag search enabled with an empty tag list"}
		}
	}
	if o.Timeout < 0 {
		return &types.ConfigurationError{Field: "timeout", Message: "must not be negative"}
	}
	return nil
}

// DetectorStatus reports one detector's part of a scan.
type DetectorStatus struct {
	Kind     detector.Kind
	Enabled  bool
	Working  bool
	Found    int
	Message  string
	Err      error
	Duration time.Duration
}

// Status is a snapshot of the aggregator.
type Status struct {
	ScanID    string
	State     State
	Total     int
	Message   string
	StartedAt time.Time
	Detectors []DetectorStatus
}

// Working reports whether a scan is still running.
func (s Status) Working() bool {
	return s.State == StateRunning
}

// Detector returns the status for kind.
func (s Status) Detector(kind detector.Kind) (DetectorStatus, bool) {
	for _, d := range s.Detectors {
		if d.Kind == kind {
			return d, true
		}
	}
	return DetectorStatus{}, false
}

// Aggregator dispatches enabled detectors, merges their results into one
// removal set keyed by record ID, and reports progress. A failed detector
// contributes nothing; the others still complete.
type Aggregator struct {
	primary   *store.Gateway
	secondary *store.Gateway
	gate      *lock.Gate
	coord     *Coordinator[detector.Kind, *types.RemovalSet]
	logger    *logger.Logger

	mu        sync.Mutex
	state     State
	scanID    string
	startedAt time.Time
	removal   *types.RemovalSet
	detectors map[detector.Kind]*DetectorStatus
	pending   int
	cancel    context.CancelFunc
	release   func()
	scanLog   *logger.Logger
}

// NewAggregator creates an aggregator over the primary gateway. secondary may
// be nil until a comparison database is chosen. gate may be nil when no
// writer shares the database.
func NewAggregator(primary, secondary *store.Gateway, gate *lock.Gate, log *logger.Logger) (*Aggregator, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary gateway is nil")
	}
	if gate == nil {
		gate = lock.NewGate()
	}
	if log == nil {
		log = logger.NewDefault()
	}

	a := &Aggregator{
		primary:   primary,
		secondary: secondary,
		gate:      gate,
		coord:     NewCoordinator[detector.Kind, *types.RemovalSet](detector.Kinds(), log),
		logger:    log,
		state:     StateIdle,
		removal:   types.NewRemovalSet(),
		scanLog:   log,
	}
	a.resetDetectors(Options{})
	return a, nil
}

// Gate returns the gate scans hold while running.
func (a *Aggregator) Gate() *lock.Gate {
	return a.gate
}

// SetSecondary sets the comparison database. It fails while a scan runs.
func (a *Aggregator) SetSecondary(gw *store.Gateway) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return ErrBusy
	}
	a.secondary = gw
	return nil
}

// StartScan validates opts, clears the removal set and dispatches every
// enabled detector in the background. It returns the scan ID.
func (a *Aggregator) StartScan(ctx context.Context, opts Options) (string, error) {
	snapshot := opts.Clone()
	if err := snapshot.Validate(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateRunning || a.coord.Busy() {
		return "", ErrBusy
	}

	a.release = a.gate.BeginScan()

	scanCtx, cancel := context.WithCancel(ctx)
	if snapshot.Timeout > 0 {
		scanCtx, cancel = withTimeout(scanCtx, cancel, snapshot.Timeout)
	}
	a.cancel = cancel

	a.scanID = uuid.NewString()
	a.scanLog = a.logger.WithScan(a.scanID)
	a.startedAt = time.Now()
	a.state = StateRunning
	a.removal.Clear()
	a.resetDetectors(snapshot)

	a.scanLog.Infof("Starting scan with detectors %v", snapshot.Enabled())

	for _, kind := range snapshot.Enabled() {
		task := a.task(kind, snapshot.Clone())
		if err := a.coord.Dispatch(scanCtx, kind, task); err != nil {
			// Busy was checked above, so this only fires on programming errors.
			a.recordFailure(kind, err)
			continue
		}
		a.detectors[kind].Working = true
		a.detectors[kind].Message = a.runningMessage(kind)
		a.pending++
	}

	if a.pending == 0 {
		a.finish()
	}
	return a.scanID, nil
}

func withTimeout(parent context.Context, cancelParent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		cancelParent()
	}
}

// task builds the background work for kind from an owned snapshot.
func (a *Aggregator) task(kind detector.Kind, opts Options) Task[*types.RemovalSet] {
	log := a.scanLog
	primary, secondary := a.primary, a.secondary

	switch kind {
	case detector.KindDuplicates:
		return func(ctx context.Context) (*types.RemovalSet, error) {
			e, err := detector.NewGroupingEngine(primary, log)
			if err != nil {
				return nil, err
			}
			return e.Find(ctx, opts.Grouping)
		}
	case detector.KindTags:
		return func(ctx context.Context) (*types.RemovalSet, error) {
			m, err := detector.NewTagMatcher(primary, log)
			if err != nil {
				return nil, err
			}
			return m.Find(ctx, opts.TagList)
		}
	default:
		return func(ctx context.Context) (*types.RemovalSet, error) {
			m, err := detector.NewCompareMatcher(primary, secondary, log)
			if err != nil {
				return nil, err
			}
			return m.Find(ctx, opts.CompareMode)
		}
	}
}

// Poll merges any finished detector results without blocking and returns
// the current status.
func (a *Aggregator) Poll() Status {
	results := a.coord.Poll()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(results)
	return a.statusLocked()
}

// Wait blocks until every dispatched detector has reported or ctx is done.
func (a *Aggregator) Wait(ctx context.Context) (Status, error) {
	results, err := a.coord.Wait(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(results)
	return a.statusLocked(), err
}

// RunScan starts a scan and waits for it. If ctx ends first the scan is
// cancelled and drained before returning.
func (a *Aggregator) RunScan(ctx context.Context, opts Options) (*types.RemovalSet, Status, error) {
	if _, err := a.StartScan(ctx, opts); err != nil {
		return nil, a.Status(), err
	}

	status, err := a.Wait(ctx)
	if err != nil {
		a.Cancel()
		status, _ = a.Wait(context.Background())
		return a.RemovalSet(), status, err
	}
	return a.RemovalSet(), status, nil
}

// Cancel asks running detectors to stop. Results are still drained through
// Poll or Wait; cancelled detectors contribute nothing.
func (a *Aggregator) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning && a.cancel != nil {
		a.scanLog.Info("Cancelling scan")
		a.cancel()
	}
}

// Reset returns a completed aggregator to idle and clears its results.
func (a *Aggregator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return ErrBusy
	}
	a.state = StateIdle
	a.scanID = ""
	a.removal.Clear()
	a.resetDetectors(Options{})
	return nil
}

// Status returns the current status without draining results.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

// RemovalSet returns a copy of the merged removal set.
func (a *Aggregator) RemovalSet() *types.RemovalSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removal.Clone()
}

// apply merges drained results. Caller holds a.mu.
func (a *Aggregator) apply(results []Result[detector.Kind, *types.RemovalSet]) {
	for _, res := range results {
		st := a.detectors[res.Key]
		st.Working = false
		st.Duration = res.Duration
		a.pending--

		if res.Err != nil {
			a.recordFailure(res.Key, res.Err)
			continue
		}

		found := 0
		added := 0
		if res.Value != nil {
			found = res.Value.Len()
			added = a.removal.Merge(res.Value)
		}
		st.Found = found
		st.Message = a.doneMessage(res.Key, found)
		a.scanLog.WithDetector(string(res.Key)).Infof("Detector finished: %d flagged, %d new (duration: %s)",
			found, added, res.Duration)
	}

	if a.state == StateRunning && a.pending <= 0 {
		a.finish()
	}
}

func (a *Aggregator) recordFailure(kind detector.Kind, err error) {
	st := a.detectors[kind]
	st.Working = false
	st.Err = err
	st.Found = 0

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		st.Message = "Timed out"
	case errors.Is(err, context.Canceled):
		st.Message = "Cancelled"
	default:
		st.Message = fmt.Sprintf("Failed: %v", err)
	}
	a.scanLog.WithDetector(string(kind)).Warnf("Detector failed: %v", err)
}

// finish completes the scan. Caller holds a.mu.
func (a *Aggregator) finish() {
	a.state = StateCompleted
	a.pending = 0
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.release != nil {
		a.release()
		a.release = nil
	}
	a.scanLog.Infof("Scan complete: %s (duration: %s)", a.summary(), time.Since(a.startedAt))
}

func (a *Aggregator) summary() string {
	if a.removal.Len() == 0 {
		return "No records marked for removal."
	}
	return fmt.Sprintf("Marked %d total records for removal.", a.removal.Len())
}

func (a *Aggregator) runningMessage(kind detector.Kind) string {
	switch kind {
	case detector.KindDuplicates:
		return "Searching for duplicates"
	case detector.KindTags:
		return "Searching for tags"
	default:
		if a.secondary != nil {
			return "Comparing against " + filepath.Base(a.secondary.Source())
		}
		return "Comparing"
	}
}

func (a *Aggregator) doneMessage(kind detector.Kind, n int) string {
	switch kind {
	case detector.KindDuplicates:
		return fmt.Sprintf("Found %d duplicate records", n)
	case detector.KindTags:
		return fmt.Sprintf("Found %d records with matching tags", n)
	default:
		return fmt.Sprintf("Found %d records in comparison database", n)
	}
}

func (a *Aggregator) resetDetectors(opts Options) {
	enabled := map[detector.Kind]bool{}
	for _, k := range opts.Enabled() {
		enabled[k] = true
	}
	a.pending = 0
	a.detectors = make(map[detector.Kind]*DetectorStatus, len(detector.Kinds()))
	for _, k := range detector.Kinds() {
		a.detectors[k] = &DetectorStatus{Kind: k, Enabled: enabled[k]}
	}
}

func (a *Aggregator) statusLocked() Status {
	s := Status{
		ScanID:    a.scanID,
		State:     a.state,
		Total:     a.removal.Len(),
		StartedAt: a.startedAt,
	}
	switch a.state {
	case StateRunning:
		s.Message = "Scanning"
	case StateCompleted:
		s.Message = a.summary()
	}
	for _, k := range detector.Kinds() {
		s.Detectors = append(s.Detectors, *a.detectors[k])
	}
	return s
}
