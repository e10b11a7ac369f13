package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/aggregate"
	"github.com/JakeFAU/delta-harvester/internal/dispatcher"
	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/metrics"
	"github.com/JakeFAU/delta-harvester/internal/telemetry"
)

// Target binds a configured source to the adapter that lists it.
type Target struct {
	Source  harvest.Source
	Adapter harvest.SourceAdapter
}

// Config controls pool size, the run deadline and the first-run floor.
type Config struct {
	Workers int
	// Timeout bounds the whole run; zero disables it.
	Timeout time.Duration
	// InitialLookback sets the cutoff for never-checkpointed sources to
	// now-InitialLookback. Zero selects every dated item.
	InitialLookback time.Duration
}

// Dependencies are the collaborators a run composes.
type Dependencies struct {
	Checkpoints harvest.CheckpointStore
	Fetcher     harvest.Fetcher
	Extractor   harvest.Extractor
	Notifier    harvest.Notifier
	Clock       harvest.Clock
	IDs         harvest.IDGenerator
}

// Orchestrator runs the harvesting state machine.
type Orchestrator struct {
	targets []Target
	deps    Dependencies
	cfg     Config
	pool    *dispatcher.Dispatcher
	logger  *zap.Logger
}

// New validates the wiring and builds an Orchestrator.
func New(targets []Target, deps Dependencies, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	var missing []string
	if deps.Checkpoints == nil {
		missing = append(missing, "checkpoint store")
	}
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if deps.Clock == nil {
		missing = append(missing, "clock")
	}
	if deps.IDs == nil {
		missing = append(missing, "id generator")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("orchestrator: missing %v", missing)
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t.Adapter == nil {
			return nil, fmt.Errorf("orchestrator: source %s has no adapter", t.Source.ID)
		}
		// One writer per checkpoint key.
		if _, dup := seen[t.Source.ID]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate source id %s", t.Source.ID)
		}
		seen[t.Source.ID] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		targets: targets,
		deps:    deps,
		cfg:     cfg,
		pool:    dispatcher.New(cfg.Workers),
		logger:  logger,
	}, nil
}

// candidateStatus is the terminal outcome of one candidate.
type candidateStatus int

const (
	statusPending candidateStatus = iota
	statusDocument
	statusSkipped
	statusFailed
	statusCanceled
)

type candidateOutcome struct {
	status candidateStatus
	doc    harvest.Document
	err    harvest.ErrorRecord
}

type sourceRun struct {
	outcome    harvest.SourceOutcome
	listingErr *harvest.ErrorRecord
	candidates []candidateOutcome
}

// Run performs one harvesting pass.
func (o *Orchestrator) Run(ctx context.Context) (harvest.RunReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.Run")
	defer span.End()

	// INIT
	startedAt := o.deps.Clock.Now().UTC()
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return harvest.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	span.SetAttributes(attribute.String("harvest.run_id", runID), attribute.Int("harvest.sources", len(o.targets)))
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run starting", zap.Int("sources", len(o.targets)), zap.Time("started_at", startedAt))

	// Finalization must survive the run deadline.
	finalCtx := context.WithoutCancel(ctx)
	o.deps.Notifier.Send(finalCtx, fmt.Sprintf("initiating harvest of %d source(s)", len(o.targets)), harvest.SeverityInfo)

	runCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	runs := make([]sourceRun, len(o.targets))
	var wg sync.WaitGroup
	for i := range o.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runs[i] = o.runSource(runCtx, finalCtx, startedAt, o.targets[i], logger)
		}()
	}
	wg.Wait()

	// AGGREGATING
	agg := aggregate.New()
	for i := range runs {
		o.aggregateSource(agg, &runs[i])
	}

	// CHECKPOINTING
	for i := range runs {
		out := &runs[i].outcome
		if out.State != harvest.StateSourceDone {
			continue
		}
		if err := o.deps.Checkpoints.Set(finalCtx, out.SourceID, startedAt); err != nil {
			metrics.ObserveCheckpointWrite(false)
			logger.Error("checkpoint write failed", zap.String("source", out.SourceID), zap.Error(err))
			o.deps.Notifier.Send(finalCtx,
				fmt.Sprintf("checkpoint for %s not advanced: %v", out.Name, err), harvest.SeverityWarning)
			continue
		}
		metrics.ObserveCheckpointWrite(true)
		out.CheckpointAdvanced = true
	}

	// REPORTING
	report := harvest.RunReport{
		RunID:     runID,
		StartedAt: startedAt,
		Result:    agg.Finalize(),
		Sources:   make([]harvest.SourceOutcome, 0, len(runs)),
	}
	for _, r := range runs {
		report.Sources = append(report.Sources, r.outcome)
		metrics.ObserveSource(string(r.outcome.State))
	}
	message, severity := summarize(report)
	o.deps.Notifier.Send(finalCtx, message, severity)

	// DONE
	report.FinishedAt = o.deps.Clock.Now().UTC()
	metrics.ObserveRun(string(severity), report.FinishedAt.Sub(startedAt))
	logger.Info("run finished",
		zap.Int("documents", len(report.Result.Documents)),
		zap.Int("skipped", report.Result.Skipped),
		zap.Int("errors", len(report.Result.Errors)),
		zap.Bool("source_failures", report.Failed()),
		zap.Duration("elapsed", report.FinishedAt.Sub(startedAt)),
	)
	return report, nil
}

func (o *Orchestrator) runSource(
	ctx, finalCtx context.Context,
	startedAt time.Time,
	target Target,
	logger *zap.Logger,
) sourceRun {
	src := target.Source
	logger = logger.With(zap.String("source", src.ID))
	run := sourceRun{outcome: harvest.SourceOutcome{
		SourceID: src.ID,
		Name:     src.Label(),
		State:    harvest.StateInit,
	}}
	transition := func(state harvest.SourceState) {
		run.outcome.State = state
		logger.Debug("source state", zap.String("state", string(state)))
	}

	fail := func(reason string, err error) sourceRun {
		transition(harvest.StateSourceFailed)
		run.outcome.Reason = reason
		if err != nil && !harvest.IsCanceled(err) {
			rec := harvest.ErrorRecord{Locator: src.Endpoint, Kind: harvest.KindListingUnavailable, Detail: err.Error()}
			run.listingErr = &rec
		}
		logger.Warn("source failed", zap.String("reason", reason), zap.Error(err))
		o.deps.Notifier.Send(finalCtx, fmt.Sprintf("%s skipped this run: %s", src.Label(), reason), harvest.SeverityWarning)
		return run
	}

	// LISTING
	transition(harvest.StateListing)
	cutoff, previous, err := o.cutoff(ctx, src, startedAt)
	if err != nil {
		if ctx.Err() != nil {
			return fail("run deadline reached before listing", ctx.Err())
		}
		return fail(fmt.Sprintf("checkpoint unavailable: %v", err), fmt.Errorf("%w: %w", harvest.ErrListingUnavailable, err))
	}
	run.outcome.PreviousCheckpoint = previous
	candidates, err := target.Adapter.ListCandidates(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return fail("run deadline reached while listing", ctx.Err())
		}
		return fail(fmt.Sprintf("listing unavailable: %v", err), err)
	}
	run.outcome.Candidates = len(candidates)
	logger.Info("candidates listed",
		zap.Int("candidates", len(candidates)),
		zap.Time("cutoff", cutoff),
		zap.Bool("checkpointed", previous != nil),
	)
	if len(candidates) == 0 {
		o.deps.Notifier.Send(finalCtx, fmt.Sprintf("No updates found at %s", src.Label()), harvest.SeverityWarning)
	}

	// FETCHING
	transition(harvest.StateFetching)
	run.candidates = make([]candidateOutcome, len(candidates))
	poolErr := o.pool.Each(ctx, len(candidates), func(ctx context.Context, i int) {
		run.candidates[i] = o.processCandidate(ctx, src, candidates[i], logger)
	})

	// Unstarted tasks stay pending, so the candidates alone decide.
	interrupted := false
	for _, c := range run.candidates {
		if c.status == statusPending || c.status == statusCanceled {
			interrupted = true
			break
		}
	}
	if interrupted {
		transition(harvest.StateSourceFailed)
		run.outcome.Reason = "run deadline reached before every candidate was attempted"
		logger.Warn("source interrupted", zap.Error(poolErr))
		o.deps.Notifier.Send(finalCtx,
			fmt.Sprintf("%s interrupted by the run deadline; checkpoint kept", src.Label()), harvest.SeverityWarning)
		return run
	}
	transition(harvest.StateSourceDone)
	return run
}

// cutoff resolves the listing floor for src along with the stored
// checkpoint, if any.
func (o *Orchestrator) cutoff(ctx context.Context, src harvest.Source, startedAt time.Time) (time.Time, *time.Time, error) {
	at, ok, err := o.deps.Checkpoints.Get(ctx, src.ID)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if ok {
		return at, &at, nil
	}
	if o.cfg.InitialLookback > 0 {
		return startedAt.Add(-o.cfg.InitialLookback), nil, nil
	}
	return time.Time{}, nil, nil
}

func (o *Orchestrator) processCandidate(
	ctx context.Context,
	src harvest.Source,
	cand harvest.Candidate,
	logger *zap.Logger,
) candidateOutcome {
	if cand.Inline != nil {
		body := o.deps.Extractor.Clean(cand.Inline.Body)
		if body == "" {
			return candidateOutcome{status: statusSkipped}
		}
		return candidateOutcome{status: statusDocument, doc: harvest.Document{
			Source: src.Label(),
			URL:    cand.Locator,
			Title:  cand.Inline.Title,
			Body:   body,
		}}
	}

	resp, err := o.deps.Fetcher.Fetch(ctx, harvest.FetchRequest{Locator: cand.Locator})
	if err != nil {
		if harvest.IsCanceled(err) && ctx.Err() != nil {
			return candidateOutcome{status: statusCanceled}
		}
		logger.Warn("candidate fetch failed", zap.String("url", cand.Locator), zap.Error(err))
		return failed(cand.Locator, err)
	}

	title, text, err := o.deps.Extractor.Extract(resp.Body)
	switch {
	case errors.Is(err, harvest.ErrEmptyContent):
		logger.Debug("candidate has no content", zap.String("url", cand.Locator))
		return candidateOutcome{status: statusSkipped}
	case err != nil:
		logger.Warn("candidate extraction failed", zap.String("url", cand.Locator), zap.Error(err))
		if !errors.Is(err, harvest.ErrParseFailure) {
			err = fmt.Errorf("%w: %w", harvest.ErrParseFailure, err)
		}
		return failed(cand.Locator, err)
	}
	return candidateOutcome{status: statusDocument, doc: harvest.Document{
		Source: src.Label(),
		URL:    cand.Locator,
		Title:  title,
		Body:   text,
	}}
}

func failed(locator string, err error) candidateOutcome {
	return candidateOutcome{status: statusFailed, err: harvest.ErrorRecord{
		Locator: locator,
		Kind:    harvest.KindOf(err),
		Detail:  err.Error(),
	}}
}

// aggregateSource feeds one source's outcomes to agg in discovery order.
func (o *Orchestrator) aggregateSource(agg *aggregate.Aggregator, run *sourceRun) {
	out := &run.outcome
	if run.listingErr != nil {
		agg.Fail(*run.listingErr)
		out.Errors++
		metrics.ObserveError(out.SourceID, string(run.listingErr.Kind))
	}
	for _, c := range run.candidates {
		switch c.status {
		case statusDocument:
			if agg.Add(c.doc) {
				out.Documents++
				metrics.ObserveDocument(out.SourceID)
			}
		case statusSkipped:
			agg.Skip()
			out.Skipped++
			metrics.ObserveSkip(out.SourceID)
		case statusFailed:
			agg.Fail(c.err)
			out.Errors++
			metrics.ObserveError(out.SourceID, string(c.err.Kind))
		case statusPending, statusCanceled:
		}
	}
}

// summarize picks the success, no-op or partial-failure summary.
func summarize(report harvest.RunReport) (string, harvest.Severity) {
	res := report.Result
	failedSources := 0
	for _, s := range report.Sources {
		if s.State == harvest.StateSourceFailed {
			failedSources++
		}
	}
	switch {
	case len(res.Errors) == 0 && failedSources == 0 && len(res.Documents) > 0:
		return fmt.Sprintf("scraping successful... %d urls are updated! (%d skipped)",
			len(res.Documents), res.Skipped), harvest.SeveritySuccess
	case len(res.Errors) == 0 && failedSources == 0:
		return fmt.Sprintf("Neither of the %d source(s) have updated/new content (%d skipped)",
			len(report.Sources), res.Skipped), harvest.SeverityWarning
	default:
		return fmt.Sprintf("harvest finished with failures: %d documents, %d skipped, %d errors, %d of %d source(s) failed",
			len(res.Documents), res.Skipped, len(res.Errors), failedSources, len(report.Sources)), harvest.SeverityError
	}
}
