package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/scry-notes/internal/cache"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/generation"
	"github.com/phrazzld/scry-notes/internal/knowledge"
	"github.com/phrazzld/scry-notes/internal/redact"
	"github.com/phrazzld/scry-notes/internal/similarity"
	"github.com/phrazzld/scry-notes/internal/store"
	"github.com/phrazzld/scry-notes/internal/telemetry"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reporter receives progress for the task a pipeline is running. Both
// methods return domain.ErrAlreadyTerminal once the task was cancelled or
// timed out, which stops the pipeline.
type Reporter interface {
	Advance(stage domain.Stage, progress int) error
	Record(entry domain.IntermediateResult) error
}

// Runner executes the stages of one task.
type Runner interface {
	Run(ctx context.Context, t *domain.Task, rep Reporter) (*domain.Result, error)
}

// PipelineConfig holds the tunables of the stage sequence.
type PipelineConfig struct {
	// CorrectionMaxRetries bounds retries of transient correction failures.
	CorrectionMaxRetries int
	// RetryBaseDelay is the first backoff delay; later delays double.
	RetryBaseDelay time.Duration
	// RetryJitterPercent randomizes each delay by up to this percentage.
	RetryJitterPercent int
	// ConfidenceThreshold is the minimum acceptable mean similarity (0-100)
	// between a composite summary and its inputs.
	ConfidenceThreshold float64
	// ProviderCallTimeout bounds a single provider call.
	ProviderCallTimeout time.Duration
	// MaxTags bounds how many tags are kept.
	MaxTags int
}

// PipelineDeps are the collaborators a Pipeline calls.
type PipelineDeps struct {
	Provider generation.Provider
	Prompts  *generation.Prompts
	Cache    cache.ResultCache
	Scorer   similarity.Scorer
	Parser   *knowledge.Parser
	Store    store.ArtifactStore
}

// Pipeline runs the ordered processing stages of a task.
type Pipeline struct {
	logger   *slog.Logger
	provider generation.Provider
	prompts  *generation.Prompts
	cache    cache.ResultCache
	scorer   similarity.Scorer
	parser   *knowledge.Parser
	store    store.ArtifactStore
	cfg      PipelineConfig
	tracer   trace.Tracer
}

var _ Runner = (*Pipeline)(nil)

// NewPipeline validates its dependencies and fills unset config values.
func NewPipeline(logger *slog.Logger, deps PipelineDeps, cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case logger == nil:
		return nil, ErrNilLogger
	case deps.Provider == nil:
		return nil, ErrNilProvider
	case deps.Prompts == nil:
		return nil, ErrNilPrompts
	case deps.Cache == nil:
		return nil, ErrNilCache
	case deps.Store == nil:
		return nil, ErrNilStore
	}
	if deps.Scorer == nil {
		deps.Scorer = similarity.NewCosineScorer()
	}
	if deps.Parser == nil {
		deps.Parser = knowledge.NewParser()
	}
	if cfg.CorrectionMaxRetries < 0 {
		cfg.CorrectionMaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryJitterPercent <= 0 {
		cfg.RetryJitterPercent = 20
	}
	if cfg.ProviderCallTimeout <= 0 {
		cfg.ProviderCallTimeout = time.Minute
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = generation.DefaultMaxTags
	}

	return &Pipeline{
		logger:   logger.With("component", "pipeline"),
		provider: deps.Provider,
		prompts:  deps.Prompts,
		cache:    deps.Cache,
		scorer:   deps.Scorer,
		parser:   deps.Parser,
		store:    deps.Store,
		cfg:      cfg,
		tracer:   telemetry.Tracer(),
	}, nil
}

// stageOutput is what a stage reports into the intermediate-result log.
type stageOutput struct {
	payload string
	cached  bool
	note    string
}

// run holds the state threaded through the stages of one task.
type run struct {
	task   *domain.Task
	rep    Reporter
	logger *slog.Logger
	raw    []string
	result domain.Result
}

// Run executes every applicable stage in order. Fatal failures are returned
// as *StageError; context errors are returned wrapped in a StageError for
// the stage that observed them.
func (p *Pipeline) Run(ctx context.Context, t *domain.Task, rep Reporter) (*domain.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("task.id", t.ID.String()),
		attribute.Int("task.inputs", len(t.Inputs)),
	))
	defer span.End()

	r := &run{
		task:   t,
		rep:    rep,
		logger: p.logger.With("task_id", t.ID, "owner_id", t.OwnerID),
		raw:    make([]string, len(t.Inputs)),
	}

	stages := []struct {
		stage domain.Stage
		skip  bool
		fn    func(context.Context, *run) (stageOutput, error)
	}{
		{domain.StageExtraction, !hasImage(t.Inputs), p.extract},
		{domain.StageCorrection, false, p.correct},
		{domain.StageSummarization, false, p.summarize},
		{domain.StageReconciliation, !t.IsMultiInput(), p.reconcile},
		{domain.StageKnowledgeRecord, false, p.knowledgeRecord},
		{domain.StagePersistence, false, p.persist},
		{domain.StageTagging, false, p.tag},
	}

	for _, s := range stages {
		if s.skip {
			continue
		}
		if err := p.runStage(ctx, r, s.stage, s.fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	r.logger.Info("pipeline finished", "content_id", r.result.ContentID)
	return &r.result, nil
}

func (p *Pipeline) runStage(
	ctx context.Context,
	r *run,
	stage domain.Stage,
	fn func(context.Context, *run) (stageOutput, error),
) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := r.rep.Advance(stage, 0); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	ctx, span := p.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	logger := r.logger.With("stage", stage)
	logger.Debug("stage started")
	started := time.Now()

	out, err := fn(ctx, r)
	telemetry.StageDurationSeconds.WithLabelValues(string(stage)).Observe(time.Since(started).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		logger.Warn("stage failed", "error", redact.Error(err))
		return &StageError{Stage: stage, Err: err}
	}

	if err := r.rep.Advance(stage, stage.Checkpoint()); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	entry := domain.IntermediateResult{
		Stage:   stage,
		Payload: out.payload,
		Cached:  out.cached,
		Note:    out.note,
		At:      time.Now().UTC(),
	}
	if err := r.rep.Record(entry); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	logger.Info("stage completed",
		"cached", out.cached,
		"duration_ms", time.Since(started).Milliseconds(),
		"has_note", out.note != "")
	return nil
}

// extract turns image inputs into raw text. Text inputs pass through.
func (p *Pipeline) extract(ctx context.Context, r *run) (stageOutput, error) {
	prompt, err := p.prompts.Extraction()
	if err != nil {
		return stageOutput{}, err
	}

	var extracted []string
	for i, in := range r.task.Inputs {
		if !in.IsImage() {
			continue
		}
		text, err := p.call(ctx, prompt, &generation.Image{Data: in.Image, MimeType: in.MimeType})
		if err != nil {
			return stageOutput{}, fmt.Errorf("input %d: %w", i, err)
		}
		r.raw[i] = text
		extracted = append(extracted, text)
	}
	return stageOutput{payload: strings.Join(extracted, "\n\n")}, nil
}

// correct cleans every raw transcript, consulting the cache first and
// retrying transient provider failures with backoff.
func (p *Pipeline) correct(ctx context.Context, r *run) (stageOutput, error) {
	transcripts := make([]string, len(r.task.Inputs))
	allCached := true

	for i, in := range r.task.Inputs {
		raw := r.raw[i]
		if !in.IsImage() {
			raw = in.Text
		}

		text, cached, err := p.cached(ctx, r, cache.KindCorrection, raw, func(ctx context.Context) (string, error) {
			prompt, err := p.prompts.Correction(raw)
			if err != nil {
				return "", err
			}
			return p.callWithRetry(ctx, r.logger, prompt)
		})
		if err != nil {
			return stageOutput{}, fmt.Errorf("input %d: %w", i, err)
		}
		transcripts[i] = text
		allCached = allCached && cached
	}

	r.result.Transcripts = transcripts
	r.result.CorrectedText = strings.Join(transcripts, "\n\n")
	return stageOutput{payload: r.result.CorrectedText, cached: allCached}, nil
}

// summarize produces the task summary. A single input is summarized
// directly; several inputs are summarized individually and then combined.
func (p *Pipeline) summarize(ctx context.Context, r *run) (stageOutput, error) {
	if !r.task.IsMultiInput() {
		summary, cached, err := p.summary(ctx, r, r.result.Transcripts[0])
		if err != nil {
			return stageOutput{}, err
		}
		r.result.Summary = summary
		return stageOutput{payload: summary, cached: cached}, nil
	}

	individual := make([]string, len(r.result.Transcripts))
	allCached := true
	for i, transcript := range r.result.Transcripts {
		summary, cached, err := p.summary(ctx, r, transcript)
		if err != nil {
			return stageOutput{}, fmt.Errorf("input %d: %w", i, err)
		}
		individual[i] = summary
		allCached = allCached && cached
	}

	combinedKey := strings.Join(individual, "\n\n---\n\n")
	composite, cached, err := p.cached(ctx, r, cache.KindComprehensive, combinedKey, func(ctx context.Context) (string, error) {
		prompt, err := p.prompts.Comprehensive(individual)
		if err != nil {
			return "", err
		}
		return p.call(ctx, prompt, nil)
	})
	if err != nil {
		return stageOutput{}, fmt.Errorf("comprehensive summary: %w", err)
	}

	r.result.IndividualSummaries = individual
	r.result.Summary = composite
	return stageOutput{payload: composite, cached: allCached && cached}, nil
}

func (p *Pipeline) summary(ctx context.Context, r *run, text string) (string, bool, error) {
	return p.cached(ctx, r, cache.KindSummary, text, func(ctx context.Context) (string, error) {
		prompt, err := p.prompts.Summary(text)
		if err != nil {
			return "", err
		}
		return p.call(ctx, prompt, nil)
	})
}

// reconcile scores the composite summary against each individual summary.
// When the mean falls below the threshold, the lowest-scoring summary is
// rewritten once against the composite and the scores are recomputed.
// Confidence that stays low is recorded, never treated as failure.
func (p *Pipeline) reconcile(ctx context.Context, r *run) (stageOutput, error) {
	composite := r.result.Summary
	individual := r.result.IndividualSummaries

	scores := p.score(composite, individual)
	report := &domain.ConfidenceReport{
		InitialScores:  scores,
		Scores:         scores,
		Mean:           mean(scores),
		Threshold:      p.cfg.ConfidenceThreshold,
		CorrectedIndex: -1,
	}

	var note string
	if report.Mean < report.Threshold {
		idx := lowest(scores)
		report.CorrectedIndex = idx
		r.logger.Info("confidence below threshold, reconciling lowest summary",
			"mean", report.Mean,
			"threshold", report.Threshold,
			"index", idx)

		revised, err := p.reconcileOne(ctx, individual[idx], composite)
		switch {
		case err != nil && ctx.Err() != nil:
			return stageOutput{}, err
		case err != nil:
			note = "reconciliation call failed, keeping original scores: " + redact.Error(err)
			r.logger.Warn("reconciliation call failed", "error", redact.Error(err))
			telemetry.Reconciliations.WithLabelValues("failed").Inc()
		default:
			individual[idx] = revised
			report.Corrected = true
			report.Scores = p.score(composite, individual)
			report.Mean = mean(report.Scores)
		}
	}

	report.BelowThreshold = report.Mean < report.Threshold
	switch {
	case report.Corrected && report.BelowThreshold:
		telemetry.Reconciliations.WithLabelValues("still_low").Inc()
	case report.Corrected:
		telemetry.Reconciliations.WithLabelValues("corrected").Inc()
	case note == "":
		telemetry.Reconciliations.WithLabelValues("accepted").Inc()
	}

	r.result.IndividualSummaries = individual
	r.result.Confidence = report

	payload, err := json.Marshal(report)
	if err != nil {
		return stageOutput{}, fmt.Errorf("encode confidence report: %w", err)
	}
	return stageOutput{payload: string(payload), note: note}, nil
}

func (p *Pipeline) reconcileOne(ctx context.Context, individual, composite string) (string, error) {
	prompt, err := p.prompts.Reconcile(individual, composite)
	if err != nil {
		return "", err
	}
	return p.call(ctx, prompt, nil)
}

func (p *Pipeline) score(composite string, individual []string) []float64 {
	scores := make([]float64, len(individual))
	for i, s := range individual {
		scores[i] = p.scorer.Similarity(composite, s)
	}
	return scores
}

// knowledgeRecord derives the title/date/preview record. Provider and parse
// failures fall back to heuristics over the summary.
func (p *Pipeline) knowledgeRecord(ctx context.Context, r *run) (stageOutput, error) {
	summary := r.result.Summary

	response, cached, err := p.cached(ctx, r, cache.KindKnowledge, summary, func(ctx context.Context) (string, error) {
		prompt, err := p.prompts.Knowledge(summary)
		if err != nil {
			return "", err
		}
		return p.call(ctx, prompt, nil)
	})

	var note string
	if err != nil {
		if ctx.Err() != nil {
			return stageOutput{}, err
		}
		note = "knowledge provider call failed, using heuristic record: " + redact.Error(err)
		r.logger.Warn("knowledge provider call failed", "error", redact.Error(err))
		response = ""
	}

	record, source := p.parser.Parse(response, summary)
	if source != knowledge.SourceJSON && note == "" {
		note = fmt.Sprintf("knowledge response not valid JSON, used %s fallback", source)
	}
	r.result.Knowledge = record

	payload, err := json.Marshal(record)
	if err != nil {
		return stageOutput{}, fmt.Errorf("encode knowledge record: %w", err)
	}
	return stageOutput{payload: string(payload), cached: cached, note: note}, nil
}

// persist hands the artifacts to the store. Failure is fatal.
func (p *Pipeline) persist(ctx context.Context, r *run) (stageOutput, error) {
	contentID, err := p.store.PersistArtifacts(ctx, r.task.OwnerID, r.task.Inputs, r.result.Clone())
	if err != nil {
		if !errors.Is(err, store.ErrPersistenceFailed) {
			err = fmt.Errorf("%w: %w", store.ErrPersistenceFailed, err)
		}
		return stageOutput{}, err
	}
	r.result.ContentID = contentID
	return stageOutput{payload: contentID}, nil
}

// tag generates and saves tags. Failures are noted and do not fail the task.
func (p *Pipeline) tag(ctx context.Context, r *run) (stageOutput, error) {
	tags, ids, err := p.generateTags(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return stageOutput{}, err
		}
		r.logger.Warn("tag generation failed", "error", redact.Error(err))
		return stageOutput{note: "tag generation failed: " + redact.Error(err)}, nil
	}

	r.result.Tags = tags
	r.result.TagIDs = ids
	return stageOutput{payload: strings.Join(tags, ", ")}, nil
}

func (p *Pipeline) generateTags(ctx context.Context, r *run) ([]string, []string, error) {
	prompt, err := p.prompts.Tags(r.result.Summary, p.cfg.MaxTags)
	if err != nil {
		return nil, nil, err
	}
	response, err := p.call(ctx, prompt, nil)
	if err != nil {
		return nil, nil, err
	}

	tags := ParseTags(response, p.cfg.MaxTags)
	if len(tags) == 0 {
		return nil, nil, errors.New("provider returned no usable tags")
	}

	ids, err := p.store.SaveTags(ctx, r.task.OwnerID, r.result.ContentID, tags)
	if err != nil {
		return nil, nil, err
	}
	return tags, ids, nil
}

// cached returns the artifact for (fingerprint(key), kind) from the cache,
// or computes and stores it. Cache failures are logged and treated as misses.
func (p *Pipeline) cached(
	ctx context.Context,
	r *run,
	kind cache.Kind,
	key string,
	compute func(ctx context.Context) (string, error),
) (string, bool, error) {
	fp := cache.NewFingerprint(key)

	artifact, hit, err := p.cache.Lookup(ctx, fp, kind)
	switch {
	case err != nil:
		telemetry.CacheLookups.WithLabelValues(string(kind), "error").Inc()
		r.logger.Warn("cache lookup failed, treating as miss", "kind", kind, "error", redact.Error(err))
	case hit:
		telemetry.CacheLookups.WithLabelValues(string(kind), "hit").Inc()
		r.logger.Info("served from cache", "kind", kind, "cached", true, "fingerprint", fp.String())
		return artifact, true, nil
	default:
		telemetry.CacheLookups.WithLabelValues(string(kind), "miss").Inc()
	}

	artifact, err = compute(ctx)
	if err != nil {
		return "", false, err
	}
	if err := p.cache.Store(ctx, fp, kind, artifact); err != nil {
		r.logger.Warn("cache store failed", "kind", kind, "error", redact.Error(err))
	}
	return artifact, false, nil
}

// callWithRetry calls the provider, retrying transient failures with
// exponential backoff and jitter.
func (p *Pipeline) callWithRetry(ctx context.Context, logger *slog.Logger, prompt string) (string, error) {
	backoff := retry.NewExponential(p.cfg.RetryBaseDelay)
	backoff = retry.WithJitterPercent(uint64(p.cfg.RetryJitterPercent), backoff)
	backoff = retry.WithMaxRetries(uint64(p.cfg.CorrectionMaxRetries), backoff)

	var text string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := p.call(ctx, prompt, nil)
		if err == nil {
			text = out
			return nil
		}
		if ctx.Err() == nil && generation.IsTransient(err) {
			telemetry.ProviderRetries.Inc()
			logger.Warn("transient provider error, retrying",
				"attempt", attempt,
				"max_retries", p.cfg.CorrectionMaxRetries,
				"error", redact.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// call invokes the provider on a detached context bounded by
// ProviderCallTimeout and waits for either the response or ctx. A response
// arriving after ctx is done is discarded.
func (p *Pipeline) call(ctx context.Context, prompt string, image *generation.Image) (string, error) {
	type response struct {
		text string
		err  error
	}

	done := make(chan response, 1)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProviderCallTimeout)
	go func() {
		defer cancel()
		text, err := p.provider.Complete(callCtx, prompt, image)
		done <- response{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func hasImage(inputs []domain.InputRef) bool {
	for _, in := range inputs {
		if in.IsImage() {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// lowest returns the index of the smallest score, preferring the first.
func lowest(xs []float64) int {
	idx := 0
	for i, x := range xs {
		if x < xs[idx] {
			idx = i
		}
	}
	return idx
}
