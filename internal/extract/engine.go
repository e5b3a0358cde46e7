package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/async"
	"github.com/joseph-ayodele/plansets/internal/checkpoint"
	"github.com/joseph-ayodele/plansets/internal/common"
	"github.com/joseph-ayodele/plansets/internal/ingest"
	"github.com/joseph-ayodele/plansets/internal/metrics"
	"github.com/joseph-ayodele/plansets/internal/quality"
	"github.com/joseph-ayodele/plansets/internal/repository"
)

const ReasonNoValidRecords = "no valid records"

type Options struct {
	CheckpointInterval int
	Workers            int
	CallTimeout        time.Duration
	Policy             Policy
	Relevance          Relevance
	Force              bool
	MaxDocuments       int
}

func DefaultOptions() Options {
	return Options{
		CheckpointInterval: 3,
		Workers:            2,
		CallTimeout:        4 * time.Minute,
		Policy:             DefaultPolicy(),
		Relevance:          NewRelevance(2),
	}
}

// OptionsFromConfig maps the extraction section of the application config.
func OptionsFromConfig(c common.ExtractConfig) Options {
	return Options{
		CheckpointInterval: c.CheckpointInterval,
		Workers:            c.Workers,
		CallTimeout:        c.CallTimeout,
		Policy: Policy{
			MaxAttempts: c.MaxRetries,
			BaseDelay:   c.BaseDelay,
			Multiplier:  c.BackoffMultiplier,
			MaxDelay:    c.MaxDelay,
		},
		Relevance:    NewRelevance(c.RelevanceThreshold),
		Force:        c.ForceReprocess,
		MaxDocuments: c.MaxDocuments,
	}
}

// Engine drives documents through relevance classification and the external
// service, recording every terminal outcome in a checkpoint store.
type Engine struct {
	svc       Service
	text      ingest.TextSource
	store     checkpoint.Store
	responses repository.ResponseRepository
	validator *quality.Validator
	throttle  *Throttle
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine wires an engine. responses may be nil when raw replies need not be kept.
func NewEngine(svc Service, text ingest.TextSource, store checkpoint.Store, responses repository.ResponseRepository,
	validator *quality.Validator, throttle *Throttle, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = quality.NewValidator()
	}
	if throttle == nil {
		throttle = NewThrottle(0, 1)
	}
	if opts.CheckpointInterval < 1 {
		opts.CheckpointInterval = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Relevance.Threshold < 1 {
		opts.Relevance = NewRelevance(2)
	}
	return &Engine{
		svc:       svc,
		text:      text,
		store:     store,
		responses: responses,
		validator: validator,
		throttle:  throttle,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// docResult is what processing one document produced.
type docResult struct {
	outcome checkpoint.Outcome
	records []quality.Scored
}

// run is the mutable state of one session.
type run struct {
	mu      sync.Mutex
	cp      *checkpoint.Checkpoint
	since   int
	summary *Summary
	lastErr error
}

// Run processes docs, skipping those already recorded in the latest checkpoint unless
// Force is set. A cancelled ctx stops the run between documents; the final snapshot
// then holds exactly the documents that reached a terminal state.
func (e *Engine) Run(ctx context.Context, docs []ingest.Document) (*Summary, error) {
	start := e.now()
	prev, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error("engine.checkpoint.load_failed", "error", err)
		return nil, err
	}

	sessionID := uuid.New().String()
	ctx = common.WithSessionID(ctx, sessionID)
	cp := checkpoint.Resume(sessionID, prev)

	pending, resumed := e.selectPending(docs, cp.Processed())
	r := &run{
		cp: cp,
		summary: &Summary{
			SessionID:   sessionID,
			ResumedFrom: cp.ResumedFrom,
			Total:       len(docs),
			Pending:     len(pending),
			Resumed:     resumed,
		},
	}
	e.logger.Info("engine.run.start",
		"session_id", sessionID,
		"resumed_from", cp.ResumedFrom,
		"documents", len(docs),
		"pending", len(pending),
		"already_processed", resumed,
	)

	q := async.NewQueue(ctx, func(jobCtx context.Context, doc ingest.Document) error {
		res, err := e.processDocument(jobCtx, doc)
		if err != nil {
			// Interrupted: no outcome is recorded for this document.
			e.logger.Warn("engine.document.interrupted", "doc_id", doc.ID, "error", err)
			return err
		}
		e.record(ctx, r, res)
		return nil
	}, e.logger, async.WithWorkers(e.opts.Workers), async.WithQueueSize(len(pending)+1))

	for _, doc := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := q.Enqueue(ctx, doc); err != nil {
			break
		}
	}
	q.Shutdown(context.WithoutCancel(ctx))

	r.mu.Lock()
	defer r.mu.Unlock()
	path, err := e.store.AtomicWrite(context.WithoutCancel(ctx), r.cp.Clone())
	if err != nil {
		e.logger.Error("engine.checkpoint.write_failed", "session_id", sessionID, "error", err)
		return r.summary, err
	}
	metrics.CaptureCheckpointWrite()

	s := r.summary
	s.CheckpointPath = path
	s.Counters = r.cp.Counters
	s.Interrupted = ctx.Err() != nil
	s.Elapsed = e.now().Sub(start)
	e.logger.Info("engine.run.done",
		"session_id", sessionID,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"valid_records", s.ValidRecords,
		"interrupted", s.Interrupted,
		"checkpoint", path,
		"elapsed_ms", s.Elapsed.Milliseconds(),
	)
	return s, r.lastErr
}

func (e *Engine) selectPending(docs []ingest.Document, processed map[string]checkpoint.Outcome) ([]ingest.Document, int) {
	seen := make(map[string]bool, len(docs))
	var pending []ingest.Document
	resumed := 0
	for _, d := range docs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		if _, done := processed[d.ID]; done && !e.opts.Force {
			resumed++
			continue
		}
		pending = append(pending, d)
	}
	if e.opts.MaxDocuments > 0 && len(pending) > e.opts.MaxDocuments {
		pending = pending[:e.opts.MaxDocuments]
	}
	return pending, resumed
}

// record appends a terminal outcome to the journal and the checkpoint, writing a
// snapshot every CheckpointInterval outcomes.
func (e *Engine) record(ctx context.Context, r *run, res docResult) {
	persistCtx := context.WithoutCancel(ctx)
	o := res.outcome
	o.SessionID = r.cp.SessionID

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := e.store.Append(persistCtx, o); err != nil {
		e.logger.Error("engine.checkpoint.append_failed", "doc_id", o.DocumentID, "error", err)
		r.lastErr = err
	}
	r.cp.Record(o)
	r.summary.add(o, res.records)
	metrics.CaptureOutcome(string(o.Outcome))

	r.since++
	if r.since < e.opts.CheckpointInterval {
		return
	}
	r.since = 0
	path, err := e.store.AtomicWrite(persistCtx, r.cp.Clone())
	if err != nil {
		e.logger.Error("engine.checkpoint.write_failed", "error", err)
		r.lastErr = err
		return
	}
	metrics.CaptureCheckpointWrite()
	e.logger.Info("engine.checkpoint.saved", "path", path, "processed", r.cp.Counters.Processed)
}

// processDocument walks one document through the state machine. A non-nil error
// means processing was interrupted and nothing should be recorded.
func (e *Engine) processDocument(ctx context.Context, doc ingest.Document) (docResult, error) {
	ctx = common.WithDocumentID(ctx, doc.ID)
	log := e.logger.With("doc_id", doc.ID, "filename", doc.Name)
	out := checkpoint.Outcome{DocumentID: doc.ID, Name: doc.Name, State: constants.StateDiscovered}

	finish := func(state constants.DocumentState, reason string) (docResult, error) {
		out.State = state
		out.Reason = reason
		out.At = e.now().UTC()
		switch state {
		case constants.StateSucceeded:
			out.Outcome = constants.OutcomeSuccess
			log.Info("engine.document.succeeded", "records", out.Records, "valid_records", out.ValidRecords)
		case constants.StateSkipped:
			out.Outcome = constants.OutcomeSkipped
			log.Info("engine.document.skipped", "reason", reason)
		default:
			out.Outcome = constants.OutcomeFailure
			log.Warn("engine.document.failed", "state", state, "reason", reason)
		}
		return docResult{outcome: out}, nil
	}
	fail := func(err error) (docResult, error) {
		if ctx.Err() != nil {
			return docResult{}, ctx.Err()
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return finish(constants.StateFailed, pe.OutcomeReason())
		}
		return finish(constants.StateFailed, err.Error())
	}

	if err := ctx.Err(); err != nil {
		return docResult{}, err
	}

	text, err := e.text.Text(ctx, doc.SourcePath)
	if err != nil {
		return fail(&PermanentError{Step: "text", Reason: "unreadable document", Err: err})
	}
	if strings.TrimSpace(text) == "" {
		return finish(constants.StateSkipped, "no extractable text")
	}
	hits, relevant := e.opts.Relevance.Classify(text)
	out.State = constants.StateClassified
	if !relevant {
		return finish(constants.StateSkipped, fmt.Sprintf("not relevant: %d keyword hits", len(hits)))
	}
	log.Debug("engine.document.relevant", "keywords", hits)

	up, err := callService(ctx, e, doc, StepUpload, func(ctx context.Context) (UploadResult, error) {
		return e.svc.Upload(ctx, doc)
	})
	if err != nil {
		return fail(err)
	}
	out.State = constants.StateUploaded

	schema, err := callService(ctx, e, doc, StepSchema, func(ctx context.Context) (SchemaResult, error) {
		return e.svc.GenerateSchema(ctx, up.RemoteID)
	})
	if err != nil {
		return fail(err)
	}
	out.State = constants.StateSchemaGenerated

	std, err := callService(ctx, e, doc, StepStandardize, func(ctx context.Context) (StandardizeResult, error) {
		return e.svc.Standardize(ctx, up.RemoteID, schema)
	})
	if err != nil {
		return fail(err)
	}
	out.State = constants.StateStandardized

	aiRecords, err := RecordsFromStandardized(doc.ID, std.Payloads)
	if err != nil {
		return fail(&PermanentError{Step: StepStandardize, Reason: "malformed standardization", Err: err})
	}
	records := Combine(aiRecords, ExtractPatterns(doc.ID, text))
	scored := e.validator.ScoreAll(records)
	out.State = constants.StateValidated

	out.Records = len(scored)
	for _, s := range scored {
		if s.Score.Valid {
			out.ValidRecords++
		}
	}
	if out.ValidRecords == 0 {
		res, err := finish(constants.StateFailed, ReasonNoValidRecords)
		res.records = scored
		return res, err
	}
	res, err := finish(constants.StateSucceeded, "")
	res.records = scored
	return res, err
}

// responder is implemented by every service result through its embedded Raw.
type responder interface {
	Response() Raw
}

func (r Raw) Response() Raw { return r }

// callService runs one external step under the throttle and retry policy and
// persists every attempt's reply.
func callService[T responder](ctx context.Context, e *Engine, doc ingest.Document, step string, fn func(ctx context.Context) (T, error)) (T, error) {
	hook := func(attempt int, err error, wait time.Duration) {
		metrics.CaptureRetry(step)
		e.logger.Warn("engine.call.retry", "doc_id", doc.ID, "step", step, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
	}
	return WithRetry(ctx, step, e.opts.Policy, func(ctx context.Context, attempt int) (T, error) {
		var (
			v   T
			ran bool
		)
		start := e.now()
		err := e.throttle.Do(ctx, e.opts.CallTimeout, func(callCtx context.Context) error {
			ran = true
			var err error
			v, err = fn(callCtx)
			return err
		})
		if ran {
			metrics.CaptureExecutionMetrics(step, e.now().Sub(start))
			e.saveResponse(ctx, doc, step, attempt, v.Response(), err)
		}
		return v, err
	}, hook)
}

func (e *Engine) saveResponse(ctx context.Context, doc ingest.Document, step string, attempt int, raw Raw, callErr error) {
	if e.responses == nil {
		return
	}
	base := repository.Response{
		SessionID:  common.SessionIDFromContext(ctx),
		DocumentID: doc.ID,
		Step:       step,
		Attempt:    attempt,
		At:         e.now().UTC(),
	}
	var errText string
	if callErr != nil {
		errText = callErr.Error()
	}

	// The step's error goes on its last stored reply.
	list := make([]repository.Response, 0, len(raw.Exchanges)+1)
	if len(raw.Exchanges) == 0 {
		resp := base
		resp.StatusCode = raw.StatusCode
		resp.Body = raw.Body
		list = append(list, resp)
	}
	for i, ex := range raw.Exchanges {
		resp := base
		resp.Seq = i + 1
		resp.Path = ex.Method + " " + ex.Path
		resp.StatusCode = ex.StatusCode
		resp.Body = ex.Body
		list = append(list, resp)
	}
	list[len(list)-1].Error = errText

	saveCtx := context.WithoutCancel(ctx)
	for _, resp := range list {
		if err := e.responses.SaveResponse(saveCtx, resp); err != nil {
			e.logger.Warn("engine.response.save_failed", "doc_id", doc.ID, "step", step, "seq", resp.Seq, "error", err)
		}
	}
}
