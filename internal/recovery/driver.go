package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/metrics"
)

const tracerName = "github.com/hashgraph/hedera-services-sub037/internal/recovery"

// Config controls a recovery run.
type Config struct {
	// AllowPartialRound applies a trailing round that was cut off by a crash.
	AllowPartialRound bool
	// FinalRound stops recovery after this round. Zero replays everything.
	FinalRound uint64
	// Tolerant accepts a truncated tail on the last journal file.
	Tolerant bool
	// GenesisHash, when set, must equal the start hash of the first journal
	// file. It is only checked when recovery reads that file.
	GenesisHash *eventstream.Hash
}

// Result describes a finished recovery run.
type Result struct {
	RunID       string
	State       State
	DualState   *DualState
	Digest      eventstream.Hash
	RunningHash eventstream.Hash
	FirstRound  uint64
	LastRound   uint64
	Rounds      int
	Events      int
	Frozen      bool
}

// Driver replays a journal into application state.
type Driver struct {
	cfg    Config
	logger *zap.Logger
	ledger checkpoint.Ledger
	tracer trace.Tracer
}

// Option configures a Driver.
type Option func(*Driver)

// WithLedger records a checkpoint after every applied round.
func WithLedger(l checkpoint.Ledger) Option {
	return func(d *Driver) { d.ledger = l }
}

// WithTracer sets the tracer used for recovery spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver creates a Driver.
func NewDriver(cfg Config, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{cfg: cfg, logger: logger, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartBound returns the journal position recovery resumes from for a state
// that has applied round r.
func StartBound(r uint64) eventstream.Bound {
	if r == 0 {
		return eventstream.Unbounded()
	}
	b, _ := eventstream.ByRound(int64(r + 1))
	return b
}

// Recover replays the journal in dir into state, starting with the round after
// state.Round(). It stops at the end of the journal, after Config.FinalRound,
// or after the first round that reaches freezeTime.
func (d *Driver) Recover(ctx context.Context, dir string, state State, freezeTime *time.Time) (res *Result, err error) {
	runID := uuid.NewString()
	logger := d.logger.With(zap.String("run_id", runID), zap.String("dir", dir))

	ctx, span := d.tracer.Start(ctx, "recovery.Recover", trace.WithAttributes(
		attribute.String("recovery.run_id", runID),
		attribute.String("recovery.dir", dir),
		attribute.Int64("recovery.initial_round", int64(state.Round())),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("recovery.rounds", res.Rounds),
				attribute.Int64("recovery.last_round", int64(res.LastRound)),
			)
		}
		span.End()
	}()

	bound := StartBound(state.Round())
	opts := []eventstream.Option{
		eventstream.WithLogger(logger),
		eventstream.WithFileObserver(metrics.RecordFileOpened),
	}
	if d.cfg.Tolerant {
		opts = append(opts, eventstream.WithMode(eventstream.Tolerant))
	}
	if d.cfg.GenesisHash != nil {
		opts = append(opts, eventstream.WithInitialHash(*d.cfg.GenesisHash))
	}

	logger.Info("recovery starting",
		zap.Uint64("state_round", state.Round()),
		zap.String("bound", bound.String()),
		zap.Uint64("final_round", d.cfg.FinalRound),
		zap.Bool("allow_partial_round", d.cfg.AllowPartialRound),
	)

	rounds, err := eventstream.OpenRounds(dir, bound, d.cfg.AllowPartialRound, opts...)
	if err != nil {
		metrics.RecordIntegrityFailure(err)
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer rounds.Close()

	res = &Result{
		RunID:     runID,
		State:     state,
		DualState: &DualState{FreezeTime: freezeTime},
		Digest:    state.RunningEventHash(),
	}
	prevTS := state.ConsensusTimestamp()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		round, ok, err := rounds.Next()
		if err != nil {
			metrics.RecordIntegrityFailure(err)
			return res, fmt.Errorf("read journal after round %d: %w", res.LastRound, err)
		}
		if !ok {
			break
		}
		if d.cfg.FinalRound != 0 && round.Number > d.cfg.FinalRound {
			break
		}

		if err := d.replay(ctx, runID, round, res); err != nil {
			return res, err
		}

		if IsFreezeState(prevTS, round.ConsensusTimestamp(), freezeTime) {
			frozen := *freezeTime
			res.DualState.LastFrozenTime = &frozen
			res.Frozen = true
			logger.Info("freeze time reached",
				zap.Uint64("round", round.Number),
				zap.Time("freeze_time", frozen),
			)
			break
		}
		prevTS = round.ConsensusTimestamp()
		if d.cfg.FinalRound != 0 && round.Number >= d.cfg.FinalRound {
			break
		}
	}

	logger.Info("recovery finished",
		zap.Int("rounds", res.Rounds),
		zap.Int("events", res.Events),
		zap.Uint64("last_round", res.LastRound),
		zap.String("digest", res.Digest.Short()),
		zap.Bool("frozen", res.Frozen),
	)
	return res, nil
}

// replay pre-handles, applies and records one round.
func (d *Driver) replay(ctx context.Context, runID string, round *eventstream.Round, res *Result) (err error) {
	ctx, span := d.tracer.Start(ctx, "recovery.ApplyRound", trace.WithAttributes(
		attribute.Int64("round.number", int64(round.Number)),
		attribute.Int("round.events", len(round.Events)),
		attribute.Bool("round.complete", round.Complete()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	imm := res.State.Immutable()
	for i, e := range round.Events {
		if err := imm.PreHandle(ctx, e); err != nil {
			return fmt.Errorf("pre-handle event %d of round %d: %w", i, round.Number, err)
		}
	}
	if err := res.State.ApplyRound(ctx, round, res.DualState); err != nil {
		return fmt.Errorf("apply round %d: %w", round.Number, err)
	}

	res.Digest = AccumulateDigest(res.Digest, round)
	if n := len(round.Events); n > 0 {
		res.RunningHash = round.Events[n-1].RunningHash
	}
	if res.Rounds == 0 {
		res.FirstRound = round.Number
	}
	res.LastRound = round.Number
	res.Rounds++
	res.Events += len(round.Events)
	metrics.RecordRoundApplied(round.Number, len(round.Events), time.Since(start))

	if !round.Complete() {
		d.logger.Warn("applied incomplete round",
			zap.String("run_id", runID),
			zap.Uint64("round", round.Number),
			zap.Int("events", len(round.Events)),
		)
	}

	if d.ledger == nil {
		return nil
	}
	if _, err := d.ledger.Append(ctx, checkpoint.Record{
		RunID:          runID,
		Round:          round.Number,
		RoundTimestamp: round.ConsensusTimestamp(),
		EventCount:     len(round.Events),
		EventDigest:    res.Digest.String(),
		RunningHash:    res.RunningHash.String(),
	}); err != nil {
		return fmt.Errorf("record checkpoint for round %d: %w", round.Number, err)
	}
	return nil
}

// ResumeFromCheckpoint returns a DigestState positioned at the ledger's most
// recent checkpoint, or at genesis with initial as its digest when the ledger
// holds none.
func ResumeFromCheckpoint(ctx context.Context, l checkpoint.Ledger, initial eventstream.Hash) (*DigestState, error) {
	last, err := l.Last(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoints) {
		return NewDigestState(0, time.Time{}, initial), nil
	}
	if err != nil {
		return nil, err
	}
	digest, err := eventstream.ParseHash(last.EventDigest)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", last.Index, err)
	}
	return NewDigestState(last.Round, last.RoundTimestamp, digest), nil
}
