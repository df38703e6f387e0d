package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"questlog/internal/metrics"
	"questlog/internal/store"
)

var (
	ErrUnknownRelationship = errors.New("unknown relationship")
	ErrInvalidParam        = errors.New("invalid relationship parameter")
	// ErrNotFound wraps store.ErrNotFound so callers may match either.
	ErrNotFound = fmt.Errorf("relationship target: %w", store.ErrNotFound)
)

// Engine applies relationships against a store. Every application runs in a
// single transaction: either all steps take effect or none do.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

func NewEngine(st store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger}
}

// Apply runs the steps of name with params. Unknown names and missing or
// malformed parameters are rejected before the store is touched.
func (e *Engine) Apply(ctx context.Context, name Name, params Params) error {
	start := time.Now()

	steps, err := prepare(name, params)
	if err != nil {
		e.observe(name, start, err)
		return err
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		return runSteps(ctx, tx, steps, params)
	})
	return e.finish(name, params, start, err)
}

// ApplyTx runs name inside a transaction the caller already holds, so the
// relationship commits or rolls back together with the caller's writes.
func (e *Engine) ApplyTx(ctx context.Context, tx store.Collections, name Name, params Params) error {
	start := time.Now()

	steps, err := prepare(name, params)
	if err != nil {
		e.observe(name, start, err)
		return err
	}
	return e.finish(name, params, start, runSteps(ctx, tx, steps, params))
}

func prepare(name Name, params Params) ([]Step, error) {
	steps, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelationship, name)
	}
	if err := checkParams(name, params); err != nil {
		return nil, err
	}
	return steps, nil
}

func runSteps(ctx context.Context, tx store.Collections, steps []Step, params Params) error {
	for i, step := range steps {
		if err := applyStep(ctx, tx, step, params); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i+1, step.Action, step.Collection, err)
		}
	}
	return nil
}

func (e *Engine) finish(name Name, params Params, start time.Time, err error) error {
	e.observe(name, start, err)
	if err != nil {
		e.logger.Debug("relationship failed", "relationship", name, "err", err)
		return fmt.Errorf("applying %s: %w", name, err)
	}
	e.logger.Debug("relationship applied", "relationship", name, "params", map[string]string(params))
	return nil
}

func (e *Engine) observe(name Name, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownRelationship):
		metrics.RelationshipApplications.WithLabelValues("unknown", metrics.OutcomeUnknown).Inc()
		return
	case errors.Is(err, ErrInvalidParam):
		outcome = metrics.OutcomeInvalid
	case errors.Is(err, store.ErrNotFound):
		outcome = metrics.OutcomeNotFound
	default:
		outcome = metrics.OutcomeError
	}
	metrics.RelationshipApplications.WithLabelValues(string(name), outcome).Inc()
	metrics.RelationshipDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
}

func checkParams(name Name, params Params) error {
	for _, p := range RequiredParams(name) {
		value, ok := params[p]
		if !ok || value == "" {
			return fmt.Errorf("%w: %s is required for %s", ErrInvalidParam, p, name)
		}
		if _, err := uuid.Parse(value); err != nil {
			return fmt.Errorf("%w: %s: %q is not an entity id", ErrInvalidParam, p, value)
		}
	}
	return nil
}

func applyStep(ctx context.Context, tx store.Collections, step Step, params Params) error {
	if step.Filter == FilterByMember {
		_, err := tx.UpdateMany(ctx, step.Collection, store.Holding(step.Field, params[step.ValueParam()]), step.update(params))
		return err
	}

	id := params[step.IDParam()]
	if step.Action == Require {
		_, err := tx.FindByID(ctx, step.Collection, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, step.IDParam(), id)
		}
		return err
	}

	filter := store.ByID(id)
	if len(step.Match) > 0 {
		filter.Equals = make(map[string]string, len(step.Match))
		for _, f := range step.Match {
			filter.Equals[f.Name] = params[f.Param]
		}
	}

	res, err := tx.UpdateOne(ctx, step.Collection, filter, step.update(params))
	if err != nil {
		return err
	}
	if res.Matched == 0 && len(step.Match) > 0 {
		return nil
	}
	if res.Matched == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, step.IDParam(), id)
	}
	return nil
}

func (s Step) update(params Params) store.Update {
	switch s.Action {
	case AddToSet:
		return store.Update{AddToSet: map[string]string{s.Field: params[s.ValueParam()]}}
	case Pull:
		return store.Update{Pull: map[string]string{s.Field: params[s.ValueParam()]}}
	case Set:
		set := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			if f.Param != "" {
				set[f.Name] = params[f.Param]
				continue
			}
			set[f.Name] = f.Literal
		}
		return store.Update{Set: set}
	default:
		return store.Update{}
	}
}
