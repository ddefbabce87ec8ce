package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/decision"
	"assetcycle/internal/executor"
	"assetcycle/internal/logging"
	"assetcycle/internal/metrics"
	"assetcycle/internal/notifications"
	"assetcycle/internal/platform"
	"assetcycle/internal/registry"
	"assetcycle/internal/services"
)

// ErrRunInProgress reports that another process holds the run lock.
var ErrRunInProgress = errors.New("another assetcycle run is in progress")

// ChangeStore is the part of the change store the runner drives.
type ChangeStore interface {
	decision.OpenChanges
	Append(ctx context.Context, c *changes.Change) error
	Executable(ctx context.Context) ([]*changes.Change, error)
	UpdateStatus(ctx context.Context, id int64, result changes.Result) (*changes.Change, error)
	Counts(ctx context.Context) (map[changes.Status]int, error)
}

// Dependencies wires the runner's collaborators.
type Dependencies struct {
	Platform platform.Client
	Registry *registry.Store
	Changes  ChangeStore
	Notifier notifications.Service
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Runner executes analysis runs and execution sweeps.
type Runner struct {
	cfg      *config.Config
	engine   *decision.Engine
	executor *executor.Executor
	changes  ChangeStore
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
	budget   time.Duration
}

// NewRunner builds a runner with the production notifier.
func NewRunner(cfg *config.Config, client platform.Client, reg *registry.Store, store ChangeStore, logger *slog.Logger) (*Runner, error) {
	return NewRunnerWithDependencies(cfg, Dependencies{
		Platform: client,
		Registry: reg,
		Changes:  store,
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	})
}

// NewRunnerWithDependencies builds a runner from explicit collaborators.
func NewRunnerWithDependencies(cfg *config.Config, deps Dependencies) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner requires config")
	}
	if deps.Platform == nil || deps.Registry == nil || deps.Changes == nil {
		return nil, errors.New("runner requires platform, registry, and change store")
	}
	rules, err := decision.RulesFromConfig(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "init", "rules", "", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:      cfg,
		engine:   decision.NewEngine(rules, deps.Platform, deps.Platform, deps.Registry, deps.Changes, logger),
		executor: executor.New(rules, deps.Platform, deps.Platform, deps.Registry, logger),
		changes:  deps.Changes,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      now,
		budget:   time.Duration(cfg.Run.BudgetSeconds) * time.Second,
	}, nil
}

// run holds the per-invocation state shared by both batches.
type run struct {
	id      string
	phase   string
	started time.Time
	metrics *metrics.Run
	lock    *flock.Flock
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// begin validates configuration, takes the run lock, and derives the budget
// context. Callers must invoke finish.
func (r *Runner) begin(ctx context.Context, phase string) (context.Context, *run, error) {
	if err := r.cfg.ValidateForRun(); err != nil {
		err = services.Wrap(services.ErrConfiguration, phase, "validate config", "", err)
		r.publishError(ctx, phase, err)
		return ctx, nil, err
	}
	if err := r.cfg.EnsureDirectories(); err != nil {
		return ctx, nil, services.Wrap(services.ErrConfiguration, phase, "create directories", "", err)
	}

	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return ctx, nil, services.Wrap(services.ErrStorage, phase, "acquire run lock", r.cfg.LockPath(), err)
	}
	if !locked {
		return ctx, nil, ErrRunInProgress
	}

	id := uuid.NewString()
	ctx = services.WithPhase(services.WithRunID(ctx, id), phase)
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	state := &run{
		id:      id,
		phase:   phase,
		started: r.now(),
		metrics: metrics.NewRun(),
		lock:    lock,
		cancel:  cancel,
		logger:  logging.WithContext(ctx, r.logger),
	}
	state.logger.Info("run started",
		logging.String(logging.FieldEventType, phase+"_started"),
		logging.Duration("budget", r.budget),
		logging.Int("campaigns", len(r.cfg.Campaigns)),
	)
	return ctx, state, nil
}

// finish records metrics and releases the lock. It runs after the budget
// context may already be done.
func (r *Runner) finish(ctx context.Context, state *run) {
	ctx = context.WithoutCancel(ctx)
	defer state.cancel()
	defer func() {
		if err := state.lock.Unlock(); err != nil {
			state.logger.Warn("run lock release failed", logging.Error(err))
		}
	}()

	if counts, err := r.changes.Counts(ctx); err == nil {
		state.metrics.SetStatusCounts(counts)
	} else {
		state.logger.Warn("change counts unavailable for metrics", logging.Error(err))
	}
	state.metrics.PhaseFinished(state.phase, state.started, r.now())
	if err := state.metrics.WriteTextfile(r.cfg.Metrics.TextfilePath); err != nil {
		logging.WarnWithContext(state.logger, "metrics textfile not written", "metrics_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path permissions"),
			logging.String(logging.FieldImpact, "dashboards show the previous run"),
		)
	}
}

// Analyze runs one analysis pass over every configured campaign. Proposed
// changes are appended to the store; AUTO changes are executed straight away
// within the same budget.
func (r *Runner) Analyze(ctx context.Context) (AnalysisSummary, error) {
	ctx, state, err := r.begin(ctx, "analyze")
	if err != nil {
		return AnalysisSummary{}, err
	}
	defer r.finish(ctx, state)

	summary := AnalysisSummary{RunID: state.id, Campaigns: len(r.cfg.Campaigns)}
	analysis := r.engine.AnalyzeAll(ctx, r.cfg.Campaigns)
	for _, campaign := range analysis.Campaigns {
		summary.Analyzed++
		summary.Skipped += campaign.Skipped
		summary.Duplicates += campaign.Duplicates
		summary.Anomalies += campaign.Anomalies
	}
	for _, failure := range analysis.Failures {
		state.metrics.CampaignFailed()
		summary.Failures = append(summary.Failures, RunError{
			CampaignID: failure.CampaignID,
			Message:    failure.Err.Error(),
			Hint:       services.Hint(failure.Err),
		})
	}

	var auto []*changes.Change
	persistCtx := context.WithoutCancel(ctx)
	for _, change := range analysis.Proposals() {
		if err := r.changes.Append(persistCtx, change); err != nil {
			wrapped := services.Wrap(services.ErrStorage, "analyze", "append change", change.CurrentAssetID, err)
			logging.ErrorWithContext(state.logger, "proposed change not stored", "change_append_failed",
				logging.Error(wrapped),
				logging.String(logging.FieldCampaignID, change.CampaignID),
				logging.String(logging.FieldAssetID, change.CurrentAssetID),
			)
			summary.Failures = append(summary.Failures, RunError{
				CampaignID: change.CampaignID,
				Message:    wrapped.Error(),
				Hint:       services.Hint(wrapped),
			})
			continue
		}
		state.metrics.ChangeProposed(change.Action, change.ApprovalMode)
		summary.Proposed++
		if change.ApprovalMode == changes.ApprovalAuto {
			summary.Auto++
			auto = append(auto, change)
		} else {
			summary.Pending++
		}
	}

	summary.Execution = r.executeAll(ctx, state, auto)
	summary.Duration = r.now().Sub(state.started)

	state.logger.Info("analysis run complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("analyzed", summary.Analyzed),
		logging.Int("campaign_failures", len(summary.Failures)),
		logging.Int("proposed", summary.Proposed),
		logging.Int("auto", summary.Auto),
		logging.Int("pending", summary.Pending),
		logging.Int("executed", summary.Execution.Executed),
		logging.Int("failed", summary.Execution.Failed),
		logging.Int("partial", summary.Execution.Partial),
		logging.Bool("interrupted", summary.Execution.Interrupted),
	)
	r.publish(ctx, notifications.EventAnalysisSummary, summary.payload())
	if summary.Pending > 0 {
		r.publish(ctx, notifications.EventApprovalsPending, notifications.Payload{"pending": summary.Pending})
	}
	if len(summary.Failures) > 0 {
		r.publishError(ctx, "analysis", fmt.Errorf("%d campaign(s) failed: %s", len(summary.Failures), summary.Failures[0].Message))
	}
	return summary, nil
}

// Execute sweeps every executable change in store order.
func (r *Runner) Execute(ctx context.Context) (ExecutionSummary, error) {
	ctx, state, err := r.begin(ctx, "execute")
	if err != nil {
		return ExecutionSummary{}, err
	}
	defer r.finish(ctx, state)

	pending, err := r.changes.Executable(ctx)
	if err != nil {
		err = services.Wrap(services.ErrStorage, "execute", "list executable", "", err)
		r.publishError(ctx, "execution", err)
		return ExecutionSummary{RunID: state.id}, err
	}

	summary := r.executeAll(ctx, state, pending)
	summary.Duration = r.now().Sub(state.started)
	state.logger.Info("execution sweep complete",
		logging.String(logging.FieldEventType, "execution_complete"),
		logging.Int("attempted", summary.Attempted),
		logging.Int("executed", summary.Executed),
		logging.Int("failed", summary.Failed),
		logging.Int("partial", summary.Partial),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Int("remaining", summary.Remaining),
	)
	r.publish(ctx, notifications.EventExecutionSummary, summary.payload())
	return summary, nil
}

// executeAll runs the changes one at a time, persisting each result before
// moving on. Context expiry stops the batch and leaves the rest untouched.
func (r *Runner) executeAll(ctx context.Context, state *run, list []*changes.Change) ExecutionSummary {
	summary := ExecutionSummary{RunID: state.id}
	persistCtx := context.WithoutCancel(ctx)

	for i, change := range list {
		if ctx.Err() != nil {
			summary.interrupt(state, len(list)-i)
			break
		}

		res, err := r.executor.Execute(ctx, change)
		if err != nil {
			if errors.Is(err, executor.ErrInterrupted) {
				summary.interrupt(state, len(list)-i)
				break
			}
			summary.Errors = append(summary.Errors, ItemError{ChangeID: change.ID, CampaignID: change.CampaignID, Message: err.Error()})
			continue
		}
		summary.Attempted++
		state.metrics.ChangeExecuted(res.Kind)

		status := res.Status()
		if status == "" {
			summary.AlreadyTerminal++
			continue
		}
		if _, err := r.changes.UpdateStatus(persistCtx, change.ID, res.Record()); err != nil {
			wrapped := services.Wrap(services.ErrStorage, "execute", "checkpoint", fmt.Sprintf("change %d", change.ID), err)
			logging.ErrorWithContext(logging.WithContext(services.WithChangeID(ctx, change.ID), r.logger),
				"execution result not persisted", "checkpoint_failed",
				logging.Error(wrapped),
				logging.String("outcome", string(res.Kind)),
				logging.String(logging.FieldImpact, "change will be retried next sweep"),
			)
			summary.Errors = append(summary.Errors, ItemError{ChangeID: change.ID, CampaignID: change.CampaignID, Outcome: res.Kind, Message: wrapped.Error()})
			continue
		}

		switch {
		case status == changes.StatusExecuted:
			summary.Executed++
		case res.Kind == changes.OutcomePartialReplace:
			summary.Failed++
			summary.Partial++
			summary.Errors = append(summary.Errors, ItemError{ChangeID: change.ID, CampaignID: change.CampaignID, Outcome: res.Kind, Message: res.Message})
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemError{ChangeID: change.ID, CampaignID: change.CampaignID, Outcome: res.Kind, Message: res.Message})
		}
	}
	state.metrics.SetInterrupted(summary.Interrupted)
	return summary
}

func (r *Runner) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic reachability"),
		)
	}
}

func (r *Runner) publishError(ctx context.Context, label string, err error) {
	r.publish(ctx, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   err.Error(),
		"hint":    services.Hint(err),
	})
}
