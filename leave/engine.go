/*
engine.go - Leave request lifecycle engine

PURPOSE:
  Orchestrates submission, listing and decisions. Every mutating operation
  runs as one unit of work (TxStore.WithTx) spanning its reads and writes,
  so balance checks always see the value the write will act on.

SUBMISSION ORDER:
  1. End before start          -> ErrInvalidRange (before any lookup)
  2. Leave type lookup         -> NotFound
  3. Identity resolution       -> NotFound
  4. Balance lookup            -> ErrNoBalanceRecord
  5. Remaining < requested     -> InsufficientBalanceError (nothing created)
  6. Persist PENDING request   (store re-derives NumDays)

DECISION ORDER:
  1. Target status             -> ErrInvalidStatus unless APPROVED/REJECTED
  2. Request lookup            -> NotFound
  3. Not PENDING               -> ErrAlreadyProcessed
  4. APPROVED only: balance re-check against the stored NumDays, then Deduct
  5. Status write

  Steps 2-5 share one transaction: a deduction is never visible without the
  matching APPROVED status and vice versa.

IDENTITY:
  Callers pass the authenticated username explicitly. The engine never reads
  ambient state to find out who is calling.

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Failure taxonomy
  - view.go: Listing views
*/
package leave

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names used in logs and metrics.
const (
	OpSubmit       = "submit"
	OpDecide       = "decide"
	OpListMine     = "list_mine"
	OpListBalances = "list_balances"
	OpListPending  = "list_pending"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Recorder receives lifecycle events. metrics.Collector implements it.
type Recorder interface {
	RequestSubmitted(leaveTypeID string)
	RequestDecided(status Status)
	OperationFailed(operation, kind string)
}

type nopRecorder struct{}

func (nopRecorder) RequestSubmitted(string)        {}
func (nopRecorder) RequestDecided(Status)          {}
func (nopRecorder) OperationFailed(string, string) {}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides request ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the leave lifecycle engine.
type Engine struct {
	store    TxStore
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
	recorder Recorder
}

// NewEngine creates an engine over store.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		log:      zap.L().Named("leave.engine"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitInput is what an employee provides when asking for leave.
type SubmitInput struct {
	LeaveTypeID string
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
}

// SubmitLeaveRequest creates a PENDING request for the caller.
// The balance is checked but not touched.
func (e *Engine) SubmitLeaveRequest(ctx context.Context, username string, in SubmitInput) (*Request, error) {
	log := e.log.With(
		zap.String("op", OpSubmit),
		zap.String("username", username),
		zap.String("leave_type_id", in.LeaveTypeID),
	)
	log.Debug("submitting leave request",
		zap.Time("start_date", in.StartDate),
		zap.Time("end_date", in.EndDate),
	)

	start, end := NormalizeDate(in.StartDate), NormalizeDate(in.EndDate)
	if end.Before(start) {
		return nil, e.fail(log, OpSubmit, ErrInvalidRange)
	}

	var created *Request
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		lt, err := tx.LeaveType(ctx, in.LeaveTypeID)
		if err != nil {
			return err
		}

		emp, err := tx.Resolve(ctx, username)
		if err != nil {
			return err
		}

		requested := DaysInclusive(start, end)
		bal, err := tx.Balance(ctx, emp.ID, lt.ID)
		if err != nil {
			return err
		}
		if !bal.CanCover(requested) {
			return &InsufficientBalanceError{
				EmployeeID:  emp.ID,
				LeaveTypeID: lt.ID,
				Available:   bal.RemainingDays,
				Requested:   requested,
			}
		}

		now := e.now()
		created, err = tx.CreateRequest(ctx, &Request{
			ID:          e.newID(),
			EmployeeID:  emp.ID,
			LeaveTypeID: lt.ID,
			StartDate:   start,
			EndDate:     end,
			Reason:      in.Reason,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
			Employee:    emp,
			LeaveType:   lt,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(log, OpSubmit, err)
	}

	e.recorder.RequestSubmitted(created.LeaveTypeID)
	log.Info("leave request submitted",
		zap.String("request_id", created.ID),
		zap.Int("num_days", created.NumDays),
	)
	return created, nil
}

// GetMyLeaveRequests lists every request of the caller, any status.
func (e *Engine) GetMyLeaveRequests(ctx context.Context, username string) ([]RequestView, error) {
	log := e.log.With(zap.String("op", OpListMine), zap.String("username", username))

	emp, err := e.store.Resolve(ctx, username)
	if err != nil {
		return nil, e.fail(log, OpListMine, err)
	}
	reqs, err := e.store.RequestsByEmployee(ctx, emp.ID)
	if err != nil {
		return nil, e.fail(log, OpListMine, err)
	}
	return ToRequestViews(reqs), nil
}

// GetMyLeaveBalances lists every balance row of the caller.
func (e *Engine) GetMyLeaveBalances(ctx context.Context, username string) ([]BalanceView, error) {
	log := e.log.With(zap.String("op", OpListBalances), zap.String("username", username))

	emp, err := e.store.Resolve(ctx, username)
	if err != nil {
		return nil, e.fail(log, OpListBalances, err)
	}
	bals, err := e.store.BalancesByEmployee(ctx, emp.ID)
	if err != nil {
		return nil, e.fail(log, OpListBalances, err)
	}
	return ToBalanceViews(bals), nil
}

// GetPendingRequests lists all PENDING requests across employees.
// The result is empty, not nil, when there are none.
func (e *Engine) GetPendingRequests(ctx context.Context) ([]RequestView, error) {
	reqs, err := e.store.RequestsByStatus(ctx, StatusPending)
	if err != nil {
		return nil, e.fail(e.log.With(zap.String("op", OpListPending)), OpListPending, err)
	}
	return ToRequestViews(reqs), nil
}

// UpdateRequestStatus decides a PENDING request. Approval deducts the stored
// NumDays from the balance in the same transaction as the status write.
func (e *Engine) UpdateRequestStatus(ctx context.Context, requestID string, status Status) (*Request, error) {
	log := e.log.With(
		zap.String("op", OpDecide),
		zap.String("request_id", requestID),
		zap.String("status", string(status)),
	)
	log.Debug("deciding leave request")

	if !status.IsDecision() {
		return nil, e.fail(log, OpDecide, ErrInvalidStatus)
	}

	var decided *Request
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		req, err := tx.RequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			return ErrAlreadyProcessed
		}

		if status == StatusApproved {
			bal, err := tx.Balance(ctx, req.EmployeeID, req.LeaveTypeID)
			if err != nil {
				return err
			}
			if !bal.CanCover(req.NumDays) {
				return &InsufficientBalanceError{
					EmployeeID:  req.EmployeeID,
					LeaveTypeID: req.LeaveTypeID,
					Available:   bal.RemainingDays,
					Requested:   req.NumDays,
				}
			}
			if _, err := tx.Deduct(ctx, req.EmployeeID, req.LeaveTypeID, req.NumDays); err != nil {
				return err
			}
		}

		req.Status = status
		req.UpdatedAt = e.now()
		decided, err = tx.UpdateRequest(ctx, req)
		return err
	})
	if err != nil {
		return nil, e.fail(log, OpDecide, err)
	}

	e.recorder.RequestDecided(decided.Status)
	log.Info("leave request decided",
		zap.String("employee_id", decided.EmployeeID),
		zap.Int("num_days", decided.NumDays),
	)
	return decided, nil
}

// fail logs err at a level matching its class, records it and returns it unchanged.
func (e *Engine) fail(log *zap.Logger, op string, err error) error {
	kind := Kind(err)
	e.recorder.OperationFailed(op, kind)

	if IsClientError(err) {
		log.Warn("leave operation rejected", zap.String("kind", kind), zap.Error(err))
		return err
	}
	if errors.Is(err, context.Canceled) {
		log.Info("leave operation canceled", zap.Error(err))
		return err
	}
	log.Error("leave operation failed", zap.Error(err))
	return err
}
