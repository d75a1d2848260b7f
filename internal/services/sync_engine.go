package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/remote"
)

// LocalStore is durable key-value storage for the engine's snapshots.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpDelete MutationOp = "delete"
)

// PendingMutation is a change made while the remote store was unreachable.
// Creates carry the provisional id and the record to send. Deletes carry the
// permanent id of the record to remove.
type PendingMutation struct {
	Op       MutationOp
	ID       string
	Record   core.Transaction
	QueuedAt time.Time
}

func (m PendingMutation) key() string {
	return string(m.Op) + ":" + m.ID
}

type FetchStatus int

const (
	// FetchFresh means the list now mirrors the remote store.
	FetchFresh FetchStatus = iota
	// FetchStale means the remote was not consulted or failed; the list is
	// the last known state.
	FetchStale
)

func (s FetchStatus) String() string {
	if s == FetchFresh {
		return "fresh"
	}
	return "stale"
}

// ReconcileReport summarises one reconcile pass.
type ReconcileReport struct {
	Attempted int
	Succeeded int
	Failed    int
	// Discarded counts mutations that were dropped: creates whose record
	// was deleted while the call was in flight (the remote copy is removed
	// again) and deletes the remote store refuses for this owner.
	Discarded int
	Remaining int
}

// LoadReport describes what Load restored and repaired.
type LoadReport struct {
	Transactions int
	Pending      int
	Budgets      int
	Repaired     int
	Corrupt      []string
}

// SyncEngineConfig holds the engine's collaborators besides the ports.
type SyncEngineConfig struct {
	// Token identifies the owner on every remote call.
	Token    string
	Notifier notify.Notifier
	Logger   *log.Logger
	// Now defaults to time.Now. Budget months are taken from it.
	Now      func() time.Time
	Currency string
	// NotifyTimeout bounds each budget notification. Defaults to 5s.
	NotifyTimeout time.Duration
}

// SyncEngine owns the local transaction list and the queue of mutations
// waiting for the remote store. Every mutating operation writes both
// through to the LocalStore before returning.
type SyncEngine struct {
	store    LocalStore
	client   remote.Client
	oracle   connectivity.Oracle
	token    string
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time
	currency string

	notifyTimeout time.Duration
	// nil when the remote store keeps no budgets
	budgetClient remote.BudgetClient

	mu           sync.Mutex
	transactions []core.Transaction
	queue        []PendingMutation
	claimed      map[string]bool
	budgets      core.BudgetTable
	fetching     int
	// ids deleted locally while a fetch was in flight
	deletedDuringFetch map[string]struct{}
	// ids whose remote delete has been sent but not answered
	deletesInFlight map[string]struct{}
	// budget scopes changed locally and not yet pushed, by folded scope
	budgetPending map[string]pendingBudget
	budgetSeq     uint64

	group singleflight.Group
	wg    sync.WaitGroup
	// triggers counts TriggerReconcile calls; passSeq is its value when
	// the latest pass started.
	triggers atomic.Uint64
	passSeq  atomic.Uint64
}

type pendingBudget struct {
	Scope string
	seq   uint64
}

func NewSyncEngine(store LocalStore, client remote.Client, oracle connectivity.Oracle, cfg SyncEngineConfig) *SyncEngine {
	e := &SyncEngine{
		store:              store,
		client:             client,
		oracle:             oracle,
		token:              cfg.Token,
		notifier:           cfg.Notifier,
		logger:             cfg.Logger,
		now:                cfg.Now,
		currency:           cfg.Currency,
		notifyTimeout:      cfg.NotifyTimeout,
		claimed:            map[string]bool{},
		budgets:            core.BudgetTable{},
		deletedDuringFetch: map[string]struct{}{},
		deletesInFlight:    map[string]struct{}{},
		budgetPending:      map[string]pendingBudget{},
	}
	if bc, ok := client.(remote.BudgetClient); ok {
		e.budgetClient = bc
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	e.logger = e.logger.WithComponent(log.ComponentSync)
	if e.now == nil {
		e.now = time.Now
	}
	if e.currency == "" {
		e.currency = core.DefaultCurrency
	}
	if e.notifier == nil {
		e.notifier = notify.Log{Logger: e.logger.Logger}
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = 5 * time.Second
	}
	return e
}

// Load restores the transaction list, the pending queue and the budget
// table. It never fails: unreadable keys start empty and are reported in
// LoadReport.Corrupt. Restored data is repaired so that every provisional
// record has a queued create and every queued create has its record.
func (e *SyncEngine) Load(ctx context.Context) LoadReport {
	var report LoadReport

	list, _ := loadKeyInto(ctx, e, KeyTransactions, &report, decodeTransactions)
	queue, _ := loadKeyInto(ctx, e, KeyPendingQueue, &report, decodeQueue)
	budgets, ok := loadKeyInto(ctx, e, KeyBudgets, &report, decodeBudgets)
	if !ok || budgets == nil {
		budgets = core.BudgetTable{}
	}
	pendingScopes, _ := loadKeyInto(ctx, e, KeyBudgetPending, &report, decodeBudgetPending)

	list, queue, repaired := sanitize(list, queue, e.now())

	e.mu.Lock()
	defer e.mu.Unlock()
	e.transactions = list
	e.queue = queue
	e.budgets = budgets
	e.claimed = map[string]bool{}
	e.budgetPending = map[string]pendingBudget{}
	for _, scope := range pendingScopes {
		e.markBudgetLocked(scope)
	}

	report.Transactions = len(list)
	report.Pending = len(queue)
	report.Budgets = len(budgets)
	report.Repaired = repaired

	if repaired > 0 {
		if err := e.persistLocked(ctx); err != nil {
			e.logger.WarnContext(ctx, "Failed to persist repaired state", log.FieldError, err)
		}
	}
	e.logger.InfoContext(ctx, "Local state loaded",
		log.FieldOperation, log.OpLoad,
		"transactions", report.Transactions,
		log.FieldQueueLength, report.Pending,
		"budgets", report.Budgets,
		"repaired", report.Repaired)
	return report
}

func loadKeyInto[T any](ctx context.Context, e *SyncEngine, key string, report *LoadReport, decode func([]byte) (T, error)) (T, bool) {
	var zero T
	raw, found, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to read local state", "key", key, log.FieldError, err)
		report.Corrupt = append(report.Corrupt, key)
		return zero, false
	}
	if !found {
		return zero, false
	}
	v, err := decode(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "Discarding unreadable local state", "key", key, log.FieldError, err)
		report.Corrupt = append(report.Corrupt, key)
		return zero, false
	}
	return v, true
}

// FetchAll replaces the list with the remote store's view. Offline it
// returns FetchStale and changes nothing. Records the remote cannot know
// about yet (queued creates, adds and deletes made during the call) survive
// the replace. After a fresh fetch the budget table is synced too; a budget
// failure is logged and does not fail the fetch.
func (e *SyncEngine) FetchAll(ctx context.Context) (FetchStatus, error) {
	status, err := e.fetchTransactions(ctx)
	if status == FetchFresh && e.budgetClient != nil {
		if berr := e.SyncBudgets(ctx); berr != nil {
			e.logger.WarnContext(ctx, "Budget sync failed, keeping local limits",
				log.FieldOperation, log.OpFetch, log.FieldError, berr)
		}
	}
	return status, err
}

func (e *SyncEngine) fetchTransactions(ctx context.Context) (FetchStatus, error) {
	if !e.online() {
		return FetchStale, nil
	}

	e.mu.Lock()
	e.fetching++
	before := make(map[string]struct{}, len(e.transactions))
	for _, t := range e.transactions {
		before[t.ID] = struct{}{}
	}
	e.mu.Unlock()

	fetched, err := e.client.List(ctx, e.token)

	e.mu.Lock()
	defer e.mu.Unlock()
	deleted := e.deletedDuringFetch
	e.fetching--
	if e.fetching == 0 {
		e.deletedDuringFetch = map[string]struct{}{}
	}

	if err != nil {
		e.logger.WarnContext(ctx, "Fetch failed, keeping local list",
			log.FieldOperation, log.OpFetch, log.FieldError, err)
		return FetchStale, &TransportError{Op: "list", Err: err}
	}

	pendingDelete := map[string]struct{}{}
	for _, m := range e.queue {
		if m.Op == OpDelete {
			pendingDelete[m.ID] = struct{}{}
		}
	}
	remoteIDs := make(map[string]struct{}, len(fetched))
	for _, t := range fetched {
		remoteIDs[t.ID] = struct{}{}
	}

	merged := make([]core.Transaction, 0, len(fetched)+len(e.queue))
	for _, t := range e.transactions {
		if t.Provisional {
			if e.queueIndexLocked(OpCreate, t.ID) >= 0 {
				merged = append(merged, t)
			}
			continue
		}
		_, known := before[t.ID]
		_, listed := remoteIDs[t.ID]
		if !known && !listed {
			merged = append(merged, t)
		}
	}
	for _, t := range fetched {
		if _, ok := deleted[t.ID]; ok {
			continue
		}
		if _, ok := pendingDelete[t.ID]; ok {
			continue
		}
		if _, ok := e.deletesInFlight[t.ID]; ok {
			continue
		}
		merged = append(merged, t)
	}
	e.transactions = merged

	e.logger.InfoContext(ctx, "Fetched transactions",
		log.FieldOperation, log.OpFetch,
		"remote", len(fetched),
		"local", len(merged))
	if err := e.persistLocked(ctx); err != nil {
		return FetchFresh, err
	}
	return FetchFresh, nil
}

// Add records a new transaction. Online it is created remotely first; if
// that is not possible it is kept locally under a provisional id and queued.
// Either way the record is in the list when Add returns without a
// validation error. A persist failure is returned but the record stays.
func (e *SyncEngine) Add(ctx context.Context, d core.Draft) (core.Transaction, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if e.online() {
		created, err := e.client.Create(ctx, e.token, d)
		if err == nil {
			return e.commitAdd(ctx, created, nil)
		}
		e.logger.WarnContext(ctx, "Remote create failed, queueing transaction",
			log.FieldOperation, log.OpCreate, log.FieldError, err)
	}

	t := d.WithID(core.NewProvisionalID())
	return e.commitAdd(ctx, t, &PendingMutation{
		Op:       OpCreate,
		ID:       t.ID,
		Record:   t,
		QueuedAt: e.now(),
	})
}

func (e *SyncEngine) commitAdd(ctx context.Context, t core.Transaction, m *PendingMutation) (core.Transaction, error) {
	e.mu.Lock()
	e.transactions = append([]core.Transaction{t}, e.transactions...)
	if m != nil {
		e.queue = append(e.queue, *m)
	}
	perr := e.persistLocked(ctx)
	list := cloneTransactions(e.transactions)
	budgets := e.budgets.Clone()
	queued := len(e.queue)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Transaction added",
		append(log.NewFields().
			WithOperation(log.OpCreate).
			WithTransaction(t.ID, t.Amount.Cents, t.Category, string(t.Kind)).
			ToSlice(), log.FieldQueueLength, queued)...)

	e.evaluateBudget(ctx, list, budgets, t)
	return t, perr
}

// Delete removes id from the list. A record that never reached the remote
// store just loses its queued create. Otherwise the remote copy is deleted,
// or a delete is queued when the remote cannot be reached.
func (e *SyncEngine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrNotFound
	}
	e.removeLocked(idx)
	e.noteDeletedLocked(id)

	if qi := e.queueIndexLocked(OpCreate, id); qi >= 0 {
		e.queue = append(e.queue[:qi], e.queue[qi+1:]...)
		err := e.persistLocked(ctx)
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Queued transaction abandoned",
			log.FieldOperation, log.OpDelete, log.FieldProvisionalID, id)
		return err
	}
	if core.IsProvisionalID(id) {
		// nothing was ever queued for it
		err := e.persistLocked(ctx)
		e.mu.Unlock()
		return err
	}

	if !e.online() {
		e.enqueueDeleteLocked(id)
		err := e.persistLocked(ctx)
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Delete queued while offline",
			log.FieldOperation, log.OpDelete, log.FieldTransactionID, id)
		return err
	}
	e.deletesInFlight[id] = struct{}{}
	perr := e.persistLocked(ctx)
	e.mu.Unlock()

	err := e.client.Delete(ctx, e.token, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.deletesInFlight, id)
	e.noteDeletedLocked(id)

	switch {
	case err == nil, errors.Is(err, remote.ErrNotFound):
		return perr
	case errors.Is(err, remote.ErrUnauthorized):
		e.logger.WarnContext(ctx, "Remote store refused delete, dropping it",
			log.FieldOperation, log.OpDelete, log.FieldTransactionID, id, log.FieldError, err)
		return perr
	}

	e.logger.WarnContext(ctx, "Remote delete failed, queueing",
		log.FieldOperation, log.OpDelete, log.FieldTransactionID, id, log.FieldError, err)
	e.enqueueDeleteLocked(id)
	qerr := e.persistLocked(ctx)
	if perr != nil {
		return perr
	}
	return qerr
}

// Edit applies p to id. Synced records are updated remotely and need a
// connection. A provisional record is replaced by a new provisional record
// carrying the patched fields and its queued create is swapped likewise.
func (e *SyncEngine) Edit(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}

	e.mu.Lock()
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return core.Transaction{}, ErrNotFound
	}
	cur := e.transactions[idx]

	if cur.Provisional {
		defer e.mu.Unlock()
		d := p.Apply(cur).Draft().Normalize()
		if err := d.Validate(); err != nil {
			return core.Transaction{}, err
		}
		next := d.WithID(core.NewProvisionalID())
		e.removeLocked(idx)
		if qi := e.queueIndexLocked(OpCreate, id); qi >= 0 {
			e.queue = append(e.queue[:qi], e.queue[qi+1:]...)
		}
		e.noteDeletedLocked(id)
		e.transactions = append([]core.Transaction{next}, e.transactions...)
		e.queue = append(e.queue, PendingMutation{Op: OpCreate, ID: next.ID, Record: next, QueuedAt: e.now()})
		e.logger.InfoContext(ctx, "Queued transaction edited",
			log.FieldOperation, log.OpUpdate,
			log.FieldProvisionalID, next.ID,
			"replaces", id)
		return next, e.persistLocked(ctx)
	}
	e.mu.Unlock()

	if !e.online() {
		return core.Transaction{}, ErrOfflineEdit
	}

	updated, err := e.client.Update(ctx, e.token, id, p)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return core.Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return core.Transaction{}, &TransportError{Op: "update", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	idx = e.indexLocked(id)
	if idx < 0 {
		e.logger.WarnContext(ctx, "Transaction deleted during edit, discarding result",
			log.FieldOperation, log.OpUpdate, log.FieldTransactionID, id)
		return core.Transaction{}, ErrNotFound
	}
	e.transactions[idx] = updated
	return updated, e.persistLocked(ctx)
}

// Reconcile replays the queue against the remote store in the order the
// mutations were made. Mutations claimed by a concurrent pass are skipped.
// Each mutation is attempted once; failures stay queued for the next pass
// and are reported through *PartialSyncError.
func (e *SyncEngine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	if !e.online() {
		return ReconcileReport{Remaining: e.QueueLen()}, ErrOffline
	}

	e.mu.Lock()
	var batch []PendingMutation
	for _, m := range e.queue {
		if e.claimed[m.key()] {
			continue
		}
		e.claimed[m.key()] = true
		batch = append(batch, m)
	}
	e.mu.Unlock()

	report := ReconcileReport{Attempted: len(batch)}
	var errs []error
	for i, m := range batch {
		if ctx.Err() != nil {
			e.release(batch[i:])
			report.Attempted = i
			break
		}
		var outcome reconcileOutcome
		var err error
		switch m.Op {
		case OpCreate:
			outcome, err = e.reconcileCreate(ctx, m)
		case OpDelete:
			outcome, err = e.reconcileDelete(ctx, m)
		}
		switch outcome {
		case outcomeSucceeded:
			report.Succeeded++
		case outcomeDiscarded:
			report.Discarded++
		case outcomeFailed:
			report.Failed++
			errs = append(errs, err)
		}
	}

	if e.budgetClient != nil && ctx.Err() == nil {
		if berr := e.pushBudgets(ctx); berr != nil {
			e.logger.WarnContext(ctx, "Budget push failed, will retry",
				log.FieldOperation, log.OpReconcile, log.FieldError, berr)
		}
	}

	e.mu.Lock()
	perr := e.persistLocked(ctx)
	report.Remaining = len(e.queue)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Reconcile pass finished",
		log.FieldOperation, log.OpReconcile,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"discarded", report.Discarded,
		log.FieldQueueLength, report.Remaining)

	if report.Failed > 0 {
		return report, &PartialSyncError{Failed: report.Failed, Remaining: report.Remaining, Errs: errs}
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, perr
}

type reconcileOutcome int

const (
	outcomeFailed reconcileOutcome = iota
	outcomeSucceeded
	outcomeDiscarded
)

func (e *SyncEngine) reconcileCreate(ctx context.Context, m PendingMutation) (reconcileOutcome, error) {
	created, err := e.client.Create(ctx, e.token, m.Record.Draft())

	e.mu.Lock()
	delete(e.claimed, m.key())
	if err != nil {
		e.mu.Unlock()
		e.logger.WarnContext(ctx, "Queued create failed",
			log.FieldOperation, log.OpReconcile, log.FieldProvisionalID, m.ID, log.FieldError, err)
		return outcomeFailed, &TransportError{Op: "create", Err: err}
	}

	qi := e.queueIndexLocked(OpCreate, m.ID)
	if qi < 0 {
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Record deleted during sync, removing remote copy",
			log.FieldOperation, log.OpReconcile,
			log.FieldProvisionalID, m.ID,
			log.FieldTransactionID, created.ID)
		e.compensate(ctx, created.ID)
		return outcomeDiscarded, nil
	}

	e.queue = append(e.queue[:qi], e.queue[qi+1:]...)
	if idx := e.indexLocked(m.ID); idx >= 0 {
		e.transactions[idx] = created
	} else {
		e.transactions = append([]core.Transaction{created}, e.transactions...)
	}
	if perr := e.persistLocked(ctx); perr != nil {
		e.logger.WarnContext(ctx, "Failed to persist reconciled record",
			log.FieldTransactionID, created.ID, log.FieldError, perr)
	}
	e.mu.Unlock()
	return outcomeSucceeded, nil
}

func (e *SyncEngine) reconcileDelete(ctx context.Context, m PendingMutation) (reconcileOutcome, error) {
	err := e.client.Delete(ctx, e.token, m.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.claimed, m.key())
	outcome := outcomeSucceeded
	switch {
	case err == nil, errors.Is(err, remote.ErrNotFound):
	case errors.Is(err, remote.ErrUnauthorized):
		// retrying cannot succeed
		e.logger.WarnContext(ctx, "Remote store refused queued delete, dropping it",
			log.FieldOperation, log.OpReconcile, log.FieldTransactionID, m.ID, log.FieldError, err)
		outcome = outcomeDiscarded
	default:
		e.logger.WarnContext(ctx, "Queued delete failed",
			log.FieldOperation, log.OpReconcile, log.FieldTransactionID, m.ID, log.FieldError, err)
		return outcomeFailed, &TransportError{Op: "delete", Err: err}
	}
	if qi := e.queueIndexLocked(OpDelete, m.ID); qi >= 0 {
		e.queue = append(e.queue[:qi], e.queue[qi+1:]...)
	}
	if perr := e.persistLocked(ctx); perr != nil {
		e.logger.WarnContext(ctx, "Failed to persist reconciled delete",
			log.FieldTransactionID, m.ID, log.FieldError, perr)
	}
	return outcome, nil
}

// compensate removes a remote record whose local copy no longer exists.
func (e *SyncEngine) compensate(ctx context.Context, id string) {
	err := e.client.Delete(ctx, e.token, id)
	if err == nil || errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrUnauthorized) {
		return
	}
	e.logger.WarnContext(ctx, "Compensating delete failed, queueing",
		log.FieldTransactionID, id, log.FieldError, err)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueueDeleteLocked(id)
	if perr := e.persistLocked(ctx); perr != nil {
		e.logger.WarnContext(ctx, "Failed to persist queued delete",
			log.FieldTransactionID, id, log.FieldError, perr)
	}
}

func (e *SyncEngine) release(batch []PendingMutation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range batch {
		delete(e.claimed, m.key())
	}
}

// Run reconciles whenever the oracle reports an offline to online edge and
// work is queued, and once at start when already online with a non-empty
// queue. It returns when ctx is done, after in-flight passes finish.
func (e *SyncEngine) Run(ctx context.Context) error {
	transitions := connectivity.Transitions(ctx, e.oracle)

	e.logger.InfoContext(ctx, "Sync engine started", log.FieldOperation, log.OpStartup)
	if e.oracle.Status() == connectivity.Connected && e.hasPendingWork() {
		e.TriggerReconcile(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.logger.Info("Sync engine stopped", log.FieldOperation, log.OpShutdown)
			return nil
		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			e.logger.DebugContext(ctx, "Connectivity changed",
				log.FieldConnectivity, tr.To.String())
			if tr.Online() && e.hasPendingWork() {
				e.TriggerReconcile(ctx)
			}
		}
	}
}

// TriggerReconcile starts a pass in the background. Triggers arriving while
// a pass is running share its result instead of starting another. A trigger
// that joined a pass started before it runs one follow-up pass when work is
// still queued, so items that failed early in the shared pass get retried.
func (e *SyncEngine) TriggerReconcile(ctx context.Context) <-chan singleflight.Result {
	seq := e.triggers.Add(1)
	out := make(chan singleflight.Result, 1)
	e.wg.Add(1)
	ch := e.sharedReconcile(ctx)
	go func() {
		defer e.wg.Done()
		res := <-ch
		if e.passSeq.Load() < seq && ctx.Err() == nil && e.online() && e.hasPendingWork() {
			e.logger.DebugContext(ctx, "Work left after a shared pass, reconciling again",
				log.FieldOperation, log.OpReconcile)
			res = <-e.sharedReconcile(ctx)
		}
		if res.Err != nil {
			e.logger.WarnContext(ctx, "Background reconcile incomplete",
				log.FieldOperation, log.OpReconcile, log.FieldError, res.Err)
		}
		out <- res
	}()
	return out
}

func (e *SyncEngine) sharedReconcile(ctx context.Context) <-chan singleflight.Result {
	return e.group.DoChan("reconcile", func() (any, error) {
		e.passSeq.Store(e.triggers.Load())
		return e.Reconcile(ctx)
	})
}

func (e *SyncEngine) hasPendingWork() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue) > 0 || len(e.budgetPending) > 0
}

// Transactions returns a copy of the list, newest added first.
func (e *SyncEngine) Transactions() []core.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneTransactions(e.transactions)
}

// PendingQueue returns a copy of the queue in replay order.
func (e *SyncEngine) PendingQueue() []PendingMutation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PendingMutation(nil), e.queue...)
}

func (e *SyncEngine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *SyncEngine) Budgets() core.BudgetTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budgets.Clone()
}

// SetBudget sets or replaces the monthly limit of scope. When the remote
// store keeps budgets the change is pushed right away if online; otherwise
// it stays pending until the next reconcile or SyncBudgets.
func (e *SyncEngine) SetBudget(ctx context.Context, l core.BudgetLimit) error {
	l.Scope = core.NormalizeScope(l.Scope)
	if err := l.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.budgets.Set(l)
	e.markBudgetLocked(l.Scope)
	err := e.persistBudgetsLocked(ctx)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Budget limit set",
		log.FieldScope, l.Scope, log.FieldAmountCents, l.Limit.Cents)
	e.pushBudgetsIfOnline(ctx)
	return err
}

// RemoveBudget drops the limit of scope. It reports whether one existed.
func (e *SyncEngine) RemoveBudget(ctx context.Context, scope string) (bool, error) {
	scope = core.NormalizeScope(scope)
	e.mu.Lock()
	if !e.budgets.Remove(scope) {
		e.mu.Unlock()
		return false, nil
	}
	e.markBudgetLocked(scope)
	err := e.persistBudgetsLocked(ctx)
	e.mu.Unlock()

	e.pushBudgetsIfOnline(ctx)
	return true, err
}

// SyncBudgets pushes pending budget changes, then adopts the remote store's
// limits for the current month. Scopes still pending keep their local value.
// When the remote has no limits for the month yet, the local ones are
// carried into it. Without a budget-capable remote it does nothing.
func (e *SyncEngine) SyncBudgets(ctx context.Context) error {
	if e.budgetClient == nil {
		return nil
	}
	if !e.online() {
		return ErrOffline
	}
	if err := e.pushBudgets(ctx); err != nil {
		return err
	}
	return e.pullBudgets(ctx)
}

// PendingBudgets returns the scopes whose local change has not reached the
// remote store, sorted.
func (e *SyncEngine) PendingBudgets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return pendingScopesLocked(e.budgetPending)
}

func (e *SyncEngine) pushBudgetsIfOnline(ctx context.Context) {
	if e.budgetClient == nil || !e.online() {
		return
	}
	if err := e.pushBudgets(ctx); err != nil {
		e.logger.WarnContext(ctx, "Budget push failed, will retry",
			log.FieldOperation, log.OpPersist, log.FieldError, err)
	}
}

type budgetPush struct {
	key   string
	p     pendingBudget
	limit core.Money
	set   bool
}

func (e *SyncEngine) pushBudgets(ctx context.Context) error {
	month := e.budgetMonth()

	e.mu.Lock()
	work := make([]budgetPush, 0, len(e.budgetPending))
	for key, p := range e.budgetPending {
		limit, ok := e.budgets.Get(p.Scope)
		work = append(work, budgetPush{key: key, p: p, limit: limit, set: ok})
	}
	e.mu.Unlock()
	if len(work) == 0 {
		return nil
	}
	sort.Slice(work, func(i, j int) bool { return work[i].key < work[j].key })

	var errs []error
	for _, w := range work {
		var err error
		if w.set {
			err = e.budgetClient.UpsertBudget(ctx, e.token, month, core.BudgetLimit{Scope: w.p.Scope, Limit: w.limit})
		} else if err = e.budgetClient.DeleteBudget(ctx, e.token, month, w.p.Scope); errors.Is(err, remote.ErrNotFound) {
			err = nil
		}
		if err != nil {
			errs = append(errs, &TransportError{Op: "push budget " + w.p.Scope, Err: err})
			continue
		}
		e.mu.Lock()
		if cur, ok := e.budgetPending[w.key]; ok && cur.seq == w.p.seq {
			delete(e.budgetPending, w.key)
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	perr := e.persistBudgetsLocked(ctx)
	e.mu.Unlock()
	return errors.Join(append(errs, perr)...)
}

func (e *SyncEngine) pullBudgets(ctx context.Context) error {
	limits, err := e.budgetClient.ListBudgets(ctx, e.token, e.budgetMonth())
	if err != nil {
		return &TransportError{Op: "list budgets", Err: err}
	}

	e.mu.Lock()
	if len(limits) == 0 && len(e.budgetPending) == 0 && len(e.budgets) > 0 {
		for _, l := range e.budgets.Limits() {
			e.markBudgetLocked(l.Scope)
		}
		perr := e.persistBudgetsLocked(ctx)
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Carrying local budget limits into a new month",
			"month", e.budgetMonth())
		if perr != nil {
			return perr
		}
		return e.pushBudgets(ctx)
	}

	table := core.BudgetTable{}
	for _, l := range limits {
		table.Set(l)
	}
	for _, p := range e.budgetPending {
		if limit, ok := e.budgets.Get(p.Scope); ok {
			table.Set(core.BudgetLimit{Scope: p.Scope, Limit: limit})
		} else {
			table.Remove(p.Scope)
		}
	}
	e.budgets = table
	perr := e.persistBudgetsLocked(ctx)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Budget limits synced",
		"remote", len(limits), "budgets", len(table))
	return perr
}

func (e *SyncEngine) markBudgetLocked(scope string) {
	if e.budgetClient == nil {
		return
	}
	e.budgetSeq++
	e.budgetPending[budgetKey(scope)] = pendingBudget{Scope: core.NormalizeScope(scope), seq: e.budgetSeq}
}

func (e *SyncEngine) budgetMonth() string {
	return e.now().Format("2006-01")
}

func budgetKey(scope string) string {
	return strings.ToLower(core.NormalizeScope(scope))
}

func pendingScopesLocked(pending map[string]pendingBudget) []string {
	out := make([]string, 0, len(pending))
	for _, p := range pending {
		out = append(out, p.Scope)
	}
	sort.Strings(out)
	return out
}

// Currency is the display currency used in alert bodies.
func (e *SyncEngine) Currency() string { return e.currency }

func (e *SyncEngine) evaluateBudget(ctx context.Context, list []core.Transaction, budgets core.BudgetTable, added core.Transaction) {
	alert := Evaluate(list, budgets, added, e.now())
	if alert == nil {
		return
	}
	e.logger.InfoContext(ctx, "Budget threshold crossed",
		log.FieldScope, alert.Scope,
		log.FieldSeverity, alert.Severity.String(),
		"ratio", alert.Ratio.StringFixed(4))
	nctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()
	if err := e.notifier.Notify(nctx, alert.Title(), alert.Body(e.currency)); err != nil {
		e.logger.WarnContext(ctx, "Budget notification failed",
			log.FieldOperation, log.OpNotify, log.FieldError, err)
	}
}

func (e *SyncEngine) online() bool {
	return e.oracle.Status() == connectivity.Connected
}

func (e *SyncEngine) persistLocked(ctx context.Context) error {
	list, err := encodeTransactions(e.transactions)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyTransactions, err)
	}
	queue, err := encodeQueue(e.queue)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyPendingQueue, err)
	}
	if err := e.store.Set(ctx, KeyTransactions, list); err != nil {
		return fmt.Errorf("persist %s: %w", KeyTransactions, err)
	}
	if err := e.store.Set(ctx, KeyPendingQueue, queue); err != nil {
		return fmt.Errorf("persist %s: %w", KeyPendingQueue, err)
	}
	return nil
}

func (e *SyncEngine) persistBudgetsLocked(ctx context.Context) error {
	raw, err := encodeBudgets(e.budgets)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyBudgets, err)
	}
	pending, err := encodeBudgetPending(pendingScopesLocked(e.budgetPending))
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyBudgetPending, err)
	}
	if err := e.store.Set(ctx, KeyBudgets, raw); err != nil {
		return fmt.Errorf("persist %s: %w", KeyBudgets, err)
	}
	if err := e.store.Set(ctx, KeyBudgetPending, pending); err != nil {
		return fmt.Errorf("persist %s: %w", KeyBudgetPending, err)
	}
	return nil
}

func (e *SyncEngine) indexLocked(id string) int {
	for i, t := range e.transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *SyncEngine) queueIndexLocked(op MutationOp, id string) int {
	for i, m := range e.queue {
		if m.Op == op && m.ID == id {
			return i
		}
	}
	return -1
}

func (e *SyncEngine) removeLocked(idx int) {
	e.transactions = append(e.transactions[:idx], e.transactions[idx+1:]...)
}

func (e *SyncEngine) enqueueDeleteLocked(id string) {
	if e.queueIndexLocked(OpDelete, id) >= 0 {
		return
	}
	e.queue = append(e.queue, PendingMutation{Op: OpDelete, ID: id, QueuedAt: e.now()})
}

func (e *SyncEngine) noteDeletedLocked(id string) {
	if e.fetching > 0 {
		e.deletedDuringFetch[id] = struct{}{}
	}
}

// sanitize repairs restored state. It returns the number of repairs made.
func sanitize(list []core.Transaction, queue []PendingMutation, now time.Time) ([]core.Transaction, []PendingMutation, int) {
	repaired := 0

	seen := make(map[string]struct{}, len(list))
	cleanList := make([]core.Transaction, 0, len(list))
	for _, t := range list {
		if t.ID == "" {
			repaired++
			continue
		}
		if _, dup := seen[t.ID]; dup {
			repaired++
			continue
		}
		seen[t.ID] = struct{}{}
		if p := core.IsProvisionalID(t.ID); t.Provisional != p {
			t.Provisional = p
			repaired++
		}
		cleanList = append(cleanList, t)
	}

	queued := map[string]struct{}{}
	cleanQueue := make([]PendingMutation, 0, len(queue))
	for _, m := range queue {
		valid := false
		switch m.Op {
		case OpCreate:
			valid = core.IsProvisionalID(m.ID)
			m.Record.ID = m.ID
			m.Record.Provisional = true
		case OpDelete:
			valid = m.ID != "" && !core.IsProvisionalID(m.ID)
		}
		if _, dup := queued[m.key()]; !valid || dup {
			repaired++
			continue
		}
		queued[m.key()] = struct{}{}
		cleanQueue = append(cleanQueue, m)
	}

	// a pending delete means the record is already gone locally
	filtered := cleanList[:0]
	for _, t := range cleanList {
		if _, ok := queued[string(OpDelete)+":"+t.ID]; ok {
			repaired++
			continue
		}
		filtered = append(filtered, t)
	}
	cleanList = filtered

	present := make(map[string]struct{}, len(cleanList))
	for _, t := range cleanList {
		present[t.ID] = struct{}{}
	}
	for _, m := range cleanQueue {
		if m.Op != OpCreate {
			continue
		}
		if _, ok := present[m.ID]; !ok {
			cleanList = append([]core.Transaction{m.Record}, cleanList...)
			present[m.ID] = struct{}{}
			repaired++
		}
	}

	for _, t := range cleanList {
		if !t.Provisional {
			continue
		}
		if _, ok := queued[string(OpCreate)+":"+t.ID]; ok {
			continue
		}
		cleanQueue = append(cleanQueue, PendingMutation{Op: OpCreate, ID: t.ID, Record: t, QueuedAt: now})
		repaired++
	}

	return cleanList, cleanQueue, repaired
}

func cloneTransactions(list []core.Transaction) []core.Transaction {
	return append([]core.Transaction(nil), list...)
}
