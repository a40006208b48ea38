//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/adapter"
	"restaurant-payment-engine/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestConfig() *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{LockTTL: 15 * time.Second},
		Payment: config.PaymentConfig{
			DefaultMaxRetries: 3,
			RetryBaseDelay:    30 * time.Second,
			RetryMaxDelay:     15 * time.Minute,
			LinkTTL:           30 * time.Minute,
			FourEyes:          true,
		},
		Reconcile: config.ReconcileConfig{
			Interval:        time.Minute,
			Staleness:       10 * time.Minute,
			MaxSyncAttempts: 8,
			BackoffBase:     time.Minute,
			BatchSize:       200,
		},
		Currency: map[string]int{"INR": 2, "USD": 2},
	}
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentOrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	store  map[string]*model.PaymentOrder
	byGwID map[string]string

	SaveFunc            func(ctx context.Context, qx repository.Tx, o *model.PaymentOrder) error
	FindByIDFunc        func(ctx context.Context, qx repository.Tx, id string) (*model.PaymentOrder, error)
	UpdateStatusCASFunc func(ctx context.Context, qx repository.Tx, id string, from, to model.OrderStatus, expectedVersion int64) (bool, error)
}

var _ repository.PaymentOrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{store: map[string]*model.PaymentOrder{}, byGwID: map[string]string{}}
}

func (m *MockOrderRepo) Save(ctx context.Context, qx repository.Tx, o *model.PaymentOrder) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.ID] = &cp
	if o.GatewayOrderID != "" {
		m.byGwID[o.GatewayOrderID] = o.ID
	}
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.PaymentOrder, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) FindByGatewayOrderID(ctx context.Context, qx repository.Tx, gatewayOrderID string) (*model.PaymentOrder, error) {
	m.mu.Lock()
	id, ok := m.byGwID[gatewayOrderID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.FindByID(ctx, qx, id)
}

func (m *MockOrderRepo) UpdateStatusCAS(ctx context.Context, qx repository.Tx, id string, from, to model.OrderStatus, expectedVersion int64) (bool, error) {
	if m.UpdateStatusCASFunc != nil {
		return m.UpdateStatusCASFunc(ctx, qx, id, from, to, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status != from || o.Version != expectedVersion {
		return false, nil
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockOrderRepo) IncrementRetryCAS(ctx context.Context, qx repository.Tx, id string, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Version != expectedVersion || o.RetryCount >= o.MaxRetryAttempts {
		return false, nil
	}
	o.RetryCount++
	o.Version++
	return true, nil
}

func (m *MockOrderRepo) ListByStatus(ctx context.Context, qx repository.Tx, status model.OrderStatus, limit int) ([]*model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentOrder
	for _, o := range m.store {
		if o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) ListExpirable(ctx context.Context, qx repository.Tx, cutoff time.Time, limit int) ([]*model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentOrder
	for _, o := range m.store {
		open := o.Status == model.OrderStatusCreated || o.Status == model.OrderStatusLinkGenerated ||
			o.Status == model.OrderStatusPending
		if open && o.LinkExpiresAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) MarkClosed(ctx context.Context, qx repository.Tx, id string, at time.Time, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Version != expectedVersion {
		return false, nil
	}
	o.Status = model.OrderStatusClosed
	o.ClosedAt = &at
	o.Version++
	return true, nil
}

// Seed inserts directly, bypassing any Func hook.
func (m *MockOrderRepo) Seed(o *model.PaymentOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.ID] = &cp
	if o.GatewayOrderID != "" {
		m.byGwID[o.GatewayOrderID] = o.ID
	}
}

func (m *MockOrderRepo) Get(id string) *model.PaymentOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// ---- Mock TransactionRepository ----

type MockTxnRepo struct {
	mu    sync.Mutex
	store map[string]*model.PaymentTransaction

	SaveFunc            func(ctx context.Context, qx repository.Tx, t *model.PaymentTransaction) error
	ApplyTransitionFunc func(ctx context.Context, qx repository.Tx, t *model.PaymentTransaction) error
}

var _ repository.TransactionRepository = (*MockTxnRepo)(nil)

func NewMockTxnRepo() *MockTxnRepo {
	return &MockTxnRepo{store: map[string]*model.PaymentTransaction{}}
}

func (m *MockTxnRepo) Save(ctx context.Context, qx repository.Tx, t *model.PaymentTransaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *MockTxnRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTxnRepo) FindByGatewayPaymentID(ctx context.Context, qx repository.Tx, gatewayPaymentID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.store {
		if t.GatewayPaymentID == gatewayPaymentID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTxnRepo) FindLatestByGatewayOrderID(ctx context.Context, qx repository.Tx, gatewayOrderID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.PaymentTransaction
	for _, t := range m.store {
		if t.GatewayOrderID != gatewayOrderID {
			continue
		}
		if latest == nil || t.AttemptedAt.After(latest.AttemptedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockTxnRepo) ListByOrder(ctx context.Context, qx repository.Tx, orderID string) ([]*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, t := range m.store {
		if t.OrderID == orderID {
			cp := *t
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].AttemptedAt.Before(out[i].AttemptedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *MockTxnRepo) FindOpenByOrder(ctx context.Context, qx repository.Tx, orderID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.PaymentTransaction
	for _, t := range m.store {
		if t.OrderID != orderID || t.Status.Terminal() {
			continue
		}
		if latest == nil || t.AttemptedAt.After(latest.AttemptedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockTxnRepo) ApplyTransition(ctx context.Context, qx repository.Tx, t *model.PaymentTransaction) error {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(ctx, qx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *MockTxnRepo) Seed(t *model.PaymentTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
}

func (m *MockTxnRepo) Get(id string) *model.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// ---- Mock WebhookEventRepository ----

type MockEventRepo struct {
	mu     sync.Mutex
	store  map[string]*model.WebhookEvent
	byGwID map[string]string

	SaveErr error
}

var _ repository.WebhookEventRepository = (*MockEventRepo)(nil)

func NewMockEventRepo() *MockEventRepo {
	return &MockEventRepo{store: map[string]*model.WebhookEvent{}, byGwID: map[string]string{}}
}

func (m *MockEventRepo) Save(ctx context.Context, qx repository.Tx, e *model.WebhookEvent) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byGwID[e.GatewayEventID]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *e
	m.store[e.ID] = &cp
	m.byGwID[e.GatewayEventID] = e.ID
	return nil
}

func (m *MockEventRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEventRepo) FindByGatewayEventID(ctx context.Context, qx repository.Tx, gatewayEventID string) (*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byGwID[gatewayEventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.store[id]
	return &cp, nil
}

func (m *MockEventRepo) Update(ctx context.Context, qx repository.Tx, e *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *MockEventRepo) ListOrphans(ctx context.Context, qx repository.Tx, limit int) ([]*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookEvent
	for _, e := range m.store {
		if e.Status == model.WebhookStatusOrphan {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockEventRepo) ListSince(ctx context.Context, qx repository.Tx, sinceID string, limit int) ([]*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookEvent
	for _, e := range m.store {
		if e.ID > sinceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockEventRepo) Get(id string) *model.WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// ---- Mock RefundRepository ----

type MockRefundRepo struct {
	mu    sync.Mutex
	store map[string]*model.RefundRequest
}

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{store: map[string]*model.RefundRequest{}}
}

func (m *MockRefundRepo) Save(ctx context.Context, qx repository.Tx, r *model.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *MockRefundRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRefundRepo) ListByTransaction(ctx context.Context, qx repository.Tx, transactionID string) ([]*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RefundRequest
	for _, r := range m.store {
		if r.TransactionID == transactionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRefundRepo) ListOpenByOrder(ctx context.Context, qx repository.Tx, orderID string) ([]*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RefundRequest
	for _, r := range m.store {
		if r.OrderID == orderID && r.Status.InFlight() {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRefundRepo) SumActiveByTransaction(ctx context.Context, qx repository.Tx, transactionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, r := range m.store {
		if r.TransactionID != transactionID {
			continue
		}
		if r.Status.InFlight() || r.Status == model.RefundStatusCompleted {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (m *MockRefundRepo) Update(ctx context.Context, qx repository.Tx, r *model.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *MockRefundRepo) Get(id string) *model.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// ---- Mock SplitShareRepository ----

type MockSplitRepo struct {
	mu    sync.Mutex
	store map[string]*model.SplitShare
}

var _ repository.SplitShareRepository = (*MockSplitRepo)(nil)

func NewMockSplitRepo() *MockSplitRepo {
	return &MockSplitRepo{store: map[string]*model.SplitShare{}}
}

func (m *MockSplitRepo) SaveAll(ctx context.Context, qx repository.Tx, shares []*model.SplitShare) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range shares {
		cp := *s
		m.store[s.ID] = &cp
	}
	return nil
}

func (m *MockSplitRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.SplitShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSplitRepo) ListByTransaction(ctx context.Context, qx repository.Tx, transactionID string) ([]*model.SplitShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SplitShare
	for _, s := range m.store {
		if s.TransactionID == transactionID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSplitRepo) MarkSettled(ctx context.Context, qx repository.Tx, id, settlementRef string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.Settled {
		return domain.ErrNotFound
	}
	s.Settled = true
	s.SettledAt = &at
	s.SettlementRef = settlementRef
	return nil
}

func (m *MockSplitRepo) CountUnsettledByOrder(ctx context.Context, qx repository.Tx, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.store {
		if s.OrderID == orderID && !s.Settled {
			n++
		}
	}
	return n, nil
}

// ---- Mock MappingRepository ----

type MockMappingRepo struct {
	mu    sync.Mutex
	store map[string]*model.ExternalMapping
}

var _ repository.MappingRepository = (*MockMappingRepo)(nil)

func NewMockMappingRepo() *MockMappingRepo {
	return &MockMappingRepo{store: map[string]*model.ExternalMapping{}}
}

func (m *MockMappingRepo) Save(ctx context.Context, qx repository.Tx, em *model.ExternalMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *em
	m.store[em.OrderID] = &cp
	return nil
}

func (m *MockMappingRepo) FindByOrder(ctx context.Context, qx repository.Tx, orderID string) (*model.ExternalMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.store[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *em
	return &cp, nil
}

func (m *MockMappingRepo) ListDue(ctx context.Context, qx repository.Tx, staleBefore, now time.Time, limit int) ([]*model.ExternalMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ExternalMapping
	for _, em := range m.store {
		if em.NextSyncAt.After(now) {
			continue
		}
		due := em.SyncStatus == model.SyncStatusPending || em.SyncStatus == model.SyncStatusDivergent
		if em.SyncStatus == model.SyncStatusSynced && em.LastSyncedAt != nil && em.LastSyncedAt.Before(staleBefore) {
			due = true
		}
		if due {
			cp := *em
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockMappingRepo) MarkSynced(ctx context.Context, qx repository.Tx, orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.store[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	em.SyncStatus = model.SyncStatusSynced
	em.SyncAttempts = 0
	em.LastSyncedAt = &at
	em.NextSyncAt = at
	em.LastError = ""
	return nil
}

func (m *MockMappingRepo) RecordFailure(ctx context.Context, qx repository.Tx, orderID, lastError string, nextSyncAt time.Time, status model.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.store[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	em.SyncStatus = status
	em.SyncAttempts++
	em.NextSyncAt = nextSyncAt
	em.LastError = lastError
	return nil
}

func (m *MockMappingRepo) MarkDivergent(ctx context.Context, qx repository.Tx, orderID, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.store[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	em.SyncStatus = model.SyncStatusDivergent
	em.LastError = detail
	return nil
}

func (m *MockMappingRepo) Get(orderID string) *model.ExternalMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.store[orderID]
	if !ok {
		return nil
	}
	cp := *em
	return &cp
}

// ---- Mock AuditRepository ----

type MockAuditRepo struct {
	mu      sync.Mutex
	Entries []*model.AuditEntry
}

var _ repository.AuditRepository = (*MockAuditRepo)(nil)

func NewMockAuditRepo() *MockAuditRepo { return &MockAuditRepo{} }

func (m *MockAuditRepo) Append(ctx context.Context, qx repository.Tx, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.Entries = append(m.Entries, &cp)
	return nil
}

func (m *MockAuditRepo) ListByEntity(ctx context.Context, qx repository.Tx, entityType, entityID string) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range m.Entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAuditRepo) ListSince(ctx context.Context, qx repository.Tx, sinceID string, limit int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range m.Entries {
		if e.ID > sinceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAuditRepo) CountByAction(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// ---- Mock RetryAttemptRepository ----

type MockAttemptRepo struct {
	mu    sync.Mutex
	store []*model.RetryAttempt
}

var _ repository.RetryAttemptRepository = (*MockAttemptRepo)(nil)

func NewMockAttemptRepo() *MockAttemptRepo { return &MockAttemptRepo{} }

func (m *MockAttemptRepo) Save(ctx context.Context, qx repository.Tx, a *model.RetryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store = append(m.store, &cp)
	return nil
}

func (m *MockAttemptRepo) ListByOrder(ctx context.Context, qx repository.Tx, orderID string) ([]*model.RetryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RetryAttempt
	for _, a := range m.store {
		if a.OrderID == orderID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAttemptRepo) FindLatestByOrder(ctx context.Context, qx repository.Tx, orderID string) (*model.RetryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.RetryAttempt
	for _, a := range m.store {
		if a.OrderID != orderID {
			continue
		}
		if latest == nil || a.ScheduledFor.After(latest.ScheduledFor) {
			latest = a
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockAttemptRepo) Update(ctx context.Context, qx repository.Tx, a *model.RetryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.store {
		if old.ID == a.ID {
			cp := *a
			m.store[i] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockAttemptRepo) All() []*model.RetryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.RetryAttempt, len(m.store))
	for i, a := range m.store {
		cp := *a
		out[i] = &cp
	}
	return out
}

// =============================
// Adapters and infra
// =============================

// ---- Mock GatewayClient ----

type MockGateway struct {
	mu    sync.Mutex
	Calls struct {
		CreateOrder int
		Attempt     int
		Refund      int
		Fetch       int
	}

	CreateOrderFunc func(ctx context.Context, p adapter.CreateOrderParams) (adapter.CreateOrderResult, error)
	AttemptFunc     func(ctx context.Context, p adapter.AttemptParams) (adapter.AttemptResult, error)
	RefundFunc      func(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error)
	FetchFunc       func(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (adapter.FetchResult, error)
}

var _ adapter.GatewayClient = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateOrder(ctx context.Context, p adapter.CreateOrderParams) (adapter.CreateOrderResult, error) {
	m.mu.Lock()
	m.Calls.CreateOrder++
	n := m.Calls.CreateOrder
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, p)
	}
	return adapter.CreateOrderResult{
		GatewayOrderID: "gw_order_" + strconv.Itoa(n),
		PaymentLink:    "https://pay.test/gw_order_" + strconv.Itoa(n),
		LinkExpiresAt:  time.Now().Add(30 * time.Minute),
	}, nil
}

func (m *MockGateway) Attempt(ctx context.Context, p adapter.AttemptParams) (adapter.AttemptResult, error) {
	m.mu.Lock()
	m.Calls.Attempt++
	n := m.Calls.Attempt
	m.mu.Unlock()
	if m.AttemptFunc != nil {
		return m.AttemptFunc(ctx, p)
	}
	return adapter.AttemptResult{GatewayPaymentID: "gw_pay_" + strconv.Itoa(n), State: adapter.PaymentStateCreated}, nil
}

func (m *MockGateway) Refund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	m.mu.Lock()
	m.Calls.Refund++
	n := m.Calls.Refund
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, p)
	}
	return adapter.RefundResult{GatewayRefundID: "gw_refund_" + strconv.Itoa(n), Status: "PROCESSED"}, nil
}

func (m *MockGateway) Fetch(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (adapter.FetchResult, error) {
	m.mu.Lock()
	m.Calls.Fetch++
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, gatewayOrderID, gatewayPaymentID)
	}
	return adapter.FetchResult{}, domain.ErrNotFound
}

// ---- Mock OrderNotifier ----

type notification struct {
	OrderRef string
	Status   model.OrderStatus
	Reason   string
}

type MockNotifier struct {
	mu   sync.Mutex
	sent []notification

	NotifyStatusFunc func(ctx context.Context, orderRef string, status model.OrderStatus, reason string) error
}

var _ adapter.OrderNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyStatus(ctx context.Context, orderRef string, status model.OrderStatus, reason string) error {
	if m.NotifyStatusFunc != nil {
		return m.NotifyStatusFunc(ctx, orderRef, status, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification{OrderRef: orderRef, Status: status, Reason: reason})
	return nil
}

func (m *MockNotifier) Notifications() []notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// ---- Mock Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.held[key]; taken {
		return "", domain.ErrLockNotAcquired
	}
	token := "tok-" + key
	m.held[key] = token
	return token, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}
