package order

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/cart"
)

const (
	// DefaultStorageKey is the durable storage key of the local order list.
	DefaultStorageKey = "orderHistory"
	// DefaultAutoDeliverDelay is how long a local order stays in progress
	// before the delivery timer marks it delivered.
	DefaultAutoDeliverDelay = 60 * time.Second
	// DefaultRemoteTimeout bounds a single document store call.
	DefaultRemoteTimeout = 10 * time.Second
)

// ErrClosed is returned by operations on a closed HistoryStore.
var ErrClosed = errors.New("order history closed")

// Config tunes a HistoryStore.
type Config struct {
	DeliveryFee decimal.Decimal
	// AutoDeliverDelay of zero disables the delivery timer.
	AutoDeliverDelay time.Duration
	RemoteTimeout    time.Duration
	StorageKey       string
}

// Options carries optional collaborators shared by the order stores.
type Options struct {
	Logger         *zap.Logger
	Clock          clockwork.Clock
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	NewID          func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = noop.NewTracerProvider()
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// HistoryStore owns the order history of one customer session. It keeps the
// optimistic local list and the remote list side by side and reconciles them
// only when read.
type HistoryStore struct {
	cfg     Config
	session auth.Session
	remote  Repository
	storage LocalStorage
	lg      *zap.Logger
	clock   clockwork.Clock
	metrics *Metrics
	tracer  trace.Tracer
	newID   func() string

	refreshes singleflight.Group
	loading   atomic.Int32
	wg        sync.WaitGroup

	mu           sync.Mutex
	local        []LocalOrder // newest first
	remoteOrders []Order      // newest first
	remoteOwner  string
	fetchSeq     uint64
	appliedSeq   uint64
	timers       map[string]clockwork.Timer
	closed       bool
}

// NewHistoryStore creates a HistoryStore. Call Load to restore the local list
// from durable storage.
func NewHistoryStore(cfg Config, session auth.Session, remote Repository, storage LocalStorage, opts Options) *HistoryStore {
	opts = opts.withDefaults()
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	return &HistoryStore{
		cfg:     cfg,
		session: session,
		remote:  remote,
		storage: storage,
		lg:      opts.Logger.Named("history"),
		clock:   opts.Clock,
		metrics: opts.Metrics,
		tracer:  opts.TracerProvider.Tracer(instrumentationName),
		newID:   opts.NewID,
		timers:  make(map[string]clockwork.Timer),
	}
}

// Load restores the local list from durable storage and re-arms delivery
// timers for orders still in progress.
func (s *HistoryStore) Load(ctx context.Context) error {
	value, ok, err := s.storage.Get(ctx, s.cfg.StorageKey)
	if err != nil {
		return errors.Wrap(err, "read local orders")
	}
	if !ok {
		return nil
	}
	orders, err := DecodeLocal([]byte(value))
	if err != nil {
		return errors.Wrap(err, "load local orders")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = orders
	now := s.clock.Now()
	for _, o := range s.local {
		if o.Status != CustomerInProgress || s.cfg.AutoDeliverDelay <= 0 {
			continue
		}
		remaining := o.CreatedAt.Add(s.cfg.AutoDeliverDelay).Sub(now)
		s.scheduleLocked(o.ID, max(remaining, 0))
	}
	return nil
}

// CheckoutOption sets optional delivery details of a new order.
type CheckoutOption func(*LocalOrder)

// WithPhone sets the contact phone of the order.
func WithPhone(phone string) CheckoutOption {
	return func(o *LocalOrder) { o.Phone = strings.TrimSpace(phone) }
}

// WithNotes sets free-form delivery notes.
func WithNotes(notes string) CheckoutOption {
	return func(o *LocalOrder) { o.Notes = strings.TrimSpace(notes) }
}

// PlaceOrder commits the order locally and, for a signed-in customer, starts
// the remote write in the background. It returns as soon as the local commit
// is done; remote failures are logged and never reach the caller.
func (s *HistoryStore) PlaceOrder(ctx context.Context, snap cart.Snapshot, address string, opts ...CheckoutOption) (LocalOrder, error) {
	o, err := s.CommitLocal(ctx, snap, address, opts...)
	if err != nil {
		return LocalOrder{}, err
	}

	id, ok := s.session.Current()
	if !ok {
		return o, nil
	}
	remote := newRemoteOrder(o, id)
	s.background(ctx, func(ctx context.Context) {
		if err := s.SyncRemote(ctx, remote); err != nil {
			return
		}
		_ = s.Refresh(ctx)
	})
	return o, nil
}

// Checkout places an order from the cart contents and clears the cart on
// success. A rejected checkout leaves the cart untouched.
func (s *HistoryStore) Checkout(ctx context.Context, c *cart.Cart, address string, opts ...CheckoutOption) (LocalOrder, error) {
	var placed LocalOrder
	err := c.Checkout(func(snap cart.Snapshot) error {
		o, err := s.PlaceOrder(ctx, snap, address, opts...)
		placed = o
		return err
	})
	return placed, err
}

// CommitLocal validates the checkout and appends an in-progress order to the
// local list. It never talks to the document store.
func (s *HistoryStore) CommitLocal(ctx context.Context, snap cart.Snapshot, address string, opts ...CheckoutOption) (LocalOrder, error) {
	address = strings.TrimSpace(address)
	if err := validateCheckout(snap, address); err != nil {
		return LocalOrder{}, err
	}

	seller := snap.DominantSeller()
	o := LocalOrder{
		ID:            s.newID(),
		SellerID:      seller.ID,
		SellerName:    seller.Name,
		Lines:         slices.Clone(snap.Lines),
		ItemsSubtotal: snap.Subtotal(),
		DeliveryFee:   s.cfg.DeliveryFee,
		Address:       address,
		Status:        CustomerInProgress,
		CreatedAt:     s.clock.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if id, ok := s.session.Current(); ok {
		o.CustomerID = id.ID
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return LocalOrder{}, ErrClosed
	}
	s.local = slices.Insert(s.local, 0, o)
	s.persistLocked(ctx)
	s.scheduleLocked(o.ID, s.cfg.AutoDeliverDelay)
	s.mu.Unlock()

	s.metrics.orderPlaced(ctx)
	s.lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("seller_id", o.SellerID),
		zap.Stringer("total", o.Total()),
	)
	return cloneLocal(o), nil
}

// SyncRemote writes o to the document store. On failure it logs and returns
// a *RemoteUnavailableError; the local copy stays the visible record. It may
// be retried with the same order.
//
// A cancellation made on the local copy before the write is carried into
// the record; one made while the write was in flight is mirrored right after
// it.
func (s *HistoryStore) SyncRemote(ctx context.Context, o *Order) error {
	ctx, span := s.tracer.Start(ctx, "order.SyncRemote",
		trace.WithAttributes(attributeOrderID(o.ID)),
	)
	defer span.End()

	s.mu.Lock()
	if s.localCancelledLocked(o.ID) {
		o.Status = StatusCancelled
	}
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	if err := s.remote.Create(rctx, o); err != nil {
		return s.remoteFailed(ctx, span, "create order", err, zap.String("order_id", o.ID))
	}

	s.mu.Lock()
	ri := indexOrder(s.remoteOrders, o.ID)
	if s.remoteOwner == o.CustomerID && ri < 0 {
		s.remoteOrders = slices.Insert(s.remoteOrders, 0, cloneOrder(*o))
		ri = 0
	}
	created := o.Status
	followUp := created != StatusCancelled && s.localCancelledLocked(o.ID) && CanTransition(created, StatusCancelled)
	if followUp && ri >= 0 {
		s.remoteOrders[ri].Status = StatusCancelled
	}
	s.mu.Unlock()

	s.lg.Debug("Order synced", zap.String("order_id", o.ID))
	if followUp {
		s.mirrorStatus(ctx, o.ID, created, StatusCancelled)
	}
	return nil
}

type fetchResult struct {
	seq    uint64
	orders []Order
}

// Refresh replaces the remote list with a fresh fetch for the current
// customer. Concurrent calls share one in-flight fetch, and a result is only
// applied if it is newer than the last applied one and the customer is still
// signed in. On failure the previous state is kept and a
// *RemoteUnavailableError is returned for observability.
func (s *HistoryStore) Refresh(ctx context.Context) error {
	id, ok := s.session.Current()
	if !ok {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "order.Refresh")
	defer span.End()

	ch := s.refreshes.DoChan(id.ID, func() (any, error) {
		return s.fetch(ctx, id.ID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.Err != nil {
		return s.remoteFailed(ctx, span, "refresh", res.Err, zap.String("customer_id", id.ID))
	}

	for _, m := range s.apply(id.ID, res.Val.(fetchResult)) {
		s.background(ctx, func(ctx context.Context) {
			s.mirrorStatus(ctx, m.id, m.from, StatusCancelled)
		})
	}
	return nil
}

// pendingMirror is a customer cancellation the document store has not seen.
type pendingMirror struct {
	id   string
	from Status
}

func (s *HistoryStore) fetch(ctx context.Context, customerID string) (fetchResult, error) {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	s.loading.Add(1)
	defer s.loading.Add(-1)

	// The fetch is shared by every waiting caller, so it must not die with
	// the first caller's context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RemoteTimeout)
	defer cancel()

	orders, err := s.remote.ListByCustomer(ctx, customerID)
	if err != nil {
		return fetchResult{}, err
	}
	return fetchResult{seq: seq, orders: orders}, nil
}

func (s *HistoryStore) apply(customerID string, r fetchResult) []pendingMirror {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || r.seq <= s.appliedSeq {
		return nil
	}
	if cur, ok := s.session.Current(); !ok || cur.ID != customerID {
		return nil
	}

	orders := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, cloneOrder(o))
	}
	sortOrdersNewestFirst(orders)

	s.appliedSeq = r.seq
	s.remoteOrders = orders
	s.remoteOwner = customerID

	var retry []pendingMirror
	for i := range orders {
		o := &orders[i]
		// A chef-driven update supersedes the local delivery timer.
		if o.Status != StatusNew {
			s.cancelTimerLocked(o.ID)
		}
		if o.Status.Terminal() || !s.localCancelledLocked(o.ID) {
			continue
		}
		if CanTransition(o.Status, StatusCancelled) {
			retry = append(retry, pendingMirror{id: o.ID, from: o.Status})
			o.Status = StatusCancelled
			continue
		}
		// The chef moved past the point where a cancellation is possible.
		li := indexLocal(s.local, o.ID)
		s.local[li].Status = o.Status.Customer()
		s.persistLocked(context.Background())
		s.lg.Warn("Cancellation superseded by chef",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
		)
	}
	return retry
}

// Poll refreshes every interval until ctx is done.
func (s *HistoryStore) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = s.Refresh(ctx)
		}
	}
}

// Loading reports whether a remote fetch is in flight.
func (s *HistoryStore) Loading() bool {
	return s.loading.Load() > 0
}

// DisplayList returns the reconciled history: remote orders plus unsynced
// local ones for a signed-in customer, the local list otherwise.
func (s *HistoryStore) DisplayList() []Entry {
	id, authenticated := s.session.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	var remote []Order
	if authenticated && s.remoteOwner == id.ID {
		remote = s.remoteOrders
	}
	return reconcile(s.local, remote, id.ID, authenticated)
}

// Local returns a copy of the local order list.
func (s *HistoryStore) Local() []LocalOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LocalOrder, 0, len(s.local))
	for _, o := range s.local {
		out = append(out, cloneLocal(o))
	}
	return out
}

// Remote returns a copy of the last applied remote order list.
func (s *HistoryStore) Remote() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, len(s.remoteOrders))
	for _, o := range s.remoteOrders {
		out = append(out, cloneOrder(o))
	}
	return out
}

// UpdateStatus moves order id to target. When the remote copy is known it
// alone is checked against the state machine and the local copy is brought
// in line with it; otherwise the local copy is checked against the coarse
// customer rules. Nothing changes if the check fails. The remote change is
// mirrored to the document store in the background; a failed mirror reverts
// the remote copy and is retried on the next refresh.
func (s *HistoryStore) UpdateStatus(ctx context.Context, id string, target Status) error {
	s.mu.Lock()
	li := indexLocal(s.local, id)
	ri := indexOrder(s.remoteOrders, id)
	if li < 0 && ri < 0 {
		s.mu.Unlock()
		return ErrOrderNotFound
	}

	coarse := target.Customer()
	var (
		from Status
		err  error
	)
	if ri >= 0 {
		from = s.remoteOrders[ri].Status
		err = Transition(from, target)
	} else {
		err = TransitionCustomer(s.local[li].Status, coarse)
	}
	if err != nil {
		s.mu.Unlock()
		s.metrics.transitionRejected(ctx)
		return err
	}

	if ri >= 0 {
		s.remoteOrders[ri].Status = target
	}
	if li >= 0 {
		if s.local[li].Status != coarse {
			s.local[li].Status = coarse
			s.persistLocked(ctx)
		}
		if coarse.Terminal() {
			s.cancelTimerLocked(id)
		}
	}
	s.mu.Unlock()

	s.metrics.transition(ctx, string(target))
	if ri >= 0 {
		s.background(ctx, func(ctx context.Context) {
			s.mirrorStatus(ctx, id, from, target)
		})
	}
	return nil
}

func (s *HistoryStore) mirrorStatus(ctx context.Context, id string, from, to Status) {
	ctx, span := s.tracer.Start(ctx, "order.MirrorStatus",
		trace.WithAttributes(attributeOrderID(id)),
	)
	defer span.End()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	updatedAt, err := s.remote.UpdateStatus(rctx, id, from, to)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOrder(s.remoteOrders, id)
	if i < 0 || s.remoteOrders[i].Status != to {
		// A refresh replaced the copy; it is newer than this write.
		if err != nil {
			_ = s.remoteFailed(ctx, span, "update status", err, zap.String("order_id", id))
		}
		return
	}
	if err != nil {
		s.remoteOrders[i].Status = from
		_ = s.remoteFailed(ctx, span, "update status", err, zap.String("order_id", id))
		return
	}
	s.remoteOrders[i].UpdatedAt = updatedAt
}

// ClearHistory empties the local list and its durable storage. Remote orders
// are kept.
func (s *HistoryStore) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = nil
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), s.cfg.StorageKey); err != nil {
		return errors.Wrap(err, "delete local orders")
	}
	return nil
}

// Wait blocks until background remote writes have finished.
func (s *HistoryStore) Wait() {
	s.wg.Wait()
}

// Close stops delivery timers and waits for background remote writes.
func (s *HistoryStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// background runs fn detached from the caller's cancellation.
func (s *HistoryStore) background(ctx context.Context, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *HistoryStore) remoteFailed(ctx context.Context, span trace.Span, op string, err error, fields ...zap.Field) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.metrics.remoteFailure(ctx, op)
	s.lg.Warn("Remote order operation failed",
		append(fields, zap.String("op", op), zap.Error(err))...,
	)
	return &RemoteUnavailableError{Op: op, Err: err}
}

// persistLocked writes the local list to durable storage. Failures are logged;
// the in-memory list stays authoritative for this session.
func (s *HistoryStore) persistLocked(ctx context.Context) {
	data := EncodeLocal(s.local)
	if err := s.storage.Set(context.WithoutCancel(ctx), s.cfg.StorageKey, string(data)); err != nil {
		s.lg.Warn("Persist local orders failed", zap.Error(err))
	}
}

// localCancelledLocked reports whether the customer cancelled the local copy
// of id.
func (s *HistoryStore) localCancelledLocked(id string) bool {
	i := indexLocal(s.local, id)
	return i >= 0 && s.local[i].Status == CustomerCancelled
}

func validateCheckout(snap cart.Snapshot, address string) error {
	if snap.IsEmpty() {
		return &ValidationError{Field: "cart", Reason: "cart is empty"}
	}
	if address == "" {
		return &ValidationError{Field: "address", Reason: "delivery address is required"}
	}
	for _, l := range snap.Lines {
		if l.Quantity < 1 {
			return &ValidationError{Field: "cart", Reason: "quantity must be at least 1 for item " + l.ItemID}
		}
		if !l.UnitPrice.IsPositive() {
			return &ValidationError{Field: "cart", Reason: "price must be positive for item " + l.ItemID}
		}
	}
	return nil
}

// newRemoteOrder builds the document store record for a local order.
func newRemoteOrder(o LocalOrder, customer auth.Identity) *Order {
	return &Order{
		ID:            o.ID,
		Lines:         slices.Clone(o.Lines),
		ItemsSubtotal: o.ItemsSubtotal,
		DeliveryFee:   o.DeliveryFee,
		Address:       o.Address,
		Phone:         o.Phone,
		Notes:         o.Notes,
		Status:        StatusNew,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		SellerID:      o.SellerID,
		SellerName:    o.SellerName,
		CreatedAt:     o.CreatedAt,
	}
}

func indexLocal(orders []LocalOrder, id string) int {
	return slices.IndexFunc(orders, func(o LocalOrder) bool { return o.ID == id })
}

func indexOrder(orders []Order, id string) int {
	return slices.IndexFunc(orders, func(o Order) bool { return o.ID == id })
}

func cloneLocal(o LocalOrder) LocalOrder {
	o.Lines = slices.Clone(o.Lines)
	return o
}

func cloneOrder(o Order) Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}
