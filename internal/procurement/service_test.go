package procurement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// ============================================================================
// FIXTURES
// ============================================================================

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	emails []ConfirmationEmail
	err    error
}

func (n *recordingNotifier) SendConfirmationEmail(_ context.Context, email ConfirmationEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, email)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) ConfirmationEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.emails)
	return n.emails[len(n.emails)-1]
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type harness struct {
	svc      *Service
	repo     *memRepo
	ledger   *inventorytest.Ledger
	clock    *testClock
	notifier *recordingNotifier
	audit    *recordingAudit
	ctx      context.Context
}

const supplierID = int64(7)

func newHarness(t *testing.T, entries ...inventory.LedgerEntry) *harness {
	t.Helper()
	ledger := inventorytest.NewLedger(entries...)
	repo := newMemRepo(ledger)
	repo.suppliers[supplierID] = catalog.Supplier{ID: supplierID, Name: "Borneo Timber", Email: "orders@borneo.example"}
	for _, p := range []catalog.Product{
		{ID: "PLAN", Name: "Teak chair", Status: catalog.ProductPlanning},
		{ID: "ACT", Name: "Oak table", Status: catalog.ProductActive},
		{ID: "GONE", Name: "Pine stool", Status: catalog.ProductDiscontinued},
	} {
		repo.products[p.ID] = p
	}
	clock := &testClock{now: t0}
	h := &harness{
		repo:     repo,
		ledger:   ledger,
		clock:    clock,
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
		ctx:      shared.ContextWithActor(context.Background(), "buyer@stockflow"),
	}
	h.svc = NewService(repo,
		inventory.NewManager(clock, nil, nil),
		confirmation.NewService(clock, 24*time.Hour),
		Options{Clock: clock, Notifier: h.notifier, Audit: h.audit},
	)
	return h
}

func stockEntry(productID string, current, min int) inventory.LedgerEntry {
	e := inventory.LedgerEntry{SKU: inventory.SKUFor(productID), ProductID: productID, CurrentStock: current, MinLevel: min}
	e.Status = inventory.DeriveStatus(e)
	return e
}

// place creates an order and returns it with the raw link token.
func (h *harness) place(t *testing.T, productID string, qty int) (PurchaseOrder, string) {
	t.Helper()
	po, err := h.svc.Create(h.ctx, CreateOrderInput{ProductID: productID, SupplierID: supplierID, Quantity: qty})
	require.NoError(t, err)
	return po, h.notifier.last(t).Token
}

func (h *harness) po(t *testing.T, id int64) PurchaseOrder {
	t.Helper()
	po, err := h.repo.GetPO(context.Background(), id)
	require.NoError(t, err)
	return po
}

func (h *harness) productStatus(id string) catalog.ProductStatus {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	return h.repo.products[id].Status
}

func tomorrow() time.Time {
	return t0.Add(24 * time.Hour)
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateStoresHashedTokenAndQueuesEmail(t *testing.T) {
	h := newHarness(t)

	po, raw := h.place(t, "ACT", 12)

	assert.Equal(t, StatusAwaitingApproval, po.Status)
	assert.Zero(t, po.Version)
	assert.Regexp(t, `^PO-7-[0-9A-F]{8}$`, po.PONumber)
	assert.Equal(t, "buyer@stockflow", po.OrderedBy)

	email := h.notifier.last(t)
	assert.Equal(t, po.PONumber, email.Order.PONumber)
	assert.Equal(t, "orders@borneo.example", email.Supplier.Email)
	assert.Equal(t, "Oak table", email.Product.Name)
	assert.Equal(t, t0.Add(24*time.Hour), email.ExpiresAt)

	require.Len(t, h.repo.tokens, 1)
	for _, tok := range h.repo.tokens {
		assert.Equal(t, confirmation.Hash(raw), tok.Hash)
		assert.NotEqual(t, raw, tok.Hash)
		assert.Equal(t, po.ID, tok.PurchaseOrderID)
		assert.Equal(t, confirmation.StatusPending, tok.Status)
	}
	assert.Equal(t, []string{"PURCHASE_ORDER_CREATE"}, h.audit.actions())
}

func TestCreateRejectsWithdrawnProduct(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Create(h.ctx, CreateOrderInput{ProductID: "GONE", SupplierID: supplierID, Quantity: 1})
	require.ErrorIs(t, err, ErrProductNotOrderable)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, h.repo.pos)
	assert.Empty(t, h.repo.tokens)
	assert.Empty(t, h.notifier.emails)
}

func TestCreateValidatesReferences(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Create(h.ctx, CreateOrderInput{ProductID: "ACT", SupplierID: 99, Quantity: 1})
	require.ErrorIs(t, err, catalog.ErrSupplierNotFound)

	_, err = h.svc.Create(h.ctx, CreateOrderInput{ProductID: "NOPE", SupplierID: supplierID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.svc.Create(h.ctx, CreateOrderInput{ProductID: "ACT", SupplierID: supplierID, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRetriesNumberCollisions(t *testing.T) {
	h := newHarness(t)
	first, _ := h.place(t, "ACT", 1)

	calls := 0
	h.svc.numberFunc = func(int64) string {
		calls++
		if calls < 3 {
			return first.PONumber
		}
		return "PO-7-0000FFFF"
	}
	po, _ := h.place(t, "ACT", 1)
	assert.Equal(t, "PO-7-0000FFFF", po.PONumber)
	assert.Equal(t, 3, calls)

	h.svc.numberFunc = func(int64) string { return first.PONumber }
	_, err := h.svc.Create(h.ctx, CreateOrderInput{ProductID: "ACT", SupplierID: supplierID, Quantity: 1})
	require.ErrorIs(t, err, ErrNumberExhausted)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestNotifierFailureKeepsOrder(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("redis unavailable")

	po, err := h.svc.Create(h.ctx, CreateOrderInput{ProductID: "ACT", SupplierID: supplierID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, h.po(t, po.ID).Status)
	assert.Len(t, h.repo.tokens, 1)
}

// ============================================================================
// SUPPLIER DECISIONS
// ============================================================================

func TestConfirmPlanningProductCreatesIncomingEntry(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "PLAN", 10)

	confirmed, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)

	assert.Equal(t, StatusDeliveryInProcess, confirmed.Status)
	assert.Equal(t, UpdatedBySupplierConfirm, confirmed.UpdatedBy)
	assert.Equal(t, int64(1), confirmed.Version)
	require.NotNil(t, confirmed.ExpectedArrivalDate)
	assert.Equal(t, shared.StartOfDay(tomorrow()), *confirmed.ExpectedArrivalDate)
	assert.Equal(t, confirmed, h.po(t, po.ID))

	assert.Equal(t, catalog.ProductOnOrder, h.productStatus("PLAN"))
	entry, ok := h.ledger.Entry("PLAN")
	require.True(t, ok)
	assert.Equal(t, inventory.StatusIncoming, entry.Status)
	assert.Zero(t, entry.CurrentStock)
	assert.Equal(t, "SKU-PLAN", entry.SKU)

	for _, tok := range h.repo.tokens {
		assert.Equal(t, confirmation.StatusConfirmed, tok.Status)
		require.NotNil(t, tok.ClickedAt)
		assert.Equal(t, t0, *tok.ClickedAt)
	}
	assert.Contains(t, h.audit.actions(), "PURCHASE_ORDER_CONFIRM")
}

func TestConfirmMarksExistingEntryIncoming(t *testing.T) {
	h := newHarness(t, stockEntry("ACT", 2, 5))
	_, raw := h.place(t, "ACT", 10)

	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, t0)
	require.NoError(t, err)

	entry, _ := h.ledger.Entry("ACT")
	assert.Equal(t, inventory.StatusIncoming, entry.Status)
	assert.Equal(t, 2, entry.CurrentStock)
	assert.Equal(t, catalog.ProductActive, h.productStatus("ACT"))
}

func TestConfirmRequiresArrivalFromToday(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "ACT", 1)

	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, t0.Add(-24*time.Hour))
	require.ErrorIs(t, err, ErrArrivalDate)
	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, time.Time{})
	require.ErrorIs(t, err, ErrArrivalDate)

	assert.Equal(t, StatusAwaitingApproval, h.po(t, po.ID).Status)
	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)
}

func TestLinkIsSingleUse(t *testing.T) {
	h := newHarness(t)
	_, raw := h.place(t, "ACT", 1)

	_, err := h.svc.CancelBySupplier(context.Background(), raw)
	require.NoError(t, err)

	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.ErrorIs(t, err, ErrLinkUnusable)
	_, err = h.svc.CancelBySupplier(context.Background(), raw)
	require.ErrorIs(t, err, ErrLinkUnusable)
	_, err = h.svc.InspectLink(context.Background(), raw)
	require.ErrorIs(t, err, ErrLinkUnusable)
}

func TestUnknownAndMalformedLinksLookTheSame(t *testing.T) {
	h := newHarness(t)
	h.place(t, "ACT", 1)

	for _, raw := range []string{"", "not-a-token", "6f1c2a9e-4d1b-4b6e-9f43-0b8f3f5e2a11"} {
		_, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
		require.ErrorIs(t, err, ErrLinkUnusable, raw)
		assert.Equal(t, "not found: Email link is expired or already processed.", errors.Unwrap(err).Error())
	}
}

func TestCancelBySupplierFailsOrder(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "PLAN", 4)

	failed, err := h.svc.CancelBySupplier(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, UpdatedBySupplierCancel, failed.UpdatedBy)
	assert.Equal(t, int64(1), h.po(t, po.ID).Version)
	assert.Equal(t, catalog.ProductPlanning, h.productStatus("PLAN"))
	_, ok := h.ledger.Entry("PLAN")
	assert.False(t, ok)
	for _, tok := range h.repo.tokens {
		assert.Equal(t, confirmation.StatusCancelled, tok.Status)
	}
}

func TestLinkOfDecidedOrderIsAlreadyDecided(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "ACT", 4)

	_, err := h.svc.Cancel(h.ctx, po.ID)
	require.NoError(t, err)

	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.ErrorIs(t, err, ErrAlreadyDecided)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	_, err = h.svc.InspectLink(context.Background(), raw)
	require.ErrorIs(t, err, ErrLinkUnusable)
}

func TestConcurrentConfirmsExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "PLAN", 10)

	const callers = 8
	errs := make([]error, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			_, errs[i] = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrLinkUnusable) || errors.Is(err, shared.ErrConcurrencyConflict), err)
	}
	assert.Equal(t, 1, wins)

	stored := h.po(t, po.ID)
	assert.Equal(t, StatusDeliveryInProcess, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	entry, _ := h.ledger.Entry("PLAN")
	assert.Equal(t, inventory.StatusIncoming, entry.Status)
}

func TestStaleVersionRollsBackConfirm(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "PLAN", 10)

	h.repo.beforeUpdate = func(p *PurchaseOrder) {
		h.repo.mu.Lock()
		defer h.repo.mu.Unlock()
		stored := h.repo.pos[p.ID]
		stored.Version++
		h.repo.pos[p.ID] = stored
	}
	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.ErrorIs(t, err, ErrVersionConflict)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), "This order has already been processed by someone else.")

	h.repo.beforeUpdate = nil
	assert.Equal(t, StatusAwaitingApproval, h.po(t, po.ID).Status)
	assert.Equal(t, catalog.ProductPlanning, h.productStatus("PLAN"))
	_, ok := h.ledger.Entry("PLAN")
	assert.False(t, ok)

	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err, "token survives the rolled back attempt")
}

func TestInspectLinkShowsOrder(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "ACT", 3)

	view, err := h.svc.InspectLink(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, po.PONumber, view.Order.PONumber)
	assert.Equal(t, "Borneo Timber", view.Supplier.Name)
	assert.Equal(t, "Oak table", view.Product.Name)
	assert.Equal(t, t0.Add(24*time.Hour), view.ExpiresAt)

	for _, tok := range h.repo.tokens {
		assert.Nil(t, tok.ClickedAt)
	}
}

// ============================================================================
// RECEIVE & CANCEL
// ============================================================================

func TestReceiveCapsAtOrderedQuantityAndPromotesProduct(t *testing.T) {
	h := newHarness(t)
	po, raw := h.place(t, "PLAN", 10)
	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)

	partial, err := h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyReceived, partial.Status)
	assert.Equal(t, 4, partial.ReceivedQuantity)
	require.NotNil(t, partial.ActualArrivalDate)
	assert.Equal(t, shared.StartOfDay(t0), *partial.ActualArrivalDate)
	assert.Equal(t, catalog.ProductOnOrder, h.productStatus("PLAN"))
	entry, _ := h.ledger.Entry("PLAN")
	assert.Equal(t, 4, entry.CurrentStock)
	assert.Equal(t, inventory.StatusIncoming, entry.Status, "six units still outstanding")

	_, err = h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 7})
	require.ErrorIs(t, err, ErrOverReceive)
	assert.Equal(t, 4, h.po(t, po.ID).ReceivedQuantity)

	done, err := h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 6})
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, done.Status)
	assert.Equal(t, int64(3), done.Version)
	assert.Equal(t, catalog.ProductActive, h.productStatus("PLAN"))
	entry, _ = h.ledger.Entry("PLAN")
	assert.Equal(t, 10, entry.CurrentStock)
	assert.Equal(t, inventory.StatusInStock, entry.Status)

	moves := h.ledger.Movements()
	require.Len(t, moves, 2)
	for _, mv := range moves {
		assert.Equal(t, inventory.DirectionIn, mv.Direction)
		assert.Equal(t, inventory.ReferencePurchaseOrder, mv.ReferenceType)
		assert.Equal(t, po.PONumber, mv.ReferenceID)
		assert.Equal(t, "buyer@stockflow", mv.CreatedBy)
	}
	assert.Equal(t, 4, moves[0].Quantity)
	assert.Equal(t, 6, moves[1].Quantity)

	_, err = h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReceiveGuards(t *testing.T) {
	h := newHarness(t, stockEntry("ACT", 0, 0))
	po, raw := h.place(t, "ACT", 5)

	_, err := h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidTransition, "awaiting approval")

	_, err = h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)

	_, err = h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	future := tomorrow()
	_, err = h.svc.Receive(h.ctx, po.ID, ReceiveInput{Quantity: 1, ActualArrivalDate: &future})
	require.ErrorIs(t, err, ErrArrivalDate)

	_, err = h.svc.Receive(h.ctx, 404, ReceiveInput{Quantity: 1})
	require.ErrorIs(t, err, ErrPONotFound)
}

func TestCancelConfirmedOrderRestoresProductAndLedger(t *testing.T) {
	h := newHarness(t, stockEntry("ACT", 8, 2))
	po, raw := h.place(t, "ACT", 5)
	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)
	h.repo.mu.Lock()
	p := h.repo.products["ACT"]
	p.Status = catalog.ProductOnOrder
	h.repo.products["ACT"] = p
	h.repo.mu.Unlock()

	cancelled, err := h.svc.Cancel(h.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "buyer@stockflow", cancelled.UpdatedBy)
	assert.Equal(t, catalog.ProductActive, h.productStatus("ACT"))
	entry, _ := h.ledger.Entry("ACT")
	assert.Equal(t, inventory.StatusInStock, entry.Status)

	_, err = h.svc.Cancel(h.ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelWithoutLedgerEntry(t *testing.T) {
	h := newHarness(t)
	po, _ := h.place(t, "PLAN", 5)

	cancelled, err := h.svc.Cancel(h.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestListFiltersAndClampsLimit(t *testing.T) {
	h := newHarness(t)
	first, _ := h.place(t, "ACT", 1)
	h.place(t, "ACT", 2)
	_, err := h.svc.Cancel(h.ctx, first.ID)
	require.NoError(t, err)

	all, total, err := h.svc.List(h.ctx, ListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	cancelled, total, err := h.svc.List(h.ctx, ListFilter{Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, cancelled[0].ID)
}

func (h *harness) setProductStatus(id string, status catalog.ProductStatus) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	p := h.repo.products[id]
	p.Status = status
	h.repo.products[id] = p
}

func (h *harness) confirmed(t *testing.T, productID string, qty int) PurchaseOrder {
	t.Helper()
	po, raw := h.place(t, productID, qty)
	_, err := h.svc.ConfirmBySupplier(context.Background(), raw, tomorrow())
	require.NoError(t, err)
	return po
}

func TestCancelKeepsIncomingWhileAnotherOrderIsInbound(t *testing.T) {
	h := newHarness(t, stockEntry("ACT", 8, 2))
	first := h.confirmed(t, "ACT", 5)
	second := h.confirmed(t, "ACT", 3)
	h.setProductStatus("ACT", catalog.ProductOnOrder)

	_, err := h.svc.Cancel(h.ctx, first.ID)
	require.NoError(t, err)
	entry, _ := h.ledger.Entry("ACT")
	assert.Equal(t, inventory.StatusIncoming, entry.Status)
	assert.Equal(t, catalog.ProductOnOrder, h.productStatus("ACT"))

	_, err = h.svc.Cancel(h.ctx, second.ID)
	require.NoError(t, err)
	entry, _ = h.ledger.Entry("ACT")
	assert.Equal(t, inventory.StatusInStock, entry.Status)
	assert.Equal(t, catalog.ProductActive, h.productStatus("ACT"))
}

func TestReceiveKeepsIncomingUntilLastOrderArrives(t *testing.T) {
	h := newHarness(t, stockEntry("ACT", 2, 1))
	first := h.confirmed(t, "ACT", 4)
	second := h.confirmed(t, "ACT", 3)
	h.setProductStatus("ACT", catalog.ProductOnOrder)

	_, err := h.svc.Receive(h.ctx, first.ID, ReceiveInput{Quantity: 2})
	require.NoError(t, err)
	entry, _ := h.ledger.Entry("ACT")
	assert.Equal(t, 4, entry.CurrentStock)
	assert.Equal(t, inventory.StatusIncoming, entry.Status)

	done, err := h.svc.Receive(h.ctx, first.ID, ReceiveInput{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, done.Status)
	entry, _ = h.ledger.Entry("ACT")
	assert.Equal(t, inventory.StatusIncoming, entry.Status, "second order still delivering")
	assert.Equal(t, catalog.ProductOnOrder, h.productStatus("ACT"))

	_, err = h.svc.Receive(h.ctx, second.ID, ReceiveInput{Quantity: 3})
	require.NoError(t, err)
	entry, _ = h.ledger.Entry("ACT")
	assert.Equal(t, 9, entry.CurrentStock)
	assert.Equal(t, inventory.StatusInStock, entry.Status)
	assert.Equal(t, catalog.ProductActive, h.productStatus("ACT"))
}
