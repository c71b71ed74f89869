package procurement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
)

// memRepo keeps orders, tokens and catalog rows in memory and locks rows the
// way SELECT ... FOR UPDATE does: until the transaction ends.
type memRepo struct {
	ledger *inventorytest.Ledger

	mu          sync.Mutex
	products    map[string]catalog.Product
	suppliers   map[int64]catalog.Supplier
	pos         map[int64]PurchaseOrder
	tokens      map[int64]confirmation.Token
	poLocks     map[int64]*sync.Mutex
	tokenLocks  map[int64]*sync.Mutex
	nextPOID    int64
	nextTokenID int64

	// beforeUpdate runs inside UpdatePO before the version check.
	beforeUpdate func(po *PurchaseOrder)
	// staleExpired, when set, replaces the first page of the expired token scan.
	staleExpired []int64
	// expiredPages counts ListExpiredTokens calls.
	expiredPages int
}

func newMemRepo(ledger *inventorytest.Ledger) *memRepo {
	return &memRepo{
		ledger:     ledger,
		products:   map[string]catalog.Product{},
		suppliers:  map[int64]catalog.Supplier{},
		pos:        map[int64]PurchaseOrder{},
		tokens:     map[int64]confirmation.Token{},
		poLocks:    map[int64]*sync.Mutex{},
		tokenLocks: map[int64]*sync.Mutex{},
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memTx{
		Txn:      m.ledger.Begin(),
		repo:     m,
		pos:      map[int64]PurchaseOrder{},
		tokens:   map[int64]confirmation.Token{},
		deleted:  map[int64]bool{},
		products: map[string]catalog.ProductStatus{},
		locked:   map[string]bool{},
	}
	if err := fn(ctx, tx); err != nil {
		tx.Txn.Rollback()
		tx.unlock()
		return err
	}
	m.mu.Lock()
	for id, po := range tx.pos {
		m.pos[id] = po
	}
	for id, tok := range tx.tokens {
		m.tokens[id] = tok
	}
	for id := range tx.deleted {
		delete(m.tokens, id)
	}
	for id, status := range tx.products {
		p := m.products[id]
		p.Status = status
		m.products[id] = p
	}
	m.mu.Unlock()
	tx.Txn.Commit()
	tx.unlock()
	return nil
}

func (m *memRepo) GetPO(_ context.Context, id int64) (PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, nil
}

func (m *memRepo) ListPOs(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range m.pos {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.SupplierID > 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := min(total, filter.Offset+filter.Limit)
	return out[filter.Offset:end], total, nil
}

func (m *memRepo) ListExpiredTokens(_ context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredPages++
	if m.staleExpired != nil {
		if afterID > 0 {
			return nil, nil
		}
		return append([]int64(nil), m.staleExpired...), nil
	}
	var ids []int64
	for id, tok := range m.tokens {
		if id > afterID && tok.ClickedAt == nil && tok.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memRepo) token(id int64) (confirmation.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	return tok, ok
}

func (m *memRepo) tokenByHash(hash string) (confirmation.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.Hash == hash {
			return tok, true
		}
	}
	return confirmation.Token{}, false
}

func (m *memRepo) rowLock(locks map[int64]*sync.Mutex, id int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := locks[id]
	if !ok {
		l = &sync.Mutex{}
		locks[id] = l
	}
	return l
}

type memTx struct {
	*inventorytest.Txn
	repo     *memRepo
	pos      map[int64]PurchaseOrder
	tokens   map[int64]confirmation.Token
	deleted  map[int64]bool
	products map[string]catalog.ProductStatus
	locked   map[string]bool
	held     []*sync.Mutex
}

func (t *memTx) unlock() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}

func (t *memTx) lock(kind string, locks map[int64]*sync.Mutex, id int64) {
	key := fmt.Sprintf("%s:%d", kind, id)
	if t.locked[key] {
		return
	}
	l := t.repo.rowLock(locks, id)
	l.Lock()
	t.held = append(t.held, l)
	t.locked[key] = true
}

// catalog

func (t *memTx) FindProduct(_ context.Context, id string) (catalog.Product, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	p, ok := t.repo.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if status, ok := t.products[id]; ok {
		p.Status = status
	}
	return p, nil
}

func (t *memTx) UpdateProductStatus(ctx context.Context, id string, status catalog.ProductStatus) error {
	if _, err := t.FindProduct(ctx, id); err != nil {
		return err
	}
	t.products[id] = status
	return nil
}

func (t *memTx) FindSupplier(_ context.Context, id int64) (catalog.Supplier, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	s, ok := t.repo.suppliers[id]
	if !ok {
		return catalog.Supplier{}, catalog.ErrSupplierNotFound
	}
	return s, nil
}

// tokens

func (t *memTx) InsertToken(_ context.Context, tok confirmation.Token) (int64, error) {
	t.repo.mu.Lock()
	t.repo.nextTokenID++
	tok.ID = t.repo.nextTokenID
	t.repo.mu.Unlock()
	t.tokens[tok.ID] = tok
	return tok.ID, nil
}

func (t *memTx) readToken(id int64) (confirmation.Token, error) {
	if t.deleted[id] {
		return confirmation.Token{}, confirmation.ErrTokenNotFound
	}
	if tok, ok := t.tokens[id]; ok {
		return tok, nil
	}
	tok, ok := t.repo.token(id)
	if !ok {
		return confirmation.Token{}, confirmation.ErrTokenNotFound
	}
	return tok, nil
}

func (t *memTx) GetTokenForUpdate(_ context.Context, hash string) (confirmation.Token, error) {
	for _, tok := range t.tokens {
		if tok.Hash == hash {
			return tok, nil
		}
	}
	tok, ok := t.repo.tokenByHash(hash)
	if !ok {
		return confirmation.Token{}, confirmation.ErrTokenNotFound
	}
	t.lock("token", t.repo.tokenLocks, tok.ID)
	return t.readToken(tok.ID)
}

func (t *memTx) GetTokenByIDForUpdate(_ context.Context, id int64) (confirmation.Token, error) {
	t.lock("token", t.repo.tokenLocks, id)
	return t.readToken(id)
}

func (t *memTx) MarkConsumed(_ context.Context, id int64, clickedAt time.Time, status confirmation.Status) error {
	tok, err := t.readToken(id)
	if err != nil {
		return err
	}
	if tok.ClickedAt != nil {
		return confirmation.ErrTokenConsumed
	}
	tok.ClickedAt = &clickedAt
	tok.Status = status
	t.tokens[id] = tok
	return nil
}

func (t *memTx) DeleteToken(_ context.Context, id int64) error {
	delete(t.tokens, id)
	t.deleted[id] = true
	return nil
}

// purchase orders

func (t *memTx) ExistsPONumber(_ context.Context, number string) (bool, error) {
	for _, po := range t.pos {
		if po.PONumber == number {
			return true, nil
		}
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, po := range t.repo.pos {
		if po.PONumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPO(_ context.Context, po *PurchaseOrder) error {
	t.repo.mu.Lock()
	t.repo.nextPOID++
	po.ID = t.repo.nextPOID
	t.repo.mu.Unlock()
	t.pos[po.ID] = *po
	return nil
}

func (t *memTx) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	if po, ok := t.pos[id]; ok {
		return po, nil
	}
	return t.repo.GetPO(ctx, id)
}

func (t *memTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	t.lock("po", t.repo.poLocks, id)
	return t.GetPO(ctx, id)
}

func (t *memTx) HasInboundPO(_ context.Context, productID string, excludeID int64) (bool, error) {
	inbound := func(po PurchaseOrder) bool {
		return po.ID != excludeID && po.ProductID == productID &&
			(po.Status == StatusDeliveryInProcess || po.Status == StatusPartiallyReceived)
	}
	for _, po := range t.pos {
		if inbound(po) {
			return true, nil
		}
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, po := range t.repo.pos {
		if _, staged := t.pos[id]; staged {
			continue
		}
		if inbound(po) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpdatePO(ctx context.Context, po *PurchaseOrder) error {
	if hook := t.repo.beforeUpdate; hook != nil {
		hook(po)
	}
	stored, err := t.GetPO(ctx, po.ID)
	if err != nil {
		return err
	}
	if stored.Version != po.Version {
		return ErrVersionConflict
	}
	po.Version++
	t.pos[po.ID] = *po
	return nil
}
