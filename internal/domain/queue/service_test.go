package queue

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/domain/user"
)

// --- Mock implementations ---

type mockUserRepo struct {
	names map[string]bool
}

func (m *mockUserRepo) GetByName(_ context.Context, name string) (*user.User, error) {
	if !m.names[name] {
		return nil, user.ErrNotFound
	}
	return &user.User{Name: name}, nil
}

type mockCouponRepo struct {
	byName map[string]*coupon.Coupon
}

func (m *mockCouponRepo) GetByName(_ context.Context, name string) (*coupon.Coupon, error) {
	c, ok := m.byName[name]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *coupon.Coupon) error {
	m.byName[c.Name] = c
	return nil
}

func (m *mockCouponRepo) List(_ context.Context) ([]coupon.Coupon, error) {
	return nil, nil
}

// memQueueRepo is an in-memory queue.Repository. It also serves as the usage
// counter and order history, counting its own items the way the real store does.
type memQueueRepo struct {
	items  []Item
	nextID int64

	lockCalls int
	txDepth   int
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{nextID: 1}
}

func (m *memQueueRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txDepth++
	defer func() { m.txDepth-- }()
	return fn(ctx)
}

func (m *memQueueRepo) AcquireAdmissionLock(_ context.Context) error {
	m.lockCalls++
	return nil
}

func (m *memQueueRepo) Create(_ context.Context, item *Item) error {
	item.ID = m.nextID
	item.CreatedAt = time.Now()
	m.nextID++
	m.items = append(m.items, *item)
	return nil
}

func (m *memQueueRepo) CountWaiting(_ context.Context) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.CompletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memQueueRepo) CountWaitingAhead(_ context.Context, vip int, id int64) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.CompletedAt != nil {
			continue
		}
		if it.VIP > vip || (it.VIP == vip && it.ID < id) {
			n++
		}
	}
	return n, nil
}

func (m *memQueueRepo) ListWaiting(_ context.Context) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.CompletedAt == nil {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VIP != out[j].VIP {
			return out[i].VIP > out[j].VIP
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memQueueRepo) ShiftFront(ctx context.Context, count int64) (int64, error) {
	waiting, err := m.ListWaiting(ctx)
	if err != nil {
		return 0, err
	}
	if count > int64(len(waiting)) {
		count = int64(len(waiting))
	}
	remove := make(map[int64]bool, count)
	for _, it := range waiting[:count] {
		remove[it.ID] = true
	}
	kept := m.items[:0]
	for _, it := range m.items {
		if !remove[it.ID] {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return count, nil
}

func (m *memQueueRepo) CountCouponUses(_ context.Context, couponName string) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.CouponName != nil && *it.CouponName == couponName {
			n++
		}
	}
	return n, nil
}

func (m *memQueueRepo) CountCouponUsesByUser(_ context.Context, couponName, userName string) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.CouponName != nil && *it.CouponName == couponName && it.UserName == userName {
			n++
		}
	}
	return n, nil
}

func (m *memQueueRepo) CountCompletedOrders(_ context.Context, userName string) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.UserName == userName && it.CompletedAt != nil {
			n++
		}
	}
	return n, nil
}

// --- Helpers ---

type fixture struct {
	svc     *Service
	repo    *memQueueRepo
	coupons *mockCouponRepo
}

func newFixture(t *testing.T, maxLen int64, coupons ...*coupon.Coupon) *fixture {
	t.Helper()

	byName := make(map[string]*coupon.Coupon, len(coupons))
	for _, c := range coupons {
		byName[c.Name] = c
	}
	couponRepo := &mockCouponRepo{byName: byName}

	repo := newMemQueueRepo()
	registry := coupon.NewRegistry(repo, coupon.RulesConfig{MinFrequenterOrders: 10})
	engine := coupon.NewEngine(couponRepo, repo, registry)
	users := &mockUserRepo{names: map[string]bool{
		"john_smith":     true,
		"maria_de_silva": true,
	}}

	return &fixture{
		svc:     NewService(users, engine, repo, maxLen),
		repo:    repo,
		coupons: couponRepo,
	}
}

func testCoupon(t *testing.T, name, params string) *coupon.Coupon {
	t.Helper()
	p, err := coupon.ParseParams([]byte(params))
	require.NoError(t, err)
	return &coupon.Coupon{Name: name, Params: p}
}

func enqueue(t *testing.T, f *fixture, userName, couponName string, price int64) *EnqueueResult {
	t.Helper()
	result, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:   userName,
		CouponName: couponName,
		ListPrice:  price,
		OrderRef:   "order-1",
	})
	require.NoError(t, err)
	return result
}

// --- Tests ---

func TestEnqueue_NegativePrice(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:  "john_smith",
		ListPrice: -1,
	})
	require.ErrorIs(t, err, ErrNegativePrice)
}

func TestEnqueue_UnknownUser(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:  "nobody",
		ListPrice: 100,
	})
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestEnqueue_NoCoupon(t *testing.T) {
	f := newFixture(t, 30)

	result := enqueue(t, f, "john_smith", "", 20000)

	assert.True(t, decimal.NewFromInt(20000).Equal(result.Item.FinalPrice))
	assert.EqualValues(t, 0, result.Position)
	assert.EqualValues(t, 0, result.QueueLen)
	assert.Nil(t, result.Item.CouponName)
	assert.Equal(t, 1, f.repo.lockCalls)
}

func TestEnqueue_PercentCoupon(t *testing.T) {
	f := newFixture(t, 30, testCoupon(t, "P15", `{"pricing":{"percent":-15}}`))

	result := enqueue(t, f, "john_smith", "P15", 20000)

	assert.True(t, decimal.NewFromInt(17000).Equal(result.Item.FinalPrice))
	require.NotNil(t, result.Item.CouponName)
	assert.Equal(t, "P15", *result.Item.CouponName)
}

func TestEnqueue_AmountCoupon(t *testing.T) {
	f := newFixture(t, 30, testCoupon(t, "A2000", `{"pricing":{"amount":-2000}}`))

	result := enqueue(t, f, "john_smith", "A2000", 20000)
	assert.True(t, decimal.NewFromInt(18000).Equal(result.Item.FinalPrice))
}

func TestEnqueue_QueueFull(t *testing.T) {
	f := newFixture(t, 2)

	enqueue(t, f, "john_smith", "", 100)
	enqueue(t, f, "maria_de_silva", "", 100)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:  "john_smith",
		ListPrice: 100,
	})
	require.ErrorIs(t, err, ErrFull)

	n, err := f.svc.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestEnqueue_ReopenOverridesCapacity(t *testing.T) {
	f := newFixture(t, 1, testCoupon(t, "REOPEN", `{"queuing":{"reopen":true}}`))

	enqueue(t, f, "john_smith", "", 100)

	result := enqueue(t, f, "maria_de_silva", "REOPEN", 100)
	assert.EqualValues(t, 1, result.Position)
	assert.EqualValues(t, 1, result.QueueLen)

	n, err := f.svc.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestEnqueue_VIPOrdering(t *testing.T) {
	f := newFixture(t, 30, testCoupon(t, "VIP", `{"queuing":{"vip":1}}`))

	first := enqueue(t, f, "john_smith", "", 100)
	vip1 := enqueue(t, f, "maria_de_silva", "VIP", 100)
	vip2 := enqueue(t, f, "john_smith", "VIP", 100)
	last := enqueue(t, f, "maria_de_silva", "", 100)

	// VIPs rank ahead of non-VIPs; within a tier, arrival order holds.
	assert.EqualValues(t, 0, first.Position)
	assert.EqualValues(t, 0, vip1.Position)
	assert.EqualValues(t, 1, vip2.Position)
	assert.EqualValues(t, 3, last.Position)

	items, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, vip1.Item.ID, items[0].ID)
	assert.Equal(t, vip2.Item.ID, items[1].ID)
	assert.Equal(t, first.Item.ID, items[2].ID)
	assert.Equal(t, last.Item.ID, items[3].ID)
	for i, item := range items {
		assert.EqualValues(t, i, item.Position)
	}
}

func TestEnqueue_PerUserCap(t *testing.T) {
	one := 1
	c := testCoupon(t, "ONCE", `{"pricing":{"percent":-15}}`)
	c.MaxUsesPerUser = &one
	f := newFixture(t, 30, c)

	enqueue(t, f, "john_smith", "ONCE", 100)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:   "john_smith",
		CouponName: "ONCE",
		ListPrice:  100,
	})
	require.ErrorIs(t, err, coupon.ErrUserLimitReached)

	// Another user still gets through.
	enqueue(t, f, "maria_de_silva", "ONCE", 100)
}

func TestEnqueue_GlobalCap(t *testing.T) {
	two := 2
	c := testCoupon(t, "SCARCE", `{"pricing":{"percent":-15}}`)
	c.MaxUsesGlobal = &two
	f := newFixture(t, 30, c)

	enqueue(t, f, "john_smith", "SCARCE", 100)
	enqueue(t, f, "maria_de_silva", "SCARCE", 100)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:   "john_smith",
		CouponName: "SCARCE",
		ListPrice:  100,
	})
	require.ErrorIs(t, err, coupon.ErrGlobalLimitReached)
}

func TestEnqueue_FailedApplyAdmitsNothing(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:   "john_smith",
		CouponName: "MISSING",
		ListPrice:  100,
	})
	require.ErrorIs(t, err, coupon.ErrNotFound)

	n, err := f.svc.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestShift(t *testing.T) {
	f := newFixture(t, 30, testCoupon(t, "VIP", `{"queuing":{"vip":1}}`))

	nonVIP := enqueue(t, f, "john_smith", "", 100)
	enqueue(t, f, "maria_de_silva", "VIP", 100)
	enqueue(t, f, "john_smith", "VIP", 100)

	// Shifting removes from the front of the waiting order, VIPs first.
	result, err := f.svc.Shift(context.Background(), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Shifted)
	assert.EqualValues(t, 1, result.QueueLen)

	items, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, nonVIP.Item.ID, items[0].ID)
}

func TestShift_MoreThanWaiting(t *testing.T) {
	f := newFixture(t, 30)

	enqueue(t, f, "john_smith", "", 100)

	result, err := f.svc.Shift(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Shifted)
	assert.EqualValues(t, 0, result.QueueLen)
}

func TestShift_NegativeCountClampedToZero(t *testing.T) {
	f := newFixture(t, 30)

	enqueue(t, f, "john_smith", "", 100)

	result, err := f.svc.Shift(context.Background(), -5)
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.Shifted)
	assert.EqualValues(t, 1, result.QueueLen)
}

func TestFrequenterDiscount(t *testing.T) {
	f := newFixture(t, 30, testCoupon(t, "LOYAL", `{"pricing":{"frequenter_percent":-20}}`))

	// Not enough completed orders yet: full price.
	result := enqueue(t, f, "john_smith", "LOYAL", 20000)
	assert.True(t, decimal.NewFromInt(20000).Equal(result.Item.FinalPrice))

	// Mark ten orders completed for the user, then retry.
	now := time.Now()
	for i := range 10 {
		f.repo.items = append(f.repo.items, Item{
			ID:          1000 + int64(i),
			UserName:    "john_smith",
			OrderRef:    "old",
			FinalPrice:  decimal.NewFromInt(100),
			CompletedAt: &now,
		})
	}

	result = enqueue(t, f, "john_smith", "LOYAL", 20000)
	assert.True(t, decimal.NewFromInt(16000).Equal(result.Item.FinalPrice))
}

func TestCompletedItemsStillCountAsUses(t *testing.T) {
	one := 1
	c := testCoupon(t, "ONCE", `{"pricing":{"percent":-15}}`)
	c.MaxUsesPerUser = &one
	f := newFixture(t, 30, c)

	result := enqueue(t, f, "john_smith", "ONCE", 100)

	// Complete the item; the use is still spent.
	now := time.Now()
	for i := range f.repo.items {
		if f.repo.items[i].ID == result.Item.ID {
			f.repo.items[i].CompletedAt = &now
		}
	}

	_, err := f.svc.Enqueue(context.Background(), EnqueueRequest{
		UserName:   "john_smith",
		CouponName: "ONCE",
		ListPrice:  100,
	})
	require.ErrorIs(t, err, coupon.ErrUserLimitReached)
}
