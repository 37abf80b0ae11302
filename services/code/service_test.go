package code

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"giftvoucher/pkg/config"
	"giftvoucher/pkg/db/option"
	"giftvoucher/pkg/repository"
	"giftvoucher/services/testutil"
	"giftvoucher/services/voucher"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn func(tx *gorm.DB) repository.Repository[T]
	findFn    func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn  func(ctx context.Context, resource *T) error
	updateFn  func(ctx context.Context, resourceID string, resource any) error
	countFn   func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Voucher: config.Voucher{
			CodeKeyAlphabet:     "ABCDEFGHJKLMNPQRSTUVWXYZ123456789",
			CodeKeyLength:       10,
			DefaultExpiryMonths: 12,
		},
	}
}

func newTestService(t *testing.T, db *gorm.DB, hooks *Hooks) *Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:     db,
		Node:   node,
		Config: testConfig(),
		Hooks:  hooks,
	})
	require.NoError(t, err)
	return svc
}

func seedVoucher(t *testing.T, db *gorm.DB, v voucher.Voucher) voucher.Voucher {
	t.Helper()
	if v.VoucherID == "" {
		v.VoucherID = "v-1"
	}
	if v.Name == "" {
		v.Name = "Gift Card"
	}
	if v.Handle == "" {
		v.Handle = v.VoucherID
	}
	v.Enabled = true
	require.NoError(t, db.Create(&v).Error)
	return v
}

func TestMatchCodeNotFound(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	matched, err := svc.MatchCode(context.Background(), "NOSUCHKEY1")
	require.Nil(t, matched)

	var me *MatchError
	require.True(t, errors.As(err, &me))
	require.Equal(t, ReasonNotFound, me.Reason)
	require.Equal(t, "Voucher code is not valid", me.Message)
}

func TestMatchCodeSuccess(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "GOODKEY123",
		OriginalAmount: 50,
		CurrentAmount:  50,
	}).Error)

	matched, err := svc.MatchCode(context.Background(), "GOODKEY123")
	require.NoError(t, err)
	require.Equal(t, "c-1", matched.CodeID)

	// matching does not mutate state
	again, err := svc.MatchCode(context.Background(), "GOODKEY123")
	require.NoError(t, err)
	require.Equal(t, matched.CurrentAmount, again.CurrentAmount)
}

func TestMatchCodeExhaustedWinsOverExpired(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "DRAINED123",
		OriginalAmount: 50,
		CurrentAmount:  0,
		ExpiryDate:     &yesterday,
	}).Error)

	_, err := svc.MatchCode(context.Background(), "DRAINED123")
	var me *MatchError
	require.True(t, errors.As(err, &me))
	require.Equal(t, ReasonExhausted, me.Reason)
	require.Equal(t, "Voucher code has no amount left", me.Message)
}

func TestMatchCodeExpiredYesterday(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "OLDKEY1234",
		OriginalAmount: 50,
		CurrentAmount:  50,
		ExpiryDate:     &yesterday,
	}).Error)

	_, err := svc.MatchCode(context.Background(), "OLDKEY1234")
	var me *MatchError
	require.True(t, errors.As(err, &me))
	require.Equal(t, ReasonExpired, me.Reason)
	require.Equal(t, "Voucher code is out of date", me.Message)
}

func TestMatchCodeExpiringTodayStillValid(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	today := time.Now()
	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "TODAYKEY12",
		OriginalAmount: 50,
		CurrentAmount:  50,
		ExpiryDate:     &today,
	}).Error)

	matched, err := svc.MatchCode(context.Background(), "TODAYKEY12")
	require.NoError(t, err)
	require.Equal(t, "c-1", matched.CodeID)
}

func TestMatchCodeHookRejects(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, &Hooks{
		BeforeMatchCode: func(ctx context.Context, codeKey string) error {
			return errors.New("Voucher codes are disabled for this store")
		},
	})

	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "GOODKEY123",
		OriginalAmount: 50,
		CurrentAmount:  50,
	}).Error)

	_, err := svc.MatchCode(context.Background(), "GOODKEY123")
	var me *MatchError
	require.True(t, errors.As(err, &me))
	require.Equal(t, ReasonRejected, me.Reason)
	require.Equal(t, "Voucher codes are disabled for this store", me.Message)
}

func TestGenerateUniqueCodeKeyAvoidsCollisions(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := svc.GenerateUniqueCodeKey(context.Background())
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true

		require.NoError(t, db.Create(&Code{
			CodeID:         key,
			CodeKey:        key,
			OriginalAmount: 1,
			CurrentAmount:  1,
		}).Error)
	}
}

func TestGenerateUniqueCodeKeyHonoursOverride(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, &Hooks{
		GenerateCodeKey: func(ctx context.Context) (string, bool) {
			return "CUSTOMKEY1", true
		},
	})

	key, err := svc.GenerateUniqueCodeKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CUSTOMKEY1", key)
}

func TestGenerateUniqueCodeKeyOverrideNeverUnique(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, &Hooks{
		GenerateCodeKey: func(ctx context.Context) (string, bool) {
			return "TAKENKEY12", true
		},
	})

	require.NoError(t, db.Create(&Code{
		CodeID:         "c-1",
		CodeKey:        "TAKENKEY12",
		OriginalAmount: 1,
		CurrentAmount:  1,
	}).Error)

	_, err := svc.GenerateUniqueCodeKey(context.Background())
	require.Error(t, err)
}

func TestCreateFromLineItemDefaults(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)
	v := seedVoucher(t, db, voucher.Voucher{})

	created, err := svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID:  v.VoucherID,
		OrderID:    "order-1",
		LineItemID: "li-1",
		Amount:     25,
		Options:    map[string]interface{}{"to": "Alex", "message": "happy birthday"},
	})
	require.NoError(t, err)
	require.Equal(t, 25.0, created.OriginalAmount)
	require.Equal(t, 25.0, created.CurrentAmount)
	require.Len(t, created.CodeKey, 10)
	require.NotEmpty(t, created.CustomFields)

	// default expiry: 12 months out, date precision
	require.NotNil(t, created.ExpiryDate)
	want := time.Now().AddDate(0, 12, 0).Format("20060102")
	require.Equal(t, want, created.ExpiryDate.Format("20060102"))
}

func TestCreateFromLineItemVoucherExpiryOverride(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	three := 3
	v := seedVoucher(t, db, voucher.Voucher{VoucherID: "v-short", ExpiryMonths: &three})

	created, err := svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID: v.VoucherID,
		Amount:    10,
	})
	require.NoError(t, err)
	require.NotNil(t, created.ExpiryDate)
	want := time.Now().AddDate(0, 3, 0).Format("20060102")
	require.Equal(t, want, created.ExpiryDate.Format("20060102"))
}

func TestCreateFromLineItemNeverExpires(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	zero := 0
	v := seedVoucher(t, db, voucher.Voucher{VoucherID: "v-forever", ExpiryMonths: &zero})

	created, err := svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID: v.VoucherID,
		Amount:    10,
	})
	require.NoError(t, err)
	require.Nil(t, created.ExpiryDate)
}

func TestCreateFromLineItemRejectsBadInput(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	_, err := svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID: "v-1",
		Amount:    0,
	})
	require.Error(t, err)

	_, err = svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID: "missing",
		Amount:    10,
	})
	require.Error(t, err)
}

func TestCreateFromLineItemPopulateHook(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, &Hooks{
		PopulateCode: func(ctx context.Context, c *Code) error {
			c.OrderID = "hooked-order"
			return nil
		},
	})
	v := seedVoucher(t, db, voucher.Voucher{})

	created, err := svc.CreateFromLineItem(context.Background(), nil, IssueCodeInput{
		VoucherID: v.VoucherID,
		Amount:    10,
	})
	require.NoError(t, err)
	require.Equal(t, "hooked-order", created.OrderID)
}

func TestMatchCodeRepositoryError(t *testing.T) {
	svc := &Service{
		code: &repoMock[Code]{
			findOneFn: func(ctx context.Context, _ *Code, opts ...option.QueryOption) (*Code, error) {
				return nil, errors.New("connection reset")
			},
		},
	}

	_, err := svc.MatchCode(context.Background(), "ANYKEY1234")
	require.Error(t, err)

	var me *MatchError
	require.False(t, errors.As(err, &me), "infrastructure errors must not surface as match failures")
}

func TestGenerateUniqueCodeKeyCountError(t *testing.T) {
	gen, err := NewKeyGenerator("ABC123", 8)
	require.NoError(t, err)

	svc := &Service{
		keygen: gen,
		code: &repoMock[Code]{
			countFn: func(ctx context.Context, _ *Code) (int64, error) {
				return 0, errors.New("connection reset")
			},
		},
	}

	_, err = svc.GenerateUniqueCodeKey(context.Background())
	require.Error(t, err)
}

func TestValidateLineItem(t *testing.T) {
	db := testutil.NewTestDB(t, &Code{}, &voucher.Voucher{})
	svc := newTestService(t, db, nil)

	enabled := seedVoucher(t, db, voucher.Voucher{VoucherID: "v-on", Enabled: true})

	disabled := voucher.Voucher{VoucherID: "v-off", Name: "Off", Handle: "off", Enabled: false}
	require.NoError(t, db.Create(&disabled).Error)

	require.NoError(t, svc.ValidateLineItem(context.Background(), enabled.VoucherID, 1, map[string]interface{}{"to": "Sam"}))
	require.Error(t, svc.ValidateLineItem(context.Background(), enabled.VoucherID, 0, nil))
	require.Error(t, svc.ValidateLineItem(context.Background(), "missing", 1, nil))
	require.Error(t, svc.ValidateLineItem(context.Background(), disabled.VoucherID, 1, nil))
}
