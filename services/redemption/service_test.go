package redemption

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"giftvoucher/services/code"
	"giftvoucher/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func seedCode(t *testing.T, db *gorm.DB, codeID, codeKey string, amount float64) {
	t.Helper()
	require.NoError(t, db.Create(&code.Code{
		CodeID:         codeID,
		CodeKey:        codeKey,
		OriginalAmount: amount,
		CurrentAmount:  amount,
	}).Error)
}

func currentAmount(t *testing.T, db *gorm.DB, codeID string) float64 {
	t.Helper()
	var c code.Code
	require.NoError(t, db.Where("code_id = ?", codeID).First(&c).Error)
	return c.CurrentAmount
}

func TestApplyRedemptionLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)
	seedCode(t, db, "c-1", "LIFECYCLE1", 50)

	ctx := context.Background()

	entry, err := svc.ApplyRedemption(ctx, "LIFECYCLE1", "order-1", -20)
	require.NoError(t, err)
	require.Equal(t, -20.0, entry.Amount)
	require.Equal(t, 30.0, currentAmount(t, db, "c-1"))

	_, err = svc.ApplyRedemption(ctx, "LIFECYCLE1", "order-2", -30)
	require.NoError(t, err)
	require.Equal(t, 0.0, currentAmount(t, db, "c-1"))

	// drained: any further consumption breaches the lower bound
	_, err = svc.ApplyRedemption(ctx, "LIFECYCLE1", "order-3", -1)
	require.ErrorIs(t, err, ErrBalanceConflict)
	require.Equal(t, 0.0, currentAmount(t, db, "c-1"))
}

func TestApplyRedemptionUnknownCode(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)

	_, err := svc.ApplyRedemption(context.Background(), "NOSUCHKEY1", "order-1", -10)
	require.ErrorIs(t, err, ErrUnresolvedCode)

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestApplyRedemptionRefundBoundedByOriginal(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)
	seedCode(t, db, "c-1", "REFUNDKEY1", 50)

	ctx := context.Background()

	_, err := svc.ApplyRedemption(ctx, "REFUNDKEY1", "order-1", -30)
	require.NoError(t, err)

	// refund back up to the original amount is fine
	_, err = svc.ApplyRedemption(ctx, "REFUNDKEY1", "order-1", 30)
	require.NoError(t, err)
	require.Equal(t, 50.0, currentAmount(t, db, "c-1"))

	// but never above it
	_, err = svc.ApplyRedemption(ctx, "REFUNDKEY1", "order-1", 1)
	require.ErrorIs(t, err, ErrBalanceConflict)
}

func TestApplyRedemptionFailureWritesNothing(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)
	seedCode(t, db, "c-1", "ATOMICKEY1", 10)

	_, err := svc.ApplyRedemption(context.Background(), "ATOMICKEY1", "order-1", -25)
	require.ErrorIs(t, err, ErrBalanceConflict)

	require.Equal(t, 10.0, currentAmount(t, db, "c-1"))

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLedgerReconciles(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)
	seedCode(t, db, "c-1", "RECONCILE1", 100)

	ctx := context.Background()
	for _, amount := range []float64{-40, -10, 25, -60} {
		_, err := svc.ApplyRedemption(ctx, "RECONCILE1", "order-1", amount)
		require.NoError(t, err)
	}

	entries, err := svc.ListByCodeKey(ctx, "RECONCILE1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	var sum float64
	for _, e := range entries {
		sum += e.Amount
	}
	require.Equal(t, 100.0+sum, currentAmount(t, db, "c-1"))
}

func TestConcurrentRedemptionsSerialize(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)
	seedCode(t, db, "c-1", "RACEKEY123", 15)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyRedemption(context.Background(), "RACEKEY123", "order-1", -10)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrBalanceConflict)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 5.0, currentAmount(t, db, "c-1"))

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestListByCodeKeyUnknownCode(t *testing.T) {
	db := testutil.NewTestDB(t, &code.Code{}, &Redemption{})
	svc := newTestService(t, db)

	_, err := svc.ListByCodeKey(context.Background(), "NOSUCHKEY1")
	require.ErrorIs(t, err, ErrUnresolvedCode)
}
