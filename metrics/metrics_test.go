package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"spinearn/events"
	"spinearn/models"
)

func TestObserveBalanceChange(t *testing.T) {
	spin := PointsAwarded.WithLabelValues(string(models.TransactionTypeSpinReward))
	beforeSpin := testutil.ToFloat64(spin)
	beforeWithdrawn := testutil.ToFloat64(PointsWithdrawn)

	observeBalanceChange(events.BalanceChangeEvent{TransactionType: models.TransactionTypeSpinReward, ChangeAmount: 7})
	observeBalanceChange(events.BalanceChangeEvent{TransactionType: models.TransactionTypeWithdrawal, ChangeAmount: -4600})
	observeBalanceChange(events.BalanceChangeEvent{TransactionType: models.TransactionTypeAdReward, ChangeAmount: 0})

	assert.Equal(t, beforeSpin+7, testutil.ToFloat64(spin))
	assert.Equal(t, beforeWithdrawn+4600, testutil.ToFloat64(PointsWithdrawn))
}

func TestObserveAction(t *testing.T) {
	counter := ActionsTotal.WithLabelValues("spin", "ok")
	before := testutil.ToFloat64(counter)

	ObserveAction("spin", "ok")
	ObserveAction("spin", "ok")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
