package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dynaclean/dynaflow/internal/shared"
)

var machineNow = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

func draftOrder() Order {
	return Order{ID: 1, QuoteNumber: "Q-1", BookingBy: "meera", ApprovalStatus: ApprovalPending}
}

func mustApply(t *testing.T, o Order, trig Trigger, f Facts) Order {
	t.Helper()
	if f.Now.IsZero() {
		f.Now = machineNow
	}
	next, result, err := Apply(o, trig, f)
	require.NoError(t, err)
	require.Equal(t, ResultSucceeded, result)
	return next
}

func dispatchedOrder(t *testing.T) Order {
	o := mustApply(t, draftOrder(), TriggerApprove, Facts{})
	o = mustApply(t, o, TriggerConfirmAccount, Facts{})
	o = mustApply(t, o, TriggerConfirmAdmin, Facts{})
	return mustApply(t, o, TriggerDispatch, Facts{AllReserved: true})
}

func TestStageProgression(t *testing.T) {
	o := draftOrder()
	require.Equal(t, StageDraft, o.Stage())

	o = mustApply(t, o, TriggerApprove, Facts{Remark: "ok"})
	require.Equal(t, StageSalesDone, o.Stage())
	require.Equal(t, "ok", o.ApprovalRemark)
	o = mustApply(t, o, TriggerConfirmAccount, Facts{})
	require.Equal(t, StageAccountDone, o.Stage())
	o = mustApply(t, o, TriggerConfirmAdmin, Facts{})
	require.Equal(t, StageAdminApproved, o.Stage())
	o = mustApply(t, o, TriggerDispatch, Facts{AllReserved: true})
	require.Equal(t, StageDispatched, o.Stage())
	require.Equal(t, machineNow, *o.DispatchedAt)
	o = mustApply(t, o, TriggerMarkDelivered, Facts{Actor: "meera", DeliveryProof: "pod.jpg"})
	require.Equal(t, StageDelivered, o.Stage())
	require.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), *o.DeliveredOn)
	o = mustApply(t, o, TriggerMarkInstalled, Facts{SerializedEntries: 1})
	require.Equal(t, StageInstalled, o.Stage())
	o = mustApply(t, o, TriggerComplete, Facts{})
	require.Equal(t, StageComplete, o.Stage())
	require.True(t, o.Terminal())
}

func TestReapplyingIsAlreadyDone(t *testing.T) {
	o := dispatchedOrder(t)
	for _, trig := range []Trigger{TriggerApprove, TriggerConfirmAccount, TriggerConfirmAdmin, TriggerDispatch} {
		next, result, err := Apply(o, trig, Facts{Now: machineNow})
		require.NoError(t, err, trig)
		require.Equal(t, ResultAlreadyDone, result, trig)
		require.Equal(t, o, next, trig)
	}
}

func TestMarkDeliveredChecksOwnerFirst(t *testing.T) {
	draft := draftOrder()
	_, _, err := Apply(draft, TriggerMarkDelivered, Facts{Actor: "someone"})
	require.ErrorIs(t, err, ErrNotBookingOwner)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, _, err = Apply(draft, TriggerMarkDelivered, Facts{Actor: "meera"})
	require.ErrorIs(t, err, ErrDispatchRequired)
	require.ErrorIs(t, err, shared.ErrConflict)

	delivered := mustApply(t, dispatchedOrder(t), TriggerMarkDelivered, Facts{Actor: "Meera"})
	_, _, err = Apply(delivered, TriggerMarkDelivered, Facts{Actor: "someone"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, result, err := Apply(delivered, TriggerMarkDelivered, Facts{Actor: "meera"})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyDone, result)
}

func TestDispatchRequiresReservations(t *testing.T) {
	o := mustApply(t, draftOrder(), TriggerApprove, Facts{})
	o = mustApply(t, o, TriggerConfirmAccount, Facts{})
	_, _, err := Apply(o, TriggerDispatch, Facts{AllReserved: true})
	require.ErrorIs(t, err, ErrInvalidTransition)

	o = mustApply(t, o, TriggerConfirmAdmin, Facts{})
	_, _, err = Apply(o, TriggerDispatch, Facts{})
	require.ErrorIs(t, err, ErrReservationsMissing)
}

func TestInstallRequiresSerial(t *testing.T) {
	o := mustApply(t, dispatchedOrder(t), TriggerMarkDelivered, Facts{Actor: "meera"})
	_, _, err := Apply(o, TriggerMarkInstalled, Facts{})
	require.ErrorIs(t, err, ErrSerialRequired)
}

func TestRejectThenApproveNeedsReset(t *testing.T) {
	o := mustApply(t, draftOrder(), TriggerReject, Facts{Remark: "bad address"})
	require.True(t, o.IsCancelled)
	require.Equal(t, ApprovalRejected, o.ApprovalStatus)
	require.Equal(t, StageCancelled, o.Stage())

	_, _, err := Apply(o, TriggerApprove, Facts{})
	require.ErrorIs(t, err, ErrInvalidTransition)

	o = mustApply(t, o, TriggerResetApproval, Facts{})
	require.False(t, o.IsCancelled)
	require.Equal(t, ApprovalPending, o.ApprovalStatus)
	require.Equal(t, Pending, o.SalesStatus)

	o = mustApply(t, o, TriggerApprove, Facts{})
	require.Equal(t, StageSalesDone, o.Stage())

	_, result, err := Apply(draftOrder(), TriggerResetApproval, Facts{})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyDone, result)
}

func TestCancelAndReturns(t *testing.T) {
	o := mustApply(t, draftOrder(), TriggerCancel, Facts{})
	require.Equal(t, StageCancelled, o.Stage())
	_, result, err := Apply(o, TriggerCancel, Facts{})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyDone, result)
	_, _, err = Apply(o, TriggerConfirmAccount, Facts{})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = Apply(dispatchedOrder(t), TriggerMarkReturned, Facts{ReturnKind: ReturnPartial})
	require.ErrorIs(t, err, ErrInvalidTransition)

	delivered := mustApply(t, dispatchedOrder(t), TriggerMarkDelivered, Facts{Actor: "meera"})
	partial := mustApply(t, delivered, TriggerMarkReturned, Facts{ReturnKind: ReturnPartial})
	require.Equal(t, StagePartiallyReturned, partial.Stage())
	full := mustApply(t, partial, TriggerMarkReturned, Facts{ReturnKind: ReturnFull})
	require.Equal(t, StageReturned, full.Stage())

	_, result, err = Apply(full, TriggerMarkReturned, Facts{ReturnKind: ReturnFull})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyDone, result)
	_, _, err = Apply(full, TriggerCancel, Facts{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	_, _, err := Apply(draftOrder(), TriggerDelete, Facts{Actor: "meera"})
	require.ErrorIs(t, err, ErrAdminRequired)
	_, result, err := Apply(draftOrder(), TriggerDelete, Facts{Actor: "root", IsAdmin: true})
	require.NoError(t, err)
	require.Equal(t, ResultSucceeded, result)
}
