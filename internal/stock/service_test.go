package stock

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dynaclean/dynaflow/internal/shared"
)

var testZones = []string{"Delhi", "South", "Other"}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, ServiceConfig{Zones: testZones})
}

// stockIn posts an inbound movement so the ledger and summaries agree.
func stockIn(t *testing.T, svc *Service, item, zone string, qty int) {
	t.Helper()
	_, err := svc.RecordMovement(context.Background(), MovementInput{ItemCode: item, Zone: zone, Delta: qty, Kind: MovementIn})
	require.NoError(t, err)
}

func TestReserveDecrementsZoneAndTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 10)

	res, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "delhi", Quantity: 3, Token: "t1"})
	require.NoError(t, err)
	require.Equal(t, "Delhi", res.Zone)
	require.Equal(t, ReservationActive, res.Status)
	require.Equal(t, 7, repo.zone("X1", "Delhi"))
	require.Equal(t, 7, repo.total("X1"))
	require.Equal(t, repo.total("X1"), repo.ledgerSum("X1"))
}

func TestReserveInsufficientLeavesQuantitiesUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 2)

	_, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 5, Token: "t1"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 2, repo.zone("X1", "Delhi"))
	require.Equal(t, 2, repo.total("X1"))
}

func TestReserveTokenReplay(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 10)

	first, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 4, Token: "same"})
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 4, Token: "same"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 6, repo.zone("X1", "Delhi"))

	_, err = svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 5, Token: "same"})
	require.ErrorIs(t, err, ErrTokenMismatch)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 6, repo.zone("X1", "Delhi"))
}

func TestReserveAllIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 5)
	stockIn(t, svc, "Y2", "South", 1)

	_, err := svc.ReserveAll(ctx, []ReserveInput{
		{ItemCode: "X1", Zone: "Delhi", Quantity: 5, Token: "a"},
		{ItemCode: "Y2", Zone: "South", Quantity: 2, Token: "b"},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 5, repo.zone("X1", "Delhi"))
	require.Equal(t, 1, repo.zone("Y2", "South"))
}

func TestReserveRejectsUnknownZone(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Reserve(context.Background(), ReserveInput{ItemCode: "X1", Zone: "Mumbai", Quantity: 1, Token: "t"})
	require.ErrorIs(t, err, ErrInvalidZone)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 1, Token: "c" + string(rune('a'+i))})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, succeeded)
	require.Equal(t, 0, repo.zone("X1", "Delhi"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "South", 4)

	res, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "South", Quantity: 4, Token: "r"})
	require.NoError(t, err)
	require.Equal(t, 0, repo.zone("X1", "South"))

	released, err := svc.Release(ctx, res.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, ReservationReleased, released.Status)
	require.Equal(t, 4, repo.zone("X1", "South"))

	_, err = svc.Release(ctx, res.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 4, repo.zone("X1", "South"))
	require.Equal(t, repo.total("X1"), repo.ledgerSum("X1"))
}

func TestReserveRenewsReleasedToken(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 5)

	res, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 2, Token: "order:1:item:1"})
	require.NoError(t, err)
	_, err = svc.Release(ctx, res.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 5, repo.zone("X1", "Delhi"))

	again, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 2, Token: "order:1:item:1"})
	require.NoError(t, err)
	require.Equal(t, res.ID, again.ID)
	require.Equal(t, ReservationActive, again.Status)
	require.Equal(t, 3, repo.zone("X1", "Delhi"))
	require.Equal(t, repo.total("X1"), repo.ledgerSum("X1"))
}

func TestReleaseConsumedFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 4)

	res, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 2, Token: "r", Reference: "order:1"})
	require.NoError(t, err)
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := NewTxLedger(tx).ConsumeReservations(ctx, "order:1")
		require.Equal(t, 1, n)
		return err
	})
	require.NoError(t, err)

	_, err = svc.Release(ctx, res.ID, "alice")
	require.ErrorIs(t, err, ErrReservationConsumed)
	require.Equal(t, 2, repo.zone("X1", "Delhi"))
}

func TestRecordMovementValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{ItemCode: "X1", Zone: "Delhi", Delta: -1, Kind: MovementIn})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordMovement(ctx, MovementInput{ItemCode: "X1", Zone: "Delhi", Delta: -1, Kind: MovementReserve})
	require.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.RecordMovement(ctx, MovementInput{ItemCode: "X1", Zone: "Pune", Delta: 1, Kind: MovementIn})
	require.ErrorIs(t, err, ErrInvalidZone)

	_, err = svc.RecordMovement(ctx, MovementInput{ItemCode: "X1", Zone: "Delhi", Delta: -1, Kind: MovementOut})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestGetAvailabilityReportsConfiguredZones(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 5)
	stockIn(t, svc, "X1", "South", 3)

	av, err := svc.GetAvailability(ctx, "X1")
	require.NoError(t, err)
	require.Equal(t, 8, av.Total)
	require.Equal(t, map[string]int{"Delhi": 5, "South": 3, "Other": 0}, av.Zones)

	raw, err := json.Marshal(av)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	require.EqualValues(t, 8, body["total"])
	require.EqualValues(t, 5, body["delhi"])
	require.EqualValues(t, 3, body["south"])

	_, err = svc.GetAvailability(ctx, " ")
	require.ErrorIs(t, err, shared.ErrValidation)
}

// concurrentReserve commits a reservation for token as another transaction
// would, right before the service inserts its own.
func concurrentReserve(repo *memoryRepo, token string, qty int) Reservation {
	winner := Reservation{ID: uuid.New(), Token: token, ItemCode: "X1", Zone: "Delhi", Quantity: qty, Status: ReservationActive}
	repo.race = func(committed *memoryState) {
		committed.reservations[winner.ID] = winner
		committed.zones[zoneKey{"X1", "Delhi"}] -= qty
		committed.totals["X1"] -= qty
		committed.movements = append(committed.movements, Movement{ItemCode: "X1", Zone: "Delhi", Delta: -qty, Kind: MovementReserve})
	}
	return winner
}

func TestReserveLosingTokenRaceReplaysWinner(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 10)

	winner := concurrentReserve(repo, "dup", 4)
	repo.attempts = 0
	res, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 4, Token: "dup"})
	require.NoError(t, err)
	require.Equal(t, winner.ID, res.ID)
	require.Equal(t, 2, repo.attempts)
	require.Equal(t, 6, repo.zone("X1", "Delhi"))
	require.Equal(t, repo.total("X1"), repo.ledgerSum("X1"))
}

func TestReserveLosingTokenRaceWithDifferentRequestConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 10)

	concurrentReserve(repo, "dup", 3)
	_, err := svc.Reserve(ctx, ReserveInput{ItemCode: "X1", Zone: "Delhi", Quantity: 4, Token: "dup"})
	require.ErrorIs(t, err, ErrTokenMismatch)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 7, repo.zone("X1", "Delhi"))
}

func TestGetAvailabilitySharedReadSurvivesCallerCancel(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	stockIn(t, svc, "X1", "Delhi", 5)
	repo.readGate = make(chan struct{})
	repo.readEntered = make(chan struct{}, 1)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetAvailability(first, "X1")
		firstErr <- err
	}()
	<-repo.readEntered

	type result struct {
		av  Availability
		err error
	}
	second := make(chan result, 1)
	go func() {
		av, err := svc.GetAvailability(context.Background(), "X1")
		second <- result{av: av, err: err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.readGate)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, 5, got.av.Total)
	require.Equal(t, 5, got.av.Zones["Delhi"])
}

func TestRebuildCorrectsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	stockIn(t, svc, "X1", "Delhi", 5)
	repo.seed("X1", "Delhi", 7)

	drift, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, drift)
	require.Equal(t, 5, repo.zone("X1", "Delhi"))
	require.Equal(t, 5, repo.total("X1"))

	drift, err = svc.Rebuild(ctx)
	require.NoError(t, err)
	require.Zero(t, drift)
}
