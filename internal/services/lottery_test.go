package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/models"
	"github.com/ndharma28/omega-gaming/internal/services"
)

const testOperator = "0xoperator"

func setupTestService(t *testing.T) (*services.LotteryService, *services.RedisService, *config.Config) {
	cfg := &config.Config{
		RedisURL:        "localhost:6379",
		RedisPass:       "",
		RedisDB:         0,
		OperatorAddress: testOperator,
		TreasuryAddress: fmt.Sprintf("0xtreasury_%d", time.Now().UnixNano()),
		TreasuryFeeBps:  500,
		StartingBalance: 10000,
		OracleTimeout:   2 * time.Second,
	}

	ledger, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// a stranded inflight marker from an aborted run would wedge every draw,
	// and a leftover treasury override would misroute the fee assertions
	ledger.ClearDrawState("")
	ledger.ClearTreasuryAddress()

	svc := services.NewLotteryService(ledger, services.NewOracleClient(cfg), services.NopBroadcaster{}, cfg)
	return svc, ledger, cfg
}

func testAddr(name string) string {
	return fmt.Sprintf("0x%s_%d", name, time.Now().UnixNano())
}

func TestLotteryDrawScenario(t *testing.T) {
	svc, ledger, cfg := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 2,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}
	if round.Status != models.RoundStatusOpen {
		t.Errorf("expected open round, got %s", round.Status)
	}

	players := []string{testAddr("alice"), testAddr("bob"), testAddr("carol")}
	for _, p := range players {
		if _, err := svc.JoinLottery(ctx, round.ID, p, 100); err != nil {
			t.Fatalf("Failed to join lottery as %s: %v", p, err)
		}
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.TotalPot != 300 {
		t.Errorf("expected pot 300, got %d", got.TotalPot)
	}
	if len(got.Players) != 3 {
		t.Errorf("expected 3 players, got %d", len(got.Players))
	}

	// draws are refused while the window is still open
	if _, err := svc.RequestWinner(ctx, round.ID, testOperator); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("draw before end: expected ErrInvalidTransition, got %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	// joining after the window always fails, even with status still stale
	late := testAddr("dave")
	if _, err := svc.JoinLottery(ctx, round.ID, late, 100); !errors.Is(err, models.ErrRoundNotJoinable) {
		t.Errorf("late join: expected ErrRoundNotJoinable, got %v", err)
	}

	if _, err := svc.RequestWinner(ctx, round.ID, testAddr("mallory")); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-operator draw: expected ErrUnauthorized, got %v", err)
	}

	correlationID, err := svc.RequestWinner(ctx, round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to request winner: %v", err)
	}

	rec, err := svc.FulfillDraw(correlationID, 7)
	if err != nil {
		t.Fatalf("Failed to fulfill draw: %v", err)
	}

	// winnerIndex = 7 mod 3 = 1
	if rec.WinnerAddress != players[1] {
		t.Errorf("expected winner %s, got %s", players[1], rec.WinnerAddress)
	}
	if rec.TotalPot != 300 {
		t.Errorf("expected pot 300 in record, got %d", rec.TotalPot)
	}
	if rec.WinnerPayout+rec.TreasuryFee != rec.TotalPot {
		t.Errorf("payout %d + fee %d must equal pot %d", rec.WinnerPayout, rec.TreasuryFee, rec.TotalPot)
	}
	if rec.TreasuryFee != 15 { // 5% of 300
		t.Errorf("expected treasury fee 15, got %d", rec.TreasuryFee)
	}

	resolved, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get resolved lottery: %v", err)
	}
	if resolved.Status != models.RoundStatusResolved {
		t.Errorf("expected resolved, got %s", resolved.Status)
	}
	if resolved.Winner != players[1] {
		t.Errorf("expected round winner %s, got %s", players[1], resolved.Winner)
	}
	if resolved.RandomValue != "7" {
		t.Errorf("expected random value 7, got %s", resolved.RandomValue)
	}
	if resolved.TotalPot != 0 {
		t.Errorf("paid-out pot must be zeroed on the round, got %d", resolved.TotalPot)
	}

	winnerWallet, err := ledger.GetWallet(players[1], cfg.StartingBalance, time.Now().Unix())
	if err != nil {
		t.Fatalf("Failed to get winner wallet: %v", err)
	}
	if winnerWallet.Balance != 10000-100+285 {
		t.Errorf("expected winner balance 10185, got %d", winnerWallet.Balance)
	}

	treasuryWallet, err := ledger.GetWallet(cfg.TreasuryAddress, 0, time.Now().Unix())
	if err != nil {
		t.Fatalf("Failed to get treasury wallet: %v", err)
	}
	if treasuryWallet.Balance != 15 {
		t.Errorf("expected treasury balance 15, got %d", treasuryWallet.Balance)
	}

	// duplicate delivery is a rejected no-op
	if _, err := svc.FulfillDraw(correlationID, 7); !errors.Is(err, models.ErrAlreadyFulfilled) {
		t.Errorf("replayed fulfillment: expected ErrAlreadyFulfilled, got %v", err)
	}
	if _, err := ledger.GetPayout(round.ID); err != nil {
		t.Errorf("payout record should exist exactly once: %v", err)
	}

	history, err := svc.GetHistory(0, 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) == 0 || history[0].RoundID != round.ID {
		t.Errorf("expected newest history entry for round %d", round.ID)
	}

	cleanupRound(t, ledger, round.ID, correlationID, append(players, late), cfg.TreasuryAddress)
}

func TestFulfillUnknownCorrelation(t *testing.T) {
	svc, ledger, _ := setupTestService(t)
	defer ledger.Close()

	if _, err := svc.FulfillDraw("draw_does-not-exist", 42); !errors.Is(err, models.ErrUnknownCorrelation) {
		t.Errorf("expected ErrUnknownCorrelation, got %v", err)
	}
}

func TestRequestWinnerNoPlayers(t *testing.T) {
	svc, ledger, _ := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 100,
		EndTime:   now - 1,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	if _, err := svc.RequestWinner(ctx, round.ID, testOperator); !errors.Is(err, models.ErrNoPlayers) {
		t.Errorf("expected ErrNoPlayers, got %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.Status != models.RoundStatusClosed {
		t.Errorf("empty-round draw must leave status closed, got %s", got.Status)
	}

	cleanupRound(t, ledger, round.ID, "", nil, "")
}

func TestJoinWrongFee(t *testing.T) {
	svc, ledger, _ := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 3600,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	player := testAddr("eve")
	if _, err := svc.JoinLottery(ctx, round.ID, player, 101); !errors.Is(err, models.ErrWrongFee) {
		t.Errorf("overpaid join: expected ErrWrongFee, got %v", err)
	}
	if _, err := svc.JoinLottery(ctx, round.ID, player, 99); !errors.Is(err, models.ErrWrongFee) {
		t.Errorf("underpaid join: expected ErrWrongFee, got %v", err)
	}
	if _, err := svc.JoinLottery(ctx, round.ID, player, 0); !errors.Is(err, models.ErrWrongFee) {
		t.Errorf("zero fee join: expected ErrWrongFee, got %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.TotalPot != 0 || len(got.Players) != 0 {
		t.Errorf("rejected joins must not touch the round: pot=%d players=%d", got.TotalPot, len(got.Players))
	}

	cleanupRound(t, ledger, round.ID, "", []string{player}, "")
}

func TestConcurrentJoins(t *testing.T) {
	svc, ledger, _ := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 3600,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	players := make([]string, 8)
	for i := range players {
		players[i] = testAddr(fmt.Sprintf("racer%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(players))
	for _, p := range players {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if _, err := svc.JoinLottery(ctx, round.ID, addr, 100); err != nil {
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent join failed: %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if len(got.Players) != len(players) {
		t.Errorf("lost joins: expected %d players, got %d", len(players), len(got.Players))
	}
	if got.TotalPot != int64(len(players))*100 {
		t.Errorf("expected pot %d, got %d", len(players)*100, got.TotalPot)
	}

	cleanupRound(t, ledger, round.ID, "", players, "")
}

func TestCancelDraw(t *testing.T) {
	svc, ledger, cfg := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 1,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	player := testAddr("frank")
	if _, err := svc.JoinLottery(ctx, round.ID, player, 100); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	correlationID, err := svc.RequestWinner(ctx, round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to request winner: %v", err)
	}

	// the round cannot be drawn a second time while a draw is pending
	if _, err := svc.RequestWinner(ctx, round.ID, testOperator); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("re-draw while drawing: expected ErrInvalidTransition, got %v", err)
	}

	if err := svc.CancelDraw(round.ID, testOperator); err != nil {
		t.Fatalf("Failed to cancel draw: %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.Status != models.RoundStatusClosed {
		t.Errorf("expected closed after cancel, got %s", got.Status)
	}

	// the cancelled correlation id is dead; a late callback has no effect
	if _, err := svc.FulfillDraw(correlationID, 7); !errors.Is(err, models.ErrUnknownCorrelation) {
		t.Errorf("late callback after cancel: expected ErrUnknownCorrelation, got %v", err)
	}

	// the round can be drawn again under a fresh correlation id
	correlationID2, err := svc.RequestWinner(ctx, round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to re-request winner: %v", err)
	}
	if correlationID2 == correlationID {
		t.Error("new draw must issue a new correlation id")
	}
	if _, err := svc.FulfillDraw(correlationID2, 0); err != nil {
		t.Fatalf("Failed to fulfill re-draw: %v", err)
	}

	cleanupRound(t, ledger, round.ID, correlationID2, []string{player}, cfg.TreasuryAddress)
	ledger.ClearDrawState(correlationID)
}

func TestCancelLosesToConsumedFulfillment(t *testing.T) {
	svc, ledger, cfg := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 1,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	player := testAddr("grace")
	if _, err := svc.JoinLottery(ctx, round.ID, player, 100); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	correlationID, err := svc.RequestWinner(ctx, round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to request winner: %v", err)
	}

	// the callback has been consumed but settlement has not run yet
	if _, err := ledger.ConsumeDrawRequest(correlationID); err != nil {
		t.Fatalf("Failed to consume draw request: %v", err)
	}

	// a cancel arriving now came second and must lose
	if err := svc.CancelDraw(round.ID, testOperator); !errors.Is(err, models.ErrUnknownCorrelation) {
		t.Errorf("cancel after consumed fulfillment: expected ErrUnknownCorrelation, got %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.Status != models.RoundStatusDrawing {
		t.Errorf("refused cancel must not move the round, got %s", got.Status)
	}

	cleanupRound(t, ledger, round.ID, correlationID, []string{player}, cfg.TreasuryAddress)
}

func TestRetrySettlementAfterTransferFailure(t *testing.T) {
	svc, ledger, cfg := setupTestService(t)
	defer ledger.Close()

	ctx := context.Background()
	now := time.Now().Unix()

	round, err := svc.CreateLottery(&models.CreateLotteryRequest{
		EntryFee:  100,
		StartTime: now - 10,
		EndTime:   now + 1,
	})
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}

	player := testAddr("heidi")
	if _, err := svc.JoinLottery(ctx, round.ID, player, 100); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	correlationID, err := svc.RequestWinner(ctx, round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to request winner: %v", err)
	}

	// force the transfer to fail: the winner wallet is gone at settle time
	if err := ledger.DeleteWallet(player); err != nil {
		t.Fatalf("Failed to delete wallet: %v", err)
	}

	if _, err := svc.FulfillDraw(correlationID, 3); !errors.Is(err, models.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	got, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get lottery: %v", err)
	}
	if got.Status != models.RoundStatusDrawing {
		t.Errorf("failed transfer must leave the round drawing, got %s", got.Status)
	}
	if got.TotalPot != 100 {
		t.Errorf("failed transfer must not touch the pot, got %d", got.TotalPot)
	}
	if _, err := ledger.GetPayout(round.ID); !errors.Is(err, models.ErrRoundNotFound) {
		t.Errorf("failed transfer must not record a payout, got %v", err)
	}

	if _, err := svc.RetrySettlement(round.ID, testAddr("mallory")); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-operator retry: expected ErrUnauthorized, got %v", err)
	}

	// restore the wallet; the pinned draw result makes the retry deterministic
	if _, err := ledger.GetWallet(player, cfg.StartingBalance, time.Now().Unix()); err != nil {
		t.Fatalf("Failed to recreate wallet: %v", err)
	}

	rec, err := svc.RetrySettlement(round.ID, testOperator)
	if err != nil {
		t.Fatalf("Failed to retry settlement: %v", err)
	}
	if rec.WinnerAddress != player {
		t.Errorf("expected winner %s, got %s", player, rec.WinnerAddress)
	}
	if rec.WinnerPayout+rec.TreasuryFee != 100 {
		t.Errorf("payout %d + fee %d must equal pot 100", rec.WinnerPayout, rec.TreasuryFee)
	}

	resolved, err := svc.GetLottery(round.ID)
	if err != nil {
		t.Fatalf("Failed to get resolved lottery: %v", err)
	}
	if resolved.Status != models.RoundStatusResolved {
		t.Errorf("expected resolved after retry, got %s", resolved.Status)
	}

	wallet, err := ledger.GetWallet(player, cfg.StartingBalance, time.Now().Unix())
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.Balance != cfg.StartingBalance+rec.WinnerPayout {
		t.Errorf("expected balance %d, got %d", cfg.StartingBalance+rec.WinnerPayout, wallet.Balance)
	}

	// settlement ran exactly once; a second retry cannot run again
	if _, err := svc.RetrySettlement(round.ID, testOperator); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("second retry: expected ErrInvalidTransition, got %v", err)
	}

	cleanupRound(t, ledger, round.ID, correlationID, []string{player}, cfg.TreasuryAddress)
}

func cleanupRound(t *testing.T, ledger *services.RedisService, roundID uint64, correlationID string, players []string, treasury string) {
	if err := ledger.DeleteRound(roundID); err != nil {
		t.Errorf("Failed to cleanup round: %v", err)
	}
	for _, p := range players {
		ledger.DeleteWallet(p)
		ledger.ClearJoinRateLimit(p)
	}
	if treasury != "" {
		ledger.DeleteWallet(treasury)
	}
	ledger.ClearDrawState(correlationID)
}
