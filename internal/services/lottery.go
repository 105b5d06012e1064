package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/models"
)

// LotteryService is the round state machine. It validates every transition
// against the ledger, coordinates the asynchronous oracle draw, and drives
// settlement. All per-round mutations are serialized by the ledger scripts;
// this layer holds no mutable state of its own.
type LotteryService struct {
	ledger      *RedisService
	oracle      OracleClient
	broadcaster Broadcaster
	cfg         *config.Config
}

func NewLotteryService(ledger *RedisService, oracle OracleClient, broadcaster Broadcaster, cfg *config.Config) *LotteryService {
	return &LotteryService{
		ledger:      ledger,
		oracle:      oracle,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// IsOperator is the authorization predicate for privileged actions. A flat
// capability check, evaluated per call.
func (s *LotteryService) IsOperator(address string) bool {
	return address != "" && address == s.cfg.OperatorAddress
}

// Owner returns the operator address.
func (s *LotteryService) Owner() string {
	return s.cfg.OperatorAddress
}

// CreateLottery validates parameters and persists a new round. The round is
// OPEN immediately if the window has already started, NOT_STARTED otherwise.
func (s *LotteryService) CreateLottery(req *models.CreateLotteryRequest) (*models.Round, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	round, err := s.ledger.CreateRound(req.EntryFee, req.StartTime, req.EndTime, time.Now().Unix())
	if err != nil {
		return nil, err
	}

	log.Printf("round %d created: fee=%d window=[%d,%d)", round.ID, round.EntryFee, round.StartTime, round.EndTime)
	return round, nil
}

// JoinLottery appends a participant to an open round. The same participant
// may join any number of times; each paid entry is one slot in the draw.
func (s *LotteryService) JoinLottery(ctx context.Context, id uint64, participant string, feePaid int64) (*models.Round, error) {
	allowed, err := s.ledger.CheckRateLimit(participant, "join", DefaultRateLimitJoins, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %v", err)
	}
	if !allowed {
		return nil, fmt.Errorf("join rate limit exceeded")
	}

	now := time.Now().Unix()

	// Auto-provision the demo wallet before the atomic join debits it.
	if _, err := s.ledger.GetWallet(participant, s.cfg.StartingBalance, now); err != nil {
		return nil, err
	}

	newPot, err := s.ledger.AppendPlayer(id, participant, feePaid, now)
	if err != nil {
		return nil, err
	}

	s.emit(models.NewRoundEntered(id, participant, newPot))

	return s.ledger.GetRound(id, now)
}

// RequestWinner moves a closed round into DRAWING and asks the oracle for
// randomness. The CLOSED->DRAWING compare-and-set claims the single global
// draw slot; losing callers observe InvalidTransition or DrawInFlight.
func (s *LotteryService) RequestWinner(ctx context.Context, id uint64, caller string) (string, error) {
	if !s.IsOperator(caller) {
		return "", models.ErrUnauthorized
	}

	now := time.Now().Unix()
	correlationID := models.GenerateCorrelationID()

	if err := s.ledger.BeginDraw(id, correlationID, now); err != nil {
		return "", err
	}

	if err := s.oracle.RequestRandomness(ctx, correlationID, id); err != nil {
		// The oracle never saw the correlation id, so reverting cannot race
		// a late fulfillment.
		if cancelErr := s.ledger.CancelDraw(id, correlationID, time.Now().Unix()); cancelErr != nil {
			log.Printf("round %d: failed to revert aborted draw: %v", id, cancelErr)
		}
		return "", fmt.Errorf("oracle request failed: %v", err)
	}

	s.emit(models.NewDrawRequested(id, correlationID))
	log.Printf("round %d: draw requested, correlation %s", id, correlationID)

	return correlationID, nil
}

// FulfillDraw is the oracle callback entry point. It consumes the pending
// request exactly once, pins the winner deterministically from the random
// value, and settles. Replays fail with AlreadyFulfilled and unknown ids
// with UnknownCorrelation, both without side effects.
func (s *LotteryService) FulfillDraw(correlationID string, randomValue uint64) (*models.PayoutRecord, error) {
	req, err := s.ledger.ConsumeDrawRequest(correlationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()

	players, err := s.ledger.GetPlayers(req.RoundID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		// BeginDraw refuses empty rounds, so this indicates ledger damage.
		return nil, models.ErrNoPlayers
	}

	winner := players[models.WinnerIndex(randomValue, len(players))]

	result := &models.DrawResult{
		RoundID:       req.RoundID,
		CorrelationID: correlationID,
		RandomValue:   randomValue,
		Winner:        winner,
		FulfilledAt:   now,
	}
	if err := s.ledger.SaveDrawResult(result); err != nil {
		return nil, err
	}

	return s.settle(result)
}

// RetrySettlement re-runs settlement for a round stuck in DRAWING after a
// failed transfer. The draw result pinned at fulfillment time makes the
// retry deterministic.
func (s *LotteryService) RetrySettlement(id uint64, caller string) (*models.PayoutRecord, error) {
	if !s.IsOperator(caller) {
		return nil, models.ErrUnauthorized
	}

	result, err := s.ledger.GetDrawResult(id)
	if err != nil {
		return nil, err
	}

	return s.settle(result)
}

// settle computes the treasury split and hands the whole transfer to the
// ledger as one atomic unit. On failure the round remains in DRAWING and no
// funds have moved.
func (s *LotteryService) settle(result *models.DrawResult) (*models.PayoutRecord, error) {
	now := time.Now().Unix()

	round, err := s.ledger.GetRound(result.RoundID, now)
	if err != nil {
		return nil, err
	}

	winnerPayout, treasuryFee := models.SplitPot(round.TotalPot, s.cfg.TreasuryFeeBps)

	treasuryAddr, err := s.ledger.GetTreasuryAddress(s.cfg.TreasuryAddress)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.GetWallet(treasuryAddr, 0, now); err != nil {
		return nil, err
	}

	rec, err := s.ledger.Settle(
		result.RoundID,
		result.Winner,
		strconv.FormatUint(result.RandomValue, 10),
		winnerPayout,
		treasuryFee,
		treasuryAddr,
		now,
	)
	if err != nil {
		return nil, err
	}

	s.emit(models.NewWinnerPaid(rec))
	log.Printf("round %d resolved: winner=%s payout=%d fee=%d", rec.RoundID, rec.WinnerAddress, rec.WinnerPayout, rec.TreasuryFee)

	return rec, nil
}

// CancelDraw is the operator recovery action for a draw whose fulfillment
// never arrived. The round reverts to CLOSED and the correlation id is
// invalidated, so a late callback lands on UnknownCorrelation.
func (s *LotteryService) CancelDraw(id uint64, caller string) error {
	if !s.IsOperator(caller) {
		return models.ErrUnauthorized
	}

	now := time.Now().Unix()
	round, err := s.ledger.GetRound(id, now)
	if err != nil {
		return err
	}
	if round.Status != models.RoundStatusDrawing {
		return models.ErrInvalidTransition
	}

	if err := s.ledger.CancelDraw(id, round.CorrelationID, now); err != nil {
		return err
	}

	log.Printf("round %d: draw cancelled, correlation %s invalidated", id, round.CorrelationID)
	return nil
}

// GetLottery returns a round with its time-implied status and players.
func (s *LotteryService) GetLottery(id uint64) (*models.Round, error) {
	return s.ledger.GetRound(id, time.Now().Unix())
}

func (s *LotteryService) GetPlayers(id uint64) ([]string, error) {
	return s.ledger.GetPlayers(id)
}

func (s *LotteryService) GetHistory(fromRoundID uint64, limit int64) ([]*models.PayoutRecord, error) {
	return s.ledger.GetHistory(fromRoundID, limit)
}

func (s *LotteryService) GetEvents(name models.EventName, fromSeq uint64, limit int64) ([]*models.Event, error) {
	return s.ledger.GetEvents(name, fromSeq, limit)
}

func (s *LotteryService) RoundCounter() (uint64, error) {
	return s.ledger.GetRoundCounter()
}

func (s *LotteryService) TreasuryAddress() (string, error) {
	return s.ledger.GetTreasuryAddress(s.cfg.TreasuryAddress)
}

func (s *LotteryService) SetTreasury(caller, address string) error {
	if !s.IsOperator(caller) {
		return models.ErrUnauthorized
	}
	if address == "" {
		return models.ErrInvalidParameters
	}
	return s.ledger.SetTreasuryAddress(address)
}

// emit appends to the durable event log and pushes to live subscribers.
// Events are hints; failures here never fail the operation that caused them.
func (s *LotteryService) emit(event *models.Event) {
	if err := s.ledger.AppendEvent(event); err != nil {
		log.Printf("failed to append %s event for round %d: %v", event.Name, event.RoundID, err)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(event)
	}
}
