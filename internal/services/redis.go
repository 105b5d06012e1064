package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisService is the ledger store: rounds, the id counter, the pending
// draw-request table, wallets, the append-only payout log, and the
// sequenced event log all live here. Every multi-key mutation runs as a
// Lua script so per-round operations are serialized by Redis itself.
type RedisService struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{
		client: client,
		ctx:    ctx,
	}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// Script error replies use the sentinel texts verbatim so they map straight
// back to the typed errors the state machine promises its callers.
var luaErrors = map[string]error{
	"round not found":                      models.ErrRoundNotFound,
	"round not joinable":                   models.ErrRoundNotJoinable,
	"entry fee mismatch":                   models.ErrWrongFee,
	"invalid status transition":            models.ErrInvalidTransition,
	"round has no players":                 models.ErrNoPlayers,
	"unknown correlation id":               models.ErrUnknownCorrelation,
	"correlation id already fulfilled":     models.ErrAlreadyFulfilled,
	"payout already recorded for round":    models.ErrDuplicatePayout,
	"fund transfer failed":                 models.ErrTransferFailed,
	"insufficient wallet balance":          models.ErrInsufficientBalance,
	"another draw is in flight":            models.ErrDrawInFlight,
}

func mapScriptErr(err error) error {
	if err == nil {
		return nil
	}
	if mapped, ok := luaErrors[strings.TrimSpace(err.Error())]; ok {
		return mapped
	}
	return err
}

func roundKey(id uint64) string        { return fmt.Sprintf(KeyRound, id) }
func roundPlayersKey(id uint64) string { return fmt.Sprintf(KeyRoundPlayers, id) }
func drawRequestKey(cid string) string { return fmt.Sprintf(KeyDrawRequest, cid) }
func payoutKey(id uint64) string       { return fmt.Sprintf(KeyPayout, id) }
func walletKey(addr string) string     { return fmt.Sprintf(KeyWallet, addr) }

// ============================================================================
// Rounds
// ============================================================================

// CreateRound allocates the next id and persists a new round. The stored
// status is the time-implied one at creation; later boundary crossings are
// derived lazily on reads and mutations.
func (s *RedisService) CreateRound(entryFee, startTime, endTime, now int64) (*models.Round, error) {
	if entryFee <= 0 || startTime >= endTime {
		return nil, models.ErrInvalidParameters
	}

	id, err := s.client.Incr(s.ctx, KeyRoundCounter).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate round id: %v", err)
	}

	round := &models.Round{
		ID:        uint64(id),
		EntryFee:  entryFee,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    models.RoundStatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if now >= startTime {
		round.Status = models.RoundStatusOpen
	}

	data, err := json.Marshal(round)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal round: %v", err)
	}

	if err := s.client.Set(s.ctx, roundKey(round.ID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save round: %v", err)
	}

	return round, nil
}

// GetRound returns the round with players stitched in and the time-implied
// status applied. The derived status is persisted best-effort so storage
// converges, but correctness never depends on that write.
func (s *RedisService) GetRound(id uint64, now int64) (*models.Round, error) {
	data, err := s.client.Get(s.ctx, roundKey(id)).Result()
	if err == redis.Nil {
		return nil, models.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %v", err)
	}

	var round models.Round
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round: %v", err)
	}

	players, err := s.client.LRange(s.ctx, roundPlayersKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %v", err)
	}
	round.Players = players

	if effective := round.EffectiveStatus(now); effective != round.Status {
		s.TransitionStatus(id, round.Status, effective, now)
		round.Status = effective
	}

	return &round, nil
}

// GetPlayers returns the join-ordered participant list. Duplicates are
// legitimate: each appearance is one paid entry.
func (s *RedisService) GetPlayers(id uint64) ([]string, error) {
	exists, err := s.client.Exists(s.ctx, roundKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check round: %v", err)
	}
	if exists == 0 {
		return nil, models.ErrRoundNotFound
	}
	return s.client.LRange(s.ctx, roundPlayersKey(id), 0, -1).Result()
}

// GetRoundCounter returns the last allocated round id.
func (s *RedisService) GetRoundCounter() (uint64, error) {
	val, err := s.client.Get(s.ctx, KeyRoundCounter).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get round counter: %v", err)
	}
	return strconv.ParseUint(val, 10, 64)
}

var casStatusScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("round not found")
	end

	local round = cjson.decode(data)
	if round.status ~= ARGV[1] then
		return redis.error_reply("invalid status transition")
	end

	round.status = ARGV[2]
	round.updated_at = tonumber(ARGV[3])
	redis.call("SET", KEYS[1], cjson.encode(round))

	return "OK"
`)

// TransitionStatus is an atomic compare-and-set on the stored status.
func (s *RedisService) TransitionStatus(id uint64, from, to models.RoundStatus, now int64) error {
	if !models.ValidTransition(from, to) {
		return models.ErrInvalidTransition
	}
	err := casStatusScript.Run(s.ctx, s.client,
		[]string{roundKey(id)}, string(from), string(to), now).Err()
	return mapScriptErr(err)
}

// ============================================================================
// Joins
// ============================================================================

var joinScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("round not found")
	end

	local round = cjson.decode(data)
	local now = tonumber(ARGV[1])
	local fee = tonumber(ARGV[2])

	if round.status == "drawing" or round.status == "resolved" then
		return redis.error_reply("round not joinable")
	end
	if now < round.start_time or now >= round.end_time then
		return redis.error_reply("round not joinable")
	end
	if fee ~= round.entry_fee then
		return redis.error_reply("entry fee mismatch")
	end

	local wdata = redis.call("GET", KEYS[3])
	if not wdata then
		return redis.error_reply("insufficient wallet balance")
	end
	local wallet = cjson.decode(wdata)
	if wallet.balance < fee then
		return redis.error_reply("insufficient wallet balance")
	end

	wallet.balance = wallet.balance - fee
	wallet.total_staked = wallet.total_staked + fee
	wallet.updated_at = now

	local count = redis.call("RPUSH", KEYS[2], ARGV[3])
	round.total_pot = round.entry_fee * count
	round.status = "open"
	round.updated_at = now

	redis.call("SET", KEYS[1], cjson.encode(round))
	redis.call("SET", KEYS[3], cjson.encode(wallet))

	return round.total_pot
`)

// AppendPlayer debits the participant's wallet by exactly the entry fee and
// appends them to the round in one atomic step, keeping the invariant
// totalPot == entryFee * len(players). Returns the new pot.
func (s *RedisService) AppendPlayer(id uint64, participant string, feePaid, now int64) (int64, error) {
	pot, err := joinScript.Run(s.ctx, s.client,
		[]string{roundKey(id), roundPlayersKey(id), walletKey(participant)},
		now, feePaid, participant).Int64()
	if err != nil {
		return 0, mapScriptErr(err)
	}
	return pot, nil
}

// ============================================================================
// Draws
// ============================================================================

var beginDrawScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("round not found")
	end

	local round = cjson.decode(data)
	local now = tonumber(ARGV[1])

	if round.status == "drawing" or round.status == "resolved" then
		return redis.error_reply("invalid status transition")
	end
	if now < round.end_time then
		return redis.error_reply("invalid status transition")
	end

	if redis.call("LLEN", KEYS[2]) == 0 then
		return redis.error_reply("round has no players")
	end

	if redis.call("EXISTS", KEYS[3]) == 1 then
		return redis.error_reply("another draw is in flight")
	end

	round.status = "drawing"
	round.correlation_id = ARGV[2]
	round.updated_at = now

	redis.call("SET", KEYS[3], ARGV[3])
	redis.call("SET", KEYS[1], cjson.encode(round))
	redis.call("SET", KEYS[4], cjson.encode({
		correlation_id = ARGV[2],
		round_id = tonumber(ARGV[3]),
		issued_at = now,
	}))

	return "OK"
`)

// BeginDraw is the CLOSED->DRAWING compare-and-set, the serialization point
// for draws. It claims the global inflight slot and registers the pending
// DrawRequest under the correlation id, all atomically.
func (s *RedisService) BeginDraw(id uint64, correlationID string, now int64) error {
	err := beginDrawScript.Run(s.ctx, s.client,
		[]string{roundKey(id), roundPlayersKey(id), KeyDrawInflight, drawRequestKey(correlationID)},
		now, correlationID, id).Err()
	return mapScriptErr(err)
}

var consumeDrawScript = redis.NewScript(`
	if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
		return redis.error_reply("correlation id already fulfilled")
	end

	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("unknown correlation id")
	end

	redis.call("DEL", KEYS[1])
	redis.call("SADD", KEYS[2], ARGV[1])

	return data
`)

// ConsumeDrawRequest deletes the pending request exactly once and returns
// it. Replays fail with AlreadyFulfilled, ids that were never issued or
// were cancelled fail with UnknownCorrelation; neither has side effects.
func (s *RedisService) ConsumeDrawRequest(correlationID string) (*models.DrawRequest, error) {
	data, err := consumeDrawScript.Run(s.ctx, s.client,
		[]string{drawRequestKey(correlationID), KeyDrawFulfilled}, correlationID).Text()
	if err != nil {
		return nil, mapScriptErr(err)
	}

	var req models.DrawRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draw request: %v", err)
	}
	return &req, nil
}

var cancelDrawScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("round not found")
	end

	local round = cjson.decode(data)
	if round.status ~= "drawing" then
		return redis.error_reply("invalid status transition")
	end

	if redis.call("EXISTS", KEYS[2]) == 0 then
		return redis.error_reply("unknown correlation id")
	end

	round.status = "closed"
	round.correlation_id = nil
	round.updated_at = tonumber(ARGV[1])

	redis.call("SET", KEYS[1], cjson.encode(round))
	redis.call("DEL", KEYS[2])
	redis.call("DEL", KEYS[3])

	return "OK"
`)

// CancelDraw reverts DRAWING->CLOSED and deletes the pending request. The
// request key's existence distinguishes "never fulfilled" from "already
// consumed": a cancel arriving after the fulfillment was consumed fails
// with UnknownCorrelation, so the fulfillment applied first always wins
// and a round stuck after a failed transfer must go through settlement
// retry, not cancellation.
func (s *RedisService) CancelDraw(id uint64, correlationID string, now int64) error {
	err := cancelDrawScript.Run(s.ctx, s.client,
		[]string{roundKey(id), drawRequestKey(correlationID), KeyDrawInflight}, now).Err()
	return mapScriptErr(err)
}

func drawResultKey(id uint64) string { return fmt.Sprintf(KeyDrawResult, id) }

// SaveDrawResult pins a consumed fulfillment so settlement can be retried
// if the fund transfer fails. Plain SET: the value is deterministic for a
// given correlation id, so overwriting is harmless.
func (s *RedisService) SaveDrawResult(result *models.DrawResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal draw result: %v", err)
	}
	return s.client.Set(s.ctx, drawResultKey(result.RoundID), data, 0).Err()
}

func (s *RedisService) GetDrawResult(id uint64) (*models.DrawResult, error) {
	data, err := s.client.Get(s.ctx, drawResultKey(id)).Result()
	if err == redis.Nil {
		return nil, models.ErrUnknownCorrelation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draw result: %v", err)
	}

	var result models.DrawResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draw result: %v", err)
	}
	return &result, nil
}

// ============================================================================
// Settlement
// ============================================================================

var settleScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("round not found")
	end

	local round = cjson.decode(data)
	if round.status ~= "drawing" then
		return redis.error_reply("invalid status transition")
	end

	if redis.call("EXISTS", KEYS[2]) == 1 then
		return redis.error_reply("payout already recorded for round")
	end

	local wdata = redis.call("GET", KEYS[4])
	local tdata = redis.call("GET", KEYS[5])
	if not wdata or not tdata then
		return redis.error_reply("fund transfer failed")
	end

	local now = tonumber(ARGV[5])
	local winnerPayout = tonumber(ARGV[3])
	local treasuryFee = tonumber(ARGV[4])

	local winner = cjson.decode(wdata)
	winner.balance = winner.balance + winnerPayout
	winner.total_won = winner.total_won + winnerPayout
	winner.updated_at = now

	local treasury = cjson.decode(tdata)
	treasury.balance = treasury.balance + treasuryFee
	treasury.updated_at = now

	local payout = cjson.encode({
		round_id = round.id,
		winner_address = ARGV[1],
		winner_payout = winnerPayout,
		treasury_fee = treasuryFee,
		total_pot = round.total_pot,
		resolved_at = now,
	})

	round.winner = ARGV[1]
	round.random_value = ARGV[2]
	round.status = "resolved"
	round.total_pot = 0
	round.updated_at = now

	redis.call("SET", KEYS[4], cjson.encode(winner))
	if KEYS[5] ~= KEYS[4] then
		redis.call("SET", KEYS[5], cjson.encode(treasury))
	else
		winner.balance = winner.balance + treasuryFee
		winner.updated_at = now
		redis.call("SET", KEYS[4], cjson.encode(winner))
	end
	redis.call("SET", KEYS[1], cjson.encode(round))
	redis.call("SET", KEYS[2], payout)
	redis.call("ZADD", KEYS[3], round.id, tostring(round.id))
	redis.call("DEL", KEYS[6])

	return payout
`)

// Settle moves the pot (winner share plus treasury fee), pins winner and
// random value on the round, zeroes the paid-out pot, flips the round to
// RESOLVED, and appends the payout record, as one atomic unit. Any failure
// leaves the round in DRAWING with no funds moved, so settlement can be
// retried. The payout record preserves the historical pot.
func (s *RedisService) Settle(id uint64, winner, randomValue string, winnerPayout, treasuryFee int64, treasuryAddr string, now int64) (*models.PayoutRecord, error) {
	data, err := settleScript.Run(s.ctx, s.client,
		[]string{
			roundKey(id),
			payoutKey(id),
			KeyPayoutIndex,
			walletKey(winner),
			walletKey(treasuryAddr),
			KeyDrawInflight,
		},
		winner, randomValue, winnerPayout, treasuryFee, now).Text()
	if err != nil {
		return nil, mapScriptErr(err)
	}

	var rec models.PayoutRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payout record: %v", err)
	}
	return &rec, nil
}

// GetPayout returns the payout record for a resolved round.
func (s *RedisService) GetPayout(id uint64) (*models.PayoutRecord, error) {
	data, err := s.client.Get(s.ctx, payoutKey(id)).Result()
	if err == redis.Nil {
		return nil, models.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %v", err)
	}

	var rec models.PayoutRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payout record: %v", err)
	}
	return &rec, nil
}

// GetHistory returns payout records newest-first. A non-zero fromRoundID
// bounds the scan to rounds at or below it, so callers page through history
// in fixed windows instead of scanning everything.
func (s *RedisService) GetHistory(fromRoundID uint64, limit int64) ([]*models.PayoutRecord, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}

	max := "+inf"
	if fromRoundID > 0 {
		max = strconv.FormatUint(fromRoundID, 10)
	}

	ids, err := s.client.ZRevRangeByScore(s.ctx, KeyPayoutIndex, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   max,
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout index: %v", err)
	}

	records := make([]*models.PayoutRecord, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		rec, err := s.GetPayout(id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// ============================================================================
// Wallets
// ============================================================================

// GetWallet returns the wallet for an address, creating it with the demo
// starting balance on first access.
func (s *RedisService) GetWallet(address string, startingBalance, now int64) (*models.Wallet, error) {
	data, err := s.client.Get(s.ctx, walletKey(address)).Result()
	if err == redis.Nil {
		wallet := models.NewWallet(address, startingBalance, now)
		if err := s.SaveWallet(wallet); err != nil {
			return nil, fmt.Errorf("failed to create wallet: %v", err)
		}
		return wallet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %v", err)
	}
	return &wallet, nil
}

func (s *RedisService) SaveWallet(wallet *models.Wallet) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %v", err)
	}
	return s.client.Set(s.ctx, walletKey(wallet.Address), data, 0).Err()
}

var creditScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("fund transfer failed")
	end

	local wallet = cjson.decode(data)
	wallet.balance = wallet.balance + tonumber(ARGV[1])
	wallet.updated_at = tonumber(ARGV[2])
	redis.call("SET", KEYS[1], cjson.encode(wallet))

	return wallet.balance
`)

// CreditWallet atomically adds to a wallet balance. Returns the new balance.
func (s *RedisService) CreditWallet(address string, amount, now int64) (int64, error) {
	balance, err := creditScript.Run(s.ctx, s.client,
		[]string{walletKey(address)}, amount, now).Int64()
	if err != nil {
		return 0, mapScriptErr(err)
	}
	return balance, nil
}

// ============================================================================
// Treasury
// ============================================================================

func (s *RedisService) GetTreasuryAddress(fallback string) (string, error) {
	addr, err := s.client.Get(s.ctx, KeyTreasury).Result()
	if err == redis.Nil {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get treasury address: %v", err)
	}
	return addr, nil
}

func (s *RedisService) SetTreasuryAddress(address string) error {
	return s.client.Set(s.ctx, KeyTreasury, address, 0).Err()
}

// ============================================================================
// Events
// ============================================================================

// AppendEvent assigns the next global sequence number and appends the event
// to the per-name log. The log is what the history surface queries; pushes
// over the websocket are hints only.
func (s *RedisService) AppendEvent(event *models.Event) error {
	seq, err := s.client.Incr(s.ctx, KeyEventSeq).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate event seq: %v", err)
	}

	event.Seq = uint64(seq)
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	key := fmt.Sprintf(KeyEventLog, event.Name)
	return s.client.ZAdd(s.ctx, key, redis.Z{
		Score:  float64(seq),
		Member: data,
	}).Err()
}

// GetEvents scans a bounded window of the event log for one event name,
// oldest-first from the given sequence number.
func (s *RedisService) GetEvents(name models.EventName, fromSeq uint64, limit int64) ([]*models.Event, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}

	key := fmt.Sprintf(KeyEventLog, name)
	raw, err := s.client.ZRangeByScore(s.ctx, key, &redis.ZRangeBy{
		Min:   strconv.FormatUint(fromSeq, 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan event log: %v", err)
	}

	events := make([]*models.Event, 0, len(raw))
	for _, item := range raw {
		var event models.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}

	return events, nil
}

// ============================================================================
// Rate limiting
// ============================================================================

func (s *RedisService) CheckRateLimit(address, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, address, action)

	count, err := s.client.Incr(s.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(s.ctx, key, window)
	}

	return count <= int64(limit), nil
}

// ============================================================================
// Test helpers
// ============================================================================

func (s *RedisService) DeleteRound(id uint64) error {
	return s.client.Del(s.ctx, roundKey(id), roundPlayersKey(id), payoutKey(id), drawResultKey(id)).Err()
}

func (s *RedisService) DeleteWallet(address string) error {
	return s.client.Del(s.ctx, walletKey(address)).Err()
}

func (s *RedisService) ClearDrawState(correlationID string) error {
	if correlationID != "" {
		s.client.Del(s.ctx, drawRequestKey(correlationID))
		s.client.SRem(s.ctx, KeyDrawFulfilled, correlationID)
	}
	return s.client.Del(s.ctx, KeyDrawInflight).Err()
}

func (s *RedisService) ClearJoinRateLimit(address string) error {
	return s.client.Del(s.ctx, fmt.Sprintf(KeyRateLimit, address, "join")).Err()
}

func (s *RedisService) ClearTreasuryAddress() error {
	return s.client.Del(s.ctx, KeyTreasury).Err()
}
