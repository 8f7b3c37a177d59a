// Package redis provides a Redis-backed claim ledger for deployments where executors on several
// hosts claim attempts concurrently. Every other record stays in the wrapped persistence.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/handoff/pkg/models"
	"github.com/dukex/handoff/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "handoff"

// createClaim stores the claim document only if the attempt key is free and indexes it under
// its step in the same script, so the ledger and the index never disagree.
var createClaim = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX") then
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
	return 1
end
return 0
`)

// ClaimRepository keeps one key per attempt plus a sorted set per (workItemId, stepKey).
type ClaimRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewClaimRepository creates a claim repository. Keys are namespaced by prefix.
func NewClaimRepository(client redis.UniversalClient, prefix string) *ClaimRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &ClaimRepository{client: client, prefix: prefix}
}

func (cr *ClaimRepository) claimKey(attemptID string) string {
	return cr.prefix + ":claims:" + attemptID
}

func (cr *ClaimRepository) stepKey(workItemID, stepKey string) string {
	return cr.prefix + ":claims:step:" + workItemID + ":" + stepKey
}

// Locate returns the Redis key holding the claim of an attempt.
func (cr *ClaimRepository) Locate(attemptID string) string {
	return "redis://" + cr.claimKey(attemptID)
}

// Create stores the claim unless the attempt is already claimed.
func (cr *ClaimRepository) Create(ctx context.Context, claim models.ClaimRecord) error {
	document, err := json.Marshal(claim)
	if err != nil {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, fmt.Errorf("failed to marshal claim: %w", err))
	}

	created, err := createClaim.Run(ctx, cr.client,
		[]string{cr.claimKey(claim.AttemptID), cr.stepKey(claim.WorkItemID, claim.StepKey)},
		document, claim.ClaimedAt.UnixMilli(), claim.AttemptID,
	).Int()
	if err != nil {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, fmt.Errorf("failed to store claim: %w", err))
	}

	if created == 0 {
		return persistence.NewRecordError("Create", "claim", claim.AttemptID, persistence.ErrAlreadyExists)
	}

	return nil
}

// Get retrieves a claim by attempt id.
func (cr *ClaimRepository) Get(ctx context.Context, attemptID string) (models.ClaimRecord, error) {
	raw, err := cr.client.Get(ctx, cr.claimKey(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, persistence.ErrNotFound)
		}

		return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, fmt.Errorf("failed to read claim: %w", err))
	}

	var claim models.ClaimRecord

	err = json.Unmarshal(raw, &claim)
	if err != nil {
		return models.ClaimRecord{}, persistence.NewRecordError("Get", "claim", attemptID, fmt.Errorf("failed to unmarshal claim: %w", err))
	}

	return claim, nil
}

// ListByStep returns the claims of a (workItemId, stepKey) pair ordered by ClaimedAt.
func (cr *ClaimRepository) ListByStep(ctx context.Context, workItemID, stepKey string) ([]models.ClaimRecord, error) {
	attemptIDs, err := cr.client.ZRange(ctx, cr.stepKey(workItemID, stepKey), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewRecordError("ListByStep", "claim", "", fmt.Errorf("failed to read step index: %w", err))
	}

	claims := make([]models.ClaimRecord, 0, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return claims, nil
	}

	keys := make([]string, 0, len(attemptIDs))
	for _, attemptID := range attemptIDs {
		keys = append(keys, cr.claimKey(attemptID))
	}

	values, err := cr.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.NewRecordError("ListByStep", "claim", "", fmt.Errorf("failed to read claims: %w", err))
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var claim models.ClaimRecord
		if json.Unmarshal([]byte(raw), &claim) != nil {
			continue
		}

		claims = append(claims, claim)
	}

	slices.SortFunc(claims, func(a, b models.ClaimRecord) int {
		return cmp.Or(a.ClaimedAt.Compare(b.ClaimedAt), cmp.Compare(a.AttemptID, b.AttemptID))
	})

	return claims, nil
}

// Persistence serves claims from Redis and delegates every other repository to base.
type Persistence struct {
	persistence.Persistence

	client redis.UniversalClient
	claims *ClaimRepository
	logger *slog.Logger
}

// NewPersistence connects to the Redis server at redisURL (redis://[user:pass@]host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string, base persistence.Persistence) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return &Persistence{
		Persistence: base,
		client:      client,
		claims:      NewClaimRepository(client, defaultPrefix),
		logger:      logger,
	}, nil
}

func (p *Persistence) ClaimRepository() persistence.ClaimRepository {
	return p.claims
}

// HealthCheck pings Redis and checks the wrapped persistence.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return p.Persistence.HealthCheck(ctx)
}

// Close closes the Redis client and the wrapped persistence.
func (p *Persistence) Close(ctx context.Context) error {
	return errors.Join(p.client.Close(), p.Persistence.Close(ctx))
}

var _ persistence.Persistence = (*Persistence)(nil)
