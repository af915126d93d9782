package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard records which time steps a subject has already redeemed
type ReplayGuard interface {
	// Claim marks step as used for subjectID. It returns false if the step was
	// already claimed. ttl bounds how long the claim must be remembered.
	Claim(ctx context.Context, subjectID string, step int64, ttl time.Duration) (bool, error)
}

// RedisReplayGuard claims steps with SET NX so that concurrent verifier
// instances agree on the first redemption
type RedisReplayGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisReplayGuard creates a replay guard on a Redis client
func NewRedisReplayGuard(client *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{
		client: client,
		prefix: "smartpass:replay:",
	}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, subjectID string, step int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s:%d", g.prefix, subjectID, step)

	claimed, err := g.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim scan step: %w", err)
	}
	return claimed, nil
}

// PostgresReplayGuard claims steps through the credential row: a step is only
// accepted if it is newer than the last accepted one
type PostgresReplayGuard struct {
	creds PassCredentialRepository
}

// NewPostgresReplayGuard creates a replay guard backed by pass_credentials
func NewPostgresReplayGuard(creds PassCredentialRepository) *PostgresReplayGuard {
	return &PostgresReplayGuard{creds: creds}
}

// Claim ignores ttl: the row keeps the highest step for the credential's lifetime
func (g *PostgresReplayGuard) Claim(ctx context.Context, subjectID string, step int64, _ time.Duration) (bool, error) {
	return g.creds.ClaimStep(ctx, subjectID, step)
}
