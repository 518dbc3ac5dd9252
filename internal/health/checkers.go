package health

import (
	"context"
	"errors"
	"fmt"
)

// VersionProber reports the AnkiConnect API version. Satisfied by
// *anki.Client.
type VersionProber interface {
	Version(ctx context.Context) (int, error)
}

// Pinger reports whether the review bridge add-on is reachable. Satisfied by
// *anki.Bridge.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolPinger reports database connectivity. Satisfied by *pgxpool.Pool.
type PoolPinger interface {
	Ping(ctx context.Context) error
}

// minConnectVersion is the oldest AnkiConnect API version the review service
// can drive.
const minConnectVersion = 6

// AnkiConnect returns a readiness checker that probes the AnkiConnect
// endpoint and verifies its API version.
func AnkiConnect(c VersionProber) Checker {
	return Checker{
		Name: "ankiconnect",
		Check: func(ctx context.Context) error {
			v, err := c.Version(ctx)
			if err != nil {
				return err
			}
			if v < minConnectVersion {
				return fmt.Errorf("ankiconnect version %d, need >= %d", v, minConnectVersion)
			}
			return nil
		},
	}
}

// Bridge returns a readiness checker that pings the review bridge add-on.
func Bridge(b Pinger) Checker {
	return Checker{
		Name:  "bridge",
		Check: b.Ping,
	}
}

// Postgres returns a readiness checker that pings the card index / history
// database pool. A nil pool reports failure rather than panicking so a
// misconfigured deployment surfaces in /readyz.
func Postgres(pool PoolPinger) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			if pool == nil {
				return errors.New("pool not configured")
			}
			return pool.Ping(ctx)
		},
	}
}
