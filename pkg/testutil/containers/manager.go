//go:build integration

// Package containers starts the backing services integration suites run
// against. Containers are started once per test binary and shared; Ryuk
// removes them when the process exits.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out shared containers, starting each on first use.
type Manager struct {
	postgresOnce sync.Once
	postgres     *PostgresContainer
	postgresErr  string

	redisOnce sync.Once
	redis     *RedisContainer
	redisErr  string

	redpandaOnce sync.Once
	redpanda     *RedpandaContainer
	redpandaErr  string
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.postgresOnce.Do(func() {
		m.postgres, m.postgresErr = startPostgres()
	})
	if m.postgres == nil {
		t.Fatalf("postgres container unavailable: %s", m.postgresErr)
	}
	return m.postgres
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		m.redis, m.redisErr = startRedis()
	})
	if m.redis == nil {
		t.Fatalf("redis container unavailable: %s", m.redisErr)
	}
	return m.redis
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.redpandaOnce.Do(func() {
		m.redpanda, m.redpandaErr = startRedpanda()
	})
	if m.redpanda == nil {
		t.Fatalf("redpanda container unavailable: %s", m.redpandaErr)
	}
	return m.redpanda
}
