//go:build integration

// Package containers starts the backing services integration tests run
// against.  Each container is started once per test binary.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out shared containers.
type Manager struct {
	mongoOnce sync.Once
	mongo     *MongoContainer
	redisOnce sync.Once
	redis     *RedisContainer
}

var manager = &Manager{}

// GetManager returns the process-wide Manager.
func GetManager() *Manager { return manager }

// GetMongo starts MongoDB on first use.
func (m *Manager) GetMongo(t *testing.T) *MongoContainer {
	t.Helper()
	m.mongoOnce.Do(func() { m.mongo = NewMongoContainer(t) })
	if m.mongo == nil {
		t.Fatal("mongo container failed to start earlier")
	}
	return m.mongo
}

// GetRedis starts Redis on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() { m.redis = NewRedisContainer(t) })
	if m.redis == nil {
		t.Fatal("redis container failed to start earlier")
	}
	return m.redis
}
