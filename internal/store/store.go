// Package store provides persistence for stratus resources.
//
// Keys follow the convention "/{kind}/{scope}/{name}", e.g.
// "/WorkflowRun/weatherWorkflow/3f0c...". List results are ordered by key.
package store

import (
	"errors"
	"fmt"
	"strings"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// Store is the persistence interface for all stratus resources.
type Store interface {
	// Create stores a new object at the given key.
	// Returns an error if the key already exists.
	Create(key string, value interface{}) error

	// Get retrieves the object stored at key and deserialises it into target.
	// Returns ErrNotFound if the key does not exist.
	Get(key string, target interface{}) error

	// Update replaces the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Update(key string, value interface{}) error

	// Modify reads the object at key into target, calls mutate and writes
	// target back, all as one atomic step. If mutate returns an error
	// nothing is written and that error is returned.
	// Returns ErrNotFound if the key does not exist.
	Modify(key string, target interface{}, mutate func() error) error

	// Delete removes the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns every object whose key starts with prefix, ordered by key.
	// factory is called once per result to create a zero-value pointer that
	// the stored JSON is unmarshalled into.
	List(prefix string, factory func() interface{}) ([]interface{}, error)

	// Watch returns a channel that emits events for every mutation whose key
	// starts with prefix. The returned cancel function removes the watcher
	// and closes the channel.
	Watch(prefix string) (<-chan v1alpha1.WatchEvent, func())

	// Close releases any resources held by the store.
	Close() error
}

// Common sentinel errors.
var (
	ErrAlreadyExists = errors.New("key already exists")
	ErrNotFound      = errors.New("key not found")
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// ResourceKey builds a canonical store key for a resource.
//
//	ResourceKey("WorkflowRun", "weatherWorkflow", "run-1")
//	=> "/WorkflowRun/weatherWorkflow/run-1"
func ResourceKey(kind, scope, name string) string {
	return fmt.Sprintf("/%s/%s/%s", kind, scope, name)
}

// KindPrefix returns the list prefix for every resource of kind,
// optionally narrowed to a scope.
func KindPrefix(kind, scope string) string {
	if scope == "" {
		return "/" + kind + "/"
	}
	return fmt.Sprintf("/%s/%s/", kind, scope)
}

// kindFromKey extracts the Kind segment from a "/{kind}/{scope}/{name}" key.
func kindFromKey(key string) string {
	parts := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 3)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
