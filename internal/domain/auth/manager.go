package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vision-server-go/internal/domain/auth/model"
	"vision-server-go/internal/domain/auth/store"
)

type (
	// ClientInfo re-exports the shared auth entity for callers.
	ClientInfo = model.ClientInfo
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

const (
	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
)

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Store           store.Store
	Logger          Logger
	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

// Manager coordinates authentication client storage lifecycle.
type Manager struct {
	store      store.Store
	logger     Logger
	sessionTTL time.Duration

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
	mu              sync.RWMutex
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("auth manager requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth manager requires a logger")
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.Warn(
			"cleanup interval too small, adjusting to minimum",
			minCleanupInterval,
		)
		cleanupInterval = minCleanupInterval
	}
	mgr := &Manager{
		store:           opts.Store,
		logger:          opts.Logger,
		sessionTTL:      sessionTTL,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}

	go mgr.runCleanup()
	return mgr, nil
}

func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.store.CleanupExpired(context.Background()); err != nil {
				m.logger.Warn("auth store cleanup failed: %v", err)
			}
		case <-m.cleanupStop:
			return
		}
	}
}

// RegisterClient persists credentials and metadata.
func (m *Manager) RegisterClient(ctx context.Context, info ClientInfo) error {
	if info.ClientID == "" {
		return fmt.Errorf("client id must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	info.CreatedAt = now
	if m.sessionTTL > 0 {
		expiresAt := now.Add(m.sessionTTL)
		info.ExpiresAt = &expiresAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Store(ctx, info); err != nil {
		m.logger.Error("failed to register client: %s: %v", info.ClientID, err)
		return err
	}
	m.logger.Debug("registered auth client: %s", info.ClientID)
	return nil
}

// Authenticate verifies credentials and returns client context.
func (m *Manager) Authenticate(
	ctx context.Context,
	clientID string,
	username string,
	password string,
) (ClientInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok, err := m.store.Validate(ctx, clientID, username, password)
	if err != nil {
		m.logger.Error("auth validation failed: %s: %v", clientID, err)
		return ClientInfo{}, false, err
	}
	if !ok {
		m.logger.Debug("auth rejected: %s", clientID)
		return ClientInfo{}, false, nil
	}
	return info, true, nil
}

// Get returns client info without authentication.
func (m *Manager) Get(ctx context.Context, clientID string) (ClientInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.store.Get(ctx, clientID)
}

// Remove deletes client credentials.
func (m *Manager) Remove(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Remove(ctx, clientID); err != nil {
		return err
	}
	m.logger.Info("removed auth client: %s", clientID)
	return nil
}

// List returns active client identifiers.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.store.List(ctx)
}

// Stats returns debug information from the store backend.
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.store.Stats(ctx)
}

// Close releases underlying resources.
func (m *Manager) Close() error {
	var err error

	m.cleanupOnce.Do(func() {
		close(m.cleanupStop)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if closeErr := m.store.Close(context.Background()); closeErr != nil {
		err = closeErr
		m.logger.Error("failed closing auth store: %v", closeErr)
	}
	return err
}
