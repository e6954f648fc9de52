package store

import (
	"context"
	"crypto/subtle"
	"slices"
	"sort"
	"sync"
	"time"

	"permitflow/internal/utils"
	"permitflow/pkg/types"
)

// Memory implements Applications, Challenges and DownloadTokens in process.
// It backs the test suites and STORE_DRIVER=memory; it keeps the same
// atomicity guarantees as the Postgres repositories.
type Memory struct {
	mu         sync.Mutex
	apps       map[string]*types.Application
	numbers    map[string]string
	challenges map[challengeKey]*types.OtpChallenge
	tokens     map[string]*types.DownloadAccessToken

	locksMu  sync.Mutex
	appLocks map[string]*sync.Mutex
}

type challengeKey struct {
	applicationID string
	purpose       types.OtpPurpose
}

func NewMemory() *Memory {
	return &Memory{
		apps:       make(map[string]*types.Application),
		numbers:    make(map[string]string),
		challenges: make(map[challengeKey]*types.OtpChallenge),
		tokens:     make(map[string]*types.DownloadAccessToken),
		appLocks:   make(map[string]*sync.Mutex),
	}
}

func (m *Memory) appLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.appLocks[id]
	if !ok {
		l = new(sync.Mutex)
		m.appLocks[id] = l
	}
	return l
}

func (m *Memory) Application(_ context.Context, id string) (*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, types.ErrApplicationNotFound
	}
	return app.Clone(), nil
}

func (m *Memory) ApplicationByNumber(_ context.Context, applicationNumber string) (*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.numbers[applicationNumber]
	if !ok {
		return nil, types.ErrApplicationNotFound
	}
	return m.apps[id].Clone(), nil
}

func (m *Memory) ApplicationsByStage(_ context.Context, stages []types.Stage, positionType string) ([]*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Application, 0)
	for _, app := range m.apps {
		if !slices.Contains(stages, app.Stage) {
			continue
		}
		if positionType != "" && app.PositionType != positionType {
			continue
		}
		out = append(out, app.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})

	return out, nil
}

func (m *Memory) SignedApplications(_ context.Context) ([]*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Application, 0)
	for _, app := range m.apps {
		if app.Certificate != nil {
			out = append(out, app.Clone())
		}
	}
	return out, nil
}

func (m *Memory) CreateApplication(_ context.Context, app *types.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if app.ID == "" {
		app.ID = utils.NanoID()
	}
	if _, ok := m.apps[app.ID]; ok {
		return types.NewValidationError("id", "application already exists")
	}
	if _, ok := m.numbers[app.ApplicationNumber]; ok {
		return types.NewValidationError("applicationNumber", "application number already exists")
	}

	app.Version = 1
	app.CreatedAt = now
	app.UpdatedAt = now

	m.apps[app.ID] = app.Clone()
	m.numbers[app.ApplicationNumber] = app.ID
	return nil
}

func (m *Memory) MutateApplication(ctx context.Context, id string, fn MutateFunc) (*types.Application, error) {
	lock := m.appLock(id)
	lock.Lock()
	defer lock.Unlock()

	app, err := m.Application(ctx, id)
	if err != nil {
		return nil, err
	}

	tx := &memTx{m: m}
	if err := fn(ctx, tx, app); err != nil {
		tx.rollback()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app.ID = id
	app.Version++
	app.UpdatedAt = time.Now()
	m.apps[id] = app.Clone()

	return app, nil
}

// memTx consumes challenges immediately, so concurrent consumers still race
// on the same flag, and restores them if the mutation is abandoned.
type memTx struct {
	m        *Memory
	consumed []*types.OtpChallenge
}

func (t *memTx) ConsumeChallenge(ctx context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	ch, err := t.m.consumeLocked(applicationID, purpose, codeHash, now)
	if err != nil {
		return nil, err
	}
	t.consumed = append(t.consumed, t.m.challenges[challengeKey{applicationID, purpose}])
	return ch, nil
}

func (t *memTx) rollback() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	for _, ch := range t.consumed {
		current, ok := t.m.challenges[challengeKey{ch.ApplicationID, ch.Purpose}]
		if !ok || current != ch {
			continue
		}
		current.Consumed = false
		current.ConsumedAt = nil
	}
}

func (m *Memory) ReplaceChallenge(_ context.Context, ch *types.OtpChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch.CreatedAt = time.Now()
	ch.Attempts = 0
	ch.Consumed = false
	ch.ConsumedAt = nil

	stored := *ch
	m.challenges[challengeKey{ch.ApplicationID, ch.Purpose}] = &stored
	return nil
}

func (m *Memory) ConsumeChallenge(_ context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.consumeLocked(applicationID, purpose, codeHash, now)
}

func (m *Memory) consumeLocked(applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	ch, ok := m.challenges[challengeKey{applicationID, purpose}]
	if !ok || !ch.Live(now) {
		return nil, types.ErrInvalidOrExpiredOtp
	}
	if subtle.ConstantTimeCompare([]byte(ch.CodeHash), []byte(codeHash)) != 1 {
		return nil, types.ErrInvalidOrExpiredOtp
	}

	ch.Consumed = true
	ch.ConsumedAt = utils.TimePtr(now)

	out := *ch
	return &out, nil
}

func (m *Memory) RecordFailedAttempt(_ context.Context, applicationID string, purpose types.OtpPurpose, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[challengeKey{applicationID, purpose}]
	if !ok || ch.Consumed {
		return nil
	}
	ch.Attempts++
	if ch.Attempts >= maxAttempts {
		ch.Consumed = true
	}
	return nil
}

func (m *Memory) DeleteExpiredChallenges(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, ch := range m.challenges {
		if ch.ExpiresAt.Before(before) {
			delete(m.challenges, key)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateDownloadToken(_ context.Context, token *types.DownloadAccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *token
	m.tokens[token.TokenHash] = &stored
	return nil
}

func (m *Memory) DownloadToken(_ context.Context, tokenHash string) (*types.DownloadAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, types.ErrTokenNotFound
	}
	out := *token
	return &out, nil
}

func (m *Memory) DeleteExpiredDownloadTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, token := range m.tokens {
		if token.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}
