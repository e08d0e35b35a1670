package platauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/venn-labs/platauth/password"
	"github.com/venn-labs/platauth/permission"
)

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[string]*PlatformAccount
	codes    map[string][][32]byte
	hashErrs int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byID:  map[string]*PlatformAccount{},
		codes: map[string][][32]byte{},
	}
}

func (f *fakeAccounts) add(a PlatformAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.byID[a.ID] = &cp
}

func (f *fakeAccounts) get(id string) PlatformAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeAccounts) GetAccountByEmail(_ context.Context, email string) (PlatformAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return *a, nil
		}
	}
	return PlatformAccount{}, errors.New("no such account")
}

func (f *fakeAccounts) GetAccountByID(_ context.Context, id string) (PlatformAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return PlatformAccount{}, errors.New("no such account")
	}
	return *a, nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.PasswordHash = hash
	}
	return nil
}

func (f *fakeAccounts) RecordLoginFailure(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return 0, errors.New("no such account")
	}
	a.FailedAttempts++
	return a.FailedAttempts, nil
}

func (f *fakeAccounts) LockAccount(_ context.Context, id string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.LockedUntil = until
	}
	return nil
}

func (f *fakeAccounts) ClearLoginFailures(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.FailedAttempts = 0
		a.LockedUntil = time.Time{}
	}
	return nil
}

func (f *fakeAccounts) SaveTOTPSecret(_ context.Context, id string, secret []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	a.TOTPSecret = secret
	a.MFAStatus = MFAPending
	return nil
}

func (f *fakeAccounts) ConfirmTOTP(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	a.MFAStatus = MFAEnabled
	return nil
}

func (f *fakeAccounts) DisableMFA(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	a.MFAStatus = MFADisabled
	a.TOTPSecret = nil
	return nil
}

func (f *fakeAccounts) ReplaceBackupCodes(_ context.Context, id string, records []BackupCodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashes := make([][32]byte, len(records))
	for i, r := range records {
		hashes[i] = r.Hash
	}
	f.codes[id] = hashes
	return nil
}

func (f *fakeAccounts) ConsumeBackupCode(_ context.Context, id string, hash [32]byte) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashes := f.codes[id]
	for i, h := range hashes {
		if h == hash {
			f.codes[id] = append(hashes[:i], hashes[i+1:]...)
			return true, len(f.codes[id]), nil
		}
	}
	return false, len(hashes), nil
}

type fakeDirectory struct {
	users map[string]TenantUser // key tenantID + "/" + userID
}

func (f *fakeDirectory) GetTenantUser(_ context.Context, tenantID, userID string) (TenantUser, error) {
	u, ok := f.users[tenantID+"/"+userID]
	if !ok {
		return TenantUser{}, errors.New("no such user")
	}
	return u, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []AuditEntry
	fail    bool
}

func (s *memAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("ledger down")
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memAuditStore) Query(_ context.Context, filter AuditFilter) ([]AuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memAuditStore) last(t *testing.T) AuditEntry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		t.Fatal("audit ledger is empty")
	}
	return s.entries[len(s.entries)-1]
}

func (s *memAuditStore) countAction(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type memImpStore struct {
	mu       sync.Mutex
	sessions map[string]*ImpersonationSession
	actions  map[string][]ImpersonationAction
}

func newMemImpStore() *memImpStore {
	return &memImpStore{
		sessions: map[string]*ImpersonationSession{},
		actions:  map[string][]ImpersonationAction{},
	}
}

func (s *memImpStore) Create(_ context.Context, sess *ImpersonationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Active &&
			existing.PlatformAccountID == sess.PlatformAccountID &&
			existing.TenantID == sess.TenantID &&
			existing.TargetUserID == sess.TargetUserID {
			return ErrConflict
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memImpStore) Get(_ context.Context, id string) (ImpersonationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ImpersonationSession{}, ErrNotFound
	}
	return *sess, nil
}

func (s *memImpStore) End(_ context.Context, id, endedBy, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !sess.Active {
		return ErrConflict
	}
	sess.Active = false
	sess.EndedAt = at
	sess.EndedBy = endedBy
	sess.EndReason = reason
	return nil
}

func (s *memImpStore) AppendAction(_ context.Context, id, action, endpoint, method string, metadata map[string]string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.Active {
		return nil
	}
	s.actions[id] = append(s.actions[id], ImpersonationAction{
		ID:              int64(len(s.actions[id]) + 1),
		ImpersonationID: id,
		Action:          action,
		Endpoint:        endpoint,
		Method:          method,
		Metadata:        metadata,
		OccurredAt:      at,
	})
	return nil
}

func (s *memImpStore) CountActions(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions[id]), nil
}

func (s *memImpStore) SweepExpired(_ context.Context, now time.Time) ([]ImpersonationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept []ImpersonationSession
	for _, sess := range s.sessions {
		if sess.Active && !sess.ExpiresAt.After(now) {
			sess.Active = false
			sess.EndedAt = now
			sess.EndedBy = "system"
			sess.EndReason = EndReasonTimedOut
			swept = append(swept, *sess)
		}
	}
	return swept, nil
}

func (s *memImpStore) ListActive(_ context.Context) ([]ImpersonationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ImpersonationSession
	for _, sess := range s.sessions {
		if sess.Active {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *memImpStore) ListHistory(_ context.Context, actorID string, limit int) ([]ImpersonationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ImpersonationSession
	for _, sess := range s.sessions {
		if sess.PlatformAccountID == actorID {
			out = append(out, *sess)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type testHarness struct {
	engine    *Engine
	redis     *miniredis.Miniredis
	accounts  *fakeAccounts
	directory *fakeDirectory
	audit     *memAuditStore
	imp       *memImpStore
	config    Config
}

func testConfig(t *testing.T) Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.MFA.TempTokenKey = []byte("0123456789abcdef0123456789abcdef")
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	accounts := newFakeAccounts()
	directory := &fakeDirectory{users: map[string]TenantUser{
		"tenant-1/user-1": {ID: "user-1", TenantID: "tenant-1", Email: "user@tenant.example", Active: true},
		"tenant-1/user-2": {ID: "user-2", TenantID: "tenant-1", Email: "gone@tenant.example", Active: false},
	}}
	audit := &memAuditStore{}
	imp := newMemImpStore()
	cfg := testConfig(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountProvider(accounts).
		WithDirectoryProvider(directory).
		WithAuditStore(audit).
		WithImpersonationStore(imp).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{
		engine:    engine,
		redis:     mr,
		accounts:  accounts,
		directory: directory,
		audit:     audit,
		imp:       imp,
		config:    cfg,
	}
}

func (h *testHarness) addAccount(t *testing.T, id, email, pass string, role permission.Role) PlatformAccount {
	t.Helper()
	hasher, err := password.New(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account := PlatformAccount{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       AccountActive,
	}
	h.accounts.add(account)
	return account
}

// enableMFA runs the full enrollment so the account state matches what the
// engine itself would produce.
func (h *testHarness) enableMFA(t *testing.T, accountID string) ([]byte, []string) {
	t.Helper()
	setup, err := h.engine.SetupMFA(context.Background(), accountID)
	if err != nil {
		t.Fatalf("mfa setup: %v", err)
	}
	secret := h.accounts.get(accountID).TOTPSecret
	code := totpCodeNow(t, h, secret)
	if err := h.engine.ConfirmMFASetup(context.Background(), accountID, code); err != nil {
		t.Fatalf("mfa confirm: %v", err)
	}
	return secret, setup.BackupCodes
}

func totpCodeNow(t *testing.T, h *testHarness, secret []byte) string {
	t.Helper()
	counter := time.Now().Unix() / int64(h.config.MFA.Period)
	code, err := hotpCode(secret, counter, h.config.MFA.Digits, h.config.MFA.Algorithm)
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

func loginCtx(ip, ua string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, ua)
}
