package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temple4/community-core/internal/db/models"
)

type fakeStore struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (f *fakeStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return f.err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

type fakeShipper struct {
	mu      sync.Mutex
	entries []*LogEntry
	err     error
}

func (f *fakeShipper) Ship(_ context.Context, e *LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeShipper) Close() error { return nil }

func TestRecorder_Record(t *testing.T) {
	store := &fakeStore{}
	shipper := &fakeShipper{}
	r := NewRecorder(store, shipper)

	r.Record(context.Background(), &LogEntry{
		Action:       ActionSuperAdminOverride,
		UserID:       "admin",
		TenantID:     "t1",
		ResourceType: "tenant",
		AuthMethod:   "jwt",
		Metadata:     map[string]interface{}{"permission": "MANAGE_FINANCES"},
	})

	require.Len(t, store.logs, 1)
	log := store.logs[0]
	assert.Equal(t, ActionSuperAdminOverride, log.Action)
	assert.Equal(t, "admin", *log.UserID)
	assert.Equal(t, "t1", *log.TenantID)
	assert.Nil(t, log.ResourceID)
	assert.Nil(t, log.IPAddress)
	assert.Equal(t, "MANAGE_FINANCES", log.Metadata["permission"])
	assert.Equal(t, "jwt", log.Metadata["auth_method"])
	assert.False(t, log.CreatedAt.IsZero())

	require.Len(t, shipper.entries, 1)
}

func TestRecorder_FailuresAreSwallowed(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	shipper := &fakeShipper{err: errors.New("webhook down")}
	r := NewRecorder(store, shipper)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), &LogEntry{Action: ActionDonationRecorded})
	})
	assert.Len(t, shipper.entries, 1)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), &LogEntry{Action: "x"})
		r.RecordAsync(&LogEntry{Action: "x"})
	})

	NewRecorder(nil, nil).Record(context.Background(), &LogEntry{Action: "x"})
}

func TestRecorder_RecordAsync(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	r.RecordAsync(&LogEntry{Action: ActionPledgeAdvanced})

	assert.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
