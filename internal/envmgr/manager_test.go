package envmgr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/controller/envvar"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/envfile"
	"github.com/chueng/site-admin/internal/secret"
)

type capturedEvent struct {
	action string
	key    string
}

// captureAudit records audit calls for assertions.
type captureAudit struct {
	events []capturedEvent
}

func (a *captureAudit) Record(_, action, _ string, _ *uint64, details interface{}) {
	key := ""
	if d, ok := details.(map[string]string); ok {
		key = d["key"]
	}
	if d, ok := details.(map[string]interface{}); ok {
		key, _ = d["key"].(string)
	}
	a.events = append(a.events, capturedEvent{action: action, key: key})
}

// captureNotify records broadcast calls.
type captureNotify struct {
	types []string
}

func (n *captureNotify) Broadcast(eventType string, _ interface{}) {
	n.types = append(n.types, eventType)
}

type testRig struct {
	mgr    *Manager
	db     *gorm.DB
	cipher *secret.Cipher
	shadow string
	audit  *captureAudit
	notify *captureNotify
}

func setupManager(t *testing.T) *testRig {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.AutoMigrate(&models.EnvVar{}, &models.EnvHistory{}))

	key := bytes.Repeat([]byte{0x42}, 32)
	cipher, err := secret.NewCipher(key)
	require.NoError(t, err)

	shadowPath := filepath.Join(t.TempDir(), ".env")
	auditSink := &captureAudit{}
	notifySink := &captureNotify{}

	return &testRig{
		mgr:    New(db, cipher, envfile.New(shadowPath), auditSink, notifySink),
		db:     db,
		cipher: cipher,
		shadow: shadowPath,
		audit:  auditSink,
		notify: notifySink,
	}
}

func (r *testRig) shadowContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(r.shadow)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

// currentPlaintext decrypts the store's live value for key.
func (r *testRig) currentPlaintext(t *testing.T, key string) string {
	t.Helper()
	row, err := envvar.Get(r.db, key)
	require.NoError(t, err)
	plain, err := r.cipher.Decrypt(row.ValueEncrypted)
	require.NoError(t, err)
	return plain
}

func TestSetValidation(t *testing.T) {
	rig := setupManager(t)

	testCases := []string{"", "has space", "bad-dash", "semi;colon", "ünïcode"}
	for _, key := range testCases {
		t.Run("key="+key, func(t *testing.T) {
			err := rig.mgr.Set("admin", key, "v", "", true)
			assert.ErrorIs(t, err, ErrKeyInvalid)
		})
	}

	entries, err := rig.mgr.History("", 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected writes must not reach the ledger")
}

func TestSetSecure(t *testing.T) {
	rig := setupManager(t)

	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))

	t.Run("store holds ciphertext", func(t *testing.T) {
		row, err := envvar.Get(rig.db, "API_TOKEN")
		require.NoError(t, err)
		assert.NotEqual(t, "abc123", row.ValueEncrypted)
		assert.Equal(t, "api", row.Category)
		assert.Equal(t, "abc123", rig.currentPlaintext(t, "API_TOKEN"))
	})

	t.Run("listing masks the value", func(t *testing.T) {
		grouped, err := rig.mgr.List()
		require.NoError(t, err)
		require.Len(t, grouped["api"], 1)
		assert.Equal(t, Masked, grouped["api"][0].Value)
		assert.True(t, grouped["api"][0].Secure)
		assert.NotContains(t, grouped["api"][0].Value, "abc123")
	})

	t.Run("shadow file mirrors plaintext", func(t *testing.T) {
		assert.Contains(t, rig.shadowContent(t), "API_TOKEN=abc123\n")
	})

	t.Run("audit and broadcast fired", func(t *testing.T) {
		require.Len(t, rig.audit.events, 1)
		assert.Equal(t, "env_set", rig.audit.events[0].action)
		assert.Equal(t, "API_TOKEN", rig.audit.events[0].key)
		assert.Equal(t, []string{EventEnvUpdate}, rig.notify.types)
	})
}

func TestSetPlain(t *testing.T) {
	rig := setupManager(t)

	require.NoError(t, rig.mgr.Set("admin", "SITE_TITLE", "my site", "", false))

	_, err := envvar.Get(rig.db, "SITE_TITLE")
	assert.ErrorIs(t, err, envvar.ErrEnvVarNotFound, "plain writes bypass the store")

	entries, err := rig.mgr.History("SITE_TITLE", 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "plain writes leave no ledger entry")

	assert.Contains(t, rig.shadowContent(t), "SITE_TITLE=my site\n")

	grouped, err := rig.mgr.List()
	require.NoError(t, err)
	require.Len(t, grouped["other"], 1)
	assert.Equal(t, "my site", grouped["other"][0].Value, "plain entries list unmasked")
	assert.False(t, grouped["other"][0].Secure)

	require.Len(t, rig.audit.events, 1)
	assert.Equal(t, "env_set_plain", rig.audit.events[0].action)
}

func TestHistoryAccumulation(t *testing.T) {
	rig := setupManager(t)

	values := []string{"v1", "v2", "v3", "v4"}
	for _, v := range values {
		require.NoError(t, rig.mgr.Set("admin", "DB_PASSWORD", v, "", true))
	}

	entries, err := rig.mgr.History("DB_PASSWORD", 0)
	require.NoError(t, err)
	require.Len(t, entries, len(values))

	// Newest first; each entry's old chains to the previous entry's new.
	assert.Nil(t, entries[len(entries)-1].OldValueEncrypted)
	for i := 0; i < len(entries)-1; i++ {
		require.NotNil(t, entries[i].OldValueEncrypted)
		assert.Equal(t, entries[i+1].NewValueEncrypted, *entries[i].OldValueEncrypted)
	}

	plain, err := rig.cipher.Decrypt(entries[0].NewValueEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "v4", plain)
}

func TestShadowNoDuplicates(t *testing.T) {
	rig := setupManager(t)

	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "one", "", true))
	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "two", "", true))
	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "three", "", true))

	content := rig.shadowContent(t)
	assert.Equal(t, 1, bytes.Count([]byte(content), []byte("API_TOKEN=")))
	assert.Contains(t, content, "API_TOKEN=three\n")
}

func TestRollback(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		rig := setupManager(t)

		_, err := rig.mgr.Rollback("admin", 4242)
		assert.Error(t, err)
	})

	t.Run("restores previous value", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "xyz789", "", true))

		entries, err := rig.mgr.History("API_TOKEN", 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		newest := entries[0]

		oldPlain, err := rig.cipher.Decrypt(*newest.OldValueEncrypted)
		require.NoError(t, err)
		require.Equal(t, "abc123", oldPlain)

		plain, err := rig.mgr.Rollback("admin", newest.ID)
		require.NoError(t, err)
		assert.Equal(t, "abc123", plain)

		// Store now decrypts to the rolled-back value, ciphertext verbatim.
		row, err := envvar.Get(rig.db, "API_TOKEN")
		require.NoError(t, err)
		assert.Equal(t, *newest.OldValueEncrypted, row.ValueEncrypted)
		assert.Equal(t, "abc123", rig.currentPlaintext(t, "API_TOKEN"))

		// Exactly one new ledger entry recording the rollback as a write.
		entries, err = rig.mgr.History("API_TOKEN", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, *newest.OldValueEncrypted, entries[0].NewValueEncrypted)

		assert.Contains(t, rig.shadowContent(t), "API_TOKEN=abc123\n")

		last := rig.audit.events[len(rig.audit.events)-1]
		assert.Equal(t, "env_rollback", last.action)
	})

	t.Run("first-write entry restores empty", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))

		entries, err := rig.mgr.History("API_TOKEN", 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Nil(t, entries[0].OldValueEncrypted)

		plain, err := rig.mgr.Rollback("admin", entries[0].ID)
		require.NoError(t, err)
		assert.Empty(t, plain)

		row, err := envvar.Get(rig.db, "API_TOKEN")
		require.NoError(t, err)
		assert.Empty(t, row.ValueEncrypted)

		assert.Contains(t, rig.shadowContent(t), "API_TOKEN=\n")
	})

	t.Run("corrupt old ciphertext stays localized", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "xyz789", "", true))

		entries, err := rig.mgr.History("API_TOKEN", 0)
		require.NoError(t, err)
		newest := entries[0]

		// Corrupt the entry's old ciphertext in place.
		require.NoError(t, rig.db.Model(&models.EnvHistory{}).
			Where("id = ?", newest.ID).
			Update("old_value_encrypted", "not-a-token").Error)

		plain, err := rig.mgr.Rollback("admin", newest.ID)
		require.NoError(t, err, "decrypt failure must not abort the rollback")
		assert.Empty(t, plain)

		row, err := envvar.Get(rig.db, "API_TOKEN")
		require.NoError(t, err)
		assert.Equal(t, "not-a-token", row.ValueEncrypted, "old ciphertext written back verbatim")
	})
}

// TestScenarioAPIToken walks the full write/list/history/rollback cycle.
func TestScenarioAPIToken(t *testing.T) {
	rig := setupManager(t)

	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))

	grouped, err := rig.mgr.List()
	require.NoError(t, err)
	require.Len(t, grouped["api"], 1)
	assert.Equal(t, Masked, grouped["api"][0].Value)

	require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "xyz789", "", true))

	entries, err := rig.mgr.History("API_TOKEN", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	oldPlain, err := rig.cipher.Decrypt(*entries[0].OldValueEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "abc123", oldPlain)

	_, err = rig.mgr.Rollback("admin", entries[0].ID)
	require.NoError(t, err)

	assert.Equal(t, "abc123", rig.currentPlaintext(t, "API_TOKEN"))
	assert.Contains(t, rig.shadowContent(t), "API_TOKEN=abc123\n")
}

func TestCategoryResolution(t *testing.T) {
	rig := setupManager(t)

	require.NoError(t, rig.mgr.Set("admin", "DB_HOST", "localhost", "", true))
	require.NoError(t, rig.mgr.Set("admin", "RANDOM_FLAG", "on", "", true))
	require.NoError(t, rig.mgr.Set("admin", "MY_SECRET", "s", "custom", true))

	grouped, err := rig.mgr.List()
	require.NoError(t, err)
	require.Len(t, grouped["database"], 1)
	assert.Equal(t, "DB_HOST", grouped["database"][0].Key)
	require.Len(t, grouped["other"], 1)
	assert.Equal(t, "RANDOM_FLAG", grouped["other"][0].Key)
	require.Len(t, grouped["custom"], 1)
	assert.Equal(t, "MY_SECRET", grouped["custom"][0].Key)
}

func TestReconcile(t *testing.T) {
	t.Run("consistent state", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "DB_HOST", "localhost", "", true))

		report, err := rig.mgr.Reconcile()
		require.NoError(t, err)
		assert.Equal(t, 2, report.OK)
		assert.Zero(t, report.Missing)
		assert.Zero(t, report.Mismatch)
		assert.Zero(t, report.DecryptFailed)
	})

	t.Run("detects drift", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "DB_HOST", "localhost", "", true))

		// A hand edit drifts one key and drops another.
		require.NoError(t, os.WriteFile(rig.shadow, []byte("API_TOKEN=edited\n"), 0o600))

		report, err := rig.mgr.Reconcile()
		require.NoError(t, err)
		assert.Equal(t, 1, report.Mismatch)
		assert.Equal(t, 1, report.Missing)

		byKey := make(map[string]ReconcileStatus)
		for _, item := range report.Items {
			byKey[item.Key] = item.Status
		}
		assert.Equal(t, ReconcileMismatch, byKey["API_TOKEN"])
		assert.Equal(t, ReconcileMissing, byKey["DB_HOST"])
	})

	t.Run("single corrupt row is localized", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "DB_HOST", "localhost", "", true))

		require.NoError(t, rig.db.Model(&models.EnvVar{}).
			Where("key = ?", "API_TOKEN").
			Update("value_encrypted", "garbage").Error)

		report, err := rig.mgr.Reconcile()
		require.NoError(t, err)
		assert.Equal(t, 1, report.DecryptFailed)
		assert.Equal(t, 1, report.OK)
	})

	t.Run("total decryption failure reports key loss", func(t *testing.T) {
		rig := setupManager(t)

		require.NoError(t, rig.mgr.Set("admin", "API_TOKEN", "abc123", "", true))
		require.NoError(t, rig.mgr.Set("admin", "DB_HOST", "localhost", "", true))

		// Swap the cipher for one holding a different key.
		wrongKey := bytes.Repeat([]byte{0x99}, 32)
		wrongCipher, err := secret.NewCipher(wrongKey)
		require.NoError(t, err)
		rig.mgr.cipher = wrongCipher

		report, err := rig.mgr.Reconcile()
		assert.ErrorIs(t, err, ErrKeyLost)
		require.NotNil(t, report)
		assert.Equal(t, 2, report.DecryptFailed)
	})

	t.Run("empty store is fine", func(t *testing.T) {
		rig := setupManager(t)

		report, err := rig.mgr.Reconcile()
		require.NoError(t, err)
		assert.Empty(t, report.Items)
	})
}
