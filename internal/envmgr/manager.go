// Package envmgr is the write path of the encrypted runtime configuration.
// It drives the full pipeline for a secure write: encrypt, upsert the store,
// append the history ledger, mirror the plaintext into the shadow env file,
// then notify the audit log and the realtime channel. The store and the
// shadow file are two independent sinks with no transaction spanning both;
// the shadow file is only read at process start, so the pipeline accepts
// eventual consistency between them and Reconcile makes the window
// observable.
package envmgr

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/controller/envhistory"
	"github.com/chueng/site-admin/internal/db/controller/envvar"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/envfile"
	"github.com/chueng/site-admin/internal/secret"
)

// Masked is the placeholder shown in place of a secure setting's value.
// Read surfaces never return decrypted plaintext.
const Masked = "••••••"

// keyPattern is the shape of a valid setting key; it matches the line format
// of the shadow env file.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Auditor receives one event per mutating operation.
type Auditor interface {
	Record(actor, action, entity string, entityID *uint64, details interface{})
}

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Entry is one setting as seen by read surfaces.
type Entry struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Secure   bool   `json:"secure"`
	// UpdatedAt is unix milliseconds; zero for shadow-only entries.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// ReconcileStatus classifies one setting in a reconciliation report.
type ReconcileStatus string

const (
	ReconcileOK            ReconcileStatus = "ok"
	ReconcileMissing       ReconcileStatus = "missing"
	ReconcileMismatch      ReconcileStatus = "mismatch"
	ReconcileDecryptFailed ReconcileStatus = "decrypt_failed"
)

// ReconcileItem is the diagnosis for a single key.
type ReconcileItem struct {
	Key    string          `json:"key"`
	Status ReconcileStatus `json:"status"`
}

// ReconcileReport compares the decrypted store against the shadow file.
type ReconcileReport struct {
	Items         []ReconcileItem `json:"items"`
	OK            int             `json:"ok"`
	Missing       int             `json:"missing"`
	Mismatch      int             `json:"mismatch"`
	DecryptFailed int             `json:"decrypt_failed"`
}

// Manager owns the settings pipeline. All writers must go through it; the
// shadow file's whole-file rewrites are serialized by its internal mutex.
type Manager struct {
	db     *gorm.DB
	cipher *secret.Cipher
	shadow *envfile.File
	audit  Auditor
	notify Broadcaster
}

// EventEnvUpdate is the push-channel event type for setting changes.
const EventEnvUpdate = "env:update"

// New creates a Manager. audit and notify may be nil.
func New(db *gorm.DB, cipher *secret.Cipher, shadow *envfile.File, auditor Auditor, notify Broadcaster) *Manager {
	return &Manager{
		db:     db,
		cipher: cipher,
		shadow: shadow,
		audit:  auditor,
		notify: notify,
	}
}

func (m *Manager) record(actor, action string, entityID *uint64, details interface{}) {
	if m.audit != nil {
		m.audit.Record(actor, action, "env_var", entityID, details)
	}
}

func (m *Manager) broadcast(payload interface{}) {
	if m.notify != nil {
		m.notify.Broadcast(EventEnvUpdate, payload)
	}
}

// Set writes one setting. With secure true the full pipeline runs: encrypt,
// store upsert, history append, shadow mirror, audit, broadcast. With secure
// false the value goes to the shadow file only, in plaintext, with no store
// row and no history entry.
//
// Stages run in order with no compensating unwind: a failure surfaces to the
// caller and earlier stages keep their effect.
func (m *Manager) Set(actor, key, value, category string, secure bool) error {
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}

	if !secure {
		if err := m.shadow.Upsert(key, value); err != nil {
			return errors.Wrap(err, "update shadow file")
		}

		m.record(actor, "env_set_plain", nil, map[string]string{"key": key})
		m.broadcast(map[string]string{"key": key})

		return nil
	}

	ciphertext, err := m.cipher.Encrypt(value)
	if err != nil {
		return errors.Wrap(err, "encrypt value")
	}

	prev, err := envvar.Upsert(m.db, key, ciphertext, category)
	if err != nil {
		return errors.Wrap(err, "update settings store")
	}

	entryID, err := envhistory.Append(m.db, key, prev, ciphertext)
	if err != nil {
		return errors.Wrap(err, "append history")
	}

	if err := m.shadow.Upsert(key, value); err != nil {
		return errors.Wrap(err, "update shadow file")
	}

	m.record(actor, "env_set", &entryID, map[string]string{"key": key})
	m.broadcast(map[string]string{"key": key})

	return nil
}

// List returns all settings grouped by category. Store-backed entries are
// always masked; entries living only in the shadow file are returned with
// their plaintext and secure=false.
func (m *Manager) List() (map[string][]Entry, error) {
	rows, err := envvar.GetAll(m.db)
	if err != nil {
		return nil, errors.Wrap(err, "list settings store")
	}

	shadowEntries, err := m.shadow.Entries()
	if err != nil {
		return nil, errors.Wrap(err, "read shadow file")
	}

	grouped := make(map[string][]Entry)
	stored := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		stored[row.Key] = struct{}{}
		grouped[row.Category] = append(grouped[row.Category], Entry{
			Key:       row.Key,
			Value:     Masked,
			Category:  row.Category,
			Secure:    true,
			UpdatedAt: row.UpdatedAt.UnixMilli(),
		})
	}

	for _, e := range shadowEntries {
		if _, ok := stored[e.Key]; ok {
			continue
		}

		category := envvar.CategorizeKey(e.Key)
		grouped[category] = append(grouped[category], Entry{
			Key:      e.Key,
			Value:    e.Value,
			Category: category,
			Secure:   false,
		})
	}

	return grouped, nil
}

// History lists the change ledger, newest first, ciphertext only. An empty
// key spans all keys. limit is clamped by the ledger.
func (m *Manager) History(key string, limit int) ([]models.EnvHistory, error) {
	if key == "" {
		return envhistory.ListAll(m.db, limit)
	}

	return envhistory.ListFor(m.db, key, limit)
}

// Rollback restores the value a key had before the write recorded by
// history entry id, and returns the restored plaintext.
//
// The entry's old ciphertext is written back verbatim, nonce and tag
// included, rather than re-encrypted. An entry with no old value restores
// the key to empty. If the old ciphertext no longer decrypts, the store is
// still rolled back and the shadow file gets an empty value; the failure is
// logged but stays localized to this key.
//
// The store write and the history append happen in one transaction: a
// failed rollback never leaves the store mutated without its ledger record.
func (m *Manager) Rollback(actor string, id uint64) (string, error) {
	entry, err := envhistory.Get(m.db, id)
	if err != nil {
		return "", err
	}

	var oldCiphertext string
	if entry.OldValueEncrypted != nil {
		oldCiphertext = *entry.OldValueEncrypted
	}

	var plain string
	decryptFailed := false
	if oldCiphertext != "" {
		plain, err = m.cipher.Decrypt(oldCiphertext)
		if err != nil {
			decryptFailed = true
			log.Warn().Uint64("entry", id).Str("key", entry.Key).
				Msg("rollback target ciphertext fails decryption, restoring empty value")
			plain = ""
		}
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		prev, txErr := envvar.Upsert(tx, entry.Key, oldCiphertext, "")
		if txErr != nil {
			return errors.Wrap(txErr, "update settings store")
		}

		if _, txErr = envhistory.Append(tx, entry.Key, prev, oldCiphertext); txErr != nil {
			return errors.Wrap(txErr, "append history")
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if err := m.shadow.Upsert(entry.Key, plain); err != nil {
		return "", errors.Wrap(err, "update shadow file")
	}

	m.record(actor, "env_rollback", &id, map[string]interface{}{
		"key":            entry.Key,
		"decrypt_failed": decryptFailed,
	})
	m.broadcast(map[string]string{"key": entry.Key})

	return plain, nil
}

// Reconcile compares every stored setting's decrypted value against the
// shadow file and reports per-key status. It mutates nothing. When key
// material decrypts none of the stored rows, the report is returned together
// with ErrKeyLost.
func (m *Manager) Reconcile() (*ReconcileReport, error) {
	rows, err := envvar.GetAll(m.db)
	if err != nil {
		return nil, errors.Wrap(err, "list settings store")
	}

	shadowEntries, err := m.shadow.Entries()
	if err != nil {
		return nil, errors.Wrap(err, "read shadow file")
	}

	mirror := make(map[string]string, len(shadowEntries))
	for _, e := range shadowEntries {
		mirror[e.Key] = e.Value
	}

	report := &ReconcileReport{}
	for _, row := range rows {
		status := ReconcileOK

		plain, decErr := m.cipher.Decrypt(row.ValueEncrypted)
		switch {
		case decErr != nil:
			status = ReconcileDecryptFailed
			report.DecryptFailed++
		default:
			mirrored, ok := mirror[row.Key]
			switch {
			case !ok:
				status = ReconcileMissing
				report.Missing++
			case mirrored != plain:
				status = ReconcileMismatch
				report.Mismatch++
			default:
				report.OK++
			}
		}

		report.Items = append(report.Items, ReconcileItem{Key: row.Key, Status: status})
	}

	if len(rows) > 0 && report.DecryptFailed == len(rows) {
		return report, ErrKeyLost
	}

	return report, nil
}
