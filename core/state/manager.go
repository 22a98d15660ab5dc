package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"moneymarket/storage"
)

var errNoTransaction = errors.New("state: no open transaction")

// Manager reads and writes RLP encoded records under keccak256 hashed keys.
// Writes made between Begin and Commit are buffered in nested overlays so an
// action can be discarded as a whole; the outermost Commit flushes a single
// storage batch.
type Manager struct {
	mu       sync.RWMutex
	db       storage.Database
	overlays []map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a nested write scope.
func (m *Manager) Begin() {
	m.mu.Lock()
	m.overlays = append(m.overlays, make(map[string][]byte))
	m.mu.Unlock()
}

// Commit folds the innermost scope into its parent, or into the database when
// it is the outermost one.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.overlays)
	if n == 0 {
		return errNoTransaction
	}
	top := m.overlays[n-1]
	m.overlays = m.overlays[:n-1]
	if n > 1 {
		parent := m.overlays[n-2]
		for k, v := range top {
			parent[k] = v
		}
		return nil
	}
	batch := m.db.NewBatch()
	for k, v := range top {
		if v == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), v)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Rollback discards the innermost scope. It is a no-op without one.
func (m *Manager) Rollback() {
	m.mu.Lock()
	if n := len(m.overlays); n > 0 {
		m.overlays = m.overlays[:n-1]
	}
	m.mu.Unlock()
}

// Depth reports how many scopes are open.
func (m *Manager) Depth() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.overlays)
}

// Atomic runs fn inside its own scope, committing on success and rolling
// back when fn fails.
func (m *Manager) Atomic(fn func() error) error {
	m.Begin()
	if err := fn(); err != nil {
		m.Rollback()
		return err
	}
	return m.Commit()
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	m.mu.RLock()
	for i := len(m.overlays) - 1; i >= 0; i-- {
		if v, ok := m.overlays[i][string(hashed)]; ok {
			m.mu.RUnlock()
			return v, nil
		}
	}
	m.mu.RUnlock()
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) write(hashed, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.overlays); n > 0 {
		m.overlays[n-1][string(hashed)] = value
		return nil
	}
	if value == nil {
		return m.db.Delete(hashed)
	}
	return m.db.Put(hashed, value)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.write(kvKey(key), nil)
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}
