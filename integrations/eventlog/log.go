package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moneymarket/core/events"
	"moneymarket/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("eventlog: unsupported driver")

// Record is one committed protocol event.
type Record struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"size:96;index;not null"`
	Height     uint64 `gorm:"index"`
	Timestamp  uint64
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (Record) TableName() string { return "protocol_events" }

// Decoded returns the flat event form of the record.
func (r Record) Decoded() (*types.Event, error) {
	evt := &types.Event{Type: r.Type, Attributes: map[string]string{}}
	if strings.TrimSpace(r.Attributes) == "" {
		return evt, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &evt.Attributes); err != nil {
		return nil, fmt.Errorf("eventlog: decode record %d: %w", r.ID, err)
	}
	return evt, nil
}

// Filter narrows List results.
type Filter struct {
	Type    string
	AfterID uint64
	Limit   int
}

// Store persists events through GORM. It satisfies events.Emitter so it
// can sit behind the commit buffer.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu        sync.Mutex
	height    uint64
	timestamp uint64
}

// Open connects to the configured backend and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing connection.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("eventlog: nil database")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

// SetBlock stamps subsequently emitted events with the block context.
func (s *Store) SetBlock(height, timestamp uint64) {
	s.mu.Lock()
	s.height, s.timestamp = height, timestamp
	s.mu.Unlock()
}

// Emit persists evt. Write failures are logged; the protocol state has
// already committed by the time events reach the store.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Append(context.Background(), evt); err != nil {
		s.logger.Error("eventlog append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append writes evt and returns any storage error.
func (s *Store) Append(ctx context.Context, evt events.Event) error {
	rec, err := s.record(evt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) record(evt events.Event) (*Record, error) {
	flat := &types.Event{Type: evt.EventType()}
	if typed, ok := evt.(events.Typed); ok {
		if rendered := typed.Event(); rendered != nil {
			flat = rendered
		}
	}
	attrs := flat.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode %s: %w", flat.Type, err)
	}
	s.mu.Lock()
	height, ts := s.height, s.timestamp
	s.mu.Unlock()
	return &Record{Type: flat.Type, Height: height, Timestamp: ts, Attributes: string(encoded)}, nil
}

// List returns records in insertion order.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Model(&Record{}).Where("id > ?", f.AfterID)
	if t := strings.TrimSpace(f.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	var out []Record
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	return out, nil
}

// Count reports how many records match the type. An empty type counts all.
func (s *Store) Count(ctx context.Context, eventType string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if t := strings.TrimSpace(eventType); t != "" {
		q = q.Where("type = ?", t)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("eventlog: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
