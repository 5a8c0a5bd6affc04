// Package store persists session presence records in badger. Every write
// carries a TTL, so records of sessions that died without cleanup expire.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 30 * time.Second

type Config struct {
	// Path is the badger directory. Empty runs in memory.
	Path string
	TTL  time.Duration
}

type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

func Open(cfg Config) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLoggingLevel(badger.ERROR)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open roster store: %w", err)
	}
	return New(db, cfg.TTL), nil
}

// New wraps an already open database.
func New(db *badger.DB, ttl time.Duration) *BadgerStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerStore{db: db, ttl: ttl}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var errBadNetID = errors.New("net id must be non-empty and free of '/'")

// Net ids become key segments, so a '/' could let one net's prefix reach
// into another's records.
func checkNetID(netID domain.NetID) error {
	if netID == "" || strings.Contains(string(netID), "/") {
		return fmt.Errorf("%w: %q", errBadNetID, netID)
	}
	return nil
}

func netPrefix(netID domain.NetID) []byte {
	return []byte(fmt.Sprintf("net/%s/session/", netID))
}

func key(netID domain.NetID, sessionID string) []byte {
	return append(netPrefix(netID), sessionID...)
}

func (s *BadgerStore) Upsert(ctx context.Context, rec domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.NetID == "" || rec.SessionID == "" {
		return errors.New("session record needs net and session id")
	}
	if err := checkNetID(rec.NetID); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key(rec.NetID, rec.SessionID), value).WithTTL(s.ttl))
	})
}

func (s *BadgerStore) Delete(ctx context.Context, netID domain.NetID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkNetID(netID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(netID, sessionID))
	})
}

// List returns the live records of a net in key order.
func (s *BadgerStore) List(ctx context.Context, netID domain.NetID) ([]domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNetID(netID); err != nil {
		return nil, err
	}
	var out []domain.SessionRecord
	prefix := netPrefix(netID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var rec domain.SessionRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					log.Warn().Str("module", "store").Str("key", string(item.Key())).Err(err).Msg("skipping corrupt record")
					return nil
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
