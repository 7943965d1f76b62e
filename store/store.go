// Package store persists playlists to a local key-value database under
// compression and optional PIN-gated authenticated encryption.
package store

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/alorle/iptv-engine/metrics"
)

var (
	// ErrNotFound is returned when no record exists for a playlist name.
	ErrNotFound = errors.New("playlist not found")
	// ErrPinInvalid is returned on a wrong PIN, whether detected by explicit
	// verification or by an authentication failure on decrypt.
	ErrPinInvalid = errors.New("invalid pin")
	// ErrPinAlreadySet is returned by SetPin on a protected playlist.
	ErrPinAlreadySet = errors.New("pin already set")
	// ErrPinNotSet is returned by VerifyPin and RemovePin on an unprotected
	// playlist.
	ErrPinNotSet = errors.New("no pin set")
)

var (
	bucketPlaylists = []byte("playlists")
	bucketKeys      = []byte("keys")

	keySeed = []byte("seed")
	keySalt = []byte("salt")
)

// record is the composite persisted per playlist name. Content and SourceURL
// are compressed, and additionally encrypted when PinHash is present. Keeping
// all three fields in one value makes PIN set/remove an atomic replacement.
type record struct {
	Content   []byte `json:"content"`
	SourceURL []byte `json:"source_url"`
	PinHash   []byte `json:"pin_hash,omitempty"`
}

// Store persists playlist records. It is safe for concurrent use; bbolt
// serializes writers and the derived key is immutable after Open.
type Store struct {
	db     *bolt.DB
	salt   string
	key    []byte
	logger *slog.Logger
}

// Open opens (creating if needed) the playlist database at path. deviceSalt
// is a stable per-install identifier mixed into PIN hashes and key
// derivation; when empty, one is generated and persisted on first open. The
// encryption seed is likewise generated once and reused for the lifetime of
// the database file.
func Open(path, deviceSalt string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open playlist database: %w", err)
	}

	var seed []byte
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPlaylists); err != nil {
			return fmt.Errorf("create playlists bucket: %w", err)
		}
		keys, err := tx.CreateBucketIfNotExists(bucketKeys)
		if err != nil {
			return fmt.Errorf("create keys bucket: %w", err)
		}

		if deviceSalt == "" {
			if existing := keys.Get(keySalt); existing != nil {
				deviceSalt = string(existing)
			} else {
				deviceSalt = uuid.NewString()
				if err := keys.Put(keySalt, []byte(deviceSalt)); err != nil {
					return fmt.Errorf("persist device salt: %w", err)
				}
			}
		}

		if existing := keys.Get(keySeed); existing != nil {
			seed = append([]byte(nil), existing...)
			return nil
		}
		seed = make([]byte, seedSize)
		if _, err := rand.Read(seed); err != nil {
			return fmt.Errorf("generate seed: %w", err)
		}
		if err := keys.Put(keySeed, seed); err != nil {
			return fmt.Errorf("persist seed: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	key, err := deriveKey(seed, deviceSalt)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, salt: deviceSalt, key: key, logger: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a playlist's content and source URL under name, replacing any
// existing record. With a non-empty pin both blobs are encrypted and the
// record is PIN-protected from the start.
func (s *Store) Put(name string, content []byte, sourceURL, pin string) error {
	compressed, err := Compress(content)
	if err != nil {
		return fmt.Errorf("compress content: %w", err)
	}
	compressedURL, err := Compress([]byte(sourceURL))
	if err != nil {
		return fmt.Errorf("compress source url: %w", err)
	}

	rec := record{Content: compressed, SourceURL: compressedURL}
	if pin != "" {
		hash := hashPin(pin, s.salt)
		if rec.Content, err = seal(s.key, compressed, hash); err != nil {
			return fmt.Errorf("encrypt content: %w", err)
		}
		if rec.SourceURL, err = seal(s.key, compressedURL, hash); err != nil {
			return fmt.Errorf("encrypt source url: %w", err)
		}
		rec.PinHash = hash
	}

	if err := s.writeRecord(name, rec); err != nil {
		return err
	}
	s.logger.Info("stored playlist", "name", name, "bytes", len(content), "protected", pin != "")
	s.updateStoredGauge()
	return nil
}

// Get returns the playlist's content. A PIN-protected record requires the
// exact PIN it was protected with; anything else fails with ErrPinInvalid.
func (s *Store) Get(name, pin string) ([]byte, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		return nil, err
	}
	blob, err := s.unlock(rec, rec.Content, pin)
	if err != nil {
		return nil, err
	}
	return Decompress(blob)
}

// SourceURL returns the URL the playlist was originally fetched from, under
// the same PIN rules as Get.
func (s *Store) SourceURL(name, pin string) (string, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		return "", err
	}
	blob, err := s.unlock(rec, rec.SourceURL, pin)
	if err != nil {
		return "", err
	}
	raw, err := Decompress(blob)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// unlock decrypts one blob of a protected record, or passes it through
// untouched for unprotected ones.
func (s *Store) unlock(rec record, blob []byte, pin string) ([]byte, error) {
	if rec.PinHash == nil {
		return blob, nil
	}
	plain, err := open(s.key, blob, hashPin(pin, s.salt))
	if err != nil {
		metrics.RecordPinFailure()
		return nil, err
	}
	return plain, nil
}

// VerifyPin reports whether pin matches the playlist's PIN by hash equality
// alone; nothing is decrypted.
func (s *Store) VerifyPin(name, pin string) error {
	rec, err := s.readRecord(name)
	if err != nil {
		return err
	}
	if rec.PinHash == nil {
		return ErrPinNotSet
	}
	if !hmac.Equal(rec.PinHash, hashPin(pin, s.salt)) {
		metrics.RecordPinFailure()
		return ErrPinInvalid
	}
	return nil
}

// SetPin protects an existing unprotected playlist: both blobs are encrypted
// in place and the PIN hash stored alongside, as one atomic record rewrite.
func (s *Store) SetPin(name, pin string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := readRecordTx(tx, name)
		if err != nil {
			return err
		}
		if rec.PinHash != nil {
			return ErrPinAlreadySet
		}

		hash := hashPin(pin, s.salt)
		if rec.Content, err = seal(s.key, rec.Content, hash); err != nil {
			return fmt.Errorf("encrypt content: %w", err)
		}
		if rec.SourceURL, err = seal(s.key, rec.SourceURL, hash); err != nil {
			return fmt.Errorf("encrypt source url: %w", err)
		}
		rec.PinHash = hash
		return writeRecordTx(tx, name, rec)
	})
}

// RemovePin lifts PIN protection. The correct PIN is required: both blobs
// are decrypted and re-stored compressed-only, dropping the hash.
func (s *Store) RemovePin(name, pin string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := readRecordTx(tx, name)
		if err != nil {
			return err
		}
		if rec.PinHash == nil {
			return ErrPinNotSet
		}

		hash := hashPin(pin, s.salt)
		if rec.Content, err = open(s.key, rec.Content, hash); err != nil {
			metrics.RecordPinFailure()
			return err
		}
		if rec.SourceURL, err = open(s.key, rec.SourceURL, hash); err != nil {
			metrics.RecordPinFailure()
			return err
		}
		rec.PinHash = nil
		return writeRecordTx(tx, name, rec)
	})
}

// Delete removes the playlist record.
func (s *Store) Delete(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPlaylists)
		if bucket.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return bucket.Delete([]byte(name))
	})
	if err != nil {
		return err
	}
	s.logger.Info("deleted playlist", "name", name)
	s.updateStoredGauge()
	return nil
}

// Names lists all stored playlist names in lexical order.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlaylists).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	return names, nil
}

func (s *Store) readRecord(name string) (record, error) {
	var rec record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = readRecordTx(tx, name)
		return err
	})
	return rec, err
}

func (s *Store) writeRecord(name string, rec record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeRecordTx(tx, name, rec)
	})
}

func readRecordTx(tx *bolt.Tx, name string) (record, error) {
	var rec record
	raw := tx.Bucket(bucketPlaylists).Get([]byte(name))
	if raw == nil {
		return rec, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode record %q: %w", name, err)
	}
	return rec, nil
}

func writeRecordTx(tx *bolt.Tx, name string, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", name, err)
	}
	if err := tx.Bucket(bucketPlaylists).Put([]byte(name), raw); err != nil {
		return fmt.Errorf("write record %q: %w", name, err)
	}
	return nil
}

func (s *Store) updateStoredGauge() {
	if names, err := s.Names(); err == nil {
		metrics.SetPlaylistsStored(len(names))
	}
}
