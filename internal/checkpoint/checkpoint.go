// Package checkpoint persists network weights in a BadgerDB database.
//
// Each checkpoint is a JSON metadata record plus the weight stream split
// into fixed-size chunks. Chunks are written first under a fresh id and the
// metadata record last, so a checkpoint becomes visible only once all of
// its weights are stored. Replacing a checkpoint drops the old chunks after
// the new metadata is committed.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/model"
)

// Storage keys
const (
	metaPrefix = "meta/"
	blobPrefix = "blob/"
)

// chunkSize keeps every value well below badger's value threshold.
const chunkSize = 256 << 10

var (
	// ErrNotFound is returned for an unknown checkpoint name.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrInvalidName is returned for empty names or names containing '/'.
	ErrInvalidName = errors.New("checkpoint: invalid name")
	// ErrCorrupt is returned when stored weights fail their checksum.
	ErrCorrupt = errors.New("checkpoint: corrupt weights")
)

// Meta describes a stored checkpoint.
type Meta struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Blocks     int       `json:"blocks"`
	Filters    int       `json:"filters"`
	Seed       uint64    `json:"seed"`
	Parameters int       `json:"parameters"`
	Size       int64     `json:"size"`
	Chunks     int       `json:"chunks"`
	Checksum   uint64    `json:"checksum"`
	Created    time.Time `json:"created"`
}

// Config returns the network dimensions the checkpoint was saved from.
func (m Meta) Config() model.Config {
	return model.Config{Blocks: m.Blocks, Filters: m.Filters, Seed: m.Seed}
}

// Store wraps BadgerDB for checkpoint storage.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) the checkpoint database in dir.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log: log}
	return open(opts, log)
}

// OpenInMemory opens a database that lives only as long as the Store.
func OpenInMemory(log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, log)
}

func open(opts badger.Options, log zerolog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "checkpoint").Logger()}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func metaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

func chunkKey(id string, i int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", blobPrefix, id, i))
}

// Save stores the network's weights under name, replacing any checkpoint
// with the same name.
func (s *Store) Save(name string, net *model.Network) (Meta, error) {
	if err := validName(name); err != nil {
		return Meta{}, err
	}

	var buf bytes.Buffer
	if err := net.WriteWeights(&buf); err != nil {
		return Meta{}, fmt.Errorf("failed to serialize weights: %w", err)
	}
	stream := buf.Bytes()

	cfg := net.Config()
	meta := Meta{
		ID:         uuid.NewString(),
		Name:       name,
		Blocks:     cfg.Blocks,
		Filters:    cfg.Filters,
		Seed:       cfg.Seed,
		Parameters: net.ParameterCount(),
		Size:       int64(len(stream)),
		Chunks:     (len(stream) + chunkSize - 1) / chunkSize,
		Checksum:   xxhash.Sum64(stream),
		Created:    time.Now().UTC(),
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := 0; i < meta.Chunks; i++ {
		end := min((i+1)*chunkSize, len(stream))
		if err := wb.Set(chunkKey(meta.ID, i), stream[i*chunkSize:end]); err != nil {
			return Meta{}, fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return Meta{}, fmt.Errorf("failed to write weights: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, err
	}

	var previous *Meta
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := getMeta(txn, name)
		if err == nil {
			previous = &old
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return txn.Set(metaKey(name), data)
	})
	if err != nil {
		s.dropBlob(meta)
		return Meta{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	if previous != nil {
		s.dropBlob(*previous)
	}
	s.log.Info().Str("name", name).Str("id", meta.ID).Int64("bytes", meta.Size).Msg("checkpoint saved")
	return meta, nil
}

// dropBlob removes a weight stream. Failures only leak space, so they are
// logged rather than returned.
func (s *Store) dropBlob(meta Meta) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := 0; i < meta.Chunks; i++ {
		if err := wb.Delete(chunkKey(meta.ID, i)); err != nil {
			s.log.Warn().Err(err).Str("id", meta.ID).Msg("failed to drop checkpoint weights")
			return
		}
	}
	if err := wb.Flush(); err != nil {
		s.log.Warn().Err(err).Str("id", meta.ID).Msg("failed to drop checkpoint weights")
	}
}

func getMeta(txn *badger.Txn, name string) (Meta, error) {
	var meta Meta
	item, err := txn.Get(metaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return meta, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

// Get returns the metadata of a checkpoint.
func (s *Store) Get(name string) (Meta, error) {
	if err := validName(name); err != nil {
		return Meta{}, err
	}
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, name)
		return err
	})
	return meta, err
}

// Load reads a checkpoint into net. The network's dimensions must match
// the checkpoint's (model.ErrConfigMismatch otherwise); net is left
// untouched on any error.
func (s *Store) Load(name string, net *model.Network) (Meta, error) {
	if err := validName(name); err != nil {
		return Meta{}, err
	}

	var meta Meta
	var stream []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMeta(txn, name); err != nil {
			return err
		}
		cfg := net.Config()
		if meta.Blocks != cfg.Blocks || meta.Filters != cfg.Filters {
			return fmt.Errorf("%w: checkpoint %q is %s, network is %s",
				model.ErrConfigMismatch, name, meta.Config(), cfg)
		}

		stream = make([]byte, 0, meta.Size)
		for i := 0; i < meta.Chunks; i++ {
			item, err := txn.Get(chunkKey(meta.ID, i))
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, i, err)
			}
			if err := item.Value(func(val []byte) error {
				stream = append(stream, val...)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Meta{}, err
	}

	if int64(len(stream)) != meta.Size || xxhash.Sum64(stream) != meta.Checksum {
		return Meta{}, fmt.Errorf("%w: checkpoint %q", ErrCorrupt, name)
	}
	if err := net.ReadWeights(bytes.NewReader(stream)); err != nil {
		return Meta{}, fmt.Errorf("failed to load checkpoint %q: %w", name, err)
	}
	s.log.Debug().Str("name", name).Str("id", meta.ID).Msg("checkpoint loaded")
	return meta, nil
}

// OpenNetwork builds a network from the checkpoint's dimensions and loads
// it.
func (s *Store) OpenNetwork(name string, opts ...model.Option) (*model.Network, Meta, error) {
	meta, err := s.Get(name)
	if err != nil {
		return nil, Meta{}, err
	}
	net, err := model.New(meta.Config(), opts...)
	if err != nil {
		return nil, Meta{}, err
	}
	if meta, err = s.Load(name, net); err != nil {
		return nil, Meta{}, err
	}
	return net, meta, nil
}

// List returns every checkpoint ordered by name.
func (s *Store) List() ([]Meta, error) {
	var metas []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(metaPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta Meta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			metas = append(metas, meta)
		}
		return nil
	})
	return metas, err
}

// Delete removes a checkpoint.
func (s *Store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	var meta Meta
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMeta(txn, name); err != nil {
			return err
		}
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return err
	}
	s.dropBlob(meta)
	s.log.Info().Str("name", name).Msg("checkpoint deleted")
	return nil
}
