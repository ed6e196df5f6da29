package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fixen7/lifequest-app/cache"
	"go.uber.org/zap"
)

const (
	docKeyPrefix   = "docs:"
	indexKeyPrefix = "coll:"
)

// CacheStore keeps each document as a hash (one JSON-encoded value per
// top-level field) and each collection as a set of document ids.
type CacheStore struct {
	c cache.Cache
	notifier
}

func NewCacheStore(c cache.Cache, ps cache.PubSub, logger *zap.Logger) *CacheStore {
	return &CacheStore{c: c, notifier: notifier{ps: ps, logger: logger}}
}

func (s *CacheStore) Get(ctx context.Context, path string) (Fields, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, path)
	if err != nil {
		return nil, err
	}
	return stripMarker(data), nil
}

func (s *CacheStore) read(ctx context.Context, path string) (Fields, error) {
	raw, err := s.c.HGetAll(ctx, docKeyPrefix+path)
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	out := make(Fields, len(raw))
	for f, v := range raw {
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return nil, fmt.Errorf("docstore: decode %s.%s: %w", path, f, err)
		}
		out[f] = val
	}
	return out, nil
}

func (s *CacheStore) Create(ctx context.Context, path string, data Fields) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	exists, err := s.c.Exists(ctx, docKeyPrefix+path)
	if err != nil {
		return fmt.Errorf("docstore: create %s: %w", path, err)
	}
	if exists {
		return ErrAlreadyExists
	}
	return s.MergeWrite(ctx, path, data)
}

func (s *CacheStore) MergeWrite(ctx context.Context, path string, fields Fields) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	enc := make(map[string]string, len(fields))
	for f, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("docstore: encode %s.%s: %w", path, f, err)
		}
		enc[f] = string(b)
	}
	if len(enc) == 0 {
		// an empty hash does not exist; keep a marker so the document does
		enc["_"] = "null"
	}
	if err := s.c.HSetAll(ctx, docKeyPrefix+path, enc); err != nil {
		return fmt.Errorf("docstore: write %s: %w", path, err)
	}
	if err := s.c.SAdd(ctx, indexKeyPrefix+collection, id); err != nil {
		return fmt.Errorf("docstore: index %s: %w", path, err)
	}
	snap, err := s.read(ctx, path)
	if err != nil {
		s.logger.Warn("docstore: snapshot after write", zap.String("path", path), zap.Error(err))
		return nil
	}
	s.publish(ctx, Change{Path: path, Data: stripMarker(snap)})
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, path string) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if err := s.c.Del(ctx, docKeyPrefix+path); err != nil {
		return fmt.Errorf("docstore: delete %s: %w", path, err)
	}
	if err := s.c.SRem(ctx, indexKeyPrefix+collection, id); err != nil {
		return fmt.Errorf("docstore: unindex %s: %w", path, err)
	}
	s.publish(ctx, Change{Path: path, Deleted: true})
	return nil
}

func (s *CacheStore) List(ctx context.Context, collection string) ([]Change, error) {
	ids, err := s.c.SMembers(ctx, indexKeyPrefix+collection)
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	out := make([]Change, 0, len(ids))
	for _, id := range ids {
		p := collection + "/" + id
		data, err := s.read(ctx, p)
		if errors.Is(err, ErrNotFound) {
			continue // stale index entry
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Change{Path: p, Data: stripMarker(data)})
	}
	sortChanges(out)
	return out, nil
}

func (s *CacheStore) Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error) {
	return s.subscribe(ctx, prefix)
}

func stripMarker(f Fields) Fields {
	delete(f, "_")
	return f
}
