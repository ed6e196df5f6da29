// Package docstore is a hierarchical JSON document store with per-path
// change notifications. Paths alternate collection and document segments:
// users/u1/objectives/o1 is document o1 in collection users/u1/objectives.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Fixen7/lifequest-app/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	ErrInvalidPath   = errors.New("docstore: invalid document path")
)

const (
	BackendCache = "cache"
	BackendSQL   = "sql"
)

// Fields is a document body. Values are JSON-compatible: string, float64,
// bool, nil, []any and map[string]any.
type Fields = map[string]any

// Change is a full snapshot of a document after a write, or its deletion.
type Change struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Data    Fields `json:"data,omitempty"`
}

// Store is the document store contract.
type Store interface {
	// Get point-reads a document. Missing documents return ErrNotFound.
	Get(ctx context.Context, path string) (Fields, error)
	// Create writes a new document, failing with ErrAlreadyExists.
	Create(ctx context.Context, path string, data Fields) error
	// MergeWrite overwrites only the given top-level fields, creating the
	// document when absent.
	MergeWrite(ctx context.Context, path string, fields Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// List returns the documents directly inside a collection, by path.
	List(ctx context.Context, collection string) ([]Change, error)
	// Subscribe streams changes of the document at prefix and of every
	// document below it.
	Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error)
}

// New returns the Store for the configured backend.
func New(backend string, db *gorm.DB, c cache.Cache, ps cache.PubSub, logger *zap.Logger) (Store, error) {
	switch backend {
	case BackendSQL, "":
		if db == nil {
			return nil, fmt.Errorf("docstore: sql backend requires a database")
		}
		return NewSQLStore(db, ps, logger), nil
	case BackendCache:
		return NewCacheStore(c, ps, logger), nil
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q", backend)
	}
}

// splitPath validates a document path and returns its collection.
func splitPath(path string) (collection, id string, err error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// ancestors returns path and every proper prefix of it, longest first.
func ancestors(path string) []string {
	out := []string{path}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}

// normalize round-trips data through JSON so both backends hand out the
// same value types.
func normalize(data Fields) (Fields, error) {
	if data == nil {
		return Fields{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	out := Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}
	return out, nil
}

func sortChanges(cs []Change) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Path < cs[j].Path })
}

// ---- notifications ----

const channelPrefix = "doc:"

type notifier struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// publish fans a change out to the document's own channel and to every
// ancestor channel. A failed publish is logged, never returned: the write
// itself has already succeeded.
func (n notifier) publish(ctx context.Context, ch Change) {
	if n.ps == nil {
		return
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		n.logger.Warn("docstore: encode change", zap.String("path", ch.Path), zap.Error(err))
		return
	}
	for _, p := range ancestors(ch.Path) {
		if err := n.ps.Publish(ctx, channelPrefix+p, string(payload)); err != nil {
			n.logger.Warn("docstore: publish change",
				zap.String("path", ch.Path), zap.String("channel", p), zap.Error(err))
		}
	}
}

func (n notifier) subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error) {
	if n.ps == nil {
		return nil, nil, fmt.Errorf("docstore: notifications unavailable")
	}
	msgs, cancel, err := n.ps.Subscribe(ctx, channelPrefix+strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan Change, 64)
	go func() {
		defer close(out)
		for m := range msgs {
			var ch Change
			if err := json.Unmarshal([]byte(m.Payload), &ch); err != nil {
				n.logger.Warn("docstore: malformed change", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
