package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps documents as JSON rows. Merges are read-modify-write inside
// a transaction; notifications go through the shared pub/sub.
type SQLStore struct {
	db *gorm.DB
	notifier
}

func NewSQLStore(db *gorm.DB, ps cache.PubSub, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, notifier: notifier{ps: ps, logger: logger}}
}

func (s *SQLStore) Get(ctx context.Context, path string) (Fields, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	var doc model.Document
	err := s.db.WithContext(ctx).First(&doc, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", path, err)
	}
	return decodeRow(doc)
}

func (s *SQLStore) Create(ctx context.Context, path string, data Fields) error {
	collection, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err = normalize(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", path, err)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Document{Path: path, Collection: collection, Data: datatypes.JSON(raw), Version: 1})
	if res.Error != nil {
		return fmt.Errorf("docstore: create %s: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	s.publish(ctx, Change{Path: path, Data: data})
	return nil
}

func (s *SQLStore) MergeWrite(ctx context.Context, path string, fields Fields) error {
	collection, _, err := splitPath(path)
	if err != nil {
		return err
	}
	fields, err = normalize(fields)
	if err != nil {
		return err
	}

	var merged Fields
	for attempt := 0; ; attempt++ {
		merged, err = s.merge(ctx, path, collection, fields)
		if !errors.Is(err, errVersionConflict) || attempt == maxMergeAttempts-1 {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("docstore: merge %s: %w", path, err)
	}
	s.publish(ctx, Change{Path: path, Data: merged})
	return nil
}

const maxMergeAttempts = 3

var errVersionConflict = errors.New("concurrent update")

// merge applies one optimistic read-modify-write guarded by the row version.
func (s *SQLStore) merge(ctx context.Context, path, collection string, fields Fields) (Fields, error) {
	var merged Fields
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		err := tx.First(&doc, "path = ?", path).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			merged = fields
			raw, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.Document{Path: path, Collection: collection, Data: datatypes.JSON(raw), Version: 1})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			return nil
		case err != nil:
			return err
		}

		cur, err := decodeRow(doc)
		if err != nil {
			return err
		}
		for k, v := range fields {
			cur[k] = v
		}
		merged = cur
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		res := tx.Model(&model.Document{}).
			Where("path = ? AND version = ?", path, doc.Version).
			Updates(map[string]any{"data": datatypes.JSON(raw), "version": doc.Version + 1})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errVersionConflict
		}
		return nil
	})
	return merged, err
}

func (s *SQLStore) Delete(ctx context.Context, path string) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("path = ?", path).Delete(&model.Document{})
	if res.Error != nil {
		return fmt.Errorf("docstore: delete %s: %w", path, res.Error)
	}
	if res.RowsAffected > 0 {
		s.publish(ctx, Change{Path: path, Deleted: true})
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, collection string) ([]Change, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).Where("collection = ?", collection).Order("path").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	out := make([]Change, 0, len(docs))
	for _, d := range docs {
		data, err := decodeRow(d)
		if err != nil {
			return nil, err
		}
		out = append(out, Change{Path: d.Path, Data: data})
	}
	return out, nil
}

func (s *SQLStore) Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error) {
	return s.subscribe(ctx, prefix)
}

func decodeRow(doc model.Document) (Fields, error) {
	out := Fields{}
	if len(doc.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(doc.Data, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", doc.Path, err)
	}
	return out, nil
}
