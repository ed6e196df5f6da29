package syncer

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
	"github.com/go-viper/mapstructure/v2"
)

var zeroTime = time.Time{}.Format(time.RFC3339Nano)

// Encode converts a domain value into document fields using its json tags.
// Zero instants are stored as null.
func Encode(v any) (docstore.Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("syncer: encode %T: %w", v, err)
	}
	out := docstore.Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("syncer: encode %T: %w", v, err)
	}
	for k, val := range out {
		if s, ok := val.(string); ok && s == zeroTime {
			out[k] = nil
		}
	}
	return out, nil
}

// Diff returns the fields of next that differ from prev. Keys missing from
// next are not reported; the store only ever merges.
func Diff(prev, next docstore.Fields) docstore.Fields {
	out := docstore.Fields{}
	for k, v := range next {
		if old, ok := prev[k]; !ok || !reflect.DeepEqual(old, v) {
			out[k] = v
		}
	}
	return out
}

func emptyStringToTime(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() == reflect.String && t == reflect.TypeOf(time.Time{}) && data.(string) == "" {
		return time.Time{}, nil
	}
	return data, nil
}

// decode overlays fields onto target. Only keys present in fields are
// written; null values reset a field to its zero value.
func decode(fields docstore.Fields, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ZeroFields:       true,
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			emptyStringToTime,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// DecodeLedger overlays a stats snapshot onto base and repairs invariants.
func DecodeLedger(base progression.Ledger, fields docstore.Fields) (progression.Ledger, error) {
	l := base.Clone()
	if err := decode(fields, &l); err != nil {
		return base, fmt.Errorf("syncer: decode stats: %w", err)
	}
	l = progression.Normalize(l)
	if err := l.Validate(); err != nil {
		return base, fmt.Errorf("syncer: decode stats: %w", err)
	}
	return l, nil
}

// DecodeObjective overlays an objective snapshot onto base. The id always
// comes from the document path.
func DecodeObjective(base quest.Objective, id string, fields docstore.Fields) (quest.Objective, error) {
	o := base
	if err := decode(fields, &o); err != nil {
		return base, fmt.Errorf("syncer: decode objective %s: %w", id, err)
	}
	o.ID = id
	return o, nil
}

// DecodeSubtask overlays a subtask snapshot onto base.
func DecodeSubtask(base quest.Subtask, objectiveID, id string, fields docstore.Fields) (quest.Subtask, error) {
	s := base
	if err := decode(fields, &s); err != nil {
		return base, fmt.Errorf("syncer: decode subtask %s: %w", id, err)
	}
	s.ID = id
	s.ObjectiveID = objectiveID
	return s, nil
}
