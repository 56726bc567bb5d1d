package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TargetKind says what a branch field asks the engine to do.
type TargetKind uint8

const (
	TargetUnset     TargetKind = iota // field absent, keep using `next`
	TargetTerminate                   // field set to null, behave as if `next` were null
	TargetJump                        // field set to a question ID
)

// Target is a branch target read from a question definition.
//
// JSON keeps the three states apart: an absent field decodes to the zero
// value (TargetUnset), `null` decodes to TargetTerminate and a string
// decodes to TargetJump.
type Target struct {
	Kind       TargetKind
	QuestionID string
}

// Unset returns a target that falls through to `next`.
func Unset() Target { return Target{} }

// Terminate returns a target that ends the current sequence.
func Terminate() Target { return Target{Kind: TargetTerminate} }

// JumpTo returns a target that jumps to the given question.
func JumpTo(questionID string) Target {
	return Target{Kind: TargetJump, QuestionID: questionID}
}

// IsSet reports whether the field was present in the definition.
func (t Target) IsSet() bool { return t.Kind != TargetUnset }

// IsZero lets `omitzero` drop unset targets when encoding.
func (t Target) IsZero() bool { return t.Kind == TargetUnset }

func (t Target) String() string {
	switch t.Kind {
	case TargetTerminate:
		return "<terminate>"
	case TargetJump:
		return t.QuestionID
	default:
		return "<unset>"
	}
}

func (t Target) MarshalJSON() ([]byte, error) {
	if t.Kind == TargetJump {
		return json.Marshal(t.QuestionID)
	}
	return []byte("null"), nil
}

func (t *Target) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Terminate()
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("branch target must be a question ID or null: %w", err)
	}
	if id == "" {
		return fmt.Errorf("branch target must not be an empty string")
	}
	*t = JumpTo(id)
	return nil
}

// TargetEntry is one key of a TargetMap.
type TargetEntry struct {
	Key    string
	Target Target
}

// TargetMap is an ordered mapping from a key (choice key, "yes", "true",
// a question ID...) to a branch target. Declaration order is kept because
// BranchWithRelativeComparison breaks ties by it.
type TargetMap struct {
	keys    []string
	targets map[string]Target
}

// NewTargetMap builds a TargetMap in the given order. A repeated key keeps
// its first position and its last target.
func NewTargetMap(entries ...TargetEntry) TargetMap {
	m := TargetMap{targets: make(map[string]Target, len(entries))}
	for _, e := range entries {
		m.set(e.Key, e.Target)
	}
	return m
}

func (m *TargetMap) set(key string, t Target) {
	if m.targets == nil {
		m.targets = make(map[string]Target)
	}
	if _, ok := m.targets[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.targets[key] = t
}

// Lookup returns the target for key, or an unset target when the key is
// not declared.
func (m TargetMap) Lookup(key string) Target {
	return m.targets[key]
}

// Has reports whether key is declared, even if its target is null.
func (m TargetMap) Has(key string) bool {
	_, ok := m.targets[key]
	return ok
}

// Entries returns the entries in declaration order.
func (m TargetMap) Entries() []TargetEntry {
	out := make([]TargetEntry, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, TargetEntry{Key: k, Target: m.targets[k]})
	}
	return out
}

func (m TargetMap) Len() int { return len(m.keys) }

func (m TargetMap) IsZero() bool { return len(m.keys) == 0 }

func (m TargetMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.targets[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *TargetMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = TargetMap{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("branch target map must be an object")
	}

	out := TargetMap{targets: make(map[string]Target)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("branch target map key must be a string")
		}
		var t Target
		if err := dec.Decode(&t); err != nil {
			return fmt.Errorf("branch target %q: %w", key, err)
		}
		out.set(key, t)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
