package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AttributeValue is the typed JSON form of a record value, using the same shape as
// the DynamoDB wire protocol: exactly one member is set.
type AttributeValue struct {
	S    *string                    `json:"S,omitempty"`
	N    *string                    `json:"N,omitempty"`
	B    *[]byte                    `json:"B,omitempty"`
	BOOL *bool                      `json:"BOOL,omitempty"`
	NULL *bool                      `json:"NULL,omitempty"`
	L    *[]AttributeValue          `json:"L,omitempty"`
	M    *map[string]AttributeValue `json:"M,omitempty"`
	SS   *[]string                  `json:"SS,omitempty"`
	NS   *[]string                  `json:"NS,omitempty"`
}

// EncodeValue converts a record value into its typed form.
func EncodeValue(v any) (AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		null := true
		return AttributeValue{NULL: &null}, nil
	case string:
		return AttributeValue{S: &t}, nil
	case bool:
		return AttributeValue{BOOL: &t}, nil
	case []byte:
		b := append([]byte(nil), t...)
		return AttributeValue{B: &b}, nil
	case []any:
		list := make([]AttributeValue, 0, len(t))
		for i, e := range t {
			av, err := EncodeValue(e)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("[%d]: %w", i, err)
			}
			list = append(list, av)
		}
		return AttributeValue{L: &list}, nil
	case []string:
		list := make([]AttributeValue, 0, len(t))
		for i := range t {
			s := t[i]
			list = append(list, AttributeValue{S: &s})
		}
		return AttributeValue{L: &list}, nil
	case map[string]any:
		return encodeMap(t)
	case Record:
		return encodeMap(t)
	case StringSet:
		ss := append([]string(nil), t...)
		return AttributeValue{SS: &ss}, nil
	case NumberSet:
		ns := make([]string, len(t))
		for i, n := range t {
			ns[i] = string(n)
		}
		return AttributeValue{NS: &ns}, nil
	}
	if n, ok := NumberOf(v); ok {
		s := string(n)
		return AttributeValue{N: &s}, nil
	}
	return AttributeValue{}, fmt.Errorf("unsupported value type %T", v)
}

func encodeMap(m map[string]any) (AttributeValue, error) {
	out := make(map[string]AttributeValue, len(m))
	for k, e := range m {
		av, err := EncodeValue(e)
		if err != nil {
			return AttributeValue{}, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = av
	}
	return AttributeValue{M: &out}, nil
}

// Decode converts a typed value back into a record value.
func (av AttributeValue) Decode() (any, error) {
	switch {
	case av.S != nil:
		return *av.S, nil
	case av.N != nil:
		return Number(*av.N), nil
	case av.BOOL != nil:
		return *av.BOOL, nil
	case av.NULL != nil:
		return nil, nil
	case av.B != nil:
		return append([]byte(nil), (*av.B)...), nil
	case av.L != nil:
		out := make([]any, 0, len(*av.L))
		for i, e := range *av.L {
			v, err := e.Decode()
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case av.M != nil:
		out := make(map[string]any, len(*av.M))
		for k, e := range *av.M {
			v, err := e.Decode()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	case av.SS != nil:
		return StringSet(append([]string(nil), (*av.SS)...)), nil
	case av.NS != nil:
		ns := make(NumberSet, len(*av.NS))
		for i, n := range *av.NS {
			ns[i] = Number(n)
		}
		return ns, nil
	}
	return nil, fmt.Errorf("empty attribute value")
}

// EncodeRecord converts every field of rec into its typed form.
func EncodeRecord(rec Record) (map[string]AttributeValue, error) {
	out := make(map[string]AttributeValue, len(rec))
	for k, v := range rec {
		av, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(item map[string]AttributeValue) (Record, error) {
	rec := make(Record, len(item))
	for k, av := range item {
		v, err := av.Decode()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		rec[k] = v
	}
	return rec, nil
}

// MarshalRecord encodes rec as typed JSON. Field order is deterministic.
func MarshalRecord(rec Record) ([]byte, error) {
	item, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(item)
}

// UnmarshalRecord decodes typed JSON produced by MarshalRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	var item map[string]AttributeValue
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return DecodeRecord(item)
}

// SortedFields returns the field names of rec in ascending order.
func SortedFields(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
