package dynamodb

import (
	"cellenics/internal/table/core"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func toAttribute(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case []byte:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), t...)}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(t))
		for i, e := range t {
			av, err := toAttribute(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case []string:
		list := make([]types.AttributeValue, 0, len(t))
		for _, s := range t {
			list = append(list, &types.AttributeValueMemberS{Value: s})
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		return toMap(t)
	case core.Record:
		return toMap(t)
	case core.StringSet:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), t...)}, nil
	case core.NumberSet:
		ns := make([]string, len(t))
		for i, n := range t {
			ns[i] = string(n)
		}
		return &types.AttributeValueMemberNS{Value: ns}, nil
	}
	if n, ok := core.NumberOf(v); ok {
		return &types.AttributeValueMemberN{Value: string(n)}, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func toMap(m map[string]any) (types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for k, e := range m {
		av, err := toAttribute(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = av
	}
	return &types.AttributeValueMemberM{Value: out}, nil
}

func fromAttribute(av types.AttributeValue) (any, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value, nil
	case *types.AttributeValueMemberN:
		return core.Number(t.Value), nil
	case *types.AttributeValueMemberBOOL:
		return t.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberB:
		return append([]byte(nil), t.Value...), nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(t.Value))
		for i, e := range t.Value {
			v, err := fromAttribute(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(t.Value))
		for k, e := range t.Value {
			v, err := fromAttribute(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	case *types.AttributeValueMemberSS:
		return core.StringSet(append([]string(nil), t.Value...)), nil
	case *types.AttributeValueMemberNS:
		ns := make(core.NumberSet, len(t.Value))
		for i, n := range t.Value {
			ns[i] = core.Number(n)
		}
		return ns, nil
	}
	return nil, fmt.Errorf("unsupported attribute value %T", av)
}

func toItem(rec core.Record) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(rec))
	for k, v := range rec {
		av, err := toAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func fromItem(item map[string]types.AttributeValue) (core.Record, error) {
	rec := make(core.Record, len(item))
	for k, av := range item {
		v, err := fromAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		rec[k] = v
	}
	return rec, nil
}

// encodeCursor renders a LastEvaluatedKey as an opaque string.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	rec, err := fromItem(key)
	if err != nil {
		return "", err
	}
	data, err := core.MarshalRecord(rec)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	rec, err := core.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return toItem(rec)
}
