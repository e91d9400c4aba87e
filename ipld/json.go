package ipld

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ipfs/go-cid"
)

// EncodeDAGJSON renders v as DAG-JSON: links become {"/": "<cid>"} and
// bytes become {"/": {"bytes": "<base64>"}}, matching the RPC boundary
// encoding named in §6.
func EncodeDAGJSON(v Value) ([]byte, error) {
	any, err := toJSONAny(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(any)
}

// DecodeDAGJSON parses DAG-JSON bytes into a Value, accepting the link and
// byte encodings above, plus the three equivalent nonce/byte encodings
// named in §6 wherever a byte string is expected (handled by callers via
// AsBytes on the decoded Value).
func DecodeDAGJSON(b []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var any interface{}
	if err := dec.Decode(&any); err != nil {
		return Value{}, fmt.Errorf("ipld: invalid DAG-JSON: %w", err)
	}
	return fromJSONAny(any)
}

func toJSONAny(v Value) (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindInt:
		if v.intVal.IsInt64() {
			return json.Number(v.intVal.String()), nil
		}
		return json.Number(v.intVal.String()), nil
	case KindFloat:
		return v.floatVal, nil
	case KindString:
		return v.strVal, nil
	case KindBytes:
		return map[string]interface{}{
			"/": map[string]interface{}{
				"bytes": base64.StdEncoding.EncodeToString(v.bytesVal),
			},
		}, nil
	case KindList:
		out := make([]interface{}, len(v.listVal))
		for i, e := range v.listVal {
			je, err := toJSONAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = je
		}
		return out, nil
	case KindMap:
		out := make(map[string]interface{}, len(v.mapVal))
		for k, e := range v.mapVal {
			je, err := toJSONAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = je
		}
		return out, nil
	case KindLink:
		return map[string]interface{}{"/": v.linkVal.String()}, nil
	default:
		return nil, fmt.Errorf("ipld: cannot encode value of unknown kind %d to DAG-JSON", v.kind)
	}
}

func fromJSONAny(a interface{}) (Value, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberToValue(t)
	case float64:
		return numberToValue(json.Number(fmt.Sprintf("%v", t)))
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := fromJSONAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]interface{}:
		if slash, ok := t["/"]; ok && len(t) == 1 {
			return decodeSlashForm(slash)
		}
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := fromJSONAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("ipld: unsupported DAG-JSON value of type %T", a)
	}
}

func numberToValue(n json.Number) (Value, error) {
	if i, ok := new(big.Int).SetString(n.String(), 10); ok {
		return IntBig(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("ipld: invalid number %q: %w", n, err)
	}
	return Float(f), nil
}

// decodeSlashForm handles the {"/": ...} envelope: a CID string names a
// Link, and a nested {"bytes": "<base64>"} object names Bytes.
func decodeSlashForm(slash interface{}) (Value, error) {
	switch t := slash.(type) {
	case string:
		c, err := cid.Decode(t)
		if err != nil {
			return Value{}, fmt.Errorf("ipld: invalid CID in link: %w", err)
		}
		return Link(c), nil
	case map[string]interface{}:
		rawBytes, ok := t["bytes"]
		if !ok {
			return Value{}, fmt.Errorf(`ipld: expected {"bytes": ...} under "/"`)
		}
		s, ok := rawBytes.(string)
		if !ok {
			return Value{}, fmt.Errorf("ipld: bytes payload must be a base64 string")
		}
		b, err := decodeBytesField(s)
		if err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	default:
		return Value{}, fmt.Errorf(`ipld: unsupported "/" payload of type %T`, slash)
	}
}

// decodeBytesField accepts standard and URL-safe base64, with or without
// padding, matching the tolerant nonce encodings named in §6.
func decodeBytesField(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("ipld: %q is not valid base64", s)
}
