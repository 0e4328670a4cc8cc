package cache

import "encoding/json"

func marshal(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(payload)
	}
}

func unmarshal[V any](data []byte) (V, error) {
	var value V
	switch holder := any(&value).(type) {
	case *[]byte:
		*holder = append([]byte(nil), data...)
	case *json.RawMessage:
		*holder = append(json.RawMessage(nil), data...)
	case *string:
		*holder = string(data)
	default:
		if err := json.Unmarshal(data, &value); err != nil {
			return value, err
		}
	}
	return value, nil
}
