package utils

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeDriverValue flattens the zoo of types database/sql and the mongo
// driver hand back into the small set the engine works with: nil, bool,
// float64, string, time.Time, maps and slices.
func NormalizeDriverValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.A:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeDriverValue(item))
		}
		return out
	case primitive.M:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = NormalizeDriverValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = NormalizeDriverValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeDriverValue(item))
		}
		return out
	default:
		return val
	}
}

// NormalizeRow applies NormalizeDriverValue to every column of a scanned row.
func NormalizeRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = NormalizeDriverValue(v)
	}
	return out
}

// ConvertDateTime parses the datetime representations seen across the legacy
// store and the document store into time.Time.
func ConvertDateTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		formats := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

// ConvertToInt safely converts an interface to int.
func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// IDString renders a primary-key value the way record ids are keyed
// throughout the engine.
func IDString(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		// Integral ids read back from JSON arrive as float64.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", val)
	}
}
