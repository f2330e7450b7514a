package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns alternating key/value arguments into zap fields. Bare
// errors and zap.Field values are accepted anywhere in the list.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(args)/2+1)

	for i := 0; i < len(args); {
		if f, ok := args[i].(zap.Field); ok {
			fields = append(fields, f)
			i++
			continue
		}
		if err, ok := args[i].(error); ok {
			fields = append(fields, zap.Error(err))
			i++
			continue
		}
		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i += 2
		name, ok := key.(string)
		if !ok {
			name = fmt.Sprintf("%v", key)
		}

		switch v := val.(type) {
		case string:
			fields = append(fields, zap.String(name, v))
		case int:
			fields = append(fields, zap.Int(name, v))
		case int64:
			fields = append(fields, zap.Int64(name, v))
		case float64:
			fields = append(fields, zap.Float64(name, v))
		case bool:
			fields = append(fields, zap.Bool(name, v))
		case time.Duration:
			fields = append(fields, zap.Duration(name, v))
		case time.Time:
			fields = append(fields, zap.Time(name, v))
		case error:
			fields = append(fields, zap.NamedError(name, v))
		default:
			fields = append(fields, zap.Any(name, v))
		}
	}
	return fields
}
