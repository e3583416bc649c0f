package log

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// appendField converts attr and appends it to fields, following slog's
// rules: empty attributes are dropped and groups without a key are inlined.
func appendField(fields []zap.Field, attr slog.Attr) []zap.Field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return fields
	}
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		if len(group) == 0 {
			return fields
		}
		if attr.Key == "" {
			for _, a := range group {
				fields = appendField(fields, a)
			}
			return fields
		}
	}
	return append(fields, toZapField(attr))
}

// toZapField converts a resolved slog.Attr to a zap.Field.
func toZapField(attr slog.Attr) zap.Field {
	v := attr.Value.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, v.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, v.Int64())
	case slog.KindUint64:
		return zap.Uint64(attr.Key, v.Uint64())
	case slog.KindBool:
		return zap.Bool(attr.Key, v.Bool())
	case slog.KindFloat64:
		return zap.Float64(attr.Key, v.Float64())
	case slog.KindTime:
		return zap.Time(attr.Key, v.Time())
	case slog.KindDuration:
		return zap.Duration(attr.Key, v.Duration())
	case slog.KindGroup:
		return zap.Object(attr.Key, groupMarshaler(v.Group()))
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return zap.String(attr.Key, "<nil>")
		case error:
			return zap.NamedError(attr.Key, x)
		case []byte:
			return zap.Binary(attr.Key, x)
		case fmt.Stringer:
			return zap.Stringer(attr.Key, x)
		default:
			return zap.Any(attr.Key, x)
		}
	default:
		return zap.Any(attr.Key, v.Any())
	}
}

// groupMarshaler encodes a slog group as a nested zap object.
type groupMarshaler []slog.Attr

func (g groupMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	var fields []zap.Field
	for _, a := range g {
		fields = appendField(fields, a)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	return nil
}
