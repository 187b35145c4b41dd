// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/eclipse/paho.golang/paho"
	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/iancoleman/strcase"
)

type logger struct{ log.Logger }

// Packet logs an MQTT control packet at debug level, one attribute per
// non-zero exported field.
func (l logger) Packet(ctx context.Context, name string, packet any) {
	// Reflection is expensive; bail out if nobody is listening.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := realValue(reflect.ValueOf(packet))
	if missingValue(val) {
		return
	}
	l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
}

func (l logger) insecure(ctx context.Context, broker string) {
	l.Warn(ctx, "connecting with TLS certificate verification disabled",
		slog.String("broker", broker),
	)
}

func (l logger) connected(ctx context.Context, broker, filter string) {
	l.Info(ctx, "subscribed to broker",
		slog.String("broker", broker),
		slog.String("topic_filter", filter),
	)
}

func (l logger) lost(ctx context.Context, err error) {
	l.WarnErr(ctx, err, slog.String("event", "connection_lost"))
}

func (l logger) dropped(ctx context.Context, topic string) {
	l.Debug(ctx, "ignoring message outside topic filter",
		slog.String("topic", topic),
	)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		attrs = append(attrs, reflectAttr(
			strcase.ToSnake(f.Name),
			realValue(val.Field(i)),
		)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	if missingValue(val) {
		return nil
	}

	switch name {
	// Never log credentials.
	case "password":
		return []slog.Attr{slog.String(name, "<redacted>")}

	// Flatten paho's property nesting.
	case "properties":
		return reflectAttrs(val)

	// The subscriber only ever subscribes to a single filter.
	case "subscriptions":
		if subs, ok := val.Interface().([]paho.SubscribeOptions); ok {
			return reflectAttrs(reflect.ValueOf(subs[0]))
		}
	case "reasons":
		if reasons, ok := val.Interface().([]byte); ok {
			return []slog.Attr{
				slog.Int("reason_code", int(reasons[0])),
				slog.String("reason", ReasonName(reasons[0])),
			}
		}
	case "reason_code":
		if code, ok := val.Interface().(byte); ok {
			return []slog.Attr{
				slog.Int(name, int(code)),
				slog.String("reason", ReasonName(code)),
			}
		}

	// strcase splits QoS into two words.
	case "qo_s":
		return []slog.Attr{slog.Any("qos", val.Interface())}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.Int(name+"_len", len(v))}

	case paho.UserProperties:
		attrs := make([]any, len(v))
		for i, p := range v {
			attrs[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(name, attrs...)}
	}

	if val.Kind() == reflect.Struct {
		as := reflectAttrs(val)
		if len(as) == 0 {
			return nil
		}
		cpy := make([]any, len(as))
		for i, a := range as {
			cpy[i] = a
		}
		return []slog.Attr{slog.Group(name, cpy...)}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		val = val.Elem()
	}
	return val
}

func missingValue(val reflect.Value) bool {
	return val.Kind() == reflect.Invalid || val.IsZero()
}
