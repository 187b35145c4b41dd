// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
	"github.com/guregu/null/v5"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	PutItem(
		ctx context.Context,
		in *dynamodb.PutItemInput,
		opts ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)
	Query(
		ctx context.Context,
		in *dynamodb.QueryInput,
		opts ...func(*dynamodb.Options),
	) (*dynamodb.QueryOutput, error)
}

// DynamoDB stores records in a table keyed by device_id (partition) and sk
// (sort). The sort key is the processing time in a fixed-width UTC layout
// followed by the record id, so lexical order is time order and two records
// processed in the same instant never collide.
type DynamoDB struct {
	client DynamoDBAPI
	table  string
}

const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

const keyCondition = "device_id = :d AND sk BETWEEN :from AND :to"

// Sort key bounds used for open-ended queries.
const (
	minSortKey = "0"
	maxSortKey = "9~"
)

// NewDynamoDB creates a store using the default AWS credential chain.
func NewDynamoDB(ctx context.Context, table string) (*DynamoDB, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamodb store: loading AWS config: %w", err)
	}
	return NewDynamoDBWithClient(dynamodb.NewFromConfig(cfg), table)
}

// NewDynamoDBWithClient creates a store over an existing client.
func NewDynamoDBWithClient(
	client DynamoDBAPI,
	table string,
) (*DynamoDB, error) {
	if client == nil || table == "" {
		return nil, fmt.Errorf("dynamodb store: client and table are required")
	}
	return &DynamoDB{client: client, table: table}, nil
}

// Append puts the record as a new item.
func (d *DynamoDB) Append(
	ctx context.Context,
	rec *telemetry.Record,
) (RecordID, error) {
	if err := validate(rec); err != nil {
		return RecordID{}, err
	}

	item := map[string]types.AttributeValue{
		"device_id":    &types.AttributeValueMemberS{Value: rec.DeviceID},
		"sk":           &types.AttributeValueMemberS{Value: sortKey(rec)},
		"id":           &types.AttributeValueMemberS{Value: rec.ID.String()},
		"site_id":      &types.AttributeValueMemberS{Value: rec.SiteID},
		"ts":           numberAttr(float64(rec.DeviceTimestamp)),
		"ieq_score":    numberAttr(rec.IEQScore),
		"processed_at": timeAttr(rec.ProcessedAt),
		"timestamp":    timeAttr(rec.Timestamp),
		"sensors": &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"temperature": nullableAttr(rec.Sensors.Temperature),
				"humidity":    nullableAttr(rec.Sensors.Humidity),
				"air_quality": nullableAttr(rec.Sensors.AirQuality),
				"light":       nullableAttr(rec.Sensors.Light),
				"sound":       nullableAttr(rec.Sensors.Sound),
			},
		},
	}
	if len(rec.RawSensors) > 0 {
		item["raw_sensors"] = &types.AttributeValueMemberS{
			Value: string(rec.RawSensors),
		}
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return RecordID{}, storeError(err, "append", rec.DeviceID)
	}
	return rec.ID, nil
}

// Query returns matching records, newest first, following pagination until
// the limit is reached.
func (d *DynamoDB) Query(
	ctx context.Context,
	q Query,
) ([]*telemetry.Record, error) {
	from, to := minSortKey, maxSortKey
	if !q.From.IsZero() {
		from = q.From.UTC().Format(sortKeyLayout)
	}
	if !q.To.IsZero() {
		// Include every record id processed exactly at To.
		to = q.To.UTC().Format(sortKeyLayout) + "#~"
	}

	limit := q.limit()
	var recs []*telemetry.Record
	var start map[string]types.AttributeValue
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			KeyConditionExpression: aws.String(keyCondition),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d":    &types.AttributeValueMemberS{Value: q.DeviceID},
				":from": &types.AttributeValueMemberS{Value: from},
				":to":   &types.AttributeValueMemberS{Value: to},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit - len(recs))),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, storeError(err, "query", q.DeviceID)
		}

		for _, item := range out.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, storeError(err, "query", q.DeviceID)
			}
			recs = append(recs, rec)
		}

		if len(out.LastEvaluatedKey) == 0 || len(recs) >= limit {
			return recs, nil
		}
		start = out.LastEvaluatedKey
	}
}

// Latest returns the newest record of a device.
func (d *DynamoDB) Latest(
	ctx context.Context,
	deviceID string,
) (*telemetry.Record, error) {
	recs, err := d.Query(ctx, Query{DeviceID: deviceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (*DynamoDB) Close() error {
	return nil
}

func sortKey(rec *telemetry.Record) string {
	return rec.ProcessedAt.UTC().Format(sortKeyLayout) + "#" + rec.ID.String()
}

func numberAttr(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatFloat(v, 'f', -1, 64),
	}
}

func nullableAttr(v null.Float) types.AttributeValue {
	if !v.Valid {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return numberAttr(v.Float64)
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{
		Value: t.UTC().Format(time.RFC3339Nano),
	}
}

func decodeItem(
	item map[string]types.AttributeValue,
) (*telemetry.Record, error) {
	id, err := uuid.Parse(stringAttr(item["id"]))
	if err != nil {
		// Fall back to the id embedded in the sort key.
		_, suffix, _ := strings.Cut(stringAttr(item["sk"]), "#")
		if id, err = uuid.Parse(suffix); err != nil {
			return nil, fmt.Errorf("invalid record id: %w", err)
		}
	}

	rec := &telemetry.Record{
		ID:       id,
		DeviceID: stringAttr(item["device_id"]),
		SiteID:   stringAttr(item["site_id"]),
	}

	if ts := floatAttr(item["ts"]); ts.Valid {
		rec.DeviceTimestamp = int64(ts.Float64)
	}
	rec.IEQScore = floatAttr(item["ieq_score"]).ValueOrZero()

	if rec.ProcessedAt, err = parseTimeAttr(item["processed_at"]); err != nil {
		return nil, err
	}
	if rec.Timestamp, err = parseTimeAttr(item["timestamp"]); err != nil {
		return nil, err
	}

	if m, ok := item["sensors"].(*types.AttributeValueMemberM); ok {
		rec.Sensors = telemetry.Sensors{
			Temperature: floatAttr(m.Value["temperature"]),
			Humidity:    floatAttr(m.Value["humidity"]),
			AirQuality:  floatAttr(m.Value["air_quality"]),
			Light:       floatAttr(m.Value["light"]),
			Sound:       floatAttr(m.Value["sound"]),
		}
	}

	if raw := stringAttr(item["raw_sensors"]); raw != "" {
		rec.RawSensors = json.RawMessage(raw)
	}
	return rec, nil
}

func stringAttr(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func floatAttr(v types.AttributeValue) null.Float {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return null.Float{}
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func parseTimeAttr(v types.AttributeValue) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, stringAttr(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time attribute: %w", err)
	}
	return t.UTC(), nil
}
