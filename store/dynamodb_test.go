// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store_test

import (
	"context"
	e "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dynamoMock struct {
	mock.Mock
}

func (m *dynamoMock) PutItem(
	_ context.Context,
	in *dynamodb.PutItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	args := m.Called(in)
	return &dynamodb.PutItemOutput{}, args.Error(0)
}

func (m *dynamoMock) Query(
	_ context.Context,
	in *dynamodb.QueryInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func TestDynamoDBRoundTrip(t *testing.T) {
	m := new(dynamoMock)
	s, err := store.NewDynamoDBWithClient(m, "telemetry")
	require.NoError(t, err)

	rec := record("esp32-001", 0)

	var item map[string]types.AttributeValue
	m.On("PutItem", mock.Anything).
		Run(func(args mock.Arguments) {
			in := args.Get(0).(*dynamodb.PutItemInput)
			require.Equal(t, "telemetry", *in.TableName)
			item = in.Item
		}).
		Return(nil).
		Once()

	id, err := s.Append(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, rec.ID, id)

	sk := item["sk"].(*types.AttributeValueMemberS).Value
	require.Equal(t, "2024-01-15T14:30:00.000000000Z#"+rec.ID.String(), sk)

	m.On("Query", mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return !*in.ScanIndexForward && *in.Limit == 1
	})).
		Return(&dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{item},
		}, nil).
		Once()

	latest, err := s.Latest(context.Background(), "esp32-001")
	require.NoError(t, err)
	require.Equal(t, rec, latest)
	m.AssertExpectations(t)
}

func TestDynamoDBPaginates(t *testing.T) {
	m := new(dynamoMock)
	s, err := store.NewDynamoDBWithClient(m, "telemetry")
	require.NoError(t, err)

	items := make([]map[string]types.AttributeValue, 0, 3)
	m.On("PutItem", mock.Anything).
		Run(func(args mock.Arguments) {
			items = append(items, args.Get(0).(*dynamodb.PutItemInput).Item)
		}).
		Return(nil)
	for i := range 3 {
		_, err := s.Append(context.Background(), record("esp32-001", 0))
		require.NoError(t, err, i)
	}

	cursor := map[string]types.AttributeValue{
		"device_id": &types.AttributeValueMemberS{Value: "esp32-001"},
	}
	m.On("Query", mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).
		Return(&dynamodb.QueryOutput{
			Items:            items[:2],
			LastEvaluatedKey: cursor,
		}, nil).
		Once()
	m.On("Query", mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil && *in.Limit == 8
	})).
		Return(&dynamodb.QueryOutput{Items: items[2:]}, nil).
		Once()

	recs, err := s.Query(
		context.Background(),
		store.Query{DeviceID: "esp32-001", Limit: 10},
	)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	m.AssertExpectations(t)
}

func TestDynamoDBErrors(t *testing.T) {
	m := new(dynamoMock)
	s, err := store.NewDynamoDBWithClient(m, "telemetry")
	require.NoError(t, err)

	m.On("PutItem", mock.Anything).Return(e.New("throttled"))
	_, err = s.Append(context.Background(), record("esp32-001", 0))
	require.True(t, errors.IsKind(err, errors.StoreError))

	m.On("Query", mock.Anything).Return(&dynamodb.QueryOutput{}, nil)
	_, err = s.Latest(context.Background(), "esp32-001")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = store.NewDynamoDBWithClient(nil, "telemetry")
	require.Error(t, err)
}

var _ store.Store = (*store.DynamoDB)(nil)
