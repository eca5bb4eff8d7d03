package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"companion-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	lastQueryIn  *dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func turnAttrs(pk, sk, role, content string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: pk},
		"SK":      &types.AttributeValueMemberS{Value: sk},
		"role":    &types.AttributeValueMemberS{Value: role},
		"content": &types.AttributeValueMemberS{Value: content},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "table")
	require.Error(t, err)

	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestGetTranscript_ReturnsChronologicalOrder(t *testing.T) {
	// DynamoDB returns newest-first; the client must reverse.
	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		turnAttrs("CONV#c1", "MSG#2025-06-01T10:00:02Z#00", "assistant", "hi, how can I help?"),
		turnAttrs("CONV#c1", "MSG#2025-06-01T10:00:01Z#00", "user", "hello"),
	}}}
	c, err := New(fake, "table")
	require.NoError(t, err)

	turns, err := c.GetTranscript(context.Background(), "c1", 20)
	require.NoError(t, err)
	require.Equal(t, []domain.ChatTurn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi, how can I help?"},
	}, turns)

	require.Equal(t, "CONV#c1", fake.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.False(t, *fake.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(20), *fake.lastQueryIn.Limit)
}

func TestGetTranscript_QueryError(t *testing.T) {
	c, err := New(&fakeDynamo{queryErr: errors.New("throttled")}, "table")
	require.NoError(t, err)
	_, err = c.GetTranscript(context.Background(), "c1", 20)
	require.ErrorContains(t, err, "throttled")
}

func TestGetTranscript_MalformedItem(t *testing.T) {
	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{"PK": &types.AttributeValueMemberS{Value: "CONV#c1"}},
	}}}
	c, err := New(fake, "table")
	require.NoError(t, err)
	_, err = c.GetTranscript(context.Background(), "c1", 20)
	require.ErrorContains(t, err, "missing attribute")
}

func TestGetConversationTurnCount(t *testing.T) {
	fake := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"turns": &types.AttributeValueMemberN{Value: "7"},
	}}}
	c, err := New(fake, "table")
	require.NoError(t, err)

	n, err := c.GetConversationTurnCount(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, "META#", fake.lastGetInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestGetConversationTurnCount_NoMetaYet(t *testing.T) {
	c, err := New(&fakeDynamo{getOut: &dynamodb.GetItemOutput{}}, "table")
	require.NoError(t, err)
	n, err := c.GetConversationTurnCount(context.Background(), "c1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSaveExchange_WritesBothTurnsAndMeta(t *testing.T) {
	fake := &fakeDynamo{}
	c, err := New(fake, "table")
	require.NoError(t, err)

	err = c.SaveExchange(context.Background(), "c1", "what's up?", "not much!", "fallback", 3)
	require.NoError(t, err)

	items := fake.lastTxInput.TransactItems
	require.Len(t, items, 3)

	userItem := items[0].Put.Item
	require.Equal(t, "user", userItem["role"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "what's up?", userItem["content"].(*types.AttributeValueMemberS).Value)
	require.NotNil(t, items[0].Put.ConditionExpression)

	assistantItem := items[1].Put.Item
	require.Equal(t, "assistant", assistantItem["role"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "fallback", assistantItem["provider"].(*types.AttributeValueMemberS).Value)

	// The two turns of one exchange must sort user-before-assistant.
	userSK := userItem["SK"].(*types.AttributeValueMemberS).Value
	assistantSK := assistantItem["SK"].(*types.AttributeValueMemberS).Value
	require.True(t, strings.HasPrefix(userSK, "MSG#"))
	require.Less(t, userSK, assistantSK)

	metaItem := items[2].Put.Item
	require.Equal(t, "META#", metaItem["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "3", metaItem["turns"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "fallback", metaItem["lastProvider"].(*types.AttributeValueMemberS).Value)
}

func TestSaveExchange_EmptyConversationID(t *testing.T) {
	c, err := New(&fakeDynamo{}, "table")
	require.NoError(t, err)
	err = c.SaveExchange(context.Background(), " ", "q", "a", "primary", 1)
	require.Error(t, err)
}

func TestSaveExchange_TransactionError(t *testing.T) {
	c, err := New(&fakeDynamo{txErr: errors.New("conditional check failed")}, "table")
	require.NoError(t, err)
	err = c.SaveExchange(context.Background(), "c1", "q", "a", "primary", 1)
	require.ErrorContains(t, err, "conditional check failed")
}

func TestMsgSK_Ordering(t *testing.T) {
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.Less(t, msgSK(ts, 0), msgSK(ts, 1))
	require.Less(t, msgSK(ts, 1), msgSK(ts.Add(time.Second), 0))
}
