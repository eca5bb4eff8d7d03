// Package repository persists conversation transcripts in a single DynamoDB
// table: role-tagged turn items under a conversation partition plus one
// metadata record per conversation.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"companion-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store defines the conversation state operations consumed by the chat
// service.
type Store interface {
	GetConversationTurnCount(ctx context.Context, conversationID string) (int, error)
	GetTranscript(ctx context.Context, conversationID string, limit int) ([]domain.ChatTurn, error)
	SaveExchange(ctx context.Context, conversationID, userText, assistantText, provider string, turns int) error
}

// Client wraps a DynamoDB table for conversation state.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// msgSK returns the sort key for a turn. The sequence suffix keeps the two
// turns of one exchange ordered even though they share a timestamp.
func msgSK(ts time.Time, seq int) string {
	return fmt.Sprintf("%s%s#%02d", skPrefixMsg, ts.UTC().Format(time.RFC3339Nano), seq)
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// GetTranscript queries the most recent turn items for a conversation and
// returns them in chronological order.
func (c *Client) GetTranscript(ctx context.Context, conversationID string, limit int) ([]domain.ChatTurn, error) {
	pk := convPK(conversationID)

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetTranscript query: %w", err)
	}

	turns := make([]domain.ChatTurn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetTranscript unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetConversationTurnCount returns the persisted exchange count for a
// conversation.
func (c *Client) GetConversationTurnCount(ctx context.Context, conversationID string) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: GetConversationTurnCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return 0, fmt.Errorf("repository: GetConversationTurnCount decode turns: %w", err)
	}
	return turns, nil
}

// SaveExchange writes the user turn, the assistant turn, and the updated
// metadata in one transaction so a half-written exchange is never replayed
// into a later prompt.
func (c *Client) SaveExchange(ctx context.Context, conversationID, userText, assistantText, provider string, turns int) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: SaveExchange: conversation id is required")
	}
	now := time.Now().UTC()
	userTurn := newTurnRecord(conversationID, domain.RoleUser, userText, "", now, 0)
	assistantTurn := newTurnRecord(conversationID, domain.RoleAssistant, assistantText, provider, now, 1)
	meta := newConversationMeta(conversationID, provider, turns)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(userTurn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(assistantTurn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

func newTurnRecord(conversationID, role, content, provider string, ts time.Time, seq int) domain.TurnRecord {
	return domain.TurnRecord{
		PK:             convPK(conversationID),
		SK:             msgSK(ts, seq),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Provider:       provider,
		Status:         "complete",
		TTL:            ttlValue(),
	}
}

func newConversationMeta(conversationID, provider string, turns int) domain.ConversationMeta {
	return domain.ConversationMeta{
		PK:             convPK(conversationID),
		SK:             skMeta,
		ConversationID: conversationID,
		LastActivity:   time.Now().UTC().Format(time.RFC3339),
		LastProvider:   provider,
		Turns:          turns,
		TTL:            ttlValue(),
	}
}

// itemToTurn converts a DynamoDB attribute map to a ChatTurn.
func itemToTurn(item map[string]types.AttributeValue) (domain.ChatTurn, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	return domain.ChatTurn{Role: role, Content: content}, nil
}

func turnItem(rec domain.TurnRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: rec.PK},
		"SK":             &types.AttributeValueMemberS{Value: rec.SK},
		"conversationId": &types.AttributeValueMemberS{Value: rec.ConversationID},
		"role":           &types.AttributeValueMemberS{Value: rec.Role},
		"content":        &types.AttributeValueMemberS{Value: rec.Content},
		"status":         &types.AttributeValueMemberS{Value: rec.Status},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.TTL)},
	}
	if rec.Provider != "" {
		item["provider"] = &types.AttributeValueMemberS{Value: rec.Provider}
	}
	return item
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"lastProvider":   &types.AttributeValueMemberS{Value: meta.LastProvider},
		"turns":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.Turns)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
