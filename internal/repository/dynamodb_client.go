package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"referee-agent/internal/domain"
)

const (
	skHistory   = "HISTORY#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// LogReadWriter defines the conversation log operations consumed by the
// turn service. The whole log is stored under a single item per session and
// replaced on every write.
type LogReadWriter interface {
	GetLog(ctx context.Context, sessionID string) ([]domain.Message, error)
	PutLog(ctx context.Context, sessionID string, log []domain.Message) error
	DeleteLog(ctx context.Context, sessionID string) error
}

// Client wraps a DynamoDB table holding one conversation log item per session.
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

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

func (c *Client) logKey(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skHistory},
	}
}

// GetLog reads the session's log item. A session that has never been written
// yields an empty log, not an error.
func (c *Client) GetLog(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("repository: GetLog: session ID is required")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.logKey(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetLog get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	msgs, err := messagesAttr(out.Item, "messages")
	if err != nil {
		return nil, fmt.Errorf("repository: GetLog unmarshal: %w", err)
	}
	return msgs, nil
}

// PutLog replaces the session's log item with the given messages.
func (c *Client) PutLog(ctx context.Context, sessionID string, log []domain.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: PutLog: session ID is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      logItem(sessionID, log),
	})
	if err != nil {
		return fmt.Errorf("repository: PutLog: %w", err)
	}
	return nil
}

// DeleteLog removes the session's log item. Deleting an absent log is not an
// error.
func (c *Client) DeleteLog(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: DeleteLog: session ID is required")
	}

	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.logKey(sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteLog: %w", err)
	}
	return nil
}

func logItem(sessionID string, log []domain.Message) map[string]types.AttributeValue {
	entries := make([]types.AttributeValue, 0, len(log))
	for _, m := range log {
		entries = append(entries, messageAttr(m))
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":        &types.AttributeValueMemberS{Value: skHistory},
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		"messages":  &types.AttributeValueMemberL{Value: entries},
		"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
	}
}

func messageAttr(m domain.Message) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"role":      &types.AttributeValueMemberS{Value: string(m.Role)},
		"content":   &types.AttributeValueMemberS{Value: m.Content},
		"createdAt": &types.AttributeValueMemberS{Value: m.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}}
}

// messagesAttr converts the stored list attribute back to an ordered log.
func messagesAttr(item map[string]types.AttributeValue, key string) ([]domain.Message, error) {
	v, ok := item[key]
	if !ok {
		return nil, fmt.Errorf("repository: missing attribute %q", key)
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}

	msgs := make([]domain.Message, 0, len(list.Value))
	for i, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: message %d is not a map", i)
		}
		msg, err := attrToMessage(m.Value)
		if err != nil {
			return nil, fmt.Errorf("repository: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func attrToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Message{}, err
	}
	createdAtRaw, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	return domain.Message{
		Role:      domain.Role(role),
		Content:   content,
		CreatedAt: createdAt,
	}, nil
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
