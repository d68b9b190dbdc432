package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"referee-agent/internal/domain"
)

type fakeDynamo struct {
	getOut        *dynamodb.GetItemOutput
	getErr        error
	putErr        error
	deleteErr     error
	lastGetInput  *dynamodb.GetItemInput
	lastPutInput  *dynamodb.PutItemInput
	lastDelInput  *dynamodb.DeleteItemInput
	deleteInvoked bool
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelInput = in
	f.deleteInvoked = true
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func sampleLog() []domain.Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Message{
		{Role: domain.RoleUser, Content: "Was that offside?", CreatedAt: base},
		{Role: domain.RoleAssistant, Content: "Yes, Law 11 applies.", CreatedAt: base.Add(2 * time.Second)},
	}
}

func TestGetLog_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: logItem("abc", sampleLog())}}
	c := mustNewClient(t, db)

	msgs, err := c.GetLog(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleUser, msgs[0].Role)
	require.Equal(t, "Was that offside?", msgs[0].Content)
	require.True(t, msgs[0].CreatedAt.Equal(sampleLog()[0].CreatedAt))
}

func TestGetLog_AbsentSessionYieldsEmptyLog(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	msgs, err := c.GetLog(context.Background(), "abc")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestGetLog_UsesConsistentReadAndLogKey(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, err := c.GetLog(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "SESSION#abc", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skHistory, db.lastGetInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestGetLog_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)

	_, err := c.GetLog(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "GetLog")
}

func TestGetLog_MalformedMessagesAttribute(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: "SESSION#abc"},
		"SK":       &types.AttributeValueMemberS{Value: skHistory},
		"messages": &types.AttributeValueMemberS{Value: "not-a-list"},
	}}}
	c := mustNewClient(t, db)

	_, err := c.GetLog(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a list")
}

func TestGetLog_EntryMissingContent(t *testing.T) {
	entry := &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"role":      &types.AttributeValueMemberS{Value: "user"},
		"createdAt": &types.AttributeValueMemberS{Value: "2026-03-01T12:00:00Z"},
	}}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"messages": &types.AttributeValueMemberL{Value: []types.AttributeValue{entry}},
	}}}
	c := mustNewClient(t, db)

	_, err := c.GetLog(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "content")
}

func TestGetLog_EntryBadTimestamp(t *testing.T) {
	entry := &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"role":      &types.AttributeValueMemberS{Value: "user"},
		"content":   &types.AttributeValueMemberS{Value: "hello"},
		"createdAt": &types.AttributeValueMemberS{Value: "yesterday"},
	}}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"messages": &types.AttributeValueMemberL{Value: []types.AttributeValue{entry}},
	}}}
	c := mustNewClient(t, db)

	_, err := c.GetLog(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "createdAt")
}

func TestGetLog_EmptySessionID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetLog(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestPutLog_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.PutLog(context.Background(), "abc", sampleLog())
	require.NoError(t, err)
	require.NotNil(t, db.lastPutInput)
	item := db.lastPutInput.Item
	require.Equal(t, "SESSION#abc", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skHistory, item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "abc", item["sessionId"].(*types.AttributeValueMemberS).Value)
	require.Len(t, item["messages"].(*types.AttributeValueMemberL).Value, 2)
	require.NotEmpty(t, item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestPutLog_EmptyLogIsStorable(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.PutLog(context.Background(), "abc", nil)
	require.NoError(t, err)
	require.Empty(t, db.lastPutInput.Item["messages"].(*types.AttributeValueMemberL).Value)
}

func TestPutLog_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)

	err := c.PutLog(context.Background(), "abc", sampleLog())
	require.Error(t, err)
	require.Contains(t, err.Error(), "PutLog")
}

func TestPutLog_EmptySessionID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.PutLog(context.Background(), "", sampleLog())
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestDeleteLog_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.DeleteLog(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, db.deleteInvoked)
	require.Equal(t, "SESSION#abc", db.lastDelInput.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skHistory, db.lastDelInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestDeleteLog_DynamoError(t *testing.T) {
	db := &fakeDynamo{deleteErr: errors.New("internal server error")}
	c := mustNewClient(t, db)

	err := c.DeleteLog(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "DeleteLog")
}

func TestDeleteLog_EmptySessionID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.DeleteLog(context.Background(), " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestLogItem_RoundTrip(t *testing.T) {
	log := sampleLog()
	item := logItem("abc", log)

	got, err := messagesAttr(item, "messages")
	require.NoError(t, err)
	require.Len(t, got, len(log))
	for i := range log {
		require.Equal(t, log[i].Role, got[i].Role)
		require.Equal(t, log[i].Content, got[i].Content)
		require.True(t, got[i].CreatedAt.Equal(log[i].CreatedAt))
	}
}

func TestSessionPK(t *testing.T) {
	require.Equal(t, "SESSION#my-session", sessionPK("my-session"))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
