package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	updates []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["jobId"].(*types.AttributeValueMemberS).Value
	if _, exists := f.items[id]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	id := in.Key["jobId"].(*types.AttributeValueMemberS).Value
	item, exists := f.items[id]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if status, ok := in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS); ok {
		item["status"] = status
	}
	if errMsg, ok := in.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS); ok {
		item["errorMessage"] = errMsg
	}
	f.updates = append(f.updates, id)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["jobId"].(*types.AttributeValueMemberS).Value
	item, exists := f.items[id]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func TestJobStoreLifecycle(t *testing.T) {
	dyn := newFakeDynamo()
	store := NewJobStore(dyn, "notify_jobs", nil)
	ctx := context.Background()

	job := &JobRecord{JobID: "job-1", Kind: KindSecurityAlert, UserID: "auth-1"}
	if err := store.PutPending(ctx, job); err != nil {
		t.Fatalf("PutPending: %v", err)
	}
	if job.Status != JobStatusPending || job.ExpiresAt == 0 {
		t.Errorf("pending job not normalized: %+v", job)
	}

	// Duplicate insert must be rejected by the condition expression.
	if err := store.PutPending(ctx, &JobRecord{JobID: "job-1", Kind: KindSecurityAlert}); err == nil {
		t.Error("duplicate PutPending should fail")
	}

	if err := store.MarkSent(ctx, "job-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobStatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}

	if err := store.MarkFailed(ctx, "job-1", "provider down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = store.GetJob(ctx, "job-1")
	if got.Status != JobStatusFailed || got.ErrorMessage != "provider down" {
		t.Errorf("failed job = %+v", got)
	}
}

func TestJobStoreGetMissing(t *testing.T) {
	store := NewJobStore(newFakeDynamo(), "notify_jobs", nil)
	if _, err := store.GetJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("missing job = %v, want ErrJobNotFound", err)
	}
}

func TestJobRecordRoundTripsAttributeValues(t *testing.T) {
	record := JobRecord{JobID: "job-2", Status: JobStatusPending, Kind: KindSecurityAlert, UserID: "auth-9"}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded JobRecord
	if err := attributevalue.UnmarshalMap(item, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != KindSecurityAlert || decoded.UserID != "auth-9" {
		t.Errorf("decoded = %+v", decoded)
	}
}
