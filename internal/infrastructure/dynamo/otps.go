package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hotel-account-api/internal/domain"
)

// OTPRepo provides typed DynamoDB operations for the otp_records table.
// PK: email — at most one live record per email; Put has upsert semantics.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put otp record: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *OTPRepo) Get(ctx context.Context, email string) (*domain.OTPRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldEmail, email),
	})
	if err != nil {
		return nil, fmt.Errorf("get otp record: %v: %w", err, domain.ErrStorage)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp record not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal otp record: %v: %w", err, domain.ErrStorage)
	}
	return &rec, nil
}

func (r *OTPRepo) Update(ctx context.Context, email string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, email),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return fmt.Errorf("update otp record: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *OTPRepo) Delete(ctx context.Context, email string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldEmail, email),
	})
	if err != nil {
		return fmt.Errorf("delete otp record: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

// DeleteVerifiedBefore scans for verified records whose updated_at is older
// than cutoff and deletes them, returning the number removed. Pending records
// are excluded by the filter regardless of age.
func (r *OTPRepo) DeleteVerifiedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("#s = :verified AND #u < :cutoff"),
			ExpressionAttributeNames: map[string]string{
				"#s": fieldState,
				"#u": fieldUpdatedAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":verified": &types.AttributeValueMemberS{Value: domain.OTPStateVerified},
				":cutoff":   &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
			},
			ProjectionExpression: aws.String(fieldEmail),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return deleted, fmt.Errorf("scan otp records: %v: %w", err, domain.ErrStorage)
		}
		for _, item := range out.Items {
			v, ok := item[fieldEmail].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := r.Delete(ctx, v.Value); err != nil {
				return deleted, err
			}
			deleted++
		}
		if out.LastEvaluatedKey == nil {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
