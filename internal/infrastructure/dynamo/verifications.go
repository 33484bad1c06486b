package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
)

// VerificationRepo implements domain.VerificationStore on two DynamoDB tables.
// OTP table PK: uuid. Call table PK: uuid, GSI mobile-created-index (mobile, created).
type VerificationRepo struct {
	client    API
	otpTable  string
	callTable string
	now       func() time.Time
	// indexRetry is the pause before re-reading the mobile index once.
	indexRetry time.Duration
}

func NewVerificationRepo(client API, tables config.DatabaseTables) *VerificationRepo {
	return &VerificationRepo{
		client:    client,
		otpTable:  tables.SMSOTP,
		callTable: tables.CallVerification,
		now:       func() time.Time { return time.Now().UTC() },

		indexRetry: 250 * time.Millisecond,
	}
}

// Migrate bootstraps both tables.
func (r *VerificationRepo) Migrate(ctx context.Context) error {
	return Bootstrap(ctx, r.client, config.DatabaseTables{SMSOTP: r.otpTable, CallVerification: r.callTable})
}

// CountOTPRequests scans the OTP table with COUNT projection.
func (r *VerificationRepo) CountOTPRequests(ctx context.Context) (int, error) {
	var (
		total int
		start map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.otpTable),
			Select:            types.SelectCount,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return 0, fmt.Errorf("count otp requests: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *VerificationRepo) InsertOTPRequest(ctx context.Context, v *domain.OTPRequest) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	v.ModifiedAt = v.CreatedAt
	return r.put(ctx, r.otpTable, v)
}

func (r *VerificationRepo) FindOTPRequestByID(ctx context.Context, id string) (*domain.OTPRequest, error) {
	var v domain.OTPRequest
	if err := r.get(ctx, r.otpTable, id, &v); err != nil {
		return nil, fmt.Errorf("otp request %s: %w", id, err)
	}
	return &v, nil
}

func (r *VerificationRepo) MarkOTPCompleted(ctx context.Context, id string) error {
	err := r.update(ctx, r.otpTable, id,
		map[string]interface{}{"completed": true, "modified": r.now().Unix()},
		"attribute_exists(#pk) AND #c = :no",
		map[string]string{"#pk": "uuid", "#c": "completed"},
		map[string]interface{}{":no": false},
	)
	if !isConditionFailed(err) {
		return err
	}
	if _, err := r.FindOTPRequestByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("otp request %s already completed: %w", id, domain.ErrConflict)
}

func (r *VerificationRepo) InsertCallRequest(ctx context.Context, v *domain.CallRequest) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	v.ModifiedAt = v.CreatedAt
	return r.put(ctx, r.callTable, v)
}

// FindCallRequestByMobile walks the mobile index newest first and returns the
// first request that is not yet verified. The GSI is eventually consistent,
// so a request inserted moments ago may be missing; a miss is retried once
// after indexRetry before reporting ErrNotFound.
func (r *VerificationRepo) FindCallRequestByMobile(ctx context.Context, mobile string) (*domain.CallRequest, error) {
	v, err := r.queryOpenCall(ctx, mobile)
	if !errors.Is(err, domain.ErrNotFound) {
		return v, err
	}
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(r.indexRetry):
	}
	return r.queryOpenCall(ctx, mobile)
}

func (r *VerificationRepo) queryOpenCall(ctx context.Context, mobile string) (*domain.CallRequest, error) {
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.callTable),
			IndexName:                 aws.String(mobileIndex),
			KeyConditionExpression:    aws.String("mobile = :m"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":m": &types.AttributeValueMemberS{Value: mobile}},
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("query call requests by mobile: %w", err)
		}
		var items []domain.CallRequest
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal call requests: %w", err)
		}
		for i := range items {
			if !items[i].Completed {
				return &items[i], nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil, fmt.Errorf("open call request for %s: %w", mobile, domain.ErrNotFound)
		}
		start = out.LastEvaluatedKey
	}
}

func (r *VerificationRepo) FindCallRequestByID(ctx context.Context, id string) (*domain.CallRequest, error) {
	var v domain.CallRequest
	if err := r.get(ctx, r.callTable, id, &v); err != nil {
		return nil, fmt.Errorf("call request %s: %w", id, err)
	}
	return &v, nil
}

func (r *VerificationRepo) MarkCallReceived(ctx context.Context, mobile string) error {
	open, err := r.FindCallRequestByMobile(ctx, mobile)
	if err != nil {
		return err
	}
	if open.CallReceived {
		return nil
	}
	err = r.update(ctx, r.callTable, open.ID,
		map[string]interface{}{"call_received": true, "modified": r.now().Unix()},
		"#c = :no",
		map[string]string{"#c": "completed"},
		map[string]interface{}{":no": false},
	)
	if isConditionFailed(err) {
		// Verified in the meantime; receiving again changes nothing.
		return nil
	}
	return err
}

func (r *VerificationRepo) MarkCallCompleted(ctx context.Context, id string) error {
	err := r.update(ctx, r.callTable, id,
		map[string]interface{}{"completed": true, "modified": r.now().Unix()},
		"attribute_exists(#pk) AND #r = :yes AND #c = :no",
		map[string]string{"#pk": "uuid", "#r": "call_received", "#c": "completed"},
		map[string]interface{}{":yes": true, ":no": false},
	)
	if !isConditionFailed(err) {
		return err
	}
	v, err := r.FindCallRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if !v.CallReceived {
		return fmt.Errorf("call request %s has no call yet: %w", id, domain.ErrConflict)
	}
	return nil
}

func (r *VerificationRepo) put(ctx context.Context, table string, v interface{}) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "uuid",
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", table, err)
	}
	return nil
}

func (r *VerificationRepo) get(ctx context.Context, table, id string, dst interface{}) error {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            strKey("uuid", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	if out.Item == nil {
		return domain.ErrNotFound
	}
	return attributevalue.UnmarshalMap(out.Item, dst)
}

func (r *VerificationRepo) update(ctx context.Context, table, id string, set map[string]interface{},
	cond string, condNames map[string]string, condValues map[string]interface{}) error {
	ue, err := buildUpdateExpr(set)
	if err != nil {
		return err
	}
	if err := ue.withCondition(condNames, condValues); err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       strKey("uuid", id),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
