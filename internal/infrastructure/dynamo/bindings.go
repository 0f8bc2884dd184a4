package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-account-link/internal/domain"
)

// BindingRepo provides typed DynamoDB operations for the bindings table.
//
// The table holds two item kinds: the main item keyed by the local
// account ("local#<id>", full binding) and a claim item keyed by the
// external account ("ext#<id>", owner reference). Bind writes both in a
// single TransactWriteItems with attribute_not_exists conditions, which
// makes the bijection a persistence-layer guarantee rather than a
// check-then-insert race.
type BindingRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewBindingRepo(client *dynamodb.Client, tableName string) *BindingRepo {
	return &BindingRepo{client: client, tableName: tableName}
}

type bindingItem struct {
	PK string `dynamodbav:"pk"`
	domain.Binding
}

type claimItem struct {
	PK         string `dynamodbav:"pk"`
	LocalID    string `dynamodbav:"local_id"`
	ExternalID int64  `dynamodbav:"external_id"`
}

// Bind atomically inserts the binding pair, refreshes it when the exact
// pair already exists, or reports the conflicting side. now is supplied
// by the caller so the registry controls the clock.
func (r *BindingRepo) Bind(ctx context.Context, localID string, externalID int64, displayName, operator string, now time.Time) (*domain.BindResult, error) {
	b := &domain.Binding{
		LocalID:     localID,
		ExternalID:  externalID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   operator,
		UpdatedBy:   operator,
	}
	mainItem, err := attributevalue.MarshalMap(bindingItem{PK: localKeyPrefix + localID, Binding: *b})
	if err != nil {
		return nil, fmt.Errorf("marshal binding: %w", err)
	}
	claim, err := attributevalue.MarshalMap(claimItem{
		PK:         externalKeyPrefix + strconv.FormatInt(externalID, 10),
		LocalID:    localID,
		ExternalID: externalID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal claim: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                mainItem,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                claim,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err == nil {
		return &domain.BindResult{Status: domain.BindStatusBound, Binding: b}, nil
	}

	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return nil, fmt.Errorf("bind transact: %w", err)
	}
	return r.resolveExisting(ctx, localID, externalID, operator, now)
}

// resolveExisting handles the transaction-cancelled path: either the
// exact pair already exists (idempotent re-bind) or one side is taken.
func (r *BindingRepo) resolveExisting(ctx context.Context, localID string, externalID int64, operator string, now time.Time) (*domain.BindResult, error) {
	cur, err := r.GetByLocal(ctx, localID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	claim, err := r.getClaim(ctx, externalID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	switch {
	case cur != nil && cur.ExternalID == externalID && claim != nil && claim.LocalID == localID:
		return r.refresh(ctx, localID, externalID, operator, now)
	case cur != nil && cur.ExternalID != externalID:
		return &domain.BindResult{
			Status:   domain.BindStatusConflict,
			Conflict: domain.OutcomeLocalAlreadyBound,
			Reason:   fmt.Sprintf("local account already bound to external account %d", cur.ExternalID),
		}, nil
	case claim != nil && claim.LocalID != localID:
		return &domain.BindResult{
			Status:   domain.BindStatusConflict,
			Conflict: domain.OutcomeExternalAlreadyBound,
			Reason:   fmt.Sprintf("external account already bound to local account %s", claim.LocalID),
		}, nil
	default:
		// Rows changed between the transaction and the reads.
		return &domain.BindResult{
			Status:   domain.BindStatusConflict,
			Conflict: domain.OutcomeConflict,
			Reason:   "binding changed concurrently, try again",
		}, nil
	}
}

// refresh is the idempotent re-bind: only updated_at/updated_by move,
// guarded by a condition so a concurrent unbind cannot resurrect the row.
func (r *BindingRepo) refresh(ctx context.Context, localID string, externalID int64, operator string, now time.Time) (*domain.BindResult, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldUpdatedAt: now,
		fieldUpdatedBy: operator,
	})
	if err != nil {
		return nil, err
	}
	ue.Names["#ext"] = fieldExternalID
	ue.Values[":ext"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(externalID, 10)}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       localKey(localID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#ext = :ext"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return &domain.BindResult{
				Status:   domain.BindStatusConflict,
				Conflict: domain.OutcomeConflict,
				Reason:   "binding changed concurrently, try again",
			}, nil
		}
		return nil, fmt.Errorf("refresh binding: %w", err)
	}
	var item bindingItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, err
	}
	return &domain.BindResult{Status: domain.BindStatusUpdated, Binding: &item.Binding}, nil
}

// Unbind deletes the binding for a local account together with its
// external claim. Returns the removed binding, or nil when none existed.
func (r *BindingRepo) Unbind(ctx context.Context, localID string) (*domain.Binding, error) {
	cur, err := r.GetByLocal(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                 aws.String(r.tableName),
				Key:                       localKey(localID),
				ConditionExpression:       aws.String("#ext = :ext"),
				ExpressionAttributeNames:  map[string]string{"#ext": fieldExternalID},
				ExpressionAttributeValues: map[string]types.AttributeValue{":ext": &types.AttributeValueMemberN{Value: strconv.FormatInt(cur.ExternalID, 10)}},
			}},
			{Delete: &types.Delete{
				TableName:                 aws.String(r.tableName),
				Key:                       externalKey(cur.ExternalID),
				ConditionExpression:       aws.String("#l = :l"),
				ExpressionAttributeNames:  map[string]string{"#l": fieldLocalID},
				ExpressionAttributeValues: map[string]types.AttributeValue{":l": &types.AttributeValueMemberS{Value: localID}},
			}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return nil, fmt.Errorf("binding changed concurrently: %w", domain.ErrConflict)
		}
		return nil, fmt.Errorf("unbind transact: %w", err)
	}
	return cur, nil
}

func (r *BindingRepo) GetByLocal(ctx context.Context, localID string) (*domain.Binding, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            localKey(localID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	var item bindingItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item.Binding, nil
}

func (r *BindingRepo) GetByExternal(ctx context.Context, externalID int64) (*domain.Binding, error) {
	claim, err := r.getClaim(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return r.GetByLocal(ctx, claim.LocalID)
}

func (r *BindingRepo) getClaim(ctx context.Context, externalID int64) (*claimItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            externalKey(externalID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	var item claimItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Ping checks that the table is reachable, for status reporting.
func (r *BindingRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	return err
}
