package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-account-link/internal/domain"
)

// AuditRepo appends and queries the append-only binding audit log.
// PK: local_id, SK: entry_id (ULID, so entries sort by insertion time).
// Entries are never updated or deleted.
type AuditRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAuditRepo(client *dynamodb.Client, tableName string) *AuditRepo {
	return &AuditRepo{client: client, tableName: tableName}
}

func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// QueryByLocal returns up to limit entries for a local account, newest first.
func (r *AuditRepo) QueryByLocal(ctx context.Context, localID string, limit int32) ([]domain.AuditEntry, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#l = :l"),
		ExpressionAttributeNames:  map[string]string{"#l": fieldLocalID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":l": &types.AttributeValueMemberS{Value: localID}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var entries []domain.AuditEntry
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// QueryByExternal returns up to limit entries for an external account,
// newest first, via the external_id GSI.
func (r *AuditRepo) QueryByExternal(ctx context.Context, externalID int64, limit int32) ([]domain.AuditEntry, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("external_id-index"),
		KeyConditionExpression:    aws.String("#e = :e"),
		ExpressionAttributeNames:  map[string]string{"#e": fieldExternalID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":e": &types.AttributeValueMemberN{Value: strconv.FormatInt(externalID, 10)}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var entries []domain.AuditEntry
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// QueryByTimeRange scans for entries whose timestamp falls inside
// [from, to] and returns the newest limit of them. Timestamps are stored
// as RFC3339 UTC strings, so lexicographic comparison is chronological.
func (r *AuditRepo) QueryByTimeRange(ctx context.Context, from, to time.Time, limit int32) ([]domain.AuditEntry, error) {
	fromAV, err := attributevalue.Marshal(from.UTC())
	if err != nil {
		return nil, err
	}
	toAV, err := attributevalue.Marshal(to.UTC())
	if err != nil {
		return nil, err
	}
	var entries []domain.AuditEntry
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          aws.String("#ts BETWEEN :from AND :to"),
			ExpressionAttributeNames:  map[string]string{"#ts": fieldTimestamp},
			ExpressionAttributeValues: map[string]types.AttributeValue{":from": fromAV, ":to": toAV},
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.AuditEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	// Scans are unordered; sort newest first by ULID before truncating.
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryID > entries[j].EntryID })
	if limit > 0 && int32(len(entries)) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
