// Package ddb implements the Repository on a DynamoDB single table with one
// global secondary index (GSI1PK/GSI1SK).
package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

const (
	// DefaultIndexName is the GSI queried for owner, database and target lookups.
	DefaultIndexName = "GSI1"

	batchWriteLimit   = 25
	maxUnprocessedTry = 5
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Repository stores databases, pages and backlinks in one table.
type Repository struct {
	client    API
	tableName string
	indexName string
	logger    *zap.Logger
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository creates a repository over an existing table.
func NewRepository(client API, tableName, indexName string, logger *zap.Logger) *Repository {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

func (r *Repository) FindPage(ctx context.Context, pageID string) (*page.Page, error) {
	var it pageItem
	found, err := r.getItem(ctx, "FindPage", pagePK(pageID), &it)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.NewPageNotFound(pageID)
	}

	p := it.toDomain()
	incoming, err := r.FindBacklinksByTarget(ctx, pageID)
	if err != nil {
		return nil, err
	}
	for _, l := range incoming {
		p.Backlinks = append(p.Backlinks, page.BacklinkRef{
			SourcePageID:    l.SourcePageID,
			SourcePageTitle: l.SourcePageTitle,
			Context:         l.Context,
			CreatedAt:       l.CreatedAt,
		})
	}
	return &p, nil
}

func (r *Repository) FindPagesByDatabase(ctx context.Context, databaseID string) ([]page.Page, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(databasePK(databaseID))).
		And(expression.Key("GSI1SK").BeginsWith(prefixPage))

	var items []pageItem
	if err := r.query(ctx, "FindPagesByDatabase", r.indexName, keyEx, &items); err != nil {
		return nil, err
	}
	out := make([]page.Page, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

func (r *Repository) SavePage(ctx context.Context, p page.Page) error {
	var db databaseItem
	found, err := r.getItem(ctx, "SavePage", databasePK(p.DatabaseID), &db)
	if err != nil {
		return err
	}
	if !found {
		return repository.NewDatabaseNotFound(p.DatabaseID)
	}
	return r.putItem(ctx, "SavePage", newPageItem(p))
}

func (r *Repository) DeletePage(ctx context.Context, pageID string) error {
	var it pageItem
	found, err := r.getItem(ctx, "DeletePage", pagePK(pageID), &it)
	if err != nil {
		return err
	}
	if !found {
		return repository.NewPageNotFound(pageID)
	}

	outgoing, err := r.FindBacklinksBySource(ctx, pageID)
	if err != nil {
		return err
	}
	incoming, err := r.FindBacklinksByTarget(ctx, pageID)
	if err != nil {
		return err
	}

	keys := make([]map[string]types.AttributeValue, 0, len(outgoing)+len(incoming)+1)
	for _, l := range outgoing {
		keys = append(keys, itemKey(pagePK(l.SourcePageID), linkSK(l.TargetPageID)))
	}
	for _, l := range incoming {
		keys = append(keys, itemKey(pagePK(l.SourcePageID), linkSK(l.TargetPageID)))
	}
	// The page goes last so a partial failure leaves it discoverable for retry.
	if err := r.batchDelete(ctx, "DeletePage", keys); err != nil {
		return err
	}
	return r.deleteItem(ctx, "DeletePage", itemKey(pagePK(pageID), skMeta), nil)
}

func (r *Repository) FindBacklinksBySource(ctx context.Context, pageID string) ([]backlink.Backlink, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(pagePK(pageID))).
		And(expression.Key("SK").BeginsWith(prefixLink))
	return r.queryBacklinks(ctx, "FindBacklinksBySource", "", keyEx)
}

func (r *Repository) FindBacklinksByTarget(ctx context.Context, pageID string) ([]backlink.Backlink, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(targetGSI(pageID))).
		And(expression.Key("GSI1SK").BeginsWith(prefixSource))
	return r.queryBacklinks(ctx, "FindBacklinksByTarget", r.indexName, keyEx)
}

func (r *Repository) queryBacklinks(ctx context.Context, op, index string, keyEx expression.KeyConditionBuilder) ([]backlink.Backlink, error) {
	var items []backlinkItem
	if err := r.query(ctx, op, index, keyEx, &items); err != nil {
		return nil, err
	}
	out := make([]backlink.Backlink, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// ReplaceBacklinksForSource deletes then writes in batches. It is not
// atomic: a failure between the phases leaves the source with fewer edges,
// which the next extraction repairs.
func (r *Repository) ReplaceBacklinksForSource(ctx context.Context, pageID string, links []backlink.Backlink) error {
	if err := repository.CheckSource(pageID, links); err != nil {
		return err
	}
	links = backlink.Dedupe(links)

	existing, err := r.FindBacklinksBySource(ctx, pageID)
	if err != nil {
		return err
	}
	keys := make([]map[string]types.AttributeValue, 0, len(existing))
	for _, l := range existing {
		keys = append(keys, itemKey(pagePK(l.SourcePageID), linkSK(l.TargetPageID)))
	}
	if err := r.batchDelete(ctx, "ReplaceBacklinksForSource", keys); err != nil {
		return err
	}

	requests := make([]types.WriteRequest, 0, len(links))
	for _, l := range links {
		av, err := attributevalue.MarshalMap(newBacklinkItem(l))
		if err != nil {
			return apperrors.Wrap(err, "ReplaceBacklinksForSource", "failed to marshal backlink")
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	return r.batchWrite(ctx, "ReplaceBacklinksForSource", requests)
}

func (r *Repository) FindDatabase(ctx context.Context, databaseID string) (*page.Database, error) {
	var it databaseItem
	found, err := r.getItem(ctx, "FindDatabase", databasePK(databaseID), &it)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.NewDatabaseNotFound(databaseID)
	}
	db := it.toDomain()
	if db.PageIDs, err = r.pageIDs(ctx, databaseID); err != nil {
		return nil, err
	}
	return &db, nil
}

func (r *Repository) FindDatabasesByOwner(ctx context.Context, ownerID string) ([]page.Database, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(ownerGSI(ownerID))).
		And(expression.Key("GSI1SK").BeginsWith(prefixDB))

	var items []databaseItem
	if err := r.query(ctx, "FindDatabasesByOwner", r.indexName, keyEx, &items); err != nil {
		return nil, err
	}
	out := make([]page.Database, 0, len(items))
	for _, it := range items {
		db := it.toDomain()
		ids, err := r.pageIDs(ctx, db.ID)
		if err != nil {
			return nil, err
		}
		db.PageIDs = ids
		out = append(out, db)
	}
	return out, nil
}

func (r *Repository) SaveDatabase(ctx context.Context, db page.Database) error {
	return r.putItem(ctx, "SaveDatabase", newDatabaseItem(db))
}

func (r *Repository) DeleteDatabase(ctx context.Context, databaseID string) error {
	ids, err := r.pageIDs(ctx, databaseID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return repository.NewDatabaseNotEmpty(databaseID, len(ids))
	}

	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return apperrors.Wrap(err, "DeleteDatabase", "failed to build expression")
	}
	err = r.deleteItem(ctx, "DeleteDatabase", itemKey(databasePK(databaseID), skMeta), &expr)
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return repository.NewDatabaseNotFound(databaseID)
	}
	return err
}

func (r *Repository) pageIDs(ctx context.Context, databaseID string) ([]string, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(databasePK(databaseID))).
		And(expression.Key("GSI1SK").BeginsWith(prefixPage))
	proj := expression.NamesList(expression.Name("GSI1SK"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).WithProjection(proj).Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "pageIDs", "failed to build expression")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	var ids []string
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, r.storageErr("pageIDs", err)
		}
		for _, item := range out.Items {
			var key struct {
				GSI1SK string `dynamodbav:"GSI1SK"`
			}
			if err := attributevalue.UnmarshalMap(item, &key); err != nil {
				return nil, repository.NewCorruptRecord(entityPage, databaseID, err)
			}
			id, err := idFromKey(key.GSI1SK, prefixPage)
			if err != nil {
				return nil, repository.NewCorruptRecord(entityPage, databaseID, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Repository) getItem(ctx context.Context, op, pk string, out any) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(pk, skMeta),
	})
	if err != nil {
		return false, r.storageErr(op, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, repository.NewCorruptRecord("item", pk, err)
	}
	return true, nil
}

func (r *Repository) putItem(ctx context.Context, op string, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, op, "failed to marshal item")
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return r.storageErr(op, err)
	}
	return nil
}

func (r *Repository) deleteItem(ctx context.Context, op string, key map[string]types.AttributeValue, cond *expression.Expression) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       key,
	}
	if cond != nil {
		input.ConditionExpression = cond.Condition()
		input.ExpressionAttributeNames = cond.Names()
		input.ExpressionAttributeValues = cond.Values()
	}
	if _, err := r.client.DeleteItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return err
		}
		return r.storageErr(op, err)
	}
	return nil
}

// query reads every page of a key-condition query into out (a slice pointer).
func (r *Repository) query(ctx context.Context, op, index string, keyEx expression.KeyConditionBuilder, out any) error {
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return apperrors.Wrap(err, op, "failed to build expression")
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return r.storageErr(op, err)
		}
		items = append(items, result.Items...)
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return repository.NewCorruptRecord("item", op, err)
	}
	return nil
}

func (r *Repository) batchDelete(ctx context.Context, op string, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
	}
	return r.batchWrite(ctx, op, requests)
}

func (r *Repository) batchWrite(ctx context.Context, op string, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(requests))
		pending := map[string][]types.WriteRequest{r.tableName: requests[start:end]}

		for attempt := 0; len(pending[r.tableName]) > 0; attempt++ {
			if attempt == maxUnprocessedTry {
				return r.storageErr(op, fmt.Errorf("%d write requests left unprocessed", len(pending[r.tableName])))
			}
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return r.storageErr(op, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func (r *Repository) storageErr(op string, err error) error {
	r.logger.Warn("dynamodb operation failed",
		zap.String("operation", op),
		zap.String("table", r.tableName),
		zap.Error(err))

	// Service faults that retrying cannot fix are reported as such.
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ResourceNotFoundException":
			return apperrors.Configuration(apperrors.CodeDynamoDBError.String(),
				fmt.Sprintf("table '%s' does not exist", r.tableName)).
				WithOperation(op).
				WithDetails(ae.ErrorMessage()).
				WithCause(err).
				Build()
		case "ValidationException":
			return apperrors.Data(apperrors.CodeDynamoDBError.String(), "request rejected by dynamodb").
				WithOperation(op).
				WithDetails(ae.ErrorMessage()).
				WithCause(err).
				Build()
		}
	}
	return repository.NewStorageError(apperrors.CodeDynamoDBError, op, err)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}
