package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the subset of *dynamodb.Client the table uses.
type dynamoAPI interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoTable stores the conversation table in a DynamoDB table with a
// string partition key PK and string sort key SK.
type DynamoTable struct {
	client dynamoAPI
	table  string
}

// NewDynamoTable builds a client from the default AWS credential chain.
// endpoint overrides the service URL (DynamoDB Local); empty uses AWS.
func NewDynamoTable(ctx context.Context, region, endpoint, tableName string) (*DynamoTable, error) {
	if tableName == "" {
		return nil, ErrNoTable
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &DynamoTable{client: client, table: tableName}, nil
}

// Close is a no-op; the SDK client holds no long-lived connection state.
func (t *DynamoTable) Close() error { return nil }

// Ping describes the table.
func (t *DynamoTable) Ping(ctx context.Context) error {
	_, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(t.table),
	})
	return err
}

// EnsureTable creates the table (on-demand billing) if it does not exist
// and waits until it is active.
func (t *DynamoTable) EnsureTable(ctx context.Context) error {
	err := t.Ping(ctx)
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return err
	}

	_, err = t.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(t.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", t.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(t.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.table)}, 2*time.Minute)
}

// PutItem writes one record.
func (t *DynamoTable) PutItem(ctx context.Context, item Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.table),
		Item:      av,
	})
	return err
}

// Query runs a key-condition query, following pages until Limit items
// are read or the partition range is exhausted.
func (t *DynamoTable) Query(ctx context.Context, q Query) ([]Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(t.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: q.PK},
		},
		ScanIndexForward: aws.Bool(!q.Descending),
	}
	if q.SKPrefix != "" {
		input.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :prefix)")
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: q.SKPrefix}
	}

	items := make([]Item, 0)
	for {
		if q.Limit > 0 {
			input.Limit = aws.Int32(pageLimit(q.Limit - len(items)))
		}

		out, err := t.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}

		var page []Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		items = append(items, page...)

		if len(out.LastEvaluatedKey) == 0 || (q.Limit > 0 && len(items) >= q.Limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return items, nil
}

// pageLimit converts the remaining item count to a request Limit.
func pageLimit(remaining int) int32 {
	if remaining > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(remaining)
}
