// Package dynamo implements repository.Table on Amazon DynamoDB.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/expr"
	"github.com/and161185/userdir/internal/repository"
)

// API is the subset of *dynamodb.Client used by Table.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Table is a DynamoDB table with a single string hash key.
type Table struct {
	api     API
	name    string
	keyAttr string
}

var _ repository.Table = (*Table)(nil)

// NewTable binds a table name and its hash key attribute.
func NewTable(api API, name, keyAttr string) *Table {
	return &Table{api: api, name: name, keyAttr: keyAttr}
}

func (t *Table) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{t.keyAttr: &types.AttributeValueMemberS{Value: k}}
}

// Get reads an item with strong consistency.
func (t *Table) Get(ctx context.Context, key string) (repository.Item, bool, error) {
	out, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            t.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, transport("get", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	return fromItem(out.Item), true, nil
}

func (t *Table) Put(ctx context.Context, item repository.Item) error {
	if k, _ := item[t.keyAttr].(string); k == "" {
		return fmt.Errorf("put: missing %q: %w", t.keyAttr, errs.ErrInvalidArgument)
	}
	av, err := toItem(item)
	if err != nil {
		return err
	}
	if _, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(t.name), Item: av}); err != nil {
		return transport("put", err)
	}
	return nil
}

// Update runs the compiled expression, conditioned on the item existing.
func (t *Table) Update(ctx context.Context, key string, u expr.Update) error {
	if u.IsEmpty() {
		return nil
	}
	names := make(map[string]string, len(u.Names)+1)
	for k, v := range u.Names {
		names[k] = v
	}
	names["#pk"] = t.keyAttr

	var values map[string]types.AttributeValue
	if len(u.Values) > 0 {
		values = make(map[string]types.AttributeValue, len(u.Values))
		for k, v := range u.Values {
			av, err := toAV(v)
			if err != nil {
				return err
			}
			values[k] = av
		}
	}

	_, err := t.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       t.key(key),
		UpdateExpression:          aws.String(u.Expression),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("update %s: %w", key, errs.ErrNotFound)
		}
		return transport("update", err)
	}
	return nil
}

func (t *Table) Delete(ctx context.Context, key string) error {
	if _, err := t.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(t.name), Key: t.key(key)}); err != nil {
		return transport("delete", err)
	}
	return nil
}

// Scan pages through the whole table with a filter expression.
func (t *Table) Scan(ctx context.Context, f repository.Filter, projection ...string) ([]repository.Item, error) {
	val, err := toAV(f.Value)
	if err != nil {
		return nil, err
	}
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(t.name),
		FilterExpression:          aws.String("#flt = :flt"),
		ExpressionAttributeNames:  map[string]string{"#flt": f.Attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":flt": val},
	}
	if len(projection) > 0 {
		var pe string
		for i, p := range projection {
			ph := "#p" + strconv.Itoa(i)
			in.ExpressionAttributeNames[ph] = p
			if i > 0 {
				pe += ", "
			}
			pe += ph
		}
		in.ProjectionExpression = aws.String(pe)
	}

	var out []repository.Item
	p := dynamodb.NewScanPaginator(t.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, transport("scan", err)
		}
		for _, it := range page.Items {
			out = append(out, fromItem(it))
		}
	}
	return out, nil
}

func transport(op string, err error) error {
	return fmt.Errorf("%w: dynamodb %s: %w", errs.ErrTransport, op, err)
}
