package dynamo

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/and161185/userdir/internal/repository"
)

func toAV(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(t, 10)}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(t)}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	default:
		return nil, fmt.Errorf("dynamodb: unsupported attribute type %T", v)
	}
}

// fromAV converts scalar attribute values; other shapes come back as nil.
func fromAV(av types.AttributeValue) any {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseInt(t.Value, 10, 64); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(t.Value, 64)
		return f
	case *types.AttributeValueMemberBOOL:
		return t.Value
	default:
		return nil
	}
}

func toItem(item repository.Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		av, err := toAV(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func fromItem(av map[string]types.AttributeValue) repository.Item {
	out := make(repository.Item, len(av))
	for k, v := range av {
		out[k] = fromAV(v)
	}
	return out
}
