package store

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
)

// DecodeImage decodes the image of a definition record carried by a
// DynamoDB stream event. The image is validated the same way as records
// returned by GetDefinitions.
func DecodeImage(image map[string]events.DynamoDBAttributeValue) (*alarm.DefinitionSet, error) {
	item, err := FromStreamImage(image)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decode(item)
}

// FromStreamImage converts a stream image into SDK attribute values.
func FromStreamImage(image map[string]events.DynamoDBAttributeValue) (map[string]*dynamodb.AttributeValue, error) {
	out := make(map[string]*dynamodb.AttributeValue, len(image))
	for name, value := range image {
		av, err := fromStreamValue(value)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %v", name)
		}
		out[name] = av
	}
	return out, nil
}

func fromStreamValue(v events.DynamoDBAttributeValue) (*dynamodb.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &dynamodb.AttributeValue{S: aws.String(v.String())}, nil
	case events.DataTypeNumber:
		return &dynamodb.AttributeValue{N: aws.String(v.Number())}, nil
	case events.DataTypeBoolean:
		return &dynamodb.AttributeValue{BOOL: aws.Bool(v.Boolean())}, nil
	case events.DataTypeNull:
		return &dynamodb.AttributeValue{NULL: aws.Bool(true)}, nil
	case events.DataTypeBinary:
		return &dynamodb.AttributeValue{B: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &dynamodb.AttributeValue{SS: aws.StringSlice(v.StringSet())}, nil
	case events.DataTypeNumberSet:
		return &dynamodb.AttributeValue{NS: aws.StringSlice(v.NumberSet())}, nil
	case events.DataTypeBinarySet:
		return &dynamodb.AttributeValue{BS: v.BinarySet()}, nil
	case events.DataTypeMap:
		m, err := FromStreamImage(v.Map())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return &dynamodb.AttributeValue{M: m}, nil
	case events.DataTypeList:
		var list []*dynamodb.AttributeValue
		for i, item := range v.List() {
			av, err := fromStreamValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "item %v", i)
			}
			list = append(list, av)
		}
		return &dynamodb.AttributeValue{L: list}, nil
	}
	return nil, errors.Errorf("unsupported attribute type %v", v.DataType())
}
