// Package store reads and writes alarm definition sets kept in a DynamoDB
// table keyed by application name (Name) and application type (Type).
package store

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
)

const (
	// KeyName is the partition key attribute, the application name
	KeyName = "Name"
	// KeyType is the sort key attribute, the application type
	KeyType = "Type"
	// AttributeAlarms is the attribute holding the alarm definitions
	AttributeAlarms = "Alarms"
)

// DynamoDB is the subset of the DynamoDB API used by the store
type DynamoDB interface {
	GetItemWithContext(aws.Context, *dynamodb.GetItemInput, ...request.Option) (*dynamodb.GetItemOutput, error)
	PutItemWithContext(aws.Context, *dynamodb.PutItemInput, ...request.Option) (*dynamodb.PutItemOutput, error)
}

// Config is the store configuration
type Config struct {
	// DynamoDB is the DynamoDB API client
	DynamoDB DynamoDB
	// TableName is the alarm definition table
	TableName string
	Logger    *zap.Logger
}

// CheckAndSetDefaults checks and sets default values
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.DynamoDB == nil {
		return errors.New("missing parameter DynamoDB")
	}
	if cfg.TableName == "" {
		return errors.New("missing parameter TableName")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Store gives access to alarm definition sets
type Store struct {
	Config
}

// New returns a new store
func New(cfg Config) (*Store, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{Config: cfg}, nil
}

// GetDefinitions returns the alarm definitions of the application with a
// strongly consistent read. It fails with NotFoundError when there is no
// record and with LookupError when the table can not be read or the record
// is malformed.
func (s *Store) GetDefinitions(ctx context.Context, name, typ string) (*alarm.DefinitionSet, error) {
	out, err := s.DynamoDB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TableName),
		Key:            key(name, typ),
		ConsistentRead: aws.Bool(true),
		// Name and Type are reserved words
		ProjectionExpression:     aws.String("#alarms"),
		ExpressionAttributeNames: map[string]*string{"#alarms": aws.String(AttributeAlarms)},
	})
	if err != nil {
		return nil, errors.WithStack(&LookupError{Name: name, Type: typ, Err: err})
	}
	if len(out.Item) == 0 {
		return nil, errors.WithStack(&NotFoundError{Name: name, Type: typ})
	}

	item := make(map[string]*dynamodb.AttributeValue, len(out.Item)+2)
	for k, v := range out.Item {
		item[k] = v
	}
	for k, v := range key(name, typ) {
		item[k] = v
	}
	set, err := decode(item)
	if err != nil {
		return nil, errors.WithStack(&LookupError{Name: name, Type: typ, Err: err})
	}
	s.Logger.Debug("retrieved alarm definitions",
		zap.String("application_name", name),
		zap.String("application_type", typ),
		zap.Strings("keys", set.Alarms.Keys()))
	return set, nil
}

// PutDefinitions unconditionally replaces the definition set, last writer wins.
func (s *Store) PutDefinitions(ctx context.Context, set *alarm.DefinitionSet) error {
	if err := set.CheckAndSetDefaults(); err != nil {
		return errors.WithStack(&WriteError{Name: set.Name, Type: set.Type, Err: err})
	}
	item, err := dynamodbattribute.MarshalMap(set)
	if err != nil {
		return errors.WithStack(&WriteError{Name: set.Name, Type: set.Type, Err: err})
	}
	// the encoder writes empty maps as NULL, which reads back as a missing attribute
	if len(set.Alarms) == 0 {
		item[AttributeAlarms] = &dynamodb.AttributeValue{M: map[string]*dynamodb.AttributeValue{}}
	}
	_, err = s.DynamoDB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.TableName),
		Item:      item,
	})
	if err != nil {
		return errors.WithStack(&WriteError{Name: set.Name, Type: set.Type, Err: err})
	}
	s.Logger.Info("wrote alarm definitions",
		zap.String("application_name", set.Name),
		zap.String("application_type", set.Type),
		zap.Int("count", len(set.Alarms)))
	return nil
}

func key(name, typ string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		KeyName: {S: aws.String(name)},
		KeyType: {S: aws.String(typ)},
	}
}

func decode(item map[string]*dynamodb.AttributeValue) (*alarm.DefinitionSet, error) {
	var set alarm.DefinitionSet
	if err := dynamodbattribute.UnmarshalMap(item, &set); err != nil {
		return nil, errors.WithStack(err)
	}
	// an empty map decodes to nil, but it is a set without alarms
	if av := item[AttributeAlarms]; set.Alarms == nil && av != nil && av.M != nil {
		set.Alarms = alarm.Definitions{}
	}
	if err := set.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &set, nil
}
