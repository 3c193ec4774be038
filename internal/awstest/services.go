package awstest

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// EC2 serves instance tags.
type EC2 struct {
	// Tags are the tags by instance ID
	Tags  map[string]map[string]string
	Err   error
	Calls int
}

func (e *EC2) DescribeTagsPagesWithContext(ctx aws.Context, in *ec2.DescribeTagsInput, fn func(*ec2.DescribeTagsOutput, bool) bool, opts ...request.Option) error {
	e.Calls++
	if e.Err != nil {
		return e.Err
	}
	var out ec2.DescribeTagsOutput
	for _, filter := range in.Filters {
		if aws.StringValue(filter.Name) != "resource-id" {
			continue
		}
		for _, id := range aws.StringValueSlice(filter.Values) {
			for key, value := range e.Tags[id] {
				out.Tags = append(out.Tags, &ec2.TagDescription{
					ResourceId:   aws.String(id),
					ResourceType: aws.String(ec2.ResourceTypeInstance),
					Key:          aws.String(key),
					Value:        aws.String(value),
				})
			}
		}
	}
	fn(&out, true)
	return nil
}

// AutoScaling records completed lifecycle actions.
type AutoScaling struct {
	Completed []*autoscaling.CompleteLifecycleActionInput
	Err       error
}

func (a *AutoScaling) CompleteLifecycleActionWithContext(ctx aws.Context, in *autoscaling.CompleteLifecycleActionInput, opts ...request.Option) (*autoscaling.CompleteLifecycleActionOutput, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	a.Completed = append(a.Completed, in)
	return &autoscaling.CompleteLifecycleActionOutput{}, nil
}

// DynamoDB is a single table keyed by Name and Type.
type DynamoDB struct {
	Items  map[string]map[string]*dynamodb.AttributeValue
	GetErr error
	PutErr error

	Gets []*dynamodb.GetItemInput
	Puts []*dynamodb.PutItemInput
}

// NewDynamoDB returns an empty table.
func NewDynamoDB() *DynamoDB {
	return &DynamoDB{Items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func itemKey(key map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(key["Name"].S) + "/" + aws.StringValue(key["Type"].S)
}

func (d *DynamoDB) GetItemWithContext(ctx aws.Context, in *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	d.Gets = append(d.Gets, in)
	if d.GetErr != nil {
		return nil, d.GetErr
	}
	return &dynamodb.GetItemOutput{Item: d.Items[itemKey(in.Key)]}, nil
}

func (d *DynamoDB) PutItemWithContext(ctx aws.Context, in *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	d.Puts = append(d.Puts, in)
	if d.PutErr != nil {
		return nil, d.PutErr
	}
	d.Items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}
