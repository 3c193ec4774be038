// Package awstest provides in-memory implementations of the AWS APIs used
// by the alarm functions, for tests.
package awstest

import (
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
)

// CloudWatch keeps alarms in memory.
type CloudWatch struct {
	// Alarms are the stored alarms by name
	Alarms map[string]*cloudwatch.PutMetricAlarmInput
	// PutErrors are returned by consecutive puts of the named alarm
	PutErrors map[string][]error
	// DeleteErrors are returned by consecutive delete calls
	DeleteErrors []error
	// DescribeErrors are returned by consecutive describe calls
	DescribeErrors []error
	// PageSize is the number of alarms per describe page
	PageSize int
	// StrictDelete fails a whole delete call with ResourceNotFound when one
	// of its names does not exist, like CloudWatch does
	StrictDelete bool

	Puts      []*cloudwatch.PutMetricAlarmInput
	Deletes   [][]string
	Describes []string
}

// NewCloudWatch returns an empty CloudWatch.
func NewCloudWatch() *CloudWatch {
	return &CloudWatch{
		Alarms:    make(map[string]*cloudwatch.PutMetricAlarmInput),
		PutErrors: make(map[string][]error),
		PageSize:  100,
	}
}

// AddAlarm stores an alarm on the instance without recording a put.
func (c *CloudWatch) AddAlarm(name, metricName, instanceID string) {
	c.Alarms[name] = &cloudwatch.PutMetricAlarmInput{
		AlarmName:  aws.String(name),
		MetricName: aws.String(metricName),
		Namespace:  aws.String("AWS/EC2"),
		Dimensions: []*cloudwatch.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(instanceID)},
		},
		Period:             aws.Int64(300),
		EvaluationPeriods:  aws.Int64(1),
		Threshold:          aws.Float64(1),
		ComparisonOperator: aws.String(cloudwatch.ComparisonOperatorGreaterThanThreshold),
		Statistic:          aws.String(cloudwatch.StatisticAverage),
	}
}

// Names returns the stored alarm names in sorted order.
func (c *CloudWatch) Names() []string {
	var names []string
	for name := range c.Alarms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PutNames returns the names of all put calls in order.
func (c *CloudWatch) PutNames() []string {
	var names []string
	for _, in := range c.Puts {
		names = append(names, aws.StringValue(in.AlarmName))
	}
	return names
}

func (c *CloudWatch) PutMetricAlarmWithContext(ctx aws.Context, in *cloudwatch.PutMetricAlarmInput, opts ...request.Option) (*cloudwatch.PutMetricAlarmOutput, error) {
	name := aws.StringValue(in.AlarmName)
	if errs := c.PutErrors[name]; len(errs) > 0 {
		c.PutErrors[name] = errs[1:]
		return nil, errs[0]
	}
	c.Puts = append(c.Puts, in)
	c.Alarms[name] = in
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (c *CloudWatch) DescribeAlarmsPagesWithContext(ctx aws.Context, in *cloudwatch.DescribeAlarmsInput, fn func(*cloudwatch.DescribeAlarmsOutput, bool) bool, opts ...request.Option) error {
	prefix := aws.StringValue(in.AlarmNamePrefix)
	c.Describes = append(c.Describes, prefix)
	if len(c.DescribeErrors) > 0 {
		err := c.DescribeErrors[0]
		c.DescribeErrors = c.DescribeErrors[1:]
		return err
	}
	var matched []*cloudwatch.MetricAlarm
	for _, name := range c.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		a := c.Alarms[name]
		matched = append(matched, &cloudwatch.MetricAlarm{
			AlarmName:          a.AlarmName,
			AlarmDescription:   a.AlarmDescription,
			MetricName:         a.MetricName,
			Namespace:          a.Namespace,
			Dimensions:         a.Dimensions,
			Period:             a.Period,
			EvaluationPeriods:  a.EvaluationPeriods,
			Threshold:          a.Threshold,
			ComparisonOperator: a.ComparisonOperator,
			Statistic:          a.Statistic,
			ActionsEnabled:     a.ActionsEnabled,
			AlarmActions:       a.AlarmActions,
		})
	}
	if len(matched) == 0 {
		fn(&cloudwatch.DescribeAlarmsOutput{}, true)
		return nil
	}
	for start := 0; start < len(matched); start += c.PageSize {
		end := start + c.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		if !fn(&cloudwatch.DescribeAlarmsOutput{MetricAlarms: matched[start:end]}, end == len(matched)) {
			break
		}
	}
	return nil
}

func (c *CloudWatch) DeleteAlarmsWithContext(ctx aws.Context, in *cloudwatch.DeleteAlarmsInput, opts ...request.Option) (*cloudwatch.DeleteAlarmsOutput, error) {
	if len(c.DeleteErrors) > 0 {
		err := c.DeleteErrors[0]
		c.DeleteErrors = c.DeleteErrors[1:]
		return nil, err
	}
	names := aws.StringValueSlice(in.AlarmNames)
	if c.StrictDelete {
		for _, name := range names {
			if _, ok := c.Alarms[name]; !ok {
				return nil, awserr.New(cloudwatch.ErrCodeResourceNotFound, "alarm "+name+" does not exist", nil)
			}
		}
	}
	c.Deletes = append(c.Deletes, names)
	for _, name := range names {
		delete(c.Alarms, name)
	}
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}
