package alarm

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// maxDeleteBatch is the number of names DeleteAlarms accepts per call
	maxDeleteBatch = 100
	// DefaultMaxRetries is the number of retries of a throttled call
	DefaultMaxRetries = 5
)

// CloudWatch is the subset of the CloudWatch API used to manage alarms
type CloudWatch interface {
	PutMetricAlarmWithContext(aws.Context, *cloudwatch.PutMetricAlarmInput, ...request.Option) (*cloudwatch.PutMetricAlarmOutput, error)
	DescribeAlarmsPagesWithContext(aws.Context, *cloudwatch.DescribeAlarmsInput, func(*cloudwatch.DescribeAlarmsOutput, bool) bool, ...request.Option) error
	DeleteAlarmsWithContext(aws.Context, *cloudwatch.DeleteAlarmsInput, ...request.Option) (*cloudwatch.DeleteAlarmsOutput, error)
}

// ClientConfig is the alarm client configuration
type ClientConfig struct {
	// CloudWatch is the CloudWatch API client
	CloudWatch CloudWatch
	// Namespace is the metric namespace, AWS/EC2 by default
	Namespace string
	// TopicARN is the SNS topic notified by alarms, no action is set when empty
	TopicARN string
	// MaxRetries limits retries of throttled calls
	MaxRetries uint64
	// NewBackOff returns the retry policy for throttled calls
	NewBackOff func() backoff.BackOff
	Logger     *zap.Logger
}

// CheckAndSetDefaults checks and sets default values
func (cfg *ClientConfig) CheckAndSetDefaults() error {
	if cfg.CloudWatch == nil {
		return errors.New("missing parameter CloudWatch")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = Namespace
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Client creates, lists and deletes per-instance alarms
type Client struct {
	ClientConfig
}

// NewClient returns a new alarm client
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Client{ClientConfig: cfg}, nil
}

// Put creates the alarm or fully replaces the configuration of an
// existing alarm with the same name.
func (c *Client) Put(ctx context.Context, r Resource) error {
	input := c.putInput(r)
	err := c.retry(ctx, func() error {
		_, err := c.CloudWatch.PutMetricAlarmWithContext(ctx, input)
		return err
	})
	if err != nil {
		return errors.WithStack(&ClientError{Op: "put", Names: []string{r.Name}, Err: err})
	}
	c.Logger.Debug("put alarm",
		zap.String("alarm_name", r.Name),
		zap.String("metric_name", r.MetricName),
		zap.String("instance_id", r.InstanceID))
	return nil
}

func (c *Client) putInput(r Resource) *cloudwatch.PutMetricAlarmInput {
	evaluationPeriods := int64(r.EvaluationPeriods)
	if evaluationPeriods <= 0 {
		evaluationPeriods = DefaultEvaluationPeriods
	}
	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:  aws.String(r.Name),
		MetricName: aws.String(r.MetricName),
		Namespace:  aws.String(c.Namespace),
		Dimensions: []*cloudwatch.Dimension{
			{
				Name:  aws.String(DimensionInstanceID),
				Value: aws.String(r.InstanceID),
			},
		},
		Period:             aws.Int64(int64(r.Period)),
		EvaluationPeriods:  aws.Int64(evaluationPeriods),
		Threshold:          aws.Float64(float64(r.Threshold)),
		ComparisonOperator: aws.String(r.ComparisonOperator),
		Statistic:          aws.String(r.Statistic),
		ActionsEnabled:     aws.Bool(bool(r.ActionsEnabled)),
	}
	if r.AlarmDescription != "" {
		input.AlarmDescription = aws.String(r.AlarmDescription)
	}
	if c.TopicARN != "" {
		input.AlarmActions = aws.StringSlice([]string{c.TopicARN})
	}
	return input
}

// List returns all alarms whose name starts with prefix.
// InstanceID of the returned resources is decoded from the alarm name and
// left empty when the name does not encode one.
func (c *Client) List(ctx context.Context, prefix string) ([]Resource, error) {
	var out []Resource
	err := c.retry(ctx, func() error {
		out = out[:0]
		return c.CloudWatch.DescribeAlarmsPagesWithContext(ctx, &cloudwatch.DescribeAlarmsInput{
			AlarmNamePrefix: aws.String(prefix),
		}, func(page *cloudwatch.DescribeAlarmsOutput, lastPage bool) bool {
			for _, a := range page.MetricAlarms {
				out = append(out, fromMetricAlarm(a))
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.WithStack(&ClientError{Op: "list", Names: []string{prefix}, Err: err})
	}
	c.Logger.Debug("list alarms", zap.String("prefix", prefix), zap.Int("count", len(out)))
	return out, nil
}

// Delete deletes the named alarms. Names that do not exist are ignored.
func (c *Client) Delete(ctx context.Context, names []string) error {
	for start := 0; start < len(names); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(names) {
			end = len(names)
		}
		batch := names[start:end]
		err := c.deleteBatch(ctx, batch)
		if isNotFound(err) && len(batch) > 1 {
			// a missing name fails the whole call, the rest is deleted one by one
			c.Logger.Debug("batch has missing alarms, deleting one by one", zap.Strings("alarm_names", batch))
			err = c.deleteEach(ctx, batch)
		}
		if isNotFound(err) {
			err = nil
		}
		if err != nil {
			return errors.WithStack(&ClientError{Op: "delete", Names: batch, Err: err})
		}
		c.Logger.Debug("deleted alarms", zap.Strings("alarm_names", batch))
	}
	return nil
}

func (c *Client) deleteEach(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := c.deleteBatch(ctx, []string{name}); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func (c *Client) deleteBatch(ctx context.Context, batch []string) error {
	return c.retry(ctx, func() error {
		_, err := c.CloudWatch.DeleteAlarmsWithContext(ctx, &cloudwatch.DeleteAlarmsInput{
			AlarmNames: aws.StringSlice(batch),
		})
		return err
	})
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), c.MaxRetries), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isThrottle(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.Logger.Warn("throttled", zap.Error(err))
		}
		return err
	}, b)
}

func fromMetricAlarm(a *cloudwatch.MetricAlarm) Resource {
	name := aws.StringValue(a.AlarmName)
	instanceID, _ := ParseInstanceID(name)
	return Resource{
		Name:       name,
		InstanceID: instanceID,
		Spec: Spec{
			MetricName:         aws.StringValue(a.MetricName),
			AlarmDescription:   aws.StringValue(a.AlarmDescription),
			ComparisonOperator: aws.StringValue(a.ComparisonOperator),
			Period:             Int(aws.Int64Value(a.Period)),
			Threshold:          Float(aws.Float64Value(a.Threshold)),
			Statistic:          aws.StringValue(a.Statistic),
			ActionsEnabled:     Bool(aws.BoolValue(a.ActionsEnabled)),
			EvaluationPeriods:  Int(aws.Int64Value(a.EvaluationPeriods)),
		},
	}
}

func isThrottle(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded":
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == cloudwatch.ErrCodeResourceNotFound
	}
	return false
}
