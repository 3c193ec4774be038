package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/internal/awstest"
	"github.com/yuichiro-h/asg-cw-alarms/store"
)

type testEnv struct {
	ec2         *awstest.EC2
	autoscaling *awstest.AutoScaling
	dynamodb    *awstest.DynamoDB
	cloudwatch  *awstest.CloudWatch
	logs        *observer.ObservedLogs
	handler     *Handler
}

func newTestEnv(t *testing.T, groups ...string) *testEnv {
	env := &testEnv{
		ec2: &awstest.EC2{Tags: map[string]map[string]string{
			"i-123": {
				"create-cloudwatch-alarm": "true",
				"application-name":        "web",
				"application-type":        "prod",
			},
			"i-456": {
				"application-name": "web",
				"application-type": "prod",
			},
		}},
		autoscaling: &awstest.AutoScaling{},
		dynamodb:    awstest.NewDynamoDB(),
		cloudwatch:  awstest.NewCloudWatch(),
	}
	core, logs := observer.New(zapcore.DebugLevel)
	env.logs = logs
	logger := zap.New(core)

	defs, err := store.New(store.Config{DynamoDB: env.dynamodb, TableName: "alarms"})
	require.NoError(t, err)
	alarms, err := alarm.NewClient(alarm.ClientConfig{
		CloudWatch: env.cloudwatch,
		TopicARN:   "arn:aws:sns:us-east-1:123456789012:alarms",
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	require.NoError(t, err)

	env.handler, err = New(Config{
		Cloud:             env.ec2,
		AutoScaling:       env.autoscaling,
		Definitions:       defs,
		Alarms:            alarms,
		AutoScalingGroups: groups,
		Logger:            logger,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) putDefinitions(t *testing.T, defs alarm.Definitions) {
	s, err := store.New(store.Config{DynamoDB: e.dynamodb, TableName: "alarms"})
	require.NoError(t, err)
	require.NoError(t, s.PutDefinitions(context.Background(), &alarm.DefinitionSet{Name: "web", Type: "prod", Alarms: defs}))
}

func cpuDefinitions() alarm.Definitions {
	return alarm.Definitions{
		"cpu": {
			MetricName:         "CPUUtilization",
			Threshold:          80,
			Period:             300,
			Statistic:          "Average",
			ComparisonOperator: "GreaterThanThreshold",
			ActionsEnabled:     true,
		},
	}
}

func lifecycleEvent(t *testing.T, instanceID, transition string) events.CloudWatchEvent {
	detail, err := json.Marshal(map[string]string{
		"EC2InstanceId":        instanceID,
		"LifecycleHookName":    "alarms-hook",
		"AutoScalingGroupName": "web-asg",
		"LifecycleTransition":  transition,
		"LifecycleActionToken": "token-1",
	})
	require.NoError(t, err)
	return events.CloudWatchEvent{
		ID:         "event-1",
		DetailType: "EC2 Instance-launch Lifecycle Action",
		Source:     "aws.autoscaling",
		Detail:     detail,
	}
}

func TestLaunchCreatesAlarms(t *testing.T) {
	env := newTestEnv(t)
	env.putDefinitions(t, cpuDefinitions())

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 1, result.Alarms.Created)

	require.Equal(t, []string{"web-prod-i-123-CPUUtilization"}, env.cloudwatch.Names())
	in := env.cloudwatch.Alarms["web-prod-i-123-CPUUtilization"]
	assert.Equal(t, "CPUUtilization", aws.StringValue(in.MetricName))
	assert.Equal(t, float64(80), aws.Float64Value(in.Threshold))
	assert.Equal(t, int64(300), aws.Int64Value(in.Period))
	assert.Equal(t, "Average", aws.StringValue(in.Statistic))
	assert.Equal(t, "GreaterThanThreshold", aws.StringValue(in.ComparisonOperator))
	assert.True(t, aws.BoolValue(in.ActionsEnabled))
	assert.Equal(t, "i-123", aws.StringValue(in.Dimensions[0].Value))

	require.Len(t, env.autoscaling.Completed, 1)
	completed := env.autoscaling.Completed[0]
	assert.Equal(t, "CONTINUE", aws.StringValue(completed.LifecycleActionResult))
	assert.Equal(t, "alarms-hook", aws.StringValue(completed.LifecycleHookName))
	assert.Equal(t, "web-asg", aws.StringValue(completed.AutoScalingGroupName))
	assert.Equal(t, "i-123", aws.StringValue(completed.InstanceId))
	assert.Equal(t, "token-1", aws.StringValue(completed.LifecycleActionToken))
}

func TestLaunchIsolatesAlarmFailures(t *testing.T) {
	env := newTestEnv(t)
	defs := cpuDefinitions()
	defs["status"] = alarm.Spec{
		MetricName:         "StatusCheckFailed",
		Threshold:          1,
		Period:             60,
		Statistic:          "Maximum",
		ComparisonOperator: "GreaterThanOrEqualToThreshold",
	}
	env.putDefinitions(t, defs)
	env.cloudwatch.PutErrors["web-prod-i-123-CPUUtilization"] = []error{
		awserr.New("InvalidParameterValue", "rejected", nil),
	}

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.NoError(t, err)
	assert.Equal(t, []string{"web-prod-i-123-StatusCheckFailed"}, env.cloudwatch.Names())
	assert.Equal(t, []string{"web-prod-i-123-CPUUtilization"}, result.Alarms.Failed)
	assert.Len(t, result.Outcomes.Failed(), 1)
	assert.True(t, result.Completed)
	assert.Len(t, env.autoscaling.Completed, 1)
	assert.Equal(t, 1, env.logs.FilterMessage("alarm change failed").Len())
}

func TestLaunchWithoutDefinitionsAborts(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
	assert.Empty(t, env.cloudwatch.Puts)
	assert.Empty(t, env.autoscaling.Completed)
}

func TestLaunchWithEmptyDefinitionsCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.putDefinitions(t, alarm.Definitions{})

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Empty(t, env.cloudwatch.Puts)
	require.Len(t, env.autoscaling.Completed, 1)
	assert.Equal(t, "CONTINUE", aws.StringValue(env.autoscaling.Completed[0].LifecycleActionResult))
}

func TestLaunchWithUnreachableStoreAborts(t *testing.T) {
	env := newTestEnv(t)
	env.dynamodb.GetErr = awserr.New("InternalServerError", "unavailable", nil)

	_, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.Error(t, err)
	assert.True(t, store.IsLookupError(err))
	assert.Empty(t, env.cloudwatch.Puts)
	assert.Empty(t, env.autoscaling.Completed)
}

func TestTerminateDeletesInstanceAlarms(t *testing.T) {
	env := newTestEnv(t)
	env.cloudwatch.AddAlarm("web-prod-i-123-CPUUtilization", "CPUUtilization", "i-123")
	env.cloudwatch.AddAlarm("web-prod-i-123-StatusCheckFailed", "StatusCheckFailed", "i-123")
	env.cloudwatch.AddAlarm("web-prod-i-1234-CPUUtilization", "CPUUtilization", "i-1234")
	env.cloudwatch.AddAlarm("web-prod-i-9-CPUUtilization", "CPUUtilization", "i-9")

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceTerminating))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Alarms.Deleted)
	assert.Equal(t, []string{"web-prod-i-123-"}, env.cloudwatch.Describes)
	require.Len(t, env.cloudwatch.Deletes, 1)
	assert.ElementsMatch(t, []string{"web-prod-i-123-CPUUtilization", "web-prod-i-123-StatusCheckFailed"}, env.cloudwatch.Deletes[0])
	assert.Equal(t, []string{"web-prod-i-1234-CPUUtilization", "web-prod-i-9-CPUUtilization"}, env.cloudwatch.Names())
	require.Len(t, env.autoscaling.Completed, 1)
	assert.Empty(t, env.dynamodb.Gets)
}

func TestTerminateCompletesWhenListingFails(t *testing.T) {
	env := newTestEnv(t)
	env.cloudwatch.DescribeErrors = []error{awserr.New("InternalServiceError", "boom", nil)}

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceTerminating))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Empty(t, env.cloudwatch.Deletes)
	assert.Equal(t, 1, env.logs.FilterMessage("could not list alarms").Len())
}

func TestUntaggedInstanceIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.putDefinitions(t, cpuDefinitions())

	for _, transition := range []string{InstanceLaunching, InstanceTerminating} {
		result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-456", transition))
		require.NoError(t, err)
		assert.NotEmpty(t, result.Skipped)
		assert.False(t, result.Completed)
	}
	assert.Empty(t, env.dynamodb.Gets)
	assert.Empty(t, env.cloudwatch.Puts)
	assert.Empty(t, env.cloudwatch.Describes)
	assert.Empty(t, env.cloudwatch.Deletes)
	assert.Empty(t, env.autoscaling.Completed)
}

func TestMissingApplicationTagAborts(t *testing.T) {
	env := newTestEnv(t)
	env.ec2.Tags["i-789"] = map[string]string{"create-cloudwatch-alarm": "true", "application-name": "web"}

	_, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-789", InstanceLaunching))
	assert.Error(t, err)
	assert.Empty(t, env.dynamodb.Gets)
	assert.Empty(t, env.autoscaling.Completed)
}

func TestGroupFilter(t *testing.T) {
	env := newTestEnv(t, "api-*")
	env.putDefinitions(t, cpuDefinitions())

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Skipped)
	assert.Zero(t, env.ec2.Calls)
	assert.Empty(t, env.autoscaling.Completed)

	env = newTestEnv(t, "api-*", "web-*")
	env.putDefinitions(t, cpuDefinitions())
	result, err = env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.NoError(t, err)
	assert.True(t, result.Completed)
}

func TestInvalidGroupPattern(t *testing.T) {
	_, err := New(Config{
		Cloud:             &awstest.EC2{},
		AutoScaling:       &awstest.AutoScaling{},
		Definitions:       &store.Store{},
		Alarms:            &alarm.Client{},
		AutoScalingGroups: []string{"web-["},
	})
	assert.Error(t, err)
}

func TestCompletionFailureIsReturned(t *testing.T) {
	env := newTestEnv(t)
	env.putDefinitions(t, cpuDefinitions())
	env.autoscaling.Err = awserr.New("ValidationError", "no active lifecycle action", nil)

	result, err := env.handler.Handle(context.Background(), lifecycleEvent(t, "i-123", InstanceLaunching))
	require.Error(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, []string{"web-prod-i-123-CPUUtilization"}, env.cloudwatch.Names())
}

func TestShortTransitionNames(t *testing.T) {
	assert.True(t, HookEvent{Type: "LAUNCHING"}.Launching())
	assert.True(t, HookEvent{Type: InstanceLaunching}.Launching())
	assert.True(t, HookEvent{Type: "TERMINATING"}.Terminating())
	assert.False(t, HookEvent{Type: InstanceLaunching}.Terminating())
}

func TestParseEventRequiresInstance(t *testing.T) {
	_, err := ParseEvent(events.CloudWatchEvent{Detail: json.RawMessage(`{"LifecycleTransition": "LAUNCHING"}`)})
	assert.Error(t, err)
	_, err = ParseEvent(events.CloudWatchEvent{Detail: json.RawMessage(`not json`)})
	assert.Error(t, err)
}
