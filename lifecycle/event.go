package lifecycle

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
)

const (
	// InstanceLaunching is AWS instance launching lifecycle autoscaling event
	InstanceLaunching = "autoscaling:EC2_INSTANCE_LAUNCHING"
	// InstanceTerminating is AWS instance terminating lifecycle autoscaling event
	InstanceTerminating = "autoscaling:EC2_INSTANCE_TERMINATING"
	// ResultContinue lets the autoscaling group proceed with the transition
	ResultContinue = "CONTINUE"
)

// HookEvent is the detail of a lifecycle action event
type HookEvent struct {
	// InstanceID is AWS instance ID
	InstanceID string `json:"EC2InstanceId"`
	// Type is the lifecycle transition
	Type string `json:"LifecycleTransition"`
	// Token identifies the lifecycle action
	Token string `json:"LifecycleActionToken"`
	// AutoScalingGroupName is the name of the AWS ASG
	AutoScalingGroupName string `json:"AutoScalingGroupName"`
	// LifecycleHookName is the name of the AWS Lifecycle hook
	LifecycleHookName string `json:"LifecycleHookName"`
}

// Launching reports whether the instance is entering service.
// Both the full transition name and the short LAUNCHING form are accepted.
func (e HookEvent) Launching() bool {
	return strings.HasSuffix(e.Type, "LAUNCHING")
}

// Terminating reports whether the instance is leaving service.
func (e HookEvent) Terminating() bool {
	return strings.HasSuffix(e.Type, "TERMINATING")
}

// ParseEvent extracts the lifecycle action from an EventBridge event
func ParseEvent(event events.CloudWatchEvent) (*HookEvent, error) {
	var hook HookEvent
	if err := json.Unmarshal(event.Detail, &hook); err != nil {
		return nil, errors.WithStack(err)
	}
	if hook.InstanceID == "" {
		return nil, errors.Errorf("event %v has no EC2InstanceId", event.ID)
	}
	return &hook, nil
}
