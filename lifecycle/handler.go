package lifecycle

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/config"
)

// EC2 is the subset of the EC2 API used to read instance tags
type EC2 interface {
	DescribeTagsPagesWithContext(aws.Context, *ec2.DescribeTagsInput, func(*ec2.DescribeTagsOutput, bool) bool, ...request.Option) error
}

// AutoScaling is the subset of the AutoScaling API used to complete lifecycle actions
type AutoScaling interface {
	CompleteLifecycleActionWithContext(aws.Context, *autoscaling.CompleteLifecycleActionInput, ...request.Option) (*autoscaling.CompleteLifecycleActionOutput, error)
}

// Definitions returns the alarm definitions of an application
type Definitions interface {
	GetDefinitions(ctx context.Context, name, typ string) (*alarm.DefinitionSet, error)
}

// Alarms manages alarm resources
type Alarms interface {
	Put(ctx context.Context, r alarm.Resource) error
	List(ctx context.Context, prefix string) ([]alarm.Resource, error)
	Delete(ctx context.Context, names []string) error
}

// Config is the lifecycle handler configuration
type Config struct {
	// Cloud reads instance tags
	Cloud EC2
	// AutoScaling completes lifecycle actions
	AutoScaling AutoScaling
	// Definitions is the alarm definition store
	Definitions Definitions
	// Alarms is the alarm client
	Alarms Alarms
	// TagKey marks instances that get alarms
	TagKey string
	// ApplicationNameTag is the tag holding the application name
	ApplicationNameTag string
	// ApplicationTypeTag is the tag holding the application type
	ApplicationTypeTag string
	// AutoScalingGroups are glob patterns of handled groups, all groups when empty
	AutoScalingGroups []string
	Logger            *zap.Logger
}

// CheckAndSetDefaults checks and sets default values
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.Cloud == nil {
		return errors.New("missing parameter Cloud")
	}
	if cfg.AutoScaling == nil {
		return errors.New("missing parameter AutoScaling")
	}
	if cfg.Definitions == nil {
		return errors.New("missing parameter Definitions")
	}
	if cfg.Alarms == nil {
		return errors.New("missing parameter Alarms")
	}
	if cfg.TagKey == "" {
		cfg.TagKey = config.DefaultTagKey
	}
	if cfg.ApplicationNameTag == "" {
		cfg.ApplicationNameTag = config.DefaultApplicationNameTag
	}
	if cfg.ApplicationTypeTag == "" {
		cfg.ApplicationTypeTag = config.DefaultApplicationTypeTag
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Handler creates alarms for launching instances and deletes the alarms
// of terminating instances
type Handler struct {
	Config
	groups []glob.Glob
}

// New returns a new lifecycle handler
func New(cfg Config) (*Handler, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	h := &Handler{Config: cfg}
	for _, pattern := range cfg.AutoScalingGroups {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "auto scaling group pattern %q", pattern)
		}
		h.groups = append(h.groups, g)
	}
	return h, nil
}

// Result is returned to the Lambda runtime
type Result struct {
	InstanceID string `json:"instance_id"`
	Transition string `json:"transition"`
	// Skipped explains why the event was not handled
	Skipped   string         `json:"skipped,omitempty"`
	Alarms    alarm.Summary  `json:"alarms"`
	Completed bool           `json:"completed"`
	Outcomes  alarm.Outcomes `json:"-"`
}

// Handle processes one lifecycle event. An error leaves the lifecycle
// action pending, so that the hook timeout of the group applies.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) (*Result, error) {
	hook, err := ParseEvent(event)
	if err != nil {
		h.Logger.Error("invalid lifecycle event", zap.String("cause", fmt.Sprintf("%+v", err)))
		return nil, err
	}
	return h.HandleHook(ctx, *hook)
}

// HandleHook processes one lifecycle action
func (h *Handler) HandleHook(ctx context.Context, hook HookEvent) (*Result, error) {
	logger := h.Logger.With(
		zap.String("instance_id", hook.InstanceID),
		zap.String("asg_name", hook.AutoScalingGroupName),
		zap.String("transition", hook.Type))
	logger.Info("received lifecycle event")
	result := &Result{InstanceID: hook.InstanceID, Transition: hook.Type}

	if !h.matchGroup(hook.AutoScalingGroupName) {
		logger.Info("auto scaling group is not handled, skipping")
		result.Skipped = "auto scaling group not handled"
		return result, nil
	}

	tags, err := h.instanceTags(ctx, hook.InstanceID)
	if err != nil {
		logger.Error("could not read instance tags", zap.String("cause", fmt.Sprintf("%+v", err)))
		return nil, err
	}
	logger.Debug("instance tags", zap.Any("tags", tags))

	if _, ok := tags[h.TagKey]; !ok {
		logger.Info("tag not found, skipping cloudwatch alarms", zap.String("tag", h.TagKey))
		result.Skipped = fmt.Sprintf("tag %v not found", h.TagKey)
		return result, nil
	}

	application, applicationType := tags[h.ApplicationNameTag], tags[h.ApplicationTypeTag]
	if application == "" || applicationType == "" {
		err := errors.Errorf("instance %v is missing tag %v or %v", hook.InstanceID, h.ApplicationNameTag, h.ApplicationTypeTag)
		logger.Error("could not resolve application", zap.Error(err))
		return nil, err
	}
	logger = logger.With(
		zap.String("application_name", application),
		zap.String("application_type", applicationType))
	for kind, value := range map[string]string{"application name": application, "application type": applicationType} {
		if err := alarm.CheckNamePart(kind, value); err != nil {
			logger.Warn("alarm names of this instance can not be parsed", zap.Error(err))
		}
	}

	switch {
	case hook.Launching():
		result.Outcomes, err = h.launch(ctx, logger, hook, application, applicationType)
		if err != nil {
			logger.Error("could not retrieve alarm definitions", zap.String("cause", fmt.Sprintf("%+v", err)))
			return nil, err
		}
	case hook.Terminating():
		result.Outcomes = h.terminate(ctx, logger, hook, application, applicationType)
	default:
		logger.Warn("unsupported lifecycle transition")
		result.Skipped = "unsupported transition"
		return result, nil
	}
	result.Outcomes.Log(logger)
	result.Alarms = result.Outcomes.Summarize()

	if err := h.complete(ctx, hook); err != nil {
		logger.Error("could not complete lifecycle action", zap.String("cause", fmt.Sprintf("%+v", err)))
		return result, err
	}
	logger.Info("completed lifecycle action")
	result.Completed = true
	return result, nil
}

func (h *Handler) launch(ctx context.Context, logger *zap.Logger, hook HookEvent, application, applicationType string) (alarm.Outcomes, error) {
	set, err := h.Definitions.GetDefinitions(ctx, application, applicationType)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	logger.Info("retrieved alarm definitions", zap.Int("count", len(set.Alarms)))

	var outcomes alarm.Outcomes
	for _, key := range set.Alarms.Keys() {
		r := alarm.NewResource(application, applicationType, hook.InstanceID, set.Alarms[key])
		if err := alarm.CheckNamePart("alarm suffix", r.Suffix()); err != nil {
			logger.Warn("alarm name can not be parsed", zap.String("alarm_name", r.Name), zap.Error(err))
		}
		outcomes = append(outcomes, alarm.Outcome{
			InstanceID: hook.InstanceID,
			AlarmName:  r.Name,
			Action:     alarm.ActionCreate,
			Err:        h.Alarms.Put(ctx, r),
		})
	}
	return outcomes, nil
}

func (h *Handler) terminate(ctx context.Context, logger *zap.Logger, hook HookEvent, application, applicationType string) alarm.Outcomes {
	prefix := alarm.Prefix(application, applicationType, hook.InstanceID)
	existing, err := h.Alarms.List(ctx, prefix)
	if err != nil {
		logger.Error("could not list alarms", zap.String("prefix", prefix), zap.String("cause", fmt.Sprintf("%+v", err)))
		return nil
	}
	if len(existing) == 0 {
		logger.Info("no alarms to delete", zap.String("prefix", prefix))
		return nil
	}

	names := make([]string, 0, len(existing))
	for _, r := range existing {
		names = append(names, r.Name)
	}
	logger.Info("alarms to delete", zap.Strings("alarm_names", names))
	err = h.Alarms.Delete(ctx, names)

	outcomes := make(alarm.Outcomes, 0, len(names))
	for _, name := range names {
		outcomes = append(outcomes, alarm.Outcome{
			InstanceID: hook.InstanceID,
			AlarmName:  name,
			Action:     alarm.ActionDelete,
			Err:        err,
		})
	}
	return outcomes
}

func (h *Handler) complete(ctx context.Context, hook HookEvent) error {
	input := &autoscaling.CompleteLifecycleActionInput{
		AutoScalingGroupName:  aws.String(hook.AutoScalingGroupName),
		InstanceId:            aws.String(hook.InstanceID),
		LifecycleHookName:     aws.String(hook.LifecycleHookName),
		LifecycleActionResult: aws.String(ResultContinue),
	}
	if hook.Token != "" {
		input.LifecycleActionToken = aws.String(hook.Token)
	}
	_, err := h.AutoScaling.CompleteLifecycleActionWithContext(ctx, input)
	return errors.WithStack(err)
}

func (h *Handler) instanceTags(ctx context.Context, instanceID string) (map[string]string, error) {
	tags := make(map[string]string)
	err := h.Cloud.DescribeTagsPagesWithContext(ctx, &ec2.DescribeTagsInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("resource-id"),
				Values: aws.StringSlice([]string{instanceID}),
			},
		},
	}, func(page *ec2.DescribeTagsOutput, lastPage bool) bool {
		for _, tag := range page.Tags {
			tags[aws.StringValue(tag.Key)] = aws.StringValue(tag.Value)
		}
		return true
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return tags, nil
}

func (h *Handler) matchGroup(name string) bool {
	if len(h.groups) == 0 {
		return true
	}
	for _, g := range h.groups {
		if g.Match(name) {
			return true
		}
	}
	return false
}
