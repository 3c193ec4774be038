// Package reconcile brings the alarms of running instances in line with
// changed alarm definitions.
package reconcile

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
)

// Alarms manages alarm resources
type Alarms interface {
	Put(ctx context.Context, r alarm.Resource) error
	List(ctx context.Context, prefix string) ([]alarm.Resource, error)
	Delete(ctx context.Context, names []string) error
}

// Config is the reconciler configuration
type Config struct {
	// Alarms is the alarm client
	Alarms Alarms
	Logger *zap.Logger
}

// CheckAndSetDefaults checks and sets default values
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.Alarms == nil {
		return errors.New("missing parameter Alarms")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Reconciler applies definition changes to existing per-instance alarms
type Reconciler struct {
	Config
}

// New returns a new reconciler
func New(cfg Config) (*Reconciler, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Reconciler{Config: cfg}, nil
}

// Reconcile updates, deletes and creates alarms of every instance that
// currently has at least one alarm of the application. Instances without
// alarms are left alone, they get alarms on their next launch.
//
// Only a failing listing is returned as an error. Failures of single
// alarm changes are reported in the outcomes and do not stop the loop.
func (r *Reconciler) Reconcile(ctx context.Context, set *alarm.DefinitionSet) (alarm.Outcomes, error) {
	logger := r.Logger.With(
		zap.String("application_name", set.Name),
		zap.String("application_type", set.Type))

	prefix := alarm.Prefix(set.Name, set.Type)
	existing, err := r.Alarms.List(ctx, prefix)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	logger.Info("existing alarms", zap.String("prefix", prefix), zap.Int("count", len(existing)))

	byInstance := make(map[string][]alarm.Resource)
	for _, res := range existing {
		if res.InstanceID == "" {
			logger.Warn("alarm name does not encode an instance, skipping", zap.String("alarm_name", res.Name))
			continue
		}
		byInstance[res.InstanceID] = append(byInstance[res.InstanceID], res)
	}
	instances := make([]string, 0, len(byInstance))
	for id := range byInstance {
		instances = append(instances, id)
	}
	sort.Strings(instances)

	desired := set.Alarms.ByMetric()
	var outcomes alarm.Outcomes
	for _, instanceID := range instances {
		outcomes = append(outcomes, r.reconcileInstance(ctx, logger, set, instanceID, byInstance[instanceID], desired)...)
	}
	return outcomes, nil
}

func (r *Reconciler) reconcileInstance(ctx context.Context, logger *zap.Logger, set *alarm.DefinitionSet, instanceID string, existing []alarm.Resource, desired map[string]alarm.Spec) alarm.Outcomes {
	logger = logger.With(zap.String("instance_id", instanceID))
	var outcomes alarm.Outcomes

	present := make(map[string]bool, len(existing))
	for _, res := range existing {
		present[res.MetricName] = true
		spec, ok := desired[res.MetricName]
		if !ok {
			logger.Debug("alarm no longer defined", zap.String("alarm_name", res.Name))
			outcomes = append(outcomes, alarm.Outcome{
				InstanceID: instanceID,
				AlarmName:  res.Name,
				Action:     alarm.ActionDelete,
				Err:        r.Alarms.Delete(ctx, []string{res.Name}),
			})
			continue
		}
		// the existing name is kept so that alarms named by an older suffix
		// are updated in place
		update := alarm.Resource{Name: res.Name, InstanceID: instanceID, Spec: spec}
		outcomes = append(outcomes, alarm.Outcome{
			InstanceID: instanceID,
			AlarmName:  update.Name,
			Action:     alarm.ActionUpdate,
			Err:        r.Alarms.Put(ctx, update),
		})
	}

	for _, key := range set.Alarms.Keys() {
		spec := set.Alarms[key]
		if present[spec.MetricName] {
			continue
		}
		create := alarm.NewResource(set.Name, set.Type, instanceID, spec)
		outcomes = append(outcomes, alarm.Outcome{
			InstanceID: instanceID,
			AlarmName:  create.Name,
			Action:     alarm.ActionCreate,
			Err:        r.Alarms.Put(ctx, create),
		})
	}
	return outcomes
}
