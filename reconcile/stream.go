package reconcile

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/store"
)

// HandleStream reconciles every inserted or modified definition record of
// a DynamoDB stream batch. Records that can not be decoded or listed are
// logged and skipped, the rest of the batch continues.
func (r *Reconciler) HandleStream(ctx context.Context, event events.DynamoDBEvent) alarm.Outcomes {
	var outcomes alarm.Outcomes
	for _, record := range event.Records {
		logger := r.Logger.With(
			zap.String("event_id", record.EventID),
			zap.String("event_name", record.EventName))

		if record.EventName == string(events.DynamoDBOperationTypeRemove) || len(record.Change.NewImage) == 0 {
			logger.Info("record has no new image, skipping")
			continue
		}

		set, err := store.DecodeImage(record.Change.NewImage)
		if err != nil {
			logger.Error("malformed definition record", zap.String("cause", fmt.Sprintf("%+v", err)))
			continue
		}

		result, err := r.Reconcile(ctx, set)
		if err != nil {
			logger.Error("could not reconcile alarms",
				zap.String("application_name", set.Name),
				zap.String("application_type", set.Type),
				zap.String("cause", fmt.Sprintf("%+v", err)))
			continue
		}
		result.Log(logger)
		outcomes = append(outcomes, result...)
	}
	return outcomes
}
