package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
)

// streamHandler reconciles a batch of definition changes
type streamHandler interface {
	HandleStream(ctx context.Context, event events.DynamoDBEvent) alarm.Outcomes
}

// dispatcher routes the payloads one function receives by their shape:
// DynamoDB stream batches carry Records, CloudFormation requests carry
// RequestType.
type dispatcher struct {
	streams        streamHandler
	customResource cfn.CustomResourceLambdaFunction
	logger         *zap.Logger
}

type streamResult struct {
	Records int           `json:"records"`
	Alarms  alarm.Summary `json:"alarms"`
}

type customResourceResult struct {
	Reason string `json:"reason,omitempty"`
}

func (d *dispatcher) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	var probe struct {
		Records     json.RawMessage `json:"Records"`
		RequestType string          `json:"RequestType"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		d.logger.Error("unsupported event", zap.ByteString("event", payload), zap.Error(err))
		return nil, errors.WithStack(err)
	}

	switch {
	case len(probe.Records) > 0 && string(probe.Records) != "null":
		var event events.DynamoDBEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.WithStack(err)
		}
		d.logger.Info("received definition changes", zap.Int("records", len(event.Records)))
		outcomes := d.streams.HandleStream(ctx, event)
		return json.Marshal(streamResult{Records: len(event.Records), Alarms: outcomes.Summarize()})

	case probe.RequestType != "":
		var event cfn.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.WithStack(err)
		}
		reason, err := d.customResource(ctx, event)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return json.Marshal(customResourceResult{Reason: reason})
	}

	d.logger.Info("unsupported event structure", zap.ByteString("event", payload))
	return json.Marshal(nil)
}
