package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/config"
	"github.com/yuichiro-h/asg-cw-alarms/lifecycle"
	"github.com/yuichiro-h/asg-cw-alarms/log"
	"github.com/yuichiro-h/asg-cw-alarms/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "cw-alarm"
	app.Usage = "create and delete CloudWatch alarms of autoscaling instances"
	app.Flags = config.Flags()
	app.Before = config.Setup
	app.Action = func(ctx *cli.Context) error {
		h, err := newHandler()
		if err != nil {
			log.Get().Error("error occurred", zap.String("cause", fmt.Sprintf("%+v", err)))
			return err
		}
		lambda.Start(h.Handle)
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newHandler() (*lifecycle.Handler, error) {
	cfg := config.Get()
	awsConfig := aws.NewConfig()
	if cfg.AWS.Region != "" {
		awsConfig = awsConfig.WithRegion(cfg.AWS.Region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	definitions, err := store.New(store.Config{
		DynamoDB:  dynamodb.New(sess),
		TableName: cfg.AWS.DynamoDBTableName,
		Logger:    log.Get(),
	})
	if err != nil {
		return nil, err
	}
	alarms, err := alarm.NewClient(alarm.ClientConfig{
		CloudWatch: cloudwatch.New(sess),
		Namespace:  cfg.CloudWatch.Namespace,
		TopicARN:   cfg.AWS.SNSTopicARN,
		MaxRetries: cfg.CloudWatch.MaxRetries,
		Logger:     log.Get(),
	})
	if err != nil {
		return nil, err
	}

	return lifecycle.New(lifecycle.Config{
		Cloud:              ec2.New(sess),
		AutoScaling:        autoscaling.New(sess),
		Definitions:        definitions,
		Alarms:             alarms,
		TagKey:             cfg.Lifecycle.TagKey,
		ApplicationNameTag: cfg.Lifecycle.ApplicationNameTag,
		ApplicationTypeTag: cfg.Lifecycle.ApplicationTypeTag,
		AutoScalingGroups:  cfg.Lifecycle.AutoScalingGroups,
		Logger:             log.Get(),
	})
}
