package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/identra-io/identra/pkg/notifx"
	"github.com/identra-io/identra/pkg/notifx/notifxses"
)

func buildSESMailer(cfg config.NotifxConfig) notifx.EmailSender {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		logx.WithError(err).Fatal("failed to load AWS config for SES")
	}

	logx.Infof("✅ SES email provider enabled (region=%s)", cfg.AWSRegion)
	return notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.FromAddress)
}
