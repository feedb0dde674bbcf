package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/imrishuroy/go-spa-checkout/internal/config"
)

// AWSClients bundles all service clients for convenience.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

func NewAWSClients(ctx context.Context, cfg appconfig.AWSConfig) (*AWSClients, error) {
	sdkCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &AWSClients{
		DynamoDB:   dynamodb.NewFromConfig(sdkCfg),
		SQS:        sqs.NewFromConfig(sdkCfg),
		CloudWatch: cloudwatch.NewFromConfig(sdkCfg),
	}, nil
}
