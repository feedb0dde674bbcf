package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/imrishuroy/go-spa-checkout/internal/config"
)

const defaultRegion = "us-east-1"

// LoadAWSConfig resolves the SDK config. EndpointOverride points every
// client at a local emulator such as LocalStack.
func LoadAWSConfig(ctx context.Context, cfg appconfig.AWSConfig) (sdkaws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return sdkCfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.EndpointOverride != "" {
		sdkCfg.BaseEndpoint = sdkaws.String(cfg.EndpointOverride)
	}

	return sdkCfg, nil
}
