package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
)

// Publisher is the subset of the SNS client the messenger needs.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Messenger delivers OTP messages through AWS SNS direct-to-phone publish.
type Messenger struct {
	client Publisher
}

func NewMessenger(client Publisher) *Messenger {
	return &Messenger{client: client}
}

// NewClient builds an SNS client for cfg.SNSRegion, honouring the static
// credentials and endpoint override used with LocalStack.
func NewClient(ctx context.Context, cfg *config.Config) (*sns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	}), nil
}

// BalanceSufficient always reports true: SNS bills the AWS account and has
// no prepaid balance to check.
func (m *Messenger) BalanceSufficient(context.Context) (bool, error) {
	return true, nil
}

// SendSMS publishes text to the phone number. SNS either accepts or errors,
// so every returned dispatch is accepted.
func (m *Messenger) SendSMS(ctx context.Context, to, text string) (*domain.SMSDispatch, error) {
	out, err := m.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(text),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sns publish: %w", domain.ErrUpstream, err)
	}
	return &domain.SMSDispatch{
		Accepted:    true,
		Status:      "published",
		ExternalRef: aws.ToString(out.MessageId),
	}, nil
}
