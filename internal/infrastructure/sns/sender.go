package sns

import (
	"context"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-account-link/internal/config"
)

// BotSender delivers outbound text messages to external accounts through
// the bot relay. Delivery is fire-and-forget from the caller's view.
type BotSender interface {
	SendText(ctx context.Context, externalID int64, message string) error
}

type sender struct {
	client   *sns.Client
	topicARN string
}

// NewSender publishes to the SNS topic the bot relay subscribes to. The
// target external account travels as a message attribute.
func NewSender(cfg *config.Config) (BotSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &sender{client: sns.NewFromConfig(awsCfg), topicARN: cfg.SNSTopicARN}, nil
}

func (s *sender) SendText(ctx context.Context, externalID int64, message string) error {
	id := strconv.FormatInt(externalID, 10)
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &s.topicARN,
		Message:  &message,
		MessageAttributes: map[string]types.MessageAttributeValue{
			"external_id": {DataType: strPtr("Number"), StringValue: &id},
		},
	})
	return err
}

func strPtr(s string) *string { return &s }
