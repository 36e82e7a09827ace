package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of *sesv2.Client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig selects the region and, optionally, a custom endpoint and static
// credentials. Empty credentials fall back to the default AWS chain.
type SESConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

var (
	loadDefaultAWSConfig   = config.LoadDefaultConfig
	newSESClientFromConfig = func(cfg aws.Config, optFns ...func(*sesv2.Options)) SESAPI {
		return sesv2.NewFromConfig(cfg, optFns...)
	}
)

// SESSender sends through Amazon SES v2.
type SESSender struct {
	client SESAPI
	from   string
}

func NewSESSender(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

// NewSESSenderFromConfig builds the SES client from c.
func NewSESSenderFromConfig(ctx context.Context, c SESConfig, from string) (*SESSender, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newSESClientFromConfig(cfg, func(o *sesv2.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return NewSESSender(client, from), nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, html string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
