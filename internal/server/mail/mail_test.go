package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates(t *testing.T) {
	body, err := ResetPasswordBody("Alice", "https://app.example/reset-password/abc")
	require.NoError(t, err)
	assert.Contains(t, body, `href="https://app.example/reset-password/abc"`)
	assert.Contains(t, body, "Hi Alice")

	body, err = VerifyEmailBody("<b>Bob</b>", "https://app.example/email-verify/xyz")
	require.NoError(t, err)
	assert.Contains(t, body, "email-verify/xyz")
	assert.NotContains(t, body, "<b>Bob</b>", "names are escaped")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logging.NewJSON(&buf, "debug"))

	require.NoError(t, s.Send(context.Background(), "a@b.c", SubjectVerifyEmail, "<p>hi</p>"))
	assert.Contains(t, buf.String(), `"to":"a@b.c"`)
	assert.Contains(t, buf.String(), SubjectVerifyEmail)
	assert.Contains(t, buf.String(), "hi</p>")
}

func TestLogSender_InfoLevelOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logging.NewJSON(&buf, "info"))

	link := "https://app.example/reset-password/0123456789abcdef"
	require.NoError(t, s.Send(context.Background(), "a@b.c", SubjectResetPassword, `<a href="`+link+`">reset</a>`))
	assert.Contains(t, buf.String(), SubjectResetPassword)
	assert.NotContains(t, buf.String(), "0123456789abcdef", "token must not reach info logs")
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{}, f.err
}

func TestSESSender_Send(t *testing.T) {
	f := &fakeSES{}
	s := NewSESSender(f, "no-reply@example.com")

	require.NoError(t, s.Send(context.Background(), "a@b.c", "Subj", "<p>body</p>"))
	require.NotNil(t, f.in)
	assert.Equal(t, "no-reply@example.com", aws.ToString(f.in.FromEmailAddress))
	assert.Equal(t, []string{"a@b.c"}, f.in.Destination.ToAddresses)
	assert.Equal(t, "Subj", aws.ToString(f.in.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>body</p>", aws.ToString(f.in.Content.Simple.Body.Html.Data))

	f.err = errors.New("throttled")
	err := s.Send(context.Background(), "a@b.c", "Subj", "x")
	assert.ErrorContains(t, err, "throttled")
}

func TestNewSESSenderFromConfig(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newSESClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newSESClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-central-1", lo.Region)
		assert.NotNil(t, lo.Credentials, "static credentials applied")
		return aws.Config{}, nil
	}
	var endpoint string
	newSESClientFromConfig = func(cfg aws.Config, optFns ...func(*sesv2.Options)) SESAPI {
		var o sesv2.Options
		for _, fn := range optFns {
			fn(&o)
		}
		endpoint = aws.ToString(o.BaseEndpoint)
		return &fakeSES{}
	}

	s, err := NewSESSenderFromConfig(context.Background(), SESConfig{
		Region: "eu-central-1", Endpoint: "http://localhost:4566", AccessKey: "ak", SecretKey: "sk",
	}, "from@example.com")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, "http://localhost:4566", endpoint)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewSESSenderFromConfig(context.Background(), SESConfig{Region: "x"}, "f")
	assert.EqualError(t, err, "load-fail")
}
