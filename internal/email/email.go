// Package email delivers batch summaries through Amazon SES.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Sender delivers a plain-text message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// sesAPI is the part of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	ses  sesAPI
	from string
}

// NewSESSender sends from the verified SES identity from.
func NewSESSender(cfg aws.Config, from string) (*SESSender, error) {
	return newSESSender(sesv2.NewFromConfig(cfg), from)
}

func newSESSender(api sesAPI, from string) (*SESSender, error) {
	if from == "" {
		return nil, errors.New("email: sender address is empty (SES_FROM_EMAIL)")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("email: invalid sender address %q: %w", from, err)
	}
	return &SESSender{ses: api, from: from}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("email: invalid recipient %q: %w", to, err)
	}
	utf8 := aws.String("UTF-8")
	_, err := s.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: utf8},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: utf8},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("email: ses send to %s: %w", to, err)
	}
	return nil
}
