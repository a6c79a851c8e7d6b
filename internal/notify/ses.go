package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESAPI is the part of the SES client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SES emails notifications through Amazon SES.
type SES struct {
	client SESAPI
	from   string
	to     string
	log    *zap.Logger
}

// NewSES loads the default AWS credential chain for region.
func NewSES(ctx context.Context, region, from, to string, log *zap.Logger) (*SES, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESWithClient(ses.NewFromConfig(cfg), from, to, log), nil
}

func NewSESWithClient(client SESAPI, from, to string, log *zap.Logger) *SES {
	return &SES{client: client, from: from, to: to, log: log.Named("notify.ses")}
}

var (
	jobsTmpl = template.Must(template.New("jobs").Funcs(template.FuncMap{
		"scoreColor": scoreColor,
	}).Parse(`<html><body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Hunter - New Jobs Found</h2>
<p>{{len .}} new matching job(s) discovered</p>
<table style="width: 100%; border-collapse: collapse;">
<tr><th align="left">Position</th><th>Match</th><th>Link</th></tr>
{{range .}}<tr>
<td><strong>{{.Title}}</strong><br/><span style="color: #6b7280;">{{.Company}} &bull; {{.Location}}</span></td>
<td align="center"><span style="background-color: {{scoreColor .MatchScore}}; color: white; padding: 4px 8px; border-radius: 12px;">{{printf "%.1f" .MatchScore}}%</span></td>
<td align="center"><a href="{{.URL}}">Apply &rarr;</a></td>
</tr>{{end}}
</table></body></html>`))

	reviewTmpl = template.Must(template.New("review").Parse(`<html><body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Application Needs Your Review</h2>
<p>Your auto-application for <strong>{{.Title}}</strong> at <strong>{{.Company}}</strong> has been paused and needs your input before it can be submitted.</p>
<p>Application ID: {{.ID}}</p>
</body></html>`))
)

func scoreColor(score float64) string {
	switch {
	case score >= 70:
		return "#22c55e"
	case score >= 40:
		return "#eab308"
	}
	return "#ef4444"
}

func (s *SES) ReviewNeeded(ctx context.Context, appID, jobTitle, company string) {
	var body bytes.Buffer
	data := struct{ ID, Title, Company string }{appID, jobTitle, company}
	if err := reviewTmpl.Execute(&body, data); err != nil {
		s.log.Warn("render review email failed", zap.Error(err))
		return
	}
	s.send(ctx, fmt.Sprintf("Hunter: Review needed - %s at %s", jobTitle, company), body.String())
}

func (s *SES) NewJobs(ctx context.Context, jobs []JobSummary) {
	if len(jobs) == 0 {
		return
	}
	var body bytes.Buffer
	if err := jobsTmpl.Execute(&body, jobs); err != nil {
		s.log.Warn("render jobs email failed", zap.Error(err))
		return
	}
	s.send(ctx, fmt.Sprintf("Hunter: %d new job(s) found", len(jobs)), body.String())
}

func (s *SES) send(ctx context.Context, subject, html string) {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &types.Destination{ToAddresses: []string{s.to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		s.log.Warn("send email failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	s.log.Info("email sent", zap.String("subject", subject))
}
