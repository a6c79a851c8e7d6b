package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TRA3H/hunter/internal/notify"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &ses.SendEmailOutput{}, f.err
}

func TestSES_NewJobs(t *testing.T) {
	client := &fakeSES{}
	n := notify.NewSESWithClient(client, "bot@example.com", "me@example.com", zap.NewNop())

	n.NewJobs(context.Background(), nil)
	assert.Empty(t, client.inputs)

	n.NewJobs(context.Background(), []notify.JobSummary{
		{Title: "Go <Dev>", Company: "Acme", Location: "Remote", URL: "https://acme.example/1", MatchScore: 82},
	})
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "bot@example.com", *in.Source)
	assert.Equal(t, []string{"me@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hunter: 1 new job(s) found", *in.Message.Subject.Data)
	body := *in.Message.Body.Html.Data
	assert.Contains(t, body, "Go &lt;Dev&gt;")
	assert.Contains(t, body, "#22c55e")
	assert.Contains(t, body, "82.0%")
}

func TestSES_ReviewNeededFailureIsLogged(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	core, logs := observer.New(zap.WarnLevel)
	n := notify.NewSESWithClient(client, "bot@example.com", "me@example.com", zap.New(core))

	n.ReviewNeeded(context.Background(), "app-1", "Go Dev", "Acme")
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "Hunter: Review needed - Go Dev at Acme", *client.inputs[0].Message.Subject.Data)
	assert.Equal(t, 1, logs.FilterMessage("send email failed").Len())
}

type counting struct{ reviews, batches int }

func (c *counting) ReviewNeeded(context.Context, string, string, string) { c.reviews++ }
func (c *counting) NewJobs(context.Context, []notify.JobSummary) { c.batches++ }

func TestMulti(t *testing.T) {
	a, b := &counting{}, &counting{}
	m := notify.Multi{a, b, notify.NewLog(zap.NewNop())}
	m.ReviewNeeded(context.Background(), "x", "y", "z")
	m.NewJobs(context.Background(), []notify.JobSummary{{Title: "t"}})
	assert.Equal(t, 1, a.reviews)
	assert.Equal(t, 1, b.batches)
}
