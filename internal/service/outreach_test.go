package service_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/service"
)

func TestIsEnglishCompanyName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Acme Corp", true},
		{"Smith & Sons (UK) Ltd.", true},
		{"AT&T, Inc.", true},
		{"100% Fresh!", true},
		{"", true},
		{"Café Münster", false},
		{"O'Reilly", false},
		{"Tab\tName", false},
		{"株式会社", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.IsEnglishCompanyName(tt.name), tt.name)
	}
}

func TestOutreachSend(t *testing.T) {
	ctx := context.Background()

	ok := &service.Outreach{Composer: &MockComposer{}, Transport: &MockTransport{}}
	out := ok.Send(ctx, recipient("a@x.example", "Acme"), "track-1")
	assert.True(t, out.Sent)
	assert.Equal(t, model.TaskSent, out.Status())
	assert.NoError(t, out.Err)

	out = ok.Send(ctx, recipient("a@x.example", "Ärzte"), "track-2")
	assert.Equal(t, service.Outcome{Content: model.ContentNotEnglish}, out)
	assert.Equal(t, model.TaskSendingFailed, out.Status())

	badTransport := &service.Outreach{Composer: &MockComposer{}, Transport: &MockTransport{Err: errors.New("refused")}}
	out = badTransport.Send(ctx, recipient("a@x.example", "Acme"), "track-3")
	assert.False(t, out.Sent)
	assert.Equal(t, "Hi Sam at Acme", out.Content)
	assert.Error(t, out.Err)
}

func TestLegacyOutreachService_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	transport := &MockTransport{}
	svc := service.NewLegacyOutreachService(&service.Outreach{Composer: &MockComposer{}, Transport: transport}, path)

	results, err := svc.Run(context.Background(), []model.Recipient{
		recipient("a@x.example", "Acme"),
		recipient("b@x.example", "Ünited"),
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.True(t, results[0].EmailSent)
	assert.Equal(t, "Hi Sam at Acme", results[0].EmailContent)
	assert.False(t, results[1].EmailSent)
	assert.Equal(t, model.ContentNotEnglish, results[1].EmailContent)
	require.Len(t, transport.Sent, 1)
	assert.NotEmpty(t, transport.Sent[0].TrackingID)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme", "https://a@x.example", "Sam", "a@x.example", "Hi Sam at Acme", "true"}, rows[0])
	assert.Equal(t, "false", rows[1][5])
}
