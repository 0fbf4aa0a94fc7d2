package service

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/model"
)

// LegacyResult is one row of the synchronous outreach response.
type LegacyResult struct {
	CompanyName    string `json:"company_name"`
	CompanyWebsite string `json:"company_website"`
	FirstName      string `json:"first_name"`
	Email          string `json:"email_address"`
	EmailContent   string `json:"email_content"`
	EmailSent      bool   `json:"email_sent"`
}

func (r LegacyResult) record() []string {
	return []string{r.CompanyName, r.CompanyWebsite, r.FirstName, r.Email, r.EmailContent, strconv.FormatBool(r.EmailSent)}
}

// LegacyOutreachService sends to recipients inline, without the ledger,
// batching or pacing, and appends each result to a CSV file.
type LegacyOutreachService struct {
	Outreach    *Outreach
	ResultsPath string

	mu sync.Mutex
}

func NewLegacyOutreachService(outreach *Outreach, resultsPath string) *LegacyOutreachService {
	return &LegacyOutreachService{Outreach: outreach, ResultsPath: resultsPath}
}

// Run sends to each recipient in order and returns one result per recipient.
func (s *LegacyOutreachService) Run(ctx context.Context, recipients []model.Recipient) ([]LegacyResult, error) {
	results := make([]LegacyResult, 0, len(recipients))
	for _, r := range recipients {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		outcome := s.Outreach.Send(ctx, r, uuid.NewString())
		if outcome.Err != nil {
			logger.FromContextWithErr(ctx, outcome.Err).Warn("legacy send failed", slog.String("email", r.Email))
		}

		res := LegacyResult{
			CompanyName:    r.CompanyName,
			CompanyWebsite: r.CompanyWebsite,
			FirstName:      r.FirstName,
			Email:          r.Email,
			EmailContent:   outcome.Content,
			EmailSent:      outcome.Sent,
		}
		if err := s.appendResult(res); err != nil {
			logger.FromContextWithErr(ctx, err).Error("failed to append legacy result", slog.String("path", s.ResultsPath))
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *LegacyOutreachService) appendResult(res LegacyResult) error {
	if s.ResultsPath == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.ResultsPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create results directory")
		}
	}
	f, err := os.OpenFile(s.ResultsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to open results file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(res.record()); err != nil {
		return errors.Wrap(err, "failed to write result row")
	}
	w.Flush()
	return errors.Wrap(w.Error(), "failed to flush result row")
}
