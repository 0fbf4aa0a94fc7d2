// Package csvimport reads prospect uploads.
package csvimport

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/timezone"
)

// Column headers of the prospect export.
const (
	ColCompanyName    = "COMPANY NAME FOR EMAILS"
	ColWebsite        = "WEBSITE"
	ColFirstName      = "FIRST NAME"
	ColEmail          = "EMAIL"
	ColCity           = "CITY"
	ColState          = "STATE"
	ColCountry        = "COUNTRY"
	ColCompanyCity    = "COMPANY CITY"
	ColCompanyState   = "COMPANY STATE"
	ColCompanyCountry = "COMPANY COUNTRY"
)

var companyNameAliases = []string{ColCompanyName, "COMPANY NAME", "COMPANY"}

// Parse reads up to limit prospect rows (limit <= 0 reads all). Rows without an
// email address are skipped.
func Parse(r io.Reader, limit int) ([]model.Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, appErrors.NewValidationError(http.StatusBadRequest, "CSV file is empty")
	}
	if err != nil {
		return nil, appErrors.NewValidationError(http.StatusBadRequest, "failed to read CSV header: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		index[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	if _, ok := index[ColEmail]; !ok {
		return nil, appErrors.NewValidationError(http.StatusBadRequest, "CSV is missing the %q column", "Email")
	}

	getCol := func(row []string, name string) string {
		if i, ok := index[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var recipients []model.Recipient
	for limit <= 0 || len(recipients) < limit {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.NewValidationError(http.StatusBadRequest, "malformed CSV: %v", err)
		}

		email := getCol(row, ColEmail)
		if email == "" {
			continue
		}

		var company string
		for _, alias := range companyNameAliases {
			if company = getCol(row, alias); company != "" {
				break
			}
		}

		recipients = append(recipients, model.Recipient{
			Email:          email,
			CompanyName:    company,
			CompanyWebsite: getCol(row, ColWebsite),
			FirstName:      getCol(row, ColFirstName),
			Locations: locationCandidates(
				timezone.JoinLocation(getCol(row, ColCity), getCol(row, ColState), getCol(row, ColCountry)),
				timezone.JoinLocation(getCol(row, ColCompanyCity), getCol(row, ColCompanyState), getCol(row, ColCompanyCountry)),
				getCol(row, ColCountry),
				getCol(row, ColCompanyCountry),
			),
		})
	}
	return recipients, nil
}

func locationCandidates(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
