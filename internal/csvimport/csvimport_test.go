package csvimport_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-scheduler/internal/csvimport"
	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
)

const upload = "\ufeffFirst Name,Email,Company Name for Emails,Website,City,State,Country,Company City,Company Country\n" +
	"Ada,ada@example.com,Analytical Engines,engines.example,London,,United Kingdom,,\n" +
	"Grace,grace@example.com,Navy Labs,navy.example,,,,Arlington,United States\n" +
	"NoMail,,Ghost Co,ghost.example,,,,,\n" +
	"Linus,linus@example.com,Kernel Oy,kernel.example,,,Finland,,Finland\n"

func TestParse(t *testing.T) {
	recipients, err := csvimport.Parse(strings.NewReader(upload), 0)
	require.NoError(t, err)
	require.Len(t, recipients, 3)

	ada := recipients[0]
	assert.Equal(t, "ada@example.com", ada.Email)
	assert.Equal(t, "Analytical Engines", ada.CompanyName)
	assert.Equal(t, "engines.example", ada.CompanyWebsite)
	assert.Equal(t, "Ada", ada.FirstName)
	assert.Equal(t, []string{"London, United Kingdom", "United Kingdom"}, ada.Locations)

	assert.Equal(t, []string{"Arlington, United States", "United States"}, recipients[1].Locations)
	assert.Equal(t, []string{"Finland"}, recipients[2].Locations)
}

func TestParse_Limit(t *testing.T) {
	recipients, err := csvimport.Parse(strings.NewReader(upload), 2)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "grace@example.com", recipients[1].Email)
}

func TestParse_MissingEmailColumn(t *testing.T) {
	_, err := csvimport.Parse(strings.NewReader("Name,Website\nA,b.example\n"), 0)
	var verr *appErrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, http.StatusBadRequest, verr.Status)
}

func TestParse_Empty(t *testing.T) {
	_, err := csvimport.Parse(strings.NewReader(""), 0)
	assert.Error(t, err)
}
