package loadprofile

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBaseURL is where the utility publishes daily load profiles.
const DefaultBaseURL = "https://www.pge.com/pge_global/forms/mads/profiles"

// RecordExt is the extension of a daily record file.
const RecordExt = ".dlp"

// Source builds remote URLs for daily records and yearly archives.
type Source struct {
	BaseURL string
}

func (s Source) base() string {
	if s.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(s.BaseURL, "/")
}

// DailyURL returns the URL of the record for date's day, e.g. <base>/20200301.dlp.
func (s Source) DailyURL(date time.Time) string {
	return fmt.Sprintf("%s/%s%s", s.base(), DateKey(date), RecordExt)
}

// ArchiveURL returns the URL of a year's archive, e.g. <base>/archive/2019dlp.zip.
func (s Source) ArchiveURL(year int) string {
	return fmt.Sprintf("%s/archive/%ddlp.zip", s.base(), year)
}
