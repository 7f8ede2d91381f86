package imap

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailsnag/internal/source"
)

// criteria translates the coarse query into IMAP search criteria. from: and
// subject: tokens become header substring matches; the has:attachment
// clause has no cheap IMAP equivalent and is dropped, since local
// attachment filtering covers it. The window maps to SINCE/BEFORE; BEFORE
// excludes the named date itself, so it names the day after the window end
// to keep that date's messages in the candidate set.
func criteria(query string, w source.Window) *imap.SearchCriteria {
	crit := &imap.SearchCriteria{
		Since:  w.Start,
		Before: w.End.AddDate(0, 0, 1),
	}

	for _, token := range strings.Fields(query) {
		switch {
		case strings.HasPrefix(token, "from:"):
			crit.Header = append(crit.Header, imap.SearchCriteriaHeaderField{
				Key:   "From",
				Value: strings.TrimPrefix(token, "from:"),
			})
		case strings.HasPrefix(token, "subject:"):
			crit.Header = append(crit.Header, imap.SearchCriteriaHeaderField{
				Key:   "Subject",
				Value: strings.TrimPrefix(token, "subject:"),
			})
		}
	}

	return crit
}
