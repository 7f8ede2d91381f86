package run

import (
	"time"

	"github.com/nhle/mailsnag/internal/source"
)

// Status classifies the outcome of processing one account.
type Status int

const (
	StatusSuccess Status = iota
	StatusCredentialsMissing
	StatusTokenExpired
	StatusInvalidConfig
	StatusError
)

// String returns the operator-facing label for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "ok"
	case StatusCredentialsMissing:
		return "credentials missing"
	case StatusTokenExpired:
		return "token expired"
	case StatusInvalidConfig:
		return "invalid configuration"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// NeedsReauth reports whether re-running authentication for the account is
// the remediation for this status.
func (s Status) NeedsReauth() bool {
	return s == StatusCredentialsMissing || s == StatusTokenExpired
}

// AccountResult is the immutable outcome of one account in one run.
type AccountResult struct {
	Account     string
	Status      Status
	Attachments int
	Detail      string
}

// Failed reports whether the account did not complete successfully.
func (r AccountResult) Failed() bool {
	return r.Status != StatusSuccess
}

// Summary aggregates one run: exactly one AccountResult per configured
// account, in configuration order.
type Summary struct {
	RunID    string
	Window   source.Window
	Started  time.Time
	Finished time.Time
	Results  []AccountResult
}

// Failed returns the number of accounts that did not succeed.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Downloaded returns the total number of attachments written.
func (s *Summary) Downloaded() int {
	n := 0
	for _, r := range s.Results {
		n += r.Attachments
	}
	return n
}

// OK reports whether every account succeeded.
func (s *Summary) OK() bool {
	return s.Failed() == 0
}
