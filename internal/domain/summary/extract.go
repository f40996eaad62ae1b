package summary

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrExtraction is returned when a summary carries no parseable score.
var ErrExtraction = errors.New("no readiness score in summary")

var digitRun = regexp.MustCompile(`[0-9]+`)

// ExtractScore parses the first contiguous run of decimal digits in text.
// The 0-100 range is a contract of the summarizer and is not enforced here.
func ExtractScore(text string) (int, error) {
	run := digitRun.FindString(text)
	if run == "" {
		return 0, ErrExtraction
	}
	score, err := strconv.Atoi(run)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrExtraction, run, err)
	}
	return score, nil
}
