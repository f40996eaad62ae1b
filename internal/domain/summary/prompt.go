package summary

import "fmt"

// SystemPrompt frames the summarizer.
const SystemPrompt = "You are a helpful doctor."

// MaxSummaryChars bounds the requested summary length.
const MaxSummaryChars = 400

// UserPrompt asks for a readiness score over the encoded keywords.
func UserPrompt(keywords []string) string {
	return fmt.Sprintf("Examine each data point and give me a readiness score between 0 and 100. "+
		"For example 'Your readiness score is 85'. The score can be part of a summary of maximum %d characters. "+
		"Make sure to mention the things the person needs to watch for and provide a short recommendation for the day based on the person's health. "+
		"Here's the data: %q", MaxSummaryChars, Join(keywords))
}
