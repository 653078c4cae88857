package behavior

import "time"

// Frustration rule parameters.
const (
	// FrustrationWindow is the trailing span of submissions considered,
	// measured back from the current event. The boundary is inclusive.
	FrustrationWindow = 2 * time.Minute

	// MinWindowSubmissions is the evidence floor: fewer submissions in the
	// window never signal frustration.
	MinWindowSubmissions = 3

	// FrustrationErrorRate must be strictly exceeded by the window error rate.
	FrustrationErrorRate = 0.75

	// FrustrationMaxInterval (seconds) must strictly exceed the mean interval
	// between consecutive submissions in the window.
	FrustrationMaxInterval = 10.0
)

// FrustrationReport holds the numbers behind a frustration decision.
type FrustrationReport struct {
	WindowSize  int
	Failures    int
	ErrorRate   float64
	AvgInterval float64 // seconds
	Frustrated  bool
}

// DetectFrustration decides whether the submission history signals frustration
// at time now.
func DetectFrustration(submissions []Submission, now time.Time) bool {
	return EvaluateFrustration(submissions, now).Frustrated
}

// EvaluateFrustration applies the frustration rule and returns the computed
// window statistics together with the decision.
//
// The rule: among submissions with now-timestamp <= FrustrationWindow, at
// least MinWindowSubmissions must exist, the error rate must be above
// FrustrationErrorRate AND the mean gap between consecutive submissions must
// be below FrustrationMaxInterval seconds.
func EvaluateFrustration(submissions []Submission, now time.Time) FrustrationReport {
	window := make([]Submission, 0, len(submissions))
	for _, s := range submissions {
		if now.Sub(s.Timestamp) <= FrustrationWindow {
			window = append(window, s)
		}
	}

	report := FrustrationReport{WindowSize: len(window)}
	if len(window) < MinWindowSubmissions {
		return report
	}

	for _, s := range window {
		if !s.Passed {
			report.Failures++
		}
	}
	report.ErrorRate = float64(report.Failures) / float64(len(window))

	// Window is in stored order; the store keeps submissions sorted by time.
	var total float64
	intervals := 0
	for i := 1; i < len(window); i++ {
		total += window[i].Timestamp.Sub(window[i-1].Timestamp).Seconds()
		intervals++
	}
	if intervals > 0 {
		report.AvgInterval = total / float64(intervals)
	}

	report.Frustrated = report.ErrorRate > FrustrationErrorRate &&
		report.AvgInterval < FrustrationMaxInterval
	return report
}
