package lifecycle

// EngagementPolicy turns time spent on an assignment into an advisory score.
// It never gates submitting or grading.
type EngagementPolicy interface {
	Score(minutes float64) float64
}

type Step struct {
	MinMinutes float64
	Score      float64
}

// StepPolicy returns the score of the first step whose threshold is met,
// steps being ordered by descending MinMinutes.
type StepPolicy struct {
	Steps []Step
	Floor float64
}

var DefaultPolicy = StepPolicy{
	Steps: []Step{
		{MinMinutes: 60, Score: 9.5},
		{MinMinutes: 45, Score: 8.5},
		{MinMinutes: 30, Score: 7.5},
		{MinMinutes: 15, Score: 6.5},
	},
	Floor: 5.0,
}

func (p StepPolicy) Score(minutes float64) float64 {
	for _, s := range p.Steps {
		if minutes >= s.MinMinutes {
			return s.Score
		}
	}
	return p.Floor
}

// Engagement averages the minutes and scores the average. With nothing
// submitted there is nothing to score.
func Engagement(p EngagementPolicy, minutes []float64) (avg, score float64) {
	if len(minutes) == 0 {
		return 0, 0
	}
	if p == nil {
		p = DefaultPolicy
	}
	var sum float64
	for _, m := range minutes {
		sum += m
	}
	avg = sum / float64(len(minutes))
	return avg, p.Score(avg)
}
