package onboarding

import "sync"

type Step int

const (
	StepSession Step = iota + 1
	StepTerms
	StepUpload
	StepSaveProfile
	StepVerify
	StepDone
)

var stepNames = map[Step]string{
	StepSession:     "session",
	StepTerms:       "terms",
	StepUpload:      "upload",
	StepSaveProfile: "save_profile",
	StepVerify:      "verify",
	StepDone:        "done",
}

var stepPercent = map[Step]int{
	StepSession:     10,
	StepTerms:       20,
	StepUpload:      40,
	StepSaveProfile: 60,
	StepVerify:      75,
	StepDone:        100,
}

func (s Step) String() string { return stepNames[s] }

// Progress is one observable point of a run.
type Progress struct {
	Step    Step   `json:"step"`
	Name    string `json:"name"`
	Percent int    `json:"percent"`
	Attempt int    `json:"attempt,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

type ProgressFunc func(Progress)

// tracker records progress and refuses to go backwards.
type tracker struct {
	mu      sync.Mutex
	last    int
	events  []Progress
	forward ProgressFunc
}

func (t *tracker) emit(step Step, attempt int) {
	percent := stepPercent[step]
	if step == StepVerify && attempt > 1 {
		percent += (attempt - 1) * 5
		if percent > 95 {
			percent = 95
		}
	}

	t.mu.Lock()
	if percent < t.last {
		t.mu.Unlock()
		return
	}
	t.last = percent
	p := Progress{
		Step:    step,
		Name:    step.String(),
		Percent: percent,
		Attempt: attempt,
		Retry:   attempt > 1,
	}
	t.events = append(t.events, p)
	forward := t.forward
	t.mu.Unlock()

	if forward != nil {
		forward(p)
	}
}

func (t *tracker) snapshot() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Progress(nil), t.events...)
}
