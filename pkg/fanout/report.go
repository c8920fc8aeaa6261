package fanout

import "time"

// Report is the aggregate result of a run.
type Report struct {
	// Outcomes holds one outcome per partition, in dispatch order.
	Outcomes []Outcome

	Succeeded int
	Empty     int
	Failed    int

	// Undispatched counts partitions never started because the run was
	// cancelled. They are also counted in Failed.
	Undispatched int

	// Objects is the total number of objects written.
	Objects int64

	Duration time.Duration
}

func newReport(partitions []string) *Report {
	r := &Report{Outcomes: make([]Outcome, len(partitions))}
	for i, p := range partitions {
		r.Outcomes[i].Partition = p
	}
	return r
}

// tally computes the counters from Outcomes.
func (r *Report) tally() {
	r.Succeeded, r.Empty, r.Failed, r.Objects = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSuccess:
			r.Succeeded++
			r.Objects += int64(o.Objects)
		case StatusEmptySkipped:
			r.Empty++
		default:
			r.Failed++
		}
	}
}

// Total returns the number of partitions in the run.
func (r *Report) Total() int {
	return len(r.Outcomes)
}

// FailedPartitions returns the partitions that did not succeed, in order.
func (r *Report) FailedPartitions() []string {
	failed := make([]string, 0, r.Failed)
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o.Partition)
		}
	}
	return failed
}

// Outcome returns the outcome for partition.
func (r *Report) Outcome(partition string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Partition == partition {
			return o, true
		}
	}
	return Outcome{}, false
}
