package domain

// RecordEvaluation is the outcome of checking a submitted time against a
// player's table.
type RecordEvaluation struct {
	IsNewRecord bool
	// Previous is the best time before the submission, nil if there was none.
	Previous *int64
	// Table is the table to persist: the submitted time applied and ordered
	// when IsNewRecord, otherwise the input table with m/d ensured.
	Table BestTimes
}

// IsImprovement reports whether submitted beats current. Ties do not count.
func IsImprovement(current *int64, submitted int64) bool {
	if current == nil {
		return true
	}
	return submitted < *current
}

// EvaluateSubmission decides whether submitted is a new best for m/d.
// A stored time that cannot be parsed counts as no record.
func EvaluateSubmission(t BestTimes, m, d string, submitted int64) RecordEvaluation {
	table := t.Ensure(m, d)

	var current *int64
	if stored := table.Get(m, d); stored != nil {
		if ms, ok := stored.Millis(); ok {
			current = &ms
		}
	}

	if !IsImprovement(current, submitted) {
		return RecordEvaluation{Previous: current, Table: table}
	}

	newTime := MillisTime(submitted)
	return RecordEvaluation{
		IsNewRecord: true,
		Previous:    current,
		Table:       OrderBestTimes(table.Set(m, d, &newTime)),
	}
}
