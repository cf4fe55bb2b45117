package agent

// DetectStall reports whether completed work has not increased across the
// last threshold progress points.
func DetectStall(progress []ProgressPoint, threshold int) bool {
	if threshold <= 0 || len(progress) < threshold {
		return false
	}

	recent := progress[len(progress)-threshold:]
	first := recent[0].TasksCompleted
	for _, p := range recent[1:] {
		if p.TasksCompleted != first {
			return false
		}
	}
	return true
}

// CountTasks returns how many tasks are completed and blocked.
func CountTasks(tasks []Task) (completed, blocked int) {
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskBlocked:
			blocked++
		}
	}
	return completed, blocked
}

// Momentum returns tasks completed per iteration averaged over the last
// window progress points.
func Momentum(progress []ProgressPoint, window int) float64 {
	if len(progress) < 2 {
		return 0
	}
	if window > len(progress) {
		window = len(progress)
	}

	recent := progress[len(progress)-window:]
	if len(recent) < 2 {
		return 0
	}

	start := recent[0].TasksCompleted
	end := recent[len(recent)-1].TasksCompleted
	return float64(end-start) / float64(len(recent)-1)
}

// CompletionRate is the fraction of tasks completed, 0 when there are none.
func CompletionRate(tasks []Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	completed, _ := CountTasks(tasks)
	return float64(completed) / float64(len(tasks))
}
