package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thruflo/goalboard/internal/agent"
)

// AssertLogsOrdered checks that log timestamps never decrease.
func AssertLogsOrdered(t *testing.T, logs []agent.Log) {
	t.Helper()
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].Timestamp.Before(logs[i-1].Timestamp),
			"log %d (%s) is older than log %d (%s)", i, logs[i].ID, i-1, logs[i-1].ID)
	}
}

// AssertTaskProgress checks the completed and total task counts of st.
func AssertTaskProgress(t *testing.T, st agent.State, expectedCompleted, expectedTotal int) {
	t.Helper()
	completed, _ := agent.CountTasks(st.Tasks)
	assert.Equal(t, expectedTotal, len(st.Tasks), "total tasks")
	assert.Equal(t, expectedCompleted, completed, "completed tasks")
}
