package engine

import (
	"testing"

	"github.com/leapstack-labs/chatbatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildJobs_Order(t *testing.T) {
	users := []core.User{{Name: "u1"}, {Name: "u2"}}
	prompts := []core.Prompt{{Text: "a"}, {Text: "b"}}

	jobs := BuildJobs(users, prompts, []string{"m1", "m2"}, []string{"x", "y"})
	require.Len(t, jobs, 16)

	var ids []string
	for _, j := range jobs[:5] {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{
		"u1:p0001:m1:x",
		"u1:p0001:m1:y",
		"u1:p0001:m2:x",
		"u1:p0001:m2:y",
		"u1:p0002:m1:x",
	}, ids)
	assert.Equal(t, "u2:p0002:m2:y", jobs[15].ID)
	for i, j := range jobs {
		assert.Equal(t, i, j.Seq)
	}

	again := BuildJobs(users, prompts, []string{"m1", "m2"}, []string{"x", "y"})
	assert.Equal(t, jobs, again, "job sets are reproducible")
}

func TestBuildJobs_TotalFollowsSheets(t *testing.T) {
	prompts := []core.Prompt{
		{Text: "s1", Sheet: "Sales"},
		{Text: "s2", Sheet: "Sales"},
		{Text: "o1", Sheet: "Ops"},
	}
	users := []core.User{
		{Name: "sales", Sheet: "sales"},
		{Name: "ops", Sheet: "Ops"},
		{Name: "all"},
	}
	models := []string{"m1", "m2"}
	modes := []string{"chat_normal"}

	jobs := BuildJobs(users, prompts, models, modes)

	// sales: 2 prompts, ops: 1, all: 3; two models each
	assert.Len(t, jobs, (2+1+3)*len(models)*len(modes))
}

func TestBuildJobs_EmptyModelsOrModes(t *testing.T) {
	users := []core.User{{Name: "u1"}}
	prompts := []core.Prompt{{Text: "a"}}

	assert.Empty(t, BuildJobs(users, prompts, nil, []string{"x"}))
	assert.Empty(t, BuildJobs(users, prompts, []string{"m"}, nil))
	assert.Empty(t, BuildJobs(nil, prompts, []string{"m"}, []string{"x"}))
}

func TestGroupByUser(t *testing.T) {
	users := []core.User{{Name: "b"}, {Name: "a"}}
	jobs := BuildJobs(users, []core.Prompt{{Text: "1"}, {Text: "2"}}, []string{"m"}, []string{"x"})

	queues := groupByUser(jobs)
	require.Len(t, queues, 2)
	assert.Equal(t, "b", queues[0].user.Name)
	assert.Equal(t, "a", queues[1].user.Name)
	require.Len(t, queues[0].jobs, 2)
	assert.Equal(t, "b:p0001:m:x", queues[0].jobs[0].ID)
	assert.Equal(t, "b:p0002:m:x", queues[0].jobs[1].ID)
}
