package engine

import (
	"fmt"

	"github.com/leapstack-labs/chatbatch/internal/input"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// userQueue is the ordered work of one user.
type userQueue struct {
	user core.User
	jobs []core.Job
}

// JobID derives the id of a job. It only depends on the inputs, so the same
// inputs always produce the same ids.
func JobID(user string, promptIndex int, model, chatMode string) string {
	return fmt.Sprintf("%s:p%04d:%s:%s", user, promptIndex, model, chatMode)
}

// BuildJobs expands users, prompts, models and chat modes into the job
// sequence, ordered by user, then prompt, then model, then chat mode. Each
// user only gets the prompts of its assigned sheet.
func BuildJobs(users []core.User, prompts []core.Prompt, models, chatModes []string) []core.Job {
	var jobs []core.Job
	for _, u := range users {
		for i, p := range input.PromptsFor(u, prompts) {
			for _, m := range models {
				for _, mode := range chatModes {
					jobs = append(jobs, core.Job{
						ID:          JobID(u.Name, i+1, m, mode),
						Seq:         len(jobs),
						User:        u,
						Prompt:      p,
						PromptIndex: i + 1,
						Model:       m,
						ChatMode:    mode,
					})
				}
			}
		}
	}
	return jobs
}

// groupByUser splits jobs into per-user queues, keeping the order of first
// appearance for users and build order within each queue.
func groupByUser(jobs []core.Job) []userQueue {
	index := make(map[string]int)
	var queues []userQueue
	for _, j := range jobs {
		i, ok := index[j.User.Name]
		if !ok {
			i = len(queues)
			index[j.User.Name] = i
			queues = append(queues, userQueue{user: j.User})
		}
		queues[i].jobs = append(queues[i].jobs, j)
	}
	return queues
}
