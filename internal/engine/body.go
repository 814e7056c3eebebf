package engine

import (
	"github.com/leapstack-labs/chatbatch/internal/chatapi"
	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// ChatDashboard is the chat mode whose app code must match it.
const ChatDashboard = "chat_dashboard"

// BuildRequest forms the call for job. The body layers are, lowest first:
// the template, the user's source row, the job fields, and the caller's
// overrides.
func BuildRequest(rc *config.RunConfig, job core.Job, convUID string) chatapi.Request {
	row := make(map[string]any, len(job.User.Row))
	for k, v := range job.User.Row {
		row[k] = v
	}

	body := config.MergeBody(rc.Template, row, map[string]any{
		"user_name":  job.User.Name,
		"user_input": job.Prompt.Text,
		"model_name": job.Model,
		"chat_mode":  job.ChatMode,
		"app_code":   job.ChatMode,
		"conv_uid":   convUID,
	}, rc.Overrides)

	mode, _ := body["chat_mode"].(string)
	app, _ := body["app_code"].(string)
	if mode == ChatDashboard || app == ChatDashboard {
		body["chat_mode"] = ChatDashboard
		body["app_code"] = ChatDashboard
	}

	return chatapi.Request{
		Headers: map[string]string{"user-id": job.User.ID},
		Body:    body,
	}
}
