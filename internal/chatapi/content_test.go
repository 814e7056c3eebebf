package chatapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty", body: "", want: ""},
		{name: "json", body: `{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`, want: "answer"},
		{name: "json data wrapper", body: `{"success":true,"data":{"choices":[{"message":{"content":"wrapped"}}]}}`, want: "wrapped"},
		{name: "json without choices", body: `{"error":"nope"}`, want: ""},
		{
			name: "sse last chunk wins",
			body: "data: {\"choices\":[{\"message\":{\"content\":\"part\"}}]}\n\n" +
				"data: {\"choices\":[{\"message\":{\"content\":\"full answer\"}}]}\n\n" +
				"data: [DONE]\n",
			want: "full answer",
		},
		{
			name: "sse skips bad chunks",
			body: "event: message\ndata: {\"choices\":[{\"message\":{\"content\":\"ok\"}}]}\ndata: not-json\n",
			want: "ok",
		},
		{name: "plain text", body: "upstream says hi", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContent([]byte(tt.body)))
		})
	}
}
