// Package prompts holds the system prompts for the summarization calls.
package prompts

import (
	"encoding/json"
	"strings"

	"github.com/nbeier/meetscribe/internal/summary"
)

const chunkSummarization = `You are a meeting summarization assistant. Summarize the provided meeting transcript chunk as completely as possible into the requested structure.

If a person is not yet present in the key facts below, add them to the key_facts section.

%KEY_FACTS%

Instead of repeating names, reference attendees by their id from the key facts (e.g. "[1] asks ...").
For the key facts:
'attendees' lists the people who took part in the meeting.
'moderator' names the person or people moderating the meeting.
'protocol_owner' names the person or people responsible for the minutes. The decision process behind that assignment does not need to be mentioned.
'timekeeper' names the person or people responsible for timekeeping.

Do not shorten too aggressively; capture all relevant content.
Write the 'bullet_points' as terse note-style items, avoiding verbs and filler words.
Keep contributions of individual speakers separate where possible.
If abbreviations are used, do not explain them.
Repeated content may be collapsed. Side matters such as technical problems or personal anecdotes can be ignored.
Under 'todos', list the most important tasks discussed in the meeting, with the responsible people in 'assignees'.
Output only the final structure with no commentary.`

const finalSummary = `Combine the following section summaries into one complete and detailed meeting summary. Roles such as moderation, protocol or timekeeping belong in the key facts at the top; they are not follow-up action items and must not appear in the todos.

As 'summary', give a short narrative covering the purpose of the meeting and its most important outcomes.
Summarize as much of the meeting as possible without losing important detail. Primarily group the existing bullet points without rewriting or shortening them.

The 'topics' contain the main subjects of the meeting. Merge overlapping topics and preserve detail; avoid repetition and drop meeting-internal noise such as technical problems or personal anecdotes.
The 'todos' contain the most important future-facing tasks. List the responsible people in 'assignees' where known; tasks that only concern the meeting itself do not belong here.
Also produce a 'title' with a fitting emoji and a short text describing the meeting.`

const testConnection = `You are a helpful assistant. Respond concisely.`

const testUserMessage = `Say 'Hello! LLM test successful.' and nothing else.`

// ChunkSummarization builds the per-chunk system prompt with the accumulated
// key facts embedded, so the model knows which attendees and roles are already
// established.
func ChunkSummarization(keyFacts *summary.KeyFacts) string {
	keyFactsStr := "No key facts recorded yet."
	if keyFacts != nil {
		if data, err := json.Marshal(keyFacts); err == nil {
			keyFactsStr = string(data)
		}
	}
	return strings.Replace(chunkSummarization, "%KEY_FACTS%", keyFactsStr, 1)
}

func FinalSummary() string {
	return finalSummary
}

func TestConnection() (system, user string) {
	return testConnection, testUserMessage
}
