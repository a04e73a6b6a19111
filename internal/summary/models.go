package summary

import (
	"fmt"
	"strings"
)

// Attendee is a meeting participant. Identity is the numeric id; prompts
// reference attendees by id so chunk summaries stay short.
type Attendee struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// KeyFacts is the structured metadata accumulated across transcript chunks.
// Scalar fields are last-write-wins; attendees are unique by id.
type KeyFacts struct {
	Moderator     *string    `json:"moderator,omitempty"`
	ProtocolOwner *string    `json:"protocol_owner,omitempty"`
	Timekeeper    *string    `json:"timekeeper,omitempty"`
	Attendees     []Attendee `json:"attendees,omitempty"`
}

// Topic is a discussion item; sub topics form a tree, never a cycle.
type Topic struct {
	Title        string   `json:"title"`
	BulletPoints []string `json:"bullet_points"`
	SubTopics    []Topic  `json:"sub_topics,omitempty"`
}

type ToDo struct {
	Assignees []string `json:"assignees,omitempty"`
	Task      string   `json:"task"`
}

// PartialSummary is the per-chunk (or mechanically merged) intermediate. It is
// ephemeral: produced while processing, consumed immediately.
type PartialSummary struct {
	KeyFacts KeyFacts `json:"key_facts"`
	Topics   []Topic  `json:"topics"`
	Todos    []ToDo   `json:"todos,omitempty"`
}

type Title struct {
	Emoji string `json:"emoji"`
	Text  string `json:"text"`
}

func (t Title) String() string {
	return fmt.Sprintf("%s %s", t.Emoji, t.Text)
}

// FinalSummary is the terminal artifact: titled, narrated, semantically
// deduplicated.
type FinalSummary struct {
	Title    Title    `json:"title"`
	KeyFacts KeyFacts `json:"key_facts"`
	Summary  string   `json:"summary"`
	Topics   []Topic  `json:"topics"`
	Todos    []ToDo   `json:"todos"`
}

// Markdown renders the final summary as a human-readable document.
func (s *FinalSummary) Markdown() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", s.Title.Text))
	sb.WriteString(s.Summary)
	sb.WriteString("\n\n")

	sb.WriteString("## Key Facts\n")
	if s.KeyFacts.Moderator != nil {
		sb.WriteString(fmt.Sprintf("- **Moderation:** %s\n", *s.KeyFacts.Moderator))
	}
	if s.KeyFacts.ProtocolOwner != nil {
		sb.WriteString(fmt.Sprintf("- **Protocol:** %s\n", *s.KeyFacts.ProtocolOwner))
	}
	if s.KeyFacts.Timekeeper != nil {
		sb.WriteString(fmt.Sprintf("- **Timekeeping:** %s\n", *s.KeyFacts.Timekeeper))
	}
	if len(s.KeyFacts.Attendees) > 0 {
		sb.WriteString("- **Attendees:**\n")
		for _, attendee := range s.KeyFacts.Attendees {
			sb.WriteString(fmt.Sprintf("  - %s\n", attendee.Name))
		}
	}

	sb.WriteString("## Topics\n")
	for _, topic := range s.Topics {
		writeTopicMarkdown(&sb, topic, 3)
	}

	sb.WriteString("## To-Dos\n")
	for _, todo := range s.Todos {
		sb.WriteString(fmt.Sprintf("### %s \n", todo.Task))
		if len(todo.Assignees) > 0 {
			sb.WriteString("  - **Assignees:** ")
			sb.WriteString(strings.Join(todo.Assignees, ", "))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func writeTopicMarkdown(sb *strings.Builder, topic Topic, level int) {
	if level > 6 {
		level = 6
	}
	sb.WriteString(fmt.Sprintf("%s %s \n", strings.Repeat("#", level), topic.Title))
	for _, bullet := range topic.BulletPoints {
		sb.WriteString(fmt.Sprintf("- %s\n", bullet))
	}
	for _, sub := range topic.SubTopics {
		writeTopicMarkdown(sb, sub, level+1)
	}
}
