package summary

// MergeKeyFacts folds src into dst. Scalar roles use last-non-nil-wins; the
// attendee list is a union by id where the first-seen name wins on collision
// and new ids are appended in encounter order.
func MergeKeyFacts(dst *KeyFacts, src KeyFacts) {
	if src.Moderator != nil {
		dst.Moderator = src.Moderator
	}
	if src.ProtocolOwner != nil {
		dst.ProtocolOwner = src.ProtocolOwner
	}
	if src.Timekeeper != nil {
		dst.Timekeeper = src.Timekeeper
	}

	if len(src.Attendees) == 0 {
		return
	}
	seen := make(map[int]bool, len(dst.Attendees))
	for _, attendee := range dst.Attendees {
		seen[attendee.ID] = true
	}
	for _, attendee := range src.Attendees {
		if !seen[attendee.ID] {
			seen[attendee.ID] = true
			dst.Attendees = append(dst.Attendees, attendee)
		}
	}
}

// CombinePartials is the stateless left fold over per-chunk partial summaries.
// Topics and todos are concatenated in chunk order with no semantic merging;
// deduplication is the final synthesis call's job.
func CombinePartials(partials []PartialSummary) PartialSummary {
	var combined PartialSummary

	for _, partial := range partials {
		MergeKeyFacts(&combined.KeyFacts, partial.KeyFacts)
		combined.Topics = append(combined.Topics, partial.Topics...)
		combined.Todos = append(combined.Todos, partial.Todos...)
	}

	return combined
}
