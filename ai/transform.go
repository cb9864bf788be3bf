package ai

// NormalizeMessages applies the shared message-normalization pass every
// adapter performs before translating Context.Messages into its wire
// format:
//
//  1. Tool-result messages that precede any tool-call-bearing assistant
//     message in the history are elided (a tool result with nothing to
//     respond to is meaningless to a provider and some reject it outright).
//  2. Adjacent user messages are merged by concatenating their text content
//     (mirrors the teacher's habit of collapsing consecutive same-role
//     messages before handing them to a provider).
//  3. Thinking blocks that carry no corresponding tool call in the same
//     assistant message are stripped when stripThinking is true, for
//     providers that reject orphaned thinking blocks on replay.
func NormalizeMessages(messages []Message, stripThinking bool) []Message {
	out := elideLeadingToolResults(messages)
	out = mergeAdjacentUserMessages(out)
	if stripThinking {
		out = stripOrphanThinking(out)
	}
	return out
}

func elideLeadingToolResults(messages []Message) []Message {
	sawToolCall := false
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if tr, ok := m.(ToolResultMessage); ok && !sawToolCall {
			_ = tr
			continue
		}
		if am, ok := m.(AssistantMessage); ok {
			for _, b := range am.Content {
				if b.Type == ContentToolCall {
					sawToolCall = true
					break
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func mergeAdjacentUserMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		um, ok := m.(UserMessage)
		if !ok {
			out = append(out, m)
			continue
		}
		if len(out) > 0 {
			if prev, ok := out[len(out)-1].(UserMessage); ok {
				merged := prev
				if merged.Text != "" || um.Text != "" {
					merged.Text = merged.Text + um.Text
				}
				merged.Content = append(append([]ContentBlock{}, merged.Content...), um.Content...)
				merged.Attachments = append(append([]Attachment{}, merged.Attachments...), um.Attachments...)
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, um)
	}
	return out
}

func stripOrphanThinking(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		am, ok := m.(AssistantMessage)
		if !ok {
			out = append(out, m)
			continue
		}
		hasToolCall := false
		for _, b := range am.Content {
			if b.Type == ContentToolCall {
				hasToolCall = true
				break
			}
		}
		if hasToolCall {
			out = append(out, am)
			continue
		}
		filtered := make([]ContentBlock, 0, len(am.Content))
		for _, b := range am.Content {
			if b.Type == ContentThinking {
				continue
			}
			filtered = append(filtered, b)
		}
		am.Content = filtered
		out = append(out, am)
	}
	return out
}
