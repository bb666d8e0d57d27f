package services

import (
	"askme/llmclient"
	"askme/web/types"
)

// BuildMessages prepares the conversation sent to the model for current.
// Without includeHistory only the question itself is sent. Otherwise the
// last maxTurns answered entries before it are replayed as user/model
// turns; failed and pending entries are skipped.
func BuildMessages(history []types.HistoryEntry, current types.HistoryEntry, includeHistory bool, maxTurns int) []llmclient.Message {
	question := llmclient.Message{Role: llmclient.RoleUser, Text: current.Question}
	if !includeHistory || maxTurns <= 0 {
		return []llmclient.Message{question}
	}

	var prior []types.HistoryEntry
	for _, entry := range history {
		if entry.Position >= current.Position {
			break
		}
		if entry.Status == types.StatusAnswered && entry.Answer != "" {
			prior = append(prior, entry)
		}
	}
	if len(prior) > maxTurns {
		prior = prior[len(prior)-maxTurns:]
	}

	messages := make([]llmclient.Message, 0, len(prior)*2+1)
	for _, entry := range prior {
		messages = append(messages,
			llmclient.Message{Role: llmclient.RoleUser, Text: entry.Question},
			llmclient.Message{Role: llmclient.RoleModel, Text: entry.Answer},
		)
	}
	return append(messages, question)
}
