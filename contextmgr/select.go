package contextmgr

import (
	"log/slog"

	"github.com/randalmurphal/promptctx/provider"
)

// Report describes one selection.
type Report struct {
	// Budget is the Manager's token budget.
	Budget int `json:"budget"`

	// UsedTokens counts the system message plus every kept message.
	UsedTokens int `json:"used_tokens"`

	// SystemTokens is the token count of the preserved system message.
	SystemTokens int `json:"system_tokens"`

	// Kept is the number of entries emitted after the system message.
	Kept int `json:"kept"`

	// Merged is the number of input messages folded into a same-role neighbour.
	Merged int `json:"merged"`

	// Dropped is the number of input messages left out entirely.
	Dropped int `json:"dropped"`

	// Truncated reports whether the boundary message was shortened.
	Truncated bool `json:"truncated"`
}

// LogValue implements slog.LogValuer.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("budget", r.Budget),
		slog.Int("used_tokens", r.UsedTokens),
		slog.Int("system_tokens", r.SystemTokens),
		slog.Int("kept", r.Kept),
		slog.Int("merged", r.Merged),
		slog.Int("dropped", r.Dropped),
		slog.Bool("truncated", r.Truncated),
	)
}

// Select returns the part of conversation that fits the budget.
//
// A leading system message is always first in the result and is never
// merged or truncated, even when it alone exceeds the budget. The remaining
// messages are taken in the order set by the Manager's Policy until one would
// reach the budget; that message is truncated to the tokens left, if any,
// and selection stops. The result is in chronological order.
func (m *Manager) Select(conversation []provider.Message) ([]provider.Message, error) {
	selected, _, err := m.SelectWithReport(conversation)
	return selected, err
}

// SelectWithReport is Select plus a description of what was kept.
func (m *Manager) SelectWithReport(conversation []provider.Message) ([]provider.Message, Report, error) {
	report := Report{Budget: m.budget}
	if len(conversation) == 0 {
		return []provider.Message{}, report, nil
	}

	rest := conversation
	var system *provider.Message
	if conversation[0].IsSystem() {
		sys := conversation[0]
		system = &sys
		rest = conversation[1:]

		n, err := m.CountTokens(sys.Content)
		if err != nil {
			return nil, report, err
		}
		report.SystemTokens = n
		report.UsedTokens = n
	}

	var (
		kept []provider.Message
		err  error
	)
	switch m.policy {
	case KeepNewest:
		kept, err = m.selectNewest(rest, &report)
	default:
		kept, err = m.selectOldest(rest, &report)
	}
	if err != nil {
		return nil, report, err
	}
	report.Kept = len(kept)

	out := make([]provider.Message, 0, len(kept)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, kept...)

	m.logger.Debug("context selected",
		slog.String("policy", m.policy.String()),
		slog.Int("messages", len(conversation)),
		slog.Any("report", report))
	return out, report, nil
}

// selectOldest walks messages oldest first. The boundary message keeps its
// beginning.
func (m *Manager) selectOldest(msgs []provider.Message, report *Report) ([]provider.Message, error) {
	var kept []provider.Message
	for i, msg := range msgs {
		t, err := m.CountTokens(msg.Content)
		if err != nil {
			return nil, err
		}

		if report.UsedTokens+t >= m.budget {
			report.Dropped = len(msgs) - i
			remaining := m.budget - report.UsedTokens
			if remaining <= 0 {
				break
			}
			boundary, err := m.fitBoundary(msg, t, remaining, m.boundaryCut(m.TruncateToTokens), report)
			if err != nil {
				return nil, err
			}
			kept = append(kept, boundary)
			report.Dropped--
			break
		}

		var merged bool
		kept, merged = mergeInto(kept, msg, false)
		if merged {
			report.Merged++
		}
		report.UsedTokens += t
	}
	return kept, nil
}

// selectNewest walks messages newest first, merging in chronological order.
// The boundary message keeps its end.
func (m *Manager) selectNewest(msgs []provider.Message, report *Report) ([]provider.Message, error) {
	var kept []provider.Message // newest first
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		t, err := m.CountTokens(msg.Content)
		if err != nil {
			return nil, err
		}

		if report.UsedTokens+t >= m.budget {
			report.Dropped = i + 1
			remaining := m.budget - report.UsedTokens
			if remaining <= 0 {
				break
			}
			boundary, err := m.fitBoundary(msg, t, remaining, m.boundaryCut(m.truncateKeepingEnd), report)
			if err != nil {
				return nil, err
			}
			kept = append(kept, boundary)
			report.Dropped--
			break
		}

		var merged bool
		kept, merged = mergeInto(kept, msg, true)
		if merged {
			report.Merged++
		}
		report.UsedTokens += t
	}
	return reversed(kept), nil
}

// fitBoundary truncates the message that reaches the budget to remaining
// tokens. It is never merged into a neighbour.
func (m *Manager) fitBoundary(
	msg provider.Message,
	msgTokens, remaining int,
	cut func(string, int) (string, error),
	report *Report,
) (provider.Message, error) {
	content, err := cut(msg.Content, remaining)
	if err != nil {
		return provider.Message{}, err
	}
	if content == msg.Content {
		report.UsedTokens += msgTokens
		return msg, nil
	}

	n, err := m.CountTokens(content)
	if err != nil {
		return provider.Message{}, err
	}
	report.UsedTokens += n
	report.Truncated = true

	msg.Content = content
	return msg, nil
}
