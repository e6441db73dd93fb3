package intake

import (
	"context"
	"log"
	"strings"

	"gatekeeper/app/core/intake/manifest"
	"gatekeeper/app/core/intake/state"
	"gatekeeper/app/core/notion"
	"gatekeeper/app/pkg/types"
)

// Bot-message fragments the wording-based recovery matches on. They must
// stay in sync with the replies in agent.go.
var (
	markersWaitingDelete = []string{"borrar el historial", "borrar nuestros mensajes"}
	markerTaskDetails    = "Nombre del Proyecto"
	markerTaskCreated    = "He creado la tarea en Notion"
)

// recover reconstructs the state of a thread that has no persisted record.
// Sources are consulted in trust order: the external mapping, a task-store
// back-link lookup, a workspace task link inside the starter post, the
// bot's own last message, and finally pre-boot suppression. The first
// source that answers wins.
func (a *Agent) recover(ctx context.Context, msg types.Message) (state.Record, bool) {
	threadID := msg.ThreadID

	if rec, ok := a.recoverFromMapping(threadID); ok {
		return rec, true
	}
	if rec, ok := a.recoverFromBackLink(ctx, threadID); ok {
		return rec, true
	}

	starter := a.fetchStarter(ctx, msg, msg.ID == threadID)

	if rec, ok := a.recoverFromStarterLink(starter); ok {
		return rec, true
	}
	if rec, ok := a.recoverFromBotMessages(ctx, threadID); ok {
		return rec, true
	}
	if rec, ok := a.recoverFromBootCutoff(threadID, starter); ok {
		return rec, true
	}
	return state.Record{}, false
}

func (a *Agent) recoverFromMapping(threadID string) (state.Record, bool) {
	if a.mapping == nil {
		return state.Record{}, false
	}
	entry, ok := a.mapping.Lookup(threadID)
	if !ok {
		return state.Record{}, false
	}
	switch entry.Status {
	case manifest.StatusApproved:
		if entry.TaskURL == "" {
			return state.Record{}, false
		}
		return state.Record{State: state.StateApproved, TaskRef: entry.TaskURL}, true
	case manifest.StatusIgnored:
		return state.Record{State: state.StateIgnoredExisting}, true
	default:
		return state.Record{}, false
	}
}

func (a *Agent) recoverFromBackLink(ctx context.Context, threadID string) (state.Record, bool) {
	url, err := a.tasks.FindRecordByBackLink(ctx, a.threadLink(threadID))
	if err != nil {
		log.Printf("[Intake] Back-link lookup failed for thread %s: %v", threadID, err)
		return state.Record{}, false
	}
	if url == "" {
		return state.Record{}, false
	}
	return state.Record{State: state.StateApproved, TaskRef: url}, true
}

// recoverFromStarterLink trusts a task link the author pasted into the
// starter post, but only when it points into our own workspace.
func (a *Agent) recoverFromStarterLink(starter types.Message) (state.Record, bool) {
	url := notion.ExtractTaskURL(starter.Content)
	if url == "" {
		return state.Record{}, false
	}
	if !notion.BelongsToWorkspace(url, a.opts.WorkspaceSlug) {
		log.Printf("[Intake] Ignoring foreign task link in thread %s: %s", starter.ThreadID, url)
		return state.Record{}, false
	}
	return state.Record{State: state.StateApproved, TaskRef: url}, true
}

// recoverFromBotMessages infers the conversation phase from the bot's most
// recent reply in the thread.
func (a *Agent) recoverFromBotMessages(ctx context.Context, threadID string) (state.Record, bool) {
	messages, err := a.transport.History(ctx, threadID, a.opts.HistoryScanLimit, false)
	if err != nil {
		log.Printf("[Intake] History scan failed for thread %s: %v", threadID, err)
		return state.Record{}, false
	}

	for _, m := range messages {
		if !m.AuthorIsBot {
			continue
		}
		content := m.Content
		// Embed-only replies have no text content.
		if strings.TrimSpace(content) == "" {
			continue
		}
		for _, marker := range markersWaitingDelete {
			if strings.Contains(content, marker) {
				return state.Record{State: state.StateWaitingDelete}, true
			}
		}
		if strings.Contains(content, markerTaskCreated) {
			return state.Record{State: state.StateApproved, TaskRef: notion.ExtractTaskURL(content)}, true
		}
		if strings.Contains(content, markerTaskDetails) {
			return state.Record{State: state.StateWaitingTaskDetails}, true
		}
		// Only the newest bot message carries the current phase.
		return state.Record{}, false
	}
	return state.Record{}, false
}

// recoverFromBootCutoff suppresses threads that predate this process:
// without any other signal they are assumed already handled, so the bot
// does not barge into old conversations after a redeploy.
func (a *Agent) recoverFromBootCutoff(threadID string, starter types.Message) (state.Record, bool) {
	if a.allowlisted(threadID) {
		return state.Record{}, false
	}
	if starter.CreatedAt.IsZero() || !starter.CreatedAt.Before(a.opts.BootTime) {
		return state.Record{}, false
	}
	return state.Record{State: state.StateIgnoredExisting}, true
}
