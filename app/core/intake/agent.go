package intake

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gatekeeper/app/core/classifier"
	"gatekeeper/app/core/intake/manifest"
	"gatekeeper/app/core/intake/state"
	"gatekeeper/app/core/journal"
	"gatekeeper/app/core/notion"
	"gatekeeper/app/pkg/types"
)

// Classifier decides the next action for one conversation turn.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (classifier.Intent, error)
}

// TaskStore is the downstream task database the intake flow writes to.
type TaskStore interface {
	CreateRecord(ctx context.Context, req notion.CreateRequest) (string, error)
	FindRecordByBackLink(ctx context.Context, link string) (string, error)
	ValidProjectOptions(ctx context.Context) ([]string, error)
}

// TurnRecorder journals processed turns. Optional; a nil recorder is fine.
type TurnRecorder interface {
	Append(ctx context.Context, turn journal.Turn) error
}

// Options tunes the intake agent.
type Options struct {
	Name             string
	GuildID          string
	NotifyChannelID  string
	WorkspaceSlug    string
	ManualFormURL    string
	ErrorThreshold   int
	HistoryScanLimit int
	HistoryWindow    int
	AllowThreadIDs   []string
	BootTime         time.Time
}

// User-facing replies. The recovery heuristic matches on fragments of
// these, so the wording here and the markers in recovery.go move together.
const (
	msgTransientFailure  = "Lo siento, tuve un problema procesando tu mensaje. Inténtalo de nuevo en unos minutos."
	msgOptionsUnavailable = "No pude consultar la lista de proyectos válidos. Inténtalo de nuevo en unos minutos."
	msgCreateFailed      = "Hubo un error creando la tarea. Inténtalo de nuevo."
	msgTaskCreated       = "He creado la tarea en Notion: %s\n\nAhora edita tu post original para que incluya toda la información y avísame cuando esté listo."
	msgTaskExists        = "Esta solicitud ya tiene su tarea creada: %s"
	msgStarterUnreadable = "No pude leer el mensaje original."
	msgCleanupStart      = "Limpiando conversación..."
	msgCleanupOffer      = "¿Quieres borrar el historial de nuestra conversación para dejar el hilo limpio?"
	msgEditStillMissing  = "Aún falta información en tu post original. Revísalo y avísame cuando lo hayas completado."
)

const embedGreen = 0x2ECC71

// Agent is the per-thread intake state machine: it classifies each user
// message, dispatches the decided action and persists the thread's state
// before replying side effects are considered done.
type Agent struct {
	transport  types.Transport
	classifier Classifier
	tasks      TaskStore
	store      *state.Store
	mapping    *manifest.Manifest
	recorder   TurnRecorder
	opts       Options

	allow map[string]struct{}
}

func NewAgent(transport types.Transport, cls Classifier, tasks TaskStore, store *state.Store, mapping *manifest.Manifest, recorder TurnRecorder, opts Options) *Agent {
	if opts.Name == "" {
		opts.Name = "Esmeralda"
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = 2
	}
	if opts.HistoryScanLimit <= 0 {
		opts.HistoryScanLimit = 10
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	if opts.BootTime.IsZero() {
		opts.BootTime = time.Now()
	}

	allow := make(map[string]struct{}, len(opts.AllowThreadIDs))
	for _, id := range opts.AllowThreadIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			allow[trimmed] = struct{}{}
		}
	}

	return &Agent{
		transport:  transport,
		classifier: cls,
		tasks:      tasks,
		store:      store,
		mapping:    mapping,
		recorder:   recorder,
		opts:       opts,
		allow:      allow,
	}
}

func (a *Agent) Name() string {
	return a.opts.Name
}

func (a *Agent) allowlisted(threadID string) bool {
	_, ok := a.allow[threadID]
	return ok
}

// Process handles one inbound message end to end. Errors the user was
// already told about are swallowed here; only infrastructure failures
// surface to the gateway.
func (a *Agent) Process(ctx context.Context, msg types.Message) error {
	if msg.AuthorIsBot || strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	threadID := msg.ThreadID
	isStarter := msg.ID == threadID
	startedAt := time.Now()

	rec := a.store.Get(threadID)

	// Threads in a terminal state stay silent unless allow-listed for
	// reprocessing.
	if rec.State.Terminal() {
		if !a.allowlisted(threadID) {
			return nil
		}
		log.Printf("[Intake] Allow-listed thread %s reset from %s", threadID, rec.State)
		if err := a.store.Update(threadID, func(r *state.Record) {
			r.State = state.StateInit
			r.ErrorCount = 0
		}); err != nil {
			return err
		}
		rec = a.store.Get(threadID)
	}

	// First contact with an unmanaged thread: reconstruct its state from
	// durable sources before trusting the conversation.
	if rec.State == state.StateInit && rec.UpdatedAt == "" {
		if recovered, ok := a.recover(ctx, msg); ok {
			log.Printf("[Intake] Recovered thread %s into %s", threadID, recovered.State)
			if err := a.store.Update(threadID, func(r *state.Record) {
				r.State = recovered.State
				r.TaskRef = recovered.TaskRef
			}); err != nil {
				return err
			}
			if recovered.State.Terminal() && !a.allowlisted(threadID) {
				return nil
			}
			rec = a.store.Get(threadID)
		}
	}

	starter := a.fetchStarter(ctx, msg, isStarter)
	referenceDate := starter.CreatedAt
	if referenceDate.IsZero() {
		referenceDate = msg.CreatedAt
	}

	req := classifier.Request{
		State:          string(rec.State),
		IsStarter:      isStarter,
		ReferenceDate:  referenceDate,
		StarterContent: starter.Content,
		History:        a.historyWindow(ctx, threadID, msg.ID),
		Latest:         msg.Content,
	}

	intent, err := a.classifier.Classify(ctx, req)
	if err != nil {
		log.Printf("[Intake] Classification failed for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgTransientFailure)
		a.journal(ctx, threadID, rec.State, rec.State, "classify", journal.StatusFailed, err.Error(), startedAt)
		return nil
	}

	log.Printf("[Intake] Thread %s state=%s action=%s", threadID, rec.State, intent.Action)

	detail, dispatchErr := a.dispatch(ctx, msg, starter, rec, intent, referenceDate)
	status := journal.StatusOK
	if dispatchErr != nil {
		status = journal.StatusFailed
		detail = dispatchErr.Error()
	}
	a.journal(ctx, threadID, rec.State, a.store.Get(threadID).State, intent.Action, status, detail, startedAt)
	return dispatchErr
}

func (a *Agent) dispatch(ctx context.Context, msg, starter types.Message, rec state.Record, intent classifier.Intent, referenceDate time.Time) (string, error) {
	switch intent.Action {
	case "approve":
		return a.handleApprove(ctx, msg, starter, rec, intent, referenceDate)
	case "offer_creation":
		return "", a.handleOfferCreation(ctx, msg.ThreadID, intent)
	case "create_task":
		return a.handleCreateTask(ctx, msg, starter, rec, intent, referenceDate)
	case "validate_edit":
		return a.handleValidateEdit(ctx, msg, rec)
	case "synthesize":
		return "", a.handleRelayThen(ctx, msg.ThreadID, intent.Feedback, state.StateWaitingEdit)
	case "delete_history":
		return "", a.handleDeleteHistory(ctx, msg.ThreadID)
	case "request_edit":
		return "", a.handleRelayThen(ctx, msg.ThreadID, intent.Feedback, state.StateWaitingEdit)
	case "handoff":
		if intent.Feedback != "" {
			a.reply(ctx, msg.ThreadID, intent.Feedback)
		}
		return "", nil
	case "wait":
		if intent.Feedback != "" {
			a.reply(ctx, msg.ThreadID, intent.Feedback)
		}
		return "", nil
	default:
		log.Printf("[Intake] Unrecognized action %q for thread %s, treating as wait", intent.Action, msg.ThreadID)
		if intent.Feedback != "" {
			a.reply(ctx, msg.ThreadID, intent.Feedback)
		}
		return "unrecognized action " + intent.Action, nil
	}
}

// handleApprove finalizes a complete request: create the task record once,
// mark the thread approved and announce it.
func (a *Agent) handleApprove(ctx context.Context, msg, starter types.Message, rec state.Record, intent classifier.Intent, referenceDate time.Time) (string, error) {
	threadID := msg.ThreadID

	if rec.TaskRef != "" {
		a.reply(ctx, threadID, fmt.Sprintf(msgTaskExists, rec.TaskRef))
		return rec.TaskRef, a.store.Update(threadID, func(r *state.Record) {
			r.State = state.StateApproved
			r.ErrorCount = 0
		})
	}

	url, outcome, err := a.createTaskRecord(ctx, threadID, starter, intent, referenceDate)
	if err != nil || outcome != "" {
		return outcome, err
	}

	if err := a.store.Update(threadID, func(r *state.Record) {
		r.State = state.StateApproved
		r.TaskRef = url
		r.ErrorCount = 0
	}); err != nil {
		return "", err
	}

	a.announceApproval(ctx, threadID, url, intent.Feedback)
	return url, nil
}

// handleOfferCreation relays the model's feedback and asks for the task
// details. The project prompt wording doubles as a recovery marker.
func (a *Agent) handleOfferCreation(ctx context.Context, threadID string, intent classifier.Intent) error {
	text := strings.TrimSpace(intent.Feedback)
	if text != "" {
		text += "\n\n"
	}
	text += "¿Quieres que cree la tarea por ti? Respóndeme con:\nNombre del Proyecto: ...\nTítulo de la tarea: ..."
	a.reply(ctx, threadID, text)
	return a.store.Update(threadID, func(r *state.Record) {
		r.State = state.StateWaitingTaskDetails
	})
}

// handleCreateTask creates the record on explicit user request and moves
// the thread to waiting for the post edit. Creation failures count toward
// the fallback threshold.
func (a *Agent) handleCreateTask(ctx context.Context, msg, starter types.Message, rec state.Record, intent classifier.Intent, referenceDate time.Time) (string, error) {
	threadID := msg.ThreadID

	if rec.TaskRef != "" {
		a.reply(ctx, threadID, fmt.Sprintf(msgTaskExists, rec.TaskRef))
		return rec.TaskRef, nil
	}

	options, err := a.tasks.ValidProjectOptions(ctx)
	if err != nil {
		log.Printf("[Intake] Project options unavailable for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgOptionsUnavailable)
		return "project options unavailable", nil
	}

	project := MatchProject(intent.Data.Project, options)
	if project == "" {
		return "project not matched", a.askProjectClarification(ctx, threadID, intent.Data.Project, options)
	}

	url, err := a.tasks.CreateRecord(ctx, notion.CreateRequest{
		Title:    a.taskTitle(intent, starter),
		Project:  project,
		Deadline: NormalizeDeadline(intent.Data.Deadline, referenceDate),
		Content:  starter.Content,
		BackLink: a.threadLink(threadID),
	})
	if err != nil {
		return a.handleCreateFailure(ctx, threadID, err)
	}

	a.reply(ctx, threadID, fmt.Sprintf(msgTaskCreated, url))
	return url, a.store.Update(threadID, func(r *state.Record) {
		r.State = state.StateWaitingEdit
		r.TaskRef = url
		r.ErrorCount = 0
	})
}

// handleCreateFailure counts consecutive creation failures. At the
// threshold the user gets the manual form fallback and the counter resets
// so a later retry starts clean.
func (a *Agent) handleCreateFailure(ctx context.Context, threadID string, cause error) (string, error) {
	log.Printf("[Intake] Task creation failed for thread %s: %v", threadID, cause)

	count := a.store.Get(threadID).ErrorCount + 1
	if count >= a.opts.ErrorThreshold {
		text := "No he podido crear la tarea tras varios intentos."
		if a.opts.ManualFormURL != "" {
			text += " Puedes crearla manualmente aquí: " + a.opts.ManualFormURL
		}
		text += "\n\nCuando la tengas, edita tu post original y avísame."
		a.reply(ctx, threadID, text)
		return "creation fallback after repeated failures", a.store.Update(threadID, func(r *state.Record) {
			r.State = state.StateWaitingEdit
			r.ErrorCount = 0
		})
	}

	a.reply(ctx, threadID, msgCreateFailed)
	return fmt.Sprintf("creation failed (attempt %d)", count), a.store.Update(threadID, func(r *state.Record) {
		r.ErrorCount = count
	})
}

// handleValidateEdit re-reads the starter post and classifies it fresh,
// without conversation history: the edited post must stand on its own.
func (a *Agent) handleValidateEdit(ctx context.Context, msg types.Message, rec state.Record) (string, error) {
	threadID := msg.ThreadID

	starter, err := a.transport.FetchMessage(ctx, threadID, threadID)
	if err != nil {
		log.Printf("[Intake] Could not fetch starter for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgStarterUnreadable)
		return "starter unreadable", nil
	}

	fresh, err := a.classifier.Classify(ctx, classifier.Request{
		State:          string(rec.State),
		IsStarter:      true,
		ReferenceDate:  starter.CreatedAt,
		StarterContent: starter.Content,
		Latest:         starter.Content,
	})
	if err != nil {
		log.Printf("[Intake] Revalidation failed for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgTransientFailure)
		return "revalidation classify failed", nil
	}

	if fresh.Action != "approve" && fresh.Action != "create_task" {
		text := strings.TrimSpace(fresh.Feedback)
		if text == "" {
			text = msgEditStillMissing
		}
		a.reply(ctx, threadID, text)
		return "edit still incomplete", nil
	}

	url := rec.TaskRef
	if url == "" {
		created, outcome, err := a.createTaskRecord(ctx, threadID, starter, fresh, starter.CreatedAt)
		if err != nil || outcome != "" {
			return outcome, err
		}
		url = created
	}

	a.announceApproval(ctx, threadID, url, fresh.Feedback)
	a.reply(ctx, threadID, msgCleanupOffer)
	return url, a.store.Update(threadID, func(r *state.Record) {
		r.State = state.StateWaitingDelete
		r.TaskRef = url
		r.ErrorCount = 0
	})
}

// handleDeleteHistory removes the conversation, keeping only the starter
// post, then forgets the thread entirely.
func (a *Agent) handleDeleteHistory(ctx context.Context, threadID string) error {
	a.reply(ctx, threadID, msgCleanupStart)

	messages, err := a.transport.History(ctx, threadID, 100, false)
	if err == nil {
		ids := make([]string, 0, len(messages))
		for _, m := range messages {
			if m.ID == threadID {
				continue
			}
			ids = append(ids, m.ID)
		}
		err = a.transport.DeleteMessages(ctx, threadID, ids)
	}
	if err != nil {
		log.Printf("[Intake] Bulk cleanup failed for thread %s, purging: %v", threadID, err)
		if perr := a.transport.Purge(ctx, threadID, func(m types.Message) bool {
			return m.ID == threadID
		}); perr != nil {
			log.Printf("[Intake] Purge failed for thread %s: %v", threadID, perr)
		}
	}

	return a.store.Clear(threadID)
}

func (a *Agent) handleRelayThen(ctx context.Context, threadID, feedback string, next state.State) error {
	if strings.TrimSpace(feedback) != "" {
		a.reply(ctx, threadID, feedback)
	}
	return a.store.Update(threadID, func(r *state.Record) {
		r.State = next
	})
}

// createTaskRecord validates project and deadline, then creates the
// record. A non-empty outcome with nil error means the user was already
// told what to fix and no record exists yet.
func (a *Agent) createTaskRecord(ctx context.Context, threadID string, starter types.Message, intent classifier.Intent, referenceDate time.Time) (url, outcome string, err error) {
	options, err := a.tasks.ValidProjectOptions(ctx)
	if err != nil {
		log.Printf("[Intake] Project options unavailable for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgOptionsUnavailable)
		return "", "project options unavailable", nil
	}

	project := MatchProject(intent.Data.Project, options)
	if project == "" {
		return "", "project not matched", a.askProjectClarification(ctx, threadID, intent.Data.Project, options)
	}

	url, err = a.tasks.CreateRecord(ctx, notion.CreateRequest{
		Title:    a.taskTitle(intent, starter),
		Project:  project,
		Deadline: NormalizeDeadline(intent.Data.Deadline, referenceDate),
		Content:  starter.Content,
		BackLink: a.threadLink(threadID),
	})
	if err != nil {
		log.Printf("[Intake] Task creation failed for thread %s: %v", threadID, err)
		a.reply(ctx, threadID, msgCreateFailed)
		return "", "creation failed", nil
	}
	return url, "", nil
}

// askProjectClarification lists the valid options verbatim and waits for
// details. The "Nombre del Proyecto" wording is a recovery marker.
func (a *Agent) askProjectClarification(ctx context.Context, threadID, raw string, options []string) error {
	var b strings.Builder
	if strings.TrimSpace(raw) != "" {
		fmt.Fprintf(&b, "No reconozco el proyecto %q. ", strings.TrimSpace(raw))
	}
	b.WriteString("Los proyectos válidos son: ")
	b.WriteString(strings.Join(options, ", "))
	b.WriteString(".\n\nNombre del Proyecto: ¿cuál corresponde?")
	a.reply(ctx, threadID, b.String())
	return a.store.Update(threadID, func(r *state.Record) {
		r.State = state.StateWaitingTaskDetails
	})
}

// announceApproval posts the creation marker message, the green approval
// panel, and notifies the downstream channel.
func (a *Agent) announceApproval(ctx context.Context, threadID, url, feedback string) {
	text := "He creado la tarea en Notion: " + url
	if fb := strings.TrimSpace(feedback); fb != "" {
		text = fb + "\n\n" + text
	}
	a.reply(ctx, threadID, text)

	if _, err := a.transport.SendEmbed(ctx, threadID, types.Embed{
		Title:       "Design Intake Quality Gate",
		Description: "✅ APROBADO\n\nLa solicitud está completa y la tarea ha sido creada:\n" + url,
		Color:       embedGreen,
		Footer:      a.opts.Name,
	}); err != nil {
		log.Printf("[Intake] Approval embed failed for thread %s: %v", threadID, err)
	}

	if a.opts.NotifyChannelID != "" {
		if _, err := a.transport.Send(ctx, a.opts.NotifyChannelID, "Nueva tarea aprobada: "+url); err != nil {
			log.Printf("[Intake] Downstream notification failed: %v", err)
		}
	}
}

func (a *Agent) taskTitle(intent classifier.Intent, starter types.Message) string {
	if title := strings.TrimSpace(intent.Data.Title); title != "" {
		return title
	}
	if line := firstLine(starter.Content); line != "" {
		return line
	}
	return "Solicitud de diseño"
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if len(trimmed) > 80 {
				trimmed = trimmed[:80]
			}
			return trimmed
		}
	}
	return ""
}

func (a *Agent) threadLink(threadID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", a.opts.GuildID, threadID)
}

func (a *Agent) fetchStarter(ctx context.Context, msg types.Message, isStarter bool) types.Message {
	if isStarter {
		return msg
	}
	starter, err := a.transport.FetchMessage(ctx, msg.ThreadID, msg.ThreadID)
	if err != nil {
		log.Printf("[Intake] Starter fetch failed for thread %s: %v", msg.ThreadID, err)
		return types.Message{ID: msg.ThreadID, ThreadID: msg.ThreadID}
	}
	return starter
}

func (a *Agent) historyWindow(ctx context.Context, threadID, latestID string) []classifier.HistoryEntry {
	messages, err := a.transport.History(ctx, threadID, a.opts.HistoryWindow, true)
	if err != nil {
		log.Printf("[Intake] History fetch failed for thread %s: %v", threadID, err)
		return nil
	}

	entries := make([]classifier.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.ID == latestID || m.ID == threadID {
			continue
		}
		entries = append(entries, classifier.HistoryEntry{
			FromBot: m.AuthorIsBot,
			Content: m.Content,
		})
	}
	return entries
}

func (a *Agent) reply(ctx context.Context, threadID, content string) {
	if _, err := a.transport.Send(ctx, threadID, content); err != nil {
		log.Printf("[Intake] Reply failed for thread %s: %v", threadID, err)
	}
}

func (a *Agent) journal(ctx context.Context, threadID string, before, after state.State, action, status, detail string, startedAt time.Time) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Append(ctx, journal.Turn{
		ThreadID:    threadID,
		StateBefore: string(before),
		StateAfter:  string(after),
		Action:      action,
		Status:      status,
		Detail:      detail,
		DurationMS:  time.Since(startedAt).Milliseconds(),
	}); err != nil {
		log.Printf("[Intake] Journal append failed: %v", err)
	}
}
