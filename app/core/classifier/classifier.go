package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/tidwall/gjson"
)

// Intent is the structured decision returned by the language model for one
// conversation turn. Action membership is validated by the state machine,
// not here; absent fields get safe defaults.
type Intent struct {
	Action   string
	Feedback string
	Data     Data
}

// Data carries the fields the model extracted from the conversation.
type Data struct {
	Project  string
	Title    string
	Deadline string
}

// HistoryEntry is one prior message of the thread, author-tagged.
type HistoryEntry struct {
	FromBot bool
	Content string
}

// Request is the context bundle the state machine assembles for one
// classification call.
type Request struct {
	State          string
	IsStarter      bool
	ReferenceDate  time.Time
	StarterContent string
	History        []HistoryEntry
	Latest         string
}

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls OpenAI and maps free-form model output onto the Intent
// contract.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		api:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Classify runs one bounded-timeout model call and parses the JSON
// decision. Any transport or parse failure surfaces as an error; the
// caller recovers without mutating state.
func (c *Client) Classify(ctx context.Context, req Request) (Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(buildSystemPrompt(req), responses.EasyInputMessageRoleSystem),
		responses.ResponseInputItemParamOfMessage(buildUserPrompt(req), responses.EasyInputMessageRoleUser),
	}

	resp, err := c.api.Responses.New(callCtx, responses.ResponseNewParams{
		Model: openai.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	})
	if err != nil {
		return Intent{}, fmt.Errorf("classifier call: %w", err)
	}

	return ParseIntent(resp.OutputText())
}

const instructionTemplate = `Eres el Quality Gate del foro de design intake.
Evalúas solicitudes de diseño y decides la siguiente acción del bot.

Una solicitud completa debe incluir:
- Contexto (problema a resolver y audiencia objetivo)
- Entregables esperados
- Deadline (fecha concreta)
- Nombre del proyecto

Devuelve SOLO un objeto JSON con este esquema:
{"action":"...","feedback":"...","data":{"project":"...","title":"...","deadline":"YYYY-MM-DD"}}

Acciones permitidas:
- approve: la solicitud está completa; extrae project, title y deadline.
- offer_creation: la solicitud es válida pero falta crear la tarea; ofrece crearla.
- create_task: el usuario pidió explícitamente crear la tarea y dio proyecto y título.
- validate_edit: el usuario dice que ya editó su mensaje original; hay que revalidarlo.
- synthesize: la información está dispersa en la conversación; resúmela para que el usuario la pegue en su post.
- delete_history: el usuario aceptó borrar el historial de la conversación.
- request_edit: falta información; pide al usuario que edite su post.
- handoff: mensaje informativo posterior a la aprobación; solo responde.
- wait: no hay nada que hacer todavía.

Responde el feedback en el idioma del usuario, breve y cortés.
No inventes datos: si un campo no aparece en el texto, déjalo vacío.`

func buildSystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(instructionTemplate)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Current State: %s\n", req.State))
	b.WriteString(fmt.Sprintf("Is Starter Message: %t\n", req.IsStarter))
	if !req.ReferenceDate.IsZero() {
		b.WriteString(fmt.Sprintf("Thread Date (UTC): %s\n", req.ReferenceDate.UTC().Format("2006-01-02")))
	}
	return b.String()
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	if strings.TrimSpace(req.StarterContent) != "" {
		b.WriteString("STARTER MESSAGE:\n")
		b.WriteString(strings.TrimSpace(req.StarterContent))
		b.WriteString("\n\n")
	}
	entries := filterBlank(req.History)
	if len(entries) > 0 {
		b.WriteString("CONVERSATION HISTORY (oldest first):\n")
		for _, entry := range entries {
			tag := "USER"
			if entry.FromBot {
				tag = "BOT"
			}
			b.WriteString(fmt.Sprintf("%s: %s\n", tag, strings.TrimSpace(entry.Content)))
		}
		b.WriteString("\n")
	}
	b.WriteString("LATEST MESSAGE:\n")
	b.WriteString(strings.TrimSpace(req.Latest))
	return b.String()
}

func filterBlank(entries []HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ParseIntent extracts the first JSON object from model output and reads
// the decision fields, defaulting action to "wait" when absent.
func ParseIntent(text string) (Intent, error) {
	payload, err := extractJSONObject(text)
	if err != nil {
		return Intent{}, err
	}
	if !gjson.Valid(payload) {
		return Intent{}, fmt.Errorf("classifier returned invalid json")
	}

	parsed := gjson.Parse(payload)
	intent := Intent{
		Action:   strings.ToLower(strings.TrimSpace(parsed.Get("action").String())),
		Feedback: strings.TrimSpace(parsed.Get("feedback").String()),
		Data: Data{
			Project:  strings.TrimSpace(parsed.Get("data.project").String()),
			Title:    strings.TrimSpace(parsed.Get("data.title").String()),
			Deadline: strings.TrimSpace(parsed.Get("data.deadline").String()),
		},
	}
	if intent.Action == "" {
		intent.Action = "wait"
	}
	return intent, nil
}

func extractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("json object not found")
	}
	return text[start : end+1], nil
}
