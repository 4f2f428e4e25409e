package flow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// Progress checkpoints before a branch starts.
const (
	PercentClassifyStarted = 5
	PercentClassified      = 15
	PercentRouted          = 20
)

// ingestionMarkers are prefixes inserted by upstream ingestion ahead of the
// user's own text.
var ingestionMarkers = []string{"[InputUsuario]:", "[UserInput]:"}

// Normalize removes the ingestion marker leading the text or any document
// block, then surrounding whitespace. Markers elsewhere are content and stay.
func Normalize(text string) string {
	blocks := strings.Split(text, DocumentSeparator)
	for i, block := range blocks {
		trimmed := strings.TrimLeft(block, " \t\r\n")
		for _, m := range ingestionMarkers {
			if strings.HasPrefix(trimmed, m) {
				blocks[i] = block[:len(block)-len(trimmed)] + trimmed[len(m):]
				break
			}
		}
	}
	return strings.TrimSpace(strings.Join(blocks, DocumentSeparator))
}

type classifyAnswer struct {
	Agent   string `json:"agent"`
	Payload string `json:"payload"`
}

func (a classifyAnswer) validate() error {
	if strings.TrimSpace(a.Agent) == "" {
		return errors.New("empty agent")
	}
	return nil
}

func classifySchema() *textgen.Schema {
	labels := make([]string, 0, 3)
	for _, l := range Labels() {
		labels = append(labels, string(l))
	}
	return &textgen.Schema{
		Name:        "classification",
		Description: "Name exactly one agent, verbatim.",
		Properties: map[string]any{
			"agent": map[string]any{
				"type": "string",
				"enum": labels,
			},
			"payload": map[string]any{
				"type":        "string",
				"description": "The input to hand to the chosen agent, unchanged",
			},
		},
		Required: []string{"agent", "payload"},
	}
}

// Classifier decides which branch handles an input.
type Classifier struct {
	svc    textgen.Service
	logger *zap.Logger
}

// NewClassifier creates a Classifier backed by svc.
func NewClassifier(svc textgen.Service, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{svc: svc, logger: logger}
}

// Classify normalizes text and asks the service for a label.
//
// The returned label is not validated; the router does that. The payload is
// always the normalized input so that later phases see exactly what the user
// wrote.
func (c *Classifier) Classify(ctx context.Context, text string, run *progress.Run) (models.Classification, error) {
	input := Normalize(text)
	if input == "" {
		return models.Classification{}, EmptyInputError{}
	}

	run.Report("classification started", PercentClassifyStarted)

	resp, err := c.svc.Invoke(ctx, textgen.Request{
		Role: "an input classifier for a technology modernization assistant",
		Goal: "hand every input to the one specialised agent able to handle it",
		Instructions: "Classify the input as exactly one of " + labelList() + ".\n" +
			"- A list of technologies, frameworks, languages or platforms: \"" + string(LabelArtefact) + "\" " +
			"(e.g. Java 8, Spring Boot 2.3, MySQL 5.7, Angular 12).\n" +
			"- Source code in any language: \"" + string(LabelCode) + "\" (e.g. public class Example { ... }).\n" +
			"- Greetings or anything non-technical: \"" + string(LabelGreeting) + "\" (e.g. Good morning!).\n" +
			"Give no explanation.",
		Input:   input,
		Schema:  classifySchema(),
		Purpose: "classify",
	})
	if err != nil {
		return models.Classification{}, err
	}

	label, err := decodeLabel(resp.Text)
	if err != nil {
		return models.Classification{}, &ClassificationParseError{Response: resp.Text, Err: err}
	}

	c.logger.Debug("input classified", zap.String("label", label))
	run.Report("classification complete: "+label, PercentClassified)

	return models.Classification{Label: label, Payload: input}, nil
}

// decodeLabel reads the agent field. An object without one yields an empty
// label, which the router rejects.
func decodeLabel(text string) (string, error) {
	attempt := textgen.Parse[classifyAnswer](text, classifyAnswer.validate)
	switch attempt.Kind {
	case textgen.SchemaMatch:
		return strings.TrimSpace(attempt.Value.Agent), nil
	case textgen.RawObjectMatch:
		label, _ := textgen.StringField(attempt.Object, "agent", "agente", "label")
		return strings.TrimSpace(label), nil
	default:
		return "", attempt.Err
	}
}
