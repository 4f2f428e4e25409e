package flow

import (
	"fmt"
	"strings"
)

// Label is the closed set of classifier answers.
type Label string

const (
	LabelGreeting Label = "greeting-agent"
	LabelCode     Label = "code-agent"
	LabelArtefact Label = "artefact-agent"
)

// Labels returns every valid label in prompt order.
func Labels() []Label {
	return []Label{LabelGreeting, LabelCode, LabelArtefact}
}

// labelAliases maps accepted spellings onto labels. The Portuguese names are
// still produced by prompts written for the chat front-end.
var labelAliases = map[string]Label{
	"greeting-agent":                    LabelGreeting,
	"greeting":                          LabelGreeting,
	"agente de boas-vindas":             LabelGreeting,
	"code-agent":                        LabelCode,
	"code":                              LabelCode,
	"agente de codigo":                  LabelCode,
	"agente de código":                  LabelCode,
	"artefact-agent":                    LabelArtefact,
	"artifact-agent":                    LabelArtefact,
	"artefact":                          LabelArtefact,
	"agente de artefatos de tecnologia": LabelArtefact,
}

// ParseLabel validates a raw classifier label. Matching ignores case and
// surrounding whitespace or quotes but is otherwise exact.
func ParseLabel(raw string) (Label, error) {
	key := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'`*"))
	if l, ok := labelAliases[key]; ok {
		return l, nil
	}
	return "", &UnroutableClassificationError{Label: raw}
}

// BranchID identifies one of the mutually exclusive branches.
type BranchID string

const (
	BranchGreeting BranchID = "greeting"
	BranchCode     BranchID = "code"
	BranchArtefact BranchID = "artefact"
)

// Route maps a label to its branch.
func Route(l Label) (BranchID, error) {
	switch l {
	case LabelGreeting:
		return BranchGreeting, nil
	case LabelCode:
		return BranchCode, nil
	case LabelArtefact:
		return BranchArtefact, nil
	default:
		return "", &UnroutableClassificationError{Label: string(l)}
	}
}

// entryState is the first state of a branch.
func (b BranchID) entryState() State {
	switch b {
	case BranchGreeting:
		return StateGreetingBranch
	case BranchCode:
		return StateCodeBranch
	default:
		return StateCategorizing
	}
}

func labelList() string {
	names := make([]string, 0, 3)
	for _, l := range Labels() {
		names = append(names, fmt.Sprintf("%q", l))
	}
	return strings.Join(names, ", ")
}
