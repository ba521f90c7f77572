package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAction = errors.New("unknown action")

// Action identifica a operação de edição pedida pelo editor.
type Action string

const (
	ActionCorrect   Action = "correct"
	ActionImprove   Action = "improve"
	ActionSummarize Action = "summarize"
	ActionToPrompt  Action = "toPrompt"
	ActionTranslate Action = "translate"
)

// Actions lista as ações suportadas, na ordem em que aparecem na barra de ferramentas.
func Actions() []Action {
	return []Action{ActionCorrect, ActionImprove, ActionSummarize, ActionToPrompt, ActionTranslate}
}

func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	for _, a := range Actions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAction, s)
}
