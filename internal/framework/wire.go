package framework

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireMessage is the JSON object written on one stdout line by the
// framework plugin.
type wireMessage struct {
	Kind          Kind     `json:"kind"`
	Outcome       string   `json:"outcome,omitempty"`
	FailureNodeID string   `json:"failure_nodeid,omitempty"`
	NodeID        string   `json:"nodeid,omitempty"`
	When          string   `json:"when,omitempty"`
	LongRepr      string   `json:"longrepr,omitempty"`
	Items         []string `json:"items,omitempty"`
}

// decodeLine parses one stdout line. ok is false for lines that are not
// protocol messages, such as the framework's own output.
func decodeLine(line string) (msg Message, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Message{}, false, nil
	}

	var w wireMessage
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Message{}, false, nil
	}

	switch w.Kind {
	case KindCollection:
		return Message{Kind: KindCollection, Collection: &Collection{
			Outcome:   w.Outcome,
			FailureID: w.FailureNodeID,
			Detail:    w.LongRepr,
			Items:     w.Items,
		}}, true, nil
	case KindReport:
		if w.Outcome == "" {
			return Message{}, false, fmt.Errorf("report for %q has no outcome", w.NodeID)
		}
		return Message{Kind: KindReport, Report: &Report{
			NodeID:  w.NodeID,
			Outcome: w.Outcome,
			When:    w.When,
			Detail:  w.LongRepr,
		}}, true, nil
	case KindDone:
		return Done(), true, nil
	default:
		return Message{}, false, nil
	}
}
