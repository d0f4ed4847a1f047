package scheduler

import (
	"encoding/json"

	"github.com/creastat/orchestrator/pkgraph"
)

// mergeParams builds a node's base parameter map: declared defaults first,
// then the user-supplied params for that node overlaid on top — spec.md §3's
// precedence "defaults < user params < edge projections" applied up to the
// second term; edge projection is runstate's job, at frontier time.
func mergeParams(cfg pkgraph.NodeConfig, userParams json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		if def, ok := in.Default(); ok {
			if encoded, err := json.Marshal(def); err == nil {
				merged[in.Name] = encoded
			}
		}
	}

	if len(userParams) == 0 {
		return merged
	}
	var overrides map[string]json.RawMessage
	if err := json.Unmarshal(userParams, &overrides); err != nil {
		return merged
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
