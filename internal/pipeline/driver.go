package pipeline

import (
	"context"
	"time"

	"github.com/reachby3c/engagement-agent/internal/metrics"
)

// NodeName identifies one of the six fixed nodes.
type NodeName string

const (
	NodeSignalDetection    NodeName = "signal_detection"
	NodeRiskScoring        NodeName = "risk_scoring"
	NodeHandleBlocked      NodeName = "handle_blocked"
	NodeResponseGeneration NodeName = "response_generation"
	NodeCTAClassifier      NodeName = "cta_classifier"
	NodeCTSDecision        NodeName = "cts_decision"
	nodeEnd                NodeName = "__end__"
)

// decision is the outcome a node reports to the driver so it can look up
// the next node in the edge table. "ok"/"err"/"blocked" are the only
// decisions any node in this fixed graph produces.
type decision string

const (
	decisionOK      decision = "ok"
	decisionErr     decision = "err"
	decisionBlocked decision = "blocked"
)

// nodeFunc reads state and returns a patched copy plus the decision used to
// pick the next edge.
type nodeFunc func(ctx context.Context, s State) (State, decision)

// edges is the conditional-edge table: a mapping from (current node,
// decision) to the next node. This is the entirety of the pipeline's
// control flow: no dynamic dispatch, no graph runtime.
var edges = map[NodeName]map[decision]NodeName{
	NodeSignalDetection: {
		decisionOK:  NodeRiskScoring,
		decisionErr: nodeEnd,
	},
	NodeRiskScoring: {
		decisionBlocked: NodeHandleBlocked,
		decisionOK:      NodeResponseGeneration,
		decisionErr:     nodeEnd,
	},
	NodeResponseGeneration: {
		decisionOK:  NodeCTAClassifier,
		decisionErr: nodeEnd,
	},
	NodeCTAClassifier: {
		decisionOK:  NodeCTSDecision,
		decisionErr: nodeEnd,
	},
	NodeCTSDecision: {
		decisionOK: nodeEnd,
	},
	NodeHandleBlocked: {
		decisionOK: nodeEnd,
	},
}

// Driver wires concrete node implementations to the fixed graph above. It
// holds no per-run state, so a single Driver value is safe to invoke
// concurrently from N callers.
type Driver struct {
	nodes map[NodeName]nodeFunc
}

// NewDriver builds the driver from the five skill implementations. signal,
// risk, response, cta, cts are the concrete node bodies; handleBlocked is
// derived internally since it is pure (node 3).
func NewDriver(signal, risk, response, cta, cts nodeFunc) *Driver {
	return &Driver{
		nodes: map[NodeName]nodeFunc{
			NodeSignalDetection:    signal,
			NodeRiskScoring:        risk,
			NodeHandleBlocked:      handleBlockedNode,
			NodeResponseGeneration: response,
			NodeCTAClassifier:      cta,
			NodeCTSDecision:        cts,
		},
	}
}

// Run executes the graph starting at signal_detection until it reaches the
// terminal sentinel, returning the final state.
func (d *Driver) Run(ctx context.Context, text, platform string, tenantContext map[string]any) State {
	state := State{Text: text, Platform: platform, TenantContext: tenantContext}

	current := NodeSignalDetection
	for current != nodeEnd {
		fn, ok := d.nodes[current]
		if !ok {
			state.Error = "unknown pipeline node: " + string(current)
			return state
		}

		start := time.Now()
		next, dec := fn(ctx, state)
		metrics.ObserveStage(string(current), time.Since(start))
		state = next

		table, ok := edges[current]
		if !ok {
			return state
		}
		target, ok := table[dec]
		if !ok {
			// Decision has no configured edge: treat as terminal.
			return state
		}
		current = target
	}
	return state
}

// handle_blocked (node 3): terminal branch that writes a sentinel CTS.
func handleBlockedNode(_ context.Context, s State) (State, decision) {
	s.CTS = &CTS{
		CTSScore:       0,
		CanAutoPost:    false,
		AutoPostReason: "Do not engage — route to crisis protocol",
	}
	return s, decisionOK
}
