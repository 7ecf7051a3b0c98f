package pipeline

import (
	"context"

	"github.com/reachby3c/engagement-agent/internal/crisis"
	"github.com/reachby3c/engagement-agent/internal/llm"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

// Skills bundles the collaborators the five pipeline nodes call out to: the
// LLM client for signal/risk/response generation, and the crisis detector
// that gates risk scoring. Build a Driver from it with NewPipelineDriver.
type Skills struct {
	LLM      *llm.Client
	Crisis   *crisis.Detector
	Model    string
	Temp     float64
	MaxToken int
	Logger   logging.Logger
}

// NewPipelineDriver wires Skills' methods into the fixed six-node graph.
func NewPipelineDriver(s *Skills) *Driver {
	return NewDriver(s.signalDetection, s.riskScoring, s.responseGeneration, s.ctaClassifier, s.ctsDecision)
}

// RunNode executes one node by name against state, returning the patched
// state and whether the node reported success. Backs the per-stage skill
// endpoints, which mirror the pipeline's per-node I/O without running the
// whole graph.
func (s *Skills) RunNode(ctx context.Context, node NodeName, state State) (State, bool) {
	var fn nodeFunc
	switch node {
	case NodeSignalDetection:
		fn = s.signalDetection
	case NodeRiskScoring:
		fn = s.riskScoring
	case NodeHandleBlocked:
		fn = handleBlockedNode
	case NodeResponseGeneration:
		fn = s.responseGeneration
	case NodeCTAClassifier:
		fn = s.ctaClassifier
	case NodeCTSDecision:
		fn = s.ctsDecision
	default:
		state.Error = "unknown pipeline node: " + string(node)
		return state, false
	}
	next, dec := fn(ctx, state)
	return next, dec != decisionErr
}
