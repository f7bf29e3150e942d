package pipeline

// Built-in node names. The registry is keyed by these strings exactly as they
// appear in the instruction document.
const (
	NodeStart         = "Start"
	NodeEnd           = "End"
	NodeSetVariable   = "SetVariable"
	NodeCopyVariable  = "CopyVariable"
	NodePrintVariable = "PrintVariable"
	NodeReadFile      = "ReadFile"
	NodeSaveFile      = "SaveFile"
	NodeLoadEnv       = "LoadEnv"
	NodeChatCall      = "ChatCall"
	NodeGPTChat       = "GPTChat" // alias of ChatCall
)

// Instruction is one {node, params} step of a pipeline.
type Instruction struct {
	Node   string         `yaml:"node" json:"node"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Pipeline is an ordered, linear list of instructions.
type Pipeline struct {
	Name  string        `yaml:"name,omitempty" json:"name,omitempty"`
	Steps []Instruction `yaml:"steps" json:"steps"`
}

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.Steps) }

// NodeNames returns the node name of every step, in order.
func (p *Pipeline) NodeNames() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Node
	}
	return out
}
