package session

// Snapshot は UI に渡す読み取り専用のセッション表現です。
type Snapshot struct {
	Phase              Phase  `json:"phase"`
	BeforePreview      string `json:"beforePreview,omitempty"`
	ReferencePreview   string `json:"referencePreview,omitempty"`
	Instruction        string `json:"instruction"`
	DefaultInstruction string `json:"defaultInstruction"`
	InstructionLimit   int    `json:"instructionLimit"`
	ResultURL          string `json:"resultUrl,omitempty"`
	ResultMediaType    string `json:"resultMediaType,omitempty"`
	Error              string `json:"error,omitempty"`
	ErrorKind          string `json:"errorKind,omitempty"`
	CanSubmit          bool   `json:"canSubmit"`
	HasCredential      bool   `json:"hasCredential"`
}

// Snapshot は現在の状態を写し取ります。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:              c.state.Phase(),
		BeforePreview:      c.before.PreviewURL(),
		ReferencePreview:   c.reference.PreviewURL(),
		Instruction:        c.instruction,
		DefaultInstruction: c.defaultInstruction,
		InstructionLimit:   c.maxInstructionLength,
		HasCredential:      c.credential != "",
	}

	switch s := c.state.(type) {
	case Succeeded:
		snap.ResultURL = s.Result.DataURL()
		snap.ResultMediaType = s.Result.MediaType
	case Failed:
		snap.Error = s.Err.Message
		snap.ErrorKind = s.Err.Kind.String()
	}

	switch c.state.(type) {
	case Ready, Failed:
		snap.CanSubmit = c.before != nil && c.reference != nil && c.inFlight == 0
	}
	return snap
}
