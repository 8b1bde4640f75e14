package a2a

/*
Artifact is the output of a task.
*/
type Artifact struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Index       int            `json:"index,omitempty"`
	Append      *bool          `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
}

func NewTextArtifact(name string, text string) Artifact {
	return Artifact{
		Name:  &name,
		Parts: []Part{NewTextPart(text)},
	}
}
