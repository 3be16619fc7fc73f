package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/skewsched/coredriver/internal/coretypes"
	derrors "github.com/skewsched/coredriver/pkg/errors"
)

// GobTaskCodec is the default pluggable codec for LaunchTask's opaque task
// bytes. The driver measures its output against the frame-size budget; the
// executor backend decodes it back into a TaskDescription before handing the
// inner payload to the task executor.
type GobTaskCodec struct{}

// Encode serializes a full TaskDescription.
func (GobTaskCodec) Encode(desc coretypes.TaskDescription) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(desc); err != nil {
		return nil, derrors.Trace(err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func (GobTaskCodec) Decode(data []byte) (coretypes.TaskDescription, error) {
	var desc coretypes.TaskDescription
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&desc); err != nil {
		return coretypes.TaskDescription{}, derrors.Trace(err)
	}
	return desc, nil
}
