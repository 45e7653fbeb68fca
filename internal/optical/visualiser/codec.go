package visualiser

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/irtrack/internal/optical/l4pose"
	"github.com/banshee-data/irtrack/internal/optical/pipeline"
)

// FrameSummary is the decoded form of one streamed frame.
type FrameSummary struct {
	Index         uint64
	Timestamp     time.Time
	SessionID     string
	Phase         l4pose.Phase
	Verdict       string
	Valid         bool
	Disabled      bool
	RecoveredSlot string
	Center        r3.Vec
	Orientation   quat.Number
	Markers       map[string]r3.Vec // keyed by slot name
}

func vecValue(v r3.Vec) []interface{} {
	return []interface{}{v.X, v.Y, v.Z}
}

// EncodeFrame converts a detector result to its wire message.
func EncodeFrame(fr *pipeline.FrameResult) (*structpb.Struct, error) {
	det := fr.Pose.Detection
	q := det.Orientation

	markers := make(map[string]interface{}, len(l4pose.Slots))
	for _, s := range l4pose.Slots {
		markers[s.String()] = vecValue(det.Position(s))
	}
	ts := ""
	if !fr.Timestamp.IsZero() {
		ts = fr.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	m := map[string]interface{}{
		"frame_index": fr.Index,
		"timestamp":   ts,
		"session_id":  fr.Pose.SessionID,
		"phase":       string(fr.Pose.Phase),
		"verdict":     string(fr.Pose.Verdict),
		"valid":       det.Valid,
		"disabled":    fr.Disabled,
		"center":      vecValue(det.Center),
		"orientation": []interface{}{q.Real, q.Imag, q.Jmag, q.Kmag},
		"markers":     markers,
	}
	if fr.Pose.Recovered {
		m["recovered_slot"] = fr.Pose.RecoveredSlot.String()
	}
	return structpb.NewStruct(m)
}

// DecodeFrame parses a wire message produced by EncodeFrame.
func DecodeFrame(s *structpb.Struct) (FrameSummary, error) {
	var out FrameSummary
	f := s.GetFields()

	out.Index = uint64(f["frame_index"].GetNumberValue())
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return out, fmt.Errorf("timestamp: %w", err)
		}
		out.Timestamp = t
	}
	out.SessionID = f["session_id"].GetStringValue()
	out.Phase = l4pose.Phase(f["phase"].GetStringValue())
	out.Verdict = f["verdict"].GetStringValue()
	out.Valid = f["valid"].GetBoolValue()
	out.Disabled = f["disabled"].GetBoolValue()
	out.RecoveredSlot = f["recovered_slot"].GetStringValue()

	var err error
	if out.Center, err = decodeVec(f["center"]); err != nil {
		return out, fmt.Errorf("center: %w", err)
	}
	orient := f["orientation"].GetListValue().GetValues()
	if len(orient) != 4 {
		return out, fmt.Errorf("orientation: want 4 components, got %d", len(orient))
	}
	out.Orientation = quat.Number{
		Real: orient[0].GetNumberValue(),
		Imag: orient[1].GetNumberValue(),
		Jmag: orient[2].GetNumberValue(),
		Kmag: orient[3].GetNumberValue(),
	}

	out.Markers = make(map[string]r3.Vec, len(l4pose.Slots))
	for name, v := range f["markers"].GetStructValue().GetFields() {
		if out.Markers[name], err = decodeVec(v); err != nil {
			return out, fmt.Errorf("marker %s: %w", name, err)
		}
	}
	return out, nil
}

func decodeVec(v *structpb.Value) (r3.Vec, error) {
	vals := v.GetListValue().GetValues()
	if len(vals) != 3 {
		return r3.Vec{}, fmt.Errorf("want 3 components, got %d", len(vals))
	}
	return r3.Vec{X: vals[0].GetNumberValue(), Y: vals[1].GetNumberValue(), Z: vals[2].GetNumberValue()}, nil
}
