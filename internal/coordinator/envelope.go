package coordinator

import "encoding/json"

// marshalEnvelope flattens payload's own JSON fields alongside a top-level
// "type" key, producing {"type": typ, ...payload fields...} instead of a
// nested {"type":..., "payload":{...}} wrapper. Every message sent over a
// dashboard session — config push, world_state snapshot, control ack —
// takes this shape so the frontend can switch on "type" without unwrapping.
func marshalEnvelope(typ string, payload any) ([]byte, error) {
	var fields map[string]json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	typJSON, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	fields["type"] = typJSON
	return json.Marshal(fields)
}
