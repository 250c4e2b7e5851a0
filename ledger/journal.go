package ledger

import (
	"encoding/json"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// Record is a committed event with its position in the ledger's event log.
type Record struct {
	Seq   uint64           `json:"seq"`
	Name  string           `json:"name"`
	Event interfaces.Event `json:"data"`
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Seq  uint64          `json:"seq"`
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	event, err := interfaces.DecodeEvent(raw.Name, raw.Data)
	if err != nil {
		return err
	}
	*r = Record{Seq: raw.Seq, Name: raw.Name, Event: event}
	return nil
}

// journal buffers the events of the operation in flight. Components emit
// into it; the ledger commits or discards the buffer when the operation ends.
type journal struct {
	pending []interfaces.Event
}

func (j *journal) Emit(e interfaces.Event) { j.pending = append(j.pending, e) }

func (j *journal) take() []interfaces.Event {
	out := j.pending
	j.pending = nil
	return out
}

// eventLog keeps the most recent committed records.
type eventLog struct {
	size    int
	records []Record
	seq     uint64
}

func (l *eventLog) append(events []interfaces.Event) []Record {
	out := make([]Record, 0, len(events))
	for _, e := range events {
		l.seq++
		out = append(out, Record{Seq: l.seq, Name: e.EventName(), Event: e})
	}
	l.records = append(l.records, out...)
	if over := len(l.records) - l.size; over > 0 {
		l.records = append([]Record(nil), l.records[over:]...)
	}
	return out
}

// since returns up to limit records with a sequence number above seq.
func (l *eventLog) since(seq uint64, limit int) []Record {
	var out []Record
	for _, r := range l.records {
		if r.Seq <= seq {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
