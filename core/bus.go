package core

// BusOut carries the bridge's bus-side request signals for one local tick.
// Cyc and Stb are asserted together when a transaction is requested and
// cleared together once the responder acknowledges. Data is the write payload
// and is driven to zero for reads so the output is never left undefined.
type BusOut struct {
	Cyc  bool   // transaction active
	Stb  bool   // request active, same timing as Cyc
	We   bool   // direction: true = write
	Addr uint64 // address field, direction bit stripped, zero-extended
	Data uint64 // write payload, valid only while We is set
}

// BusIn carries the responder's answer. Ack must pulse within the deadline
// described in Bridge.Tick; Data must hold the read result in the same period
// Ack is asserted (and may keep holding it afterwards).
type BusIn struct {
	Ack  bool
	Data uint64
}

// Responder is the single bus peripheral attached to a bridge. It is ticked
// on the same local clock as the bridge and answers with the bus input
// signals the bridge will observe on the following tick.
type Responder interface {
	Tick(out BusOut) BusIn
}
