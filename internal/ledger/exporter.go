package ledger

// Snapshot kinds exported by the engine. They match the mirror's key
// namespaces one to one.
const (
	KindSubject          = "subject"
	KindDispute          = "dispute"
	KindEscrow           = "escrow"
	KindJurorRecord      = "juror-record"
	KindChallengerRecord = "challenger-record"
	KindDefenderRecord   = "defender-record"
	KindPool             = "pool"
)

// Snapshot is one exported entity state. Seq is the ledger sequence the
// producing action was applied at; consumers use it for stale-write
// rejection. Data is the entity's JSON form.
type Snapshot struct {
	Kind string
	Key  []byte
	Seq  uint64
	Data []byte
}

// Exporter receives the snapshots of every entity an applied action
// touched. Calls arrive in apply order per subject. Exporters must not
// block on the engine; failures are theirs to log and retry.
type Exporter interface {
	Export(snaps []Snapshot)
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(snaps []Snapshot)

func (f ExporterFunc) Export(snaps []Snapshot) { f(snaps) }
