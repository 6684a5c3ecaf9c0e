package lifecycle

import (
	"fmt"

	"github.com/srg/mastgate/scanner"
)

// EventKind enumerates the triggers the policy reacts to
type EventKind int

const (
	// AdvertisementMatched carries the address of the matched peripheral
	AdvertisementMatched EventKind = iota
	// ScanEnded carries the reason the scan run finished
	ScanEnded
	// ConnectFinished carries the outcome of a connect attempt; Err is nil on success
	ConnectFinished
	// LinkDropped carries the cause of a lost link, if known
	LinkDropped
)

func (k EventKind) String() string {
	switch k {
	case AdvertisementMatched:
		return "AdvertisementMatched"
	case ScanEnded:
		return "ScanEnded"
	case ConnectFinished:
		return "ConnectFinished"
	case LinkDropped:
		return "LinkDropped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one trigger delivered to Policy.Handle
type Event struct {
	Kind    EventKind
	Address string
	Reason  scanner.EndReason
	Err     error

	// link is the generation of the link a LinkDropped refers to; zero means
	// whatever link is current
	link uint64
}
