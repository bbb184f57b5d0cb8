// Copyright dSPACE GmbH. All rights reserved.

package cosim

import "fmt"

// Bus message size limits.
const (
	CanMessageMaxLength = 64
	EthMessageMaxLength = 9018
	LinMessageMaxLength = 8
	FrMessageMaxLength  = 254
	EthAddressLength    = 6
)

// CanMessageFlags are bit flags carried on a CAN message container.
type CanMessageFlags uint32

const (
	CanMessageFlagLoopback               CanMessageFlags = 1 << 0
	CanMessageFlagError                  CanMessageFlags = 1 << 1
	CanMessageFlagDrop                   CanMessageFlags = 1 << 2
	CanMessageFlagExtendedId             CanMessageFlags = 1 << 3
	CanMessageFlagBitRateSwitch          CanMessageFlags = 1 << 4
	CanMessageFlagFlexibleDataRateFormat CanMessageFlags = 1 << 5
)

func (f CanMessageFlags) Has(flag CanMessageFlags) bool { return f&flag == flag }

// CheckFlags validates flag bit consistency for a CAN message. The one
// real inconsistency the wire format guards against is BitRateSwitch
// without FlexibleDataRateFormat, which classic CAN controllers cannot
// produce.
func (f CanMessageFlags) CheckFlags() error {
	if f.Has(CanMessageFlagBitRateSwitch) && !f.Has(CanMessageFlagFlexibleDataRateFormat) {
		return fmt.Errorf("%w: BitRateSwitch requires FlexibleDataRateFormat", ErrInvalidArgument)
	}
	return nil
}

// CanController describes one configured CAN bus endpoint.
type CanController struct {
	Id                           BusControllerId
	QueueSize                    uint32
	BitsPerSecond                uint64
	FlexibleDataRateBitsPerSecond uint64
	Name                         string
	ChannelName                  string
	ClusterName                  string
}

// CanMessage is the trivially-copyable record exchanged across boundaries:
// it may live in shared memory and be passed by value.
type CanMessage struct {
	Timestamp    SimulationTime
	ControllerId BusControllerId
	Id           BusMessageId
	Flags        CanMessageFlags
	Length       uint32
	Data         [CanMessageMaxLength]byte
}

// View returns the valid payload slice of the message.
func (m *CanMessage) View() []byte { return m.Data[:m.Length] }

func (m CanMessage) String() string {
	return fmt.Sprintf("CanMessage{ctrl=%d id=%d len=%d flags=%d}", uint32(m.ControllerId), uint32(m.Id), m.Length, m.Flags)
}

// EthMessageFlags are bit flags carried on an Ethernet message container.
type EthMessageFlags uint32

const (
	EthMessageFlagLoopback EthMessageFlags = 1 << 0
	EthMessageFlagError    EthMessageFlags = 1 << 1
	EthMessageFlagDrop     EthMessageFlags = 1 << 2
)

// EthController describes one configured Ethernet bus endpoint.
type EthController struct {
	Id            BusControllerId
	QueueSize     uint32
	BitsPerSecond uint64
	MacAddress    [EthAddressLength]byte
	Name          string
	ChannelName   string
	ClusterName   string
}

// EthMessage is the trivially-copyable Ethernet frame record.
type EthMessage struct {
	Timestamp    SimulationTime
	ControllerId BusControllerId
	Flags        EthMessageFlags
	Length       uint32
	Data         [EthMessageMaxLength]byte
}

func (m *EthMessage) View() []byte { return m.Data[:m.Length] }

// LinControllerType distinguishes a LIN commander from a responder.
type LinControllerType uint32

const (
	LinControllerTypeResponder LinControllerType = iota + 1
	LinControllerTypeCommander
)

// LinMessageFlags are bit flags carried on a LIN message container.
type LinMessageFlags uint32

const (
	LinMessageFlagLoopback       LinMessageFlags = 1 << 0
	LinMessageFlagError          LinMessageFlags = 1 << 1
	LinMessageFlagDrop           LinMessageFlags = 1 << 2
	LinMessageFlagHeader         LinMessageFlags = 1 << 3
	LinMessageFlagResponse       LinMessageFlags = 1 << 4
	LinMessageFlagWakeEvent      LinMessageFlags = 1 << 5
	LinMessageFlagSleepEvent     LinMessageFlags = 1 << 6
	LinMessageFlagEnhancedChecksum LinMessageFlags = 1 << 7
	LinMessageFlagTransferOnce   LinMessageFlags = 1 << 8
	LinMessageFlagParityFailure  LinMessageFlags = 1 << 9
	LinMessageFlagCollision      LinMessageFlags = 1 << 10
	LinMessageFlagNoResponse     LinMessageFlags = 1 << 11
)

// LinController describes one configured LIN bus endpoint.
type LinController struct {
	Id            BusControllerId
	QueueSize     uint32
	BitsPerSecond uint64
	Type          LinControllerType
	Name          string
	ChannelName   string
	ClusterName   string
}

// LinMessage is the trivially-copyable LIN frame record.
type LinMessage struct {
	Timestamp    SimulationTime
	ControllerId BusControllerId
	Id           BusMessageId
	Flags        LinMessageFlags
	Length       uint32
	Data         [LinMessageMaxLength]byte
}

func (m *LinMessage) View() []byte { return m.Data[:m.Length] }

// FrController describes one configured FlexRay bus endpoint. FlexRay is
// only present on the wire for sessions negotiated at ProtocolVersion2 or
// higher.
type FrController struct {
	Id            BusControllerId
	QueueSize     uint32
	BitsPerSecond uint64
	Name          string
	ChannelName   string
	ClusterName   string
}

// FrMessage is the trivially-copyable FlexRay frame record.
type FrMessage struct {
	Timestamp    SimulationTime
	ControllerId BusControllerId
	Id           BusMessageId
	Length       uint32
	Data         [FrMessageMaxLength]byte
}

func (m *FrMessage) View() []byte { return m.Data[:m.Length] }
