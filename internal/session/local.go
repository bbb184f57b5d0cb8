// Copyright dSPACE GmbH. All rights reserved.

package session

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/busbuffer"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/iobuffer"
	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
)

// localBase returns the shared-memory/pipe naming root for local-mode
// session state: localName if set, otherwise serverName.
func localBase(serverName, localName string) string {
	if localName != "" {
		return localName
	}
	return serverName
}

func openRegion(name string, size int) (*osabstraction.SharedMemoryRegion, error) {
	return osabstraction.CreateOrOpen(name, size)
}

func closeRegions(rs []*osabstraction.SharedMemoryRegion) {
	for _, r := range rs {
		_ = r.Close()
	}
}

// localIOBuffer creates or opens the named shared-memory region for one
// direction's signal catalog and places an iobuffer.Local over it.
// "<base>.<suffix>" follows the Incoming/Outgoing naming convention.
func localIOBuffer(base, suffix string, signals []cosim.IoSignal) (iobuffer.Buffer, *osabstraction.SharedMemoryRegion, error) {
	region, err := openRegion(fmt.Sprintf("%s.%s", base, suffix), iobuffer.RegionSize(signals))
	if err != nil {
		return nil, nil, err
	}
	buf, err := iobuffer.NewLocal(signals, region.Bytes())
	if err != nil {
		_ = region.Close()
		return nil, nil, err
	}
	return buf, region, nil
}

// localBusRegions creates or opens one named region per controller, named
// "<base>.<suffix>.<controllerId>".
func localBusRegions[M any](base, suffix string, controllers []busbuffer.ControllerInfo) (map[cosim.BusControllerId][]byte, []*osabstraction.SharedMemoryRegion, error) {
	regions := make(map[cosim.BusControllerId][]byte, len(controllers))
	opened := make([]*osabstraction.SharedMemoryRegion, 0, len(controllers))
	for _, c := range controllers {
		region, err := openRegion(fmt.Sprintf("%s.%s.%d", base, suffix, c.Id), busbuffer.LocalRegionSize[M](c.QueueSize))
		if err != nil {
			closeRegions(opened)
			return nil, nil, err
		}
		regions[c.Id] = region.Bytes()
		opened = append(opened, region)
	}
	return regions, opened, nil
}

// buildLocalBusPair wires one bus kind's transmit and receive directions
// over their own named region sets ("<base>.<kindLabel>.Transmit.<id>" and
// "<base>.<kindLabel>.Receive.<id>", named from the server's side). init
// must be true for the side that constructs its views first in real time;
// the session's Local mode always has the server fill that role, since
// Load runs to completion before any client can reach Connect. The side
// with init false transmits into the Receive regions and receives from the
// Transmit regions, so each ring joins one side's transmit buffer to the
// other side's receive buffer.
func buildLocalBusPair[M any](base, kindLabel string, desc busbuffer.Descriptor[M], controllers []busbuffer.ControllerInfo, init bool, warn busbuffer.WarnFunc) (busbuffer.TransmitBuffer[M], busbuffer.ReceiveBuffer[M], []*osabstraction.SharedMemoryRegion, error) {
	txSuffix, rxSuffix := ".Transmit", ".Receive"
	if !init {
		txSuffix, rxSuffix = rxSuffix, txSuffix
	}
	txRegions, opened, err := localBusRegions[M](base, kindLabel+txSuffix, controllers)
	if err != nil {
		return nil, nil, nil, err
	}
	tx, err := busbuffer.NewLocalTransmit(desc, controllers, txRegions, init, warn)
	if err != nil {
		closeRegions(opened)
		return nil, nil, nil, err
	}
	rxRegions, rxOpened, err := localBusRegions[M](base, kindLabel+rxSuffix, controllers)
	if err != nil {
		closeRegions(opened)
		return nil, nil, nil, err
	}
	opened = append(opened, rxOpened...)
	rx, err := busbuffer.NewLocalReceive(desc, controllers, rxRegions, init)
	if err != nil {
		closeRegions(opened)
		return nil, nil, nil, err
	}
	return tx, rx, opened, nil
}

// wireConn is the framed Writer/Reader pair the session speaks regardless
// of which channel backend produced it: the remote socket channel or the
// local shared-memory channel.
type wireConn struct {
	Writer *channel.Writer
	Reader *channel.Reader
	close  func() error
}

func (c *wireConn) Close() error { return c.close() }

func remoteConn(ch *channel.SocketChannel) *wireConn {
	return &wireConn{Writer: ch.Writer, Reader: ch.Reader, close: ch.Close}
}

func localConn(ch *channel.LocalChannel) *wireConn {
	return &wireConn{Writer: ch.Writer, Reader: ch.Reader, close: ch.Close}
}
