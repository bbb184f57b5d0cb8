// Copyright dSPACE GmbH. All rights reserved.

package portmapper

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceName is the mDNS service type advertised for co-simulation
// servers, resolved the same way the registry's GetPort would resolve a
// plain name→port registration.
const ServiceName = "_veos-cosim._tcp"

// MdnsRegistration holds a live mDNS advertisement; Shutdown withdraws it.
type MdnsRegistration struct {
	server *zeroconf.Server
}

// RegisterMdns advertises serverName as reachable at port over mDNS, as a
// local-network alternative to registering with a central port-mapper
// process.
func RegisterMdns(serverName string, port int) (*MdnsRegistration, error) {
	server, err := zeroconf.Register(serverName, ServiceName, "local.", port, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("portmapper: mdns register %q: %w", serverName, err)
	}
	return &MdnsRegistration{server: server}, nil
}

// Shutdown withdraws the mDNS advertisement.
func (r *MdnsRegistration) Shutdown() {
	r.server.Shutdown()
}

// ResolveMdns looks up serverName over mDNS and returns its advertised
// port. It blocks until a matching entry arrives, ctx is done, or 5
// seconds have passed, whichever comes first.
func ResolveMdns(ctx context.Context, serverName string) (int, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return 0, fmt.Errorf("portmapper: mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 1)
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := resolver.Lookup(lookupCtx, serverName, ServiceName, "local.", entries); err != nil {
		return 0, fmt.Errorf("portmapper: mdns lookup %q: %w", serverName, err)
	}
	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return 0, fmt.Errorf("portmapper: mdns lookup %q: no entry found", serverName)
		}
		return entry.Port, nil
	case <-lookupCtx.Done():
		return 0, fmt.Errorf("portmapper: mdns lookup %q: %w", serverName, lookupCtx.Err())
	}
}
