package discovery

import (
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// Direct publishes a single static DatabaseInfo built from a fixed host
// list once, at construction, and never re-publishes: it does not track
// topology changes.
type Direct struct {
	publisher
}

// NewDirect constructs a Direct discovery for a single backend host.
func NewDirect(eng *engine.Engine, host sdltypes.HostAndPort, namespace string) *Direct {
	d := &Direct{publisher: newPublisher(eng)}
	d.publish(sdltypes.DatabaseInfo{
		Type:      sdltypes.TopologySingle,
		Discovery: sdltypes.DiscoveryDirect,
		Hosts:     []sdltypes.HostAndPort{host},
		Namespace: namespace,
	})
	return d
}

// Cluster publishes a single static DatabaseInfo describing every shard
// host of a cluster topology once, at construction.
type Cluster struct {
	publisher
}

// NewCluster constructs a Cluster discovery over the full shard host
// list.
func NewCluster(eng *engine.Engine, hosts []sdltypes.HostAndPort, namespace string) *Cluster {
	c := &Cluster{publisher: newPublisher(eng)}
	c.publish(sdltypes.DatabaseInfo{
		Type:      sdltypes.TopologyCluster,
		Discovery: sdltypes.DiscoveryDirect,
		Hosts:     append([]sdltypes.HostAndPort(nil), hosts...),
		Namespace: namespace,
	})
	return c
}

var (
	_ Discovery = (*Direct)(nil)
	_ Discovery = (*Cluster)(nil)
)
