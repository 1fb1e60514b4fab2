package discovery

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/nearrt-ric/sdl-go/dispatcher"
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/sdllog"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// sentinelState is one of the four states the Sentinel state machine
// cycles through for the life of the discovery object.
type sentinelState int

const (
	stateInit sentinelState = iota
	stateSubscribing
	stateSubscribedInquiring
	stateReady
)

// Default backoff windows for the two retry timers, each enforced via
// a single-bucket catrate.Limiter rather than a bare fixed-delay timer,
// so repeated failures in the same window collapse onto one retry
// instead of hammering the sentinel.
const (
	DefaultSubscribeRetryInterval     = 2 * time.Second
	DefaultMasterInquiryRetryInterval = 1 * time.Second
)

var switchMasterChannel = []byte("+switch-master")

// Sentinel implements Discovery by subscribing to a redis sentinel's
// +switch-master channel and asking it for the current master address
// once subscribed, again after every +switch-master push, and on each
// failed-inquiry retry, publishing a DatabaseInfo each time the master
// changes.
type Sentinel struct {
	publisher

	log        sdllog.Logger
	masterName string
	namespace  string

	subscriber dispatcher.Dispatcher
	requester  dispatcher.Dispatcher

	subscribeLimiter *catrate.Limiter
	inquiryLimiter   *catrate.Limiter
	subscribeTimer   *engine.Timer
	inquiryTimer     *engine.Timer

	mu    sync.Mutex
	state sentinelState
	// acked tracks whether the next subscriber callback invocation is
	// the subscribe acknowledgement or a later push/disconnect event.
	acked bool
	// generation increments every time a subscriber disconnect returns
	// the state machine to SUBSCRIBING. A master-inquiry reply carries
	// the generation current when it was issued; replies tagged with a
	// generation older than the current one are dropped, so a reply
	// that arrives after a disconnect can never be published as if it
	// reflected the live connection.
	generation uint64
}

// NewSentinel constructs a Sentinel discovery and immediately issues
// the initial subscribe command, entering SUBSCRIBING.
func NewSentinel(eng *engine.Engine, subscriber, requester dispatcher.Dispatcher, masterName, namespace string, opts ...Option) *Sentinel {
	cfg := resolveOptions(opts)
	s := &Sentinel{
		publisher:        newPublisher(eng),
		log:              sdllog.OrDisabled(cfg.logger),
		masterName:       masterName,
		namespace:        namespace,
		subscriber:       subscriber,
		requester:        requester,
		subscribeLimiter: catrate.NewLimiter(map[time.Duration]int{DefaultSubscribeRetryInterval: 1}),
		inquiryLimiter:   catrate.NewLimiter(map[time.Duration]int{DefaultMasterInquiryRetryInterval: 1}),
		subscribeTimer:   eng.NewTimer(),
		inquiryTimer:     eng.NewTimer(),
		state:            stateInit,
	}
	s.startSubscribing()
	return s
}

func subscribeCommand() dispatcher.Command {
	return dispatcher.Command{Args: []dispatcher.Args{
		[]byte("SUBSCRIBE"), switchMasterChannel,
	}}
}

func masterInquiryCommand(masterName string) dispatcher.Command {
	return dispatcher.Command{Args: []dispatcher.Args{
		[]byte("SENTINEL"), []byte("get-master-addr-by-name"), []byte(masterName),
	}}
}

func (s *Sentinel) startSubscribing() {
	s.mu.Lock()
	s.state = stateSubscribing
	s.acked = false
	s.mu.Unlock()

	s.subscriber.Submit(subscribeCommand(), s.onSubscriberEvent)
}

// onSubscriberEvent handles both the one-time subscribe acknowledgement
// and every later push/disconnect delivered over the same subscription,
// matching a persistent-command dispatcher mode.
func (s *Sentinel) onSubscriberEvent(reply dispatcher.Reply) {
	s.mu.Lock()
	first := !s.acked
	s.acked = true
	s.mu.Unlock()

	if first {
		if reply.Err != nil {
			s.log.Err().Err(reply.Err).Log("discovery: sentinel subscribe failed")
			s.retrySubscribe()
			return
		}
		s.startInquiring()
		return
	}

	if reply.Err != nil {
		s.log.Err().Err(reply.Err).Log("discovery: sentinel subscriber disconnected")
		s.mu.Lock()
		s.generation++
		s.mu.Unlock()
		s.startSubscribing()
		return
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == stateReady {
		s.startInquiring()
	}
}

func (s *Sentinel) retrySubscribe() {
	next, ok := s.subscribeLimiter.Allow(s.masterName)
	if ok {
		s.startSubscribing()
		return
	}
	s.eng.ArmTimer(s.subscribeTimer, time.Until(next), s.startSubscribing)
}

func (s *Sentinel) startInquiring() {
	s.mu.Lock()
	s.state = stateSubscribedInquiring
	gen := s.generation
	s.mu.Unlock()

	s.requester.Submit(masterInquiryCommand(s.masterName), func(reply dispatcher.Reply) {
		s.onMasterInquiryReply(gen, reply)
	})
}

// onMasterInquiryReply handles a SENTINEL get-master-addr-by-name
// reply tagged with the generation current when it was issued. A
// reply whose generation has since been superseded by a subscriber
// disconnect is dropped: the connection state it was answering no
// longer exists, so publishing it could resurrect a stale master.
func (s *Sentinel) onMasterInquiryReply(gen uint64, reply dispatcher.Reply) {
	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		s.log.Info().Uint64("generation", gen).Log("discovery: dropping stale sentinel master inquiry reply")
		return
	}

	if reply.Err == nil {
		if host, ok := parseMasterAddress(reply.Values); ok {
			s.mu.Lock()
			s.state = stateReady
			s.mu.Unlock()

			s.publish(sdltypes.DatabaseInfo{
				Type:      sdltypes.TopologyRedundant,
				Discovery: sdltypes.DiscoverySentinel,
				Hosts:     []sdltypes.HostAndPort{host},
				Namespace: s.namespace,
			})
			return
		}
		reply.Err = fmt.Errorf("discovery: malformed SENTINEL get-master-addr-by-name reply")
	}

	s.log.Err().Err(reply.Err).Log("discovery: sentinel master inquiry failed")
	s.retryInquiry()
}

func (s *Sentinel) retryInquiry() {
	next, ok := s.inquiryLimiter.Allow(s.masterName)
	if ok {
		s.startInquiring()
		return
	}
	s.eng.ArmTimer(s.inquiryTimer, time.Until(next), s.startInquiring)
}

// parseMasterAddress decodes a SENTINEL get-master-addr-by-name reply:
// a two-element array of (host, port).
func parseMasterAddress(values [][]byte) (sdltypes.HostAndPort, bool) {
	if len(values) != 2 {
		return sdltypes.HostAndPort{}, false
	}
	port, err := strconv.ParseUint(string(values[1]), 10, 16)
	if err != nil {
		return sdltypes.HostAndPort{}, false
	}
	return sdltypes.HostAndPort{Host: string(values[0]), Port: uint16(port)}, true
}

var _ Discovery = (*Sentinel)(nil)
