package harbor

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/cos"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/msg"
)

// indexSlave returns the slot for slaveid, or nil for an out-of-range
// or reserved id (spec.md's open question: slave id 0 is both "unused
// slot" and a rejected id; preserved here exactly as mod_harbor.c's
// _index_slave leaves it).
func (h *Harbor) indexSlave(slaveid int) *slave {
	if slaveid > 0 && slaveid < NodeMax {
		return &h.slaves[slaveid]
	}
	return nil
}

func (h *Harbor) findBySock(sock int32) *slave {
	if id, ok := h.bysock[sock]; ok {
		return &h.slaves[id]
	}
	return nil
}

// command parses a TEXT control message directed at the harbor
// (spec.md §6 "Control messages"). Only "S" (attach) is defined;
// anything else is logged and rejected, matching mod_harbor.c's
// _command default case.
func (h *Harbor) command(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return fmt.Errorf("harbor: empty command")
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "S":
		return h.attach(fields[1:])
	default:
		nlog.Errorf("harbor: invalid command %q", line)
		return fmt.Errorf("harbor: invalid command %q", line)
	}
}

// attach implements "S <sock> <slaveid> <addr> <bufp> <bufsz>": binds
// an already-reactor-registered socket id to a slave id. addr is
// accepted but unused (spec.md §9 open question, carried verbatim).
// bufp/bufsz, when both non-zero, are hex-encoded bytes already read
// for this connection before the attach command arrived; they are fed
// straight into the slave's reassembler (mod_harbor.c's sb_push before
// the first _handle_package call).
func (h *Harbor) attach(args []string) error {
	if len(args) < 5 {
		return fmt.Errorf("harbor: S command: need 5 fields, got %d", len(args))
	}
	sock, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("harbor: S command: bad sock %q", args[0])
	}
	slaveid, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("harbor: S command: bad slaveid %q", args[1])
	}
	// args[2] is addr: unused.
	bufp := args[3]
	bufsz, _ := strconv.Atoi(args[4])

	s := h.indexSlave(slaveid)
	if s == nil {
		err := cos.NewErrNotFound("harbor: slave id %d", slaveid)
		nlog.Errorf("%v", err)
		return err
	}
	if s.id != 0 {
		// Two attach attempts raced for the same slave id; the loser is
		// the one whose "S" command we're processing now. Tag the
		// rejection with a short tie-break id so an operator correlating
		// two near-simultaneous connect attempts can tell them apart in
		// the log.
		nlog.Errorf("harbor: slave %02x already exists, rejecting attach [%s]", slaveid, cos.GenSlaveTie())
		h.react.Close(int32(sock))
		return nil
	}

	s.id = uint8(slaveid)
	s.sock = int32(sock)
	s.rb = reassembler{}
	h.bysock[int32(sock)] = uint8(slaveid)

	if bufp != "0" && bufsz > 0 {
		if pre, err := hex.DecodeString(bufp); err == nil {
			s.rb.push(pre[:min(len(pre), bufsz)])
			h.drainSlave(s)
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// dosock handles one SOCKET event the reactor raised for this harbor
// (mod_harbor.c's _dosock).
func (h *Harbor) dosock(ev msg.SocketEvent) error {
	switch ev.Kind {
	case msg.EvData:
		return h.sockRead(ev.Sock, ev.Data)
	case msg.EvSockErr:
		return h.sockError(ev.Sock, ev.Err)
	default:
		nlog.Errorf("harbor: invalid socket event kind %d", ev.Kind)
		return fmt.Errorf("harbor: invalid socket event kind %d", ev.Kind)
	}
}

func (h *Harbor) sockRead(sock int32, data []byte) error {
	s := h.findBySock(sock)
	if s == nil {
		return fmt.Errorf("harbor: data from unknown sock=%d", sock)
	}
	s.rb.push(data)
	h.drainSlave(s)
	return nil
}

// drainSlave extracts every complete frame currently buffered for s and
// dispatches each as a local message; a malformed frame tears the slave
// down (spec.md §6 "Frames with total ≤ 8 are rejected").
func (h *Harbor) drainSlave(s *slave) {
	frames, err := s.rb.pop()
	for _, f := range frames {
		h.disp.Push(msg.Message{
			Source:  f.sourceHandle(),
			Dest:    f.destHandle(h.node),
			Session: f.session,
			Type:    f.typ,
			Payload: f.payload,
		})
		if h.counters != nil {
			h.counters.IncFramesIn()
		}
	}
	if err != nil {
		h.teardown(s, "package head too small")
	}
}

// sockError is raised by the reactor when a slave connection breaks.
func (h *Harbor) sockError(sock int32, cause error) error {
	s := h.findBySock(sock)
	if s == nil {
		nlog.Infof("harbor: unknown slave socket=%d error: %v", sock, cause)
		return nil
	}
	h.teardown(s, fmt.Sprintf("%v", cause))
	return nil
}

// teardown clears s's slot and notifies the configured supervisor with
// "D <slaveid>" (mod_harbor.c's _sock_error).
func (h *Harbor) teardown(s *slave, reason string) {
	id := s.id
	nlog.Infof("harbor: slave %02x exit: %s", id, reason)
	h.errs.Add(fmt.Errorf("slave %02x: %s", id, reason))
	if h.counters != nil {
		h.counters.IncSlaveTornDown()
	}
	delete(h.bysock, s.sock)
	s.id = 0
	s.sock = 0
	s.rb = reassembler{}

	h.disp.Push(msg.Message{
		Source:  h.self,
		Dest:    h.supervisor,
		Session: h.nextSession(),
		Type:    msg.TEXT,
		Payload: []byte(fmt.Sprintf("D %d", id)),
	})
}

// toRemote implements the outbound path: a local REMOTE envelope is
// encoded into a wire frame and handed to the reactor's write queue for
// the slave owning rmt.Dest's node (mod_harbor.c's _toremote).
func (h *Harbor) toRemote(source addr.Handle, rmt msg.Remote, session int32) error {
	slaveid := rmt.Dest.NodeID()
	s := h.indexSlave(int(slaveid))
	if s == nil || s.id == 0 {
		err := cos.NewErrNotFound("harbor: slave %02x", slaveid)
		nlog.Errorf("%v", err)
		return err
	}
	buf := encodeFrameExtra(h.node, source, rmt.Dest, rmt.Type, session, rmt.Body, h.compress)
	if err := h.react.Send(s.sock, buf); err != nil {
		return fmt.Errorf("harbor: send to slave %02x: %w", slaveid, err)
	}
	if h.counters != nil {
		h.counters.IncFramesOut()
	}
	return nil
}
