package procmon

import (
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/your-org/procwatch/internal/model"
)

// Monitor is one subscribed session on the kernel's process-events
// connector. It owns a netlink datagram socket and a FIFO of decoded
// events drained by Poll.
//
// A Monitor has exactly one logical owner: its socket and queue must not
// be touched from more than one goroutine without external serialization.
// Independent consumers should open independent Monitors with distinct
// subscriber ids, since the id is the kernel-visible address of the
// socket.
type Monitor struct {
	fd    int
	id    uint32
	log   *zap.Logger
	queue []model.Event
	buf   []byte
	recv  func([]byte) (int, error)
}

// Open subscribes to process events using the calling process's own pid
// as the subscriber id. Requires CAP_NET_ADMIN (or root) on most kernels.
func Open(logger *zap.Logger) (*Monitor, error) {
	return OpenWithID(uint32(os.Getpid()), logger)
}

// OpenWithID subscribes with an explicit subscriber id. The id must be
// unique among netlink sockets on this machine; the default of the
// caller's pid usually guarantees that. A nil logger is replaced with a
// no-op one.
//
// On any failure after socket creation the descriptor is closed before
// the error is returned; there is no partially constructed Monitor.
func OpenWithID(id uint32, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("create netlink connector socket: %w", err)
	}
	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    id,
		Groups: cnIdxProc,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind to proc connector group: %w", err)
	}
	m := &Monitor{
		fd:  fd,
		id:  id,
		log: logger,
		buf: make([]byte, recvBufSize()),
	}
	m.recv = m.recvDatagram
	if err := m.subscribe(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return m, nil
}

// ID returns the subscriber id the session is bound with.
func (m *Monitor) ID() uint32 { return m.id }

// subscribe sends the one-shot PROC_CN_MCAST_LISTEN control message.
//
// NETLINK_NO_ENOBUFS is set first: under heavy process churn the kernel's
// per-socket queue can overflow, and without the option every later
// receive fails with ENOBUFS. Suppressing it keeps the steady-state
// receive path free of that special case at the cost of dropping events
// during overflow. The channel is best effort either way.
func (m *Monitor) subscribe() error {
	if err := unix.SetsockoptInt(m.fd, unix.SOL_NETLINK, unix.NETLINK_NO_ENOBUFS, 1); err != nil {
		return fmt.Errorf("suppress ENOBUFS notifications: %w", err)
	}
	req := m.listenRequest()
	dst := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(m.fd, req, 0, dst); err != nil {
		return fmt.Errorf("send mcast listen request: %w", err)
	}
	m.log.Debug("subscribed to proc connector", zap.Uint32("subscriber_id", m.id))
	return nil
}

// listenRequest builds the control datagram: an nlmsghdr whose length
// covers the whole message, a cn_msg addressed to the proc connector
// whose payload is one operation code, and the LISTEN code itself. Sent
// as a single buffer so the three parts go out in one datagram.
func (m *Monitor) listenRequest() []byte {
	buf := make([]byte, nlHdrLen+cnMsgLen+4)
	binary.NativeEndian.PutUint32(buf[0:], uint32(len(buf)))
	binary.NativeEndian.PutUint16(buf[4:], uint16(unix.NLMSG_DONE))
	binary.NativeEndian.PutUint32(buf[12:], m.id)

	cn := buf[nlHdrLen:]
	binary.NativeEndian.PutUint32(cn[cnIdxOff:], cnIdxProc)
	binary.NativeEndian.PutUint32(cn[cnValOff:], cnValProc)
	binary.NativeEndian.PutUint16(cn[cnLenOff:], 4)

	binary.NativeEndian.PutUint32(cn[cnDataOff:], procCnMcastListen)
	return buf
}

// Poll returns the next decoded process event, or nil when none is
// available. When the queue is empty it performs exactly one blocking
// receive and decodes whatever batch arrives.
//
// Receive failures, zero-length reads and batches that decode to nothing
// all come back as plain nil. That collapse is the contract, not an
// accident: the channel is advisory (the session already asks the kernel
// to drop events on overflow), so callers loop on Poll instead of
// branching on error detail. A nil result never means the session is
// dead.
func (m *Monitor) Poll() model.Event {
	if len(m.queue) == 0 {
		if err := m.fill(); err != nil {
			m.log.Debug("receive failed", zap.Error(err))
			return nil
		}
	}
	if len(m.queue) == 0 {
		return nil
	}
	ev := m.queue[0]
	m.queue = m.queue[1:]
	return ev
}

// fill performs one blocking receive and appends every event decoded
// from the delivered batch to the queue, in wire order. A zero-length
// read is a valid empty batch.
func (m *Monitor) fill() error {
	n, err := m.recv(m.buf)
	if err != nil {
		return err
	}
	for _, fr := range walkFrames(m.buf[:n]) {
		if ev := decodeEvent(fr.payload); ev != nil {
			m.queue = append(m.queue, ev)
		}
	}
	return nil
}

func (m *Monitor) recvDatagram(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(m.fd, buf, 0)
	return n, err
}

// Close releases the socket. The first call closes the descriptor;
// later calls are no-ops. The Monitor must not be used afterwards.
func (m *Monitor) Close() error {
	if m.fd < 0 {
		return nil
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}

// recvBufSize bounds one receive at the smaller of the page size and
// 8 KiB. That comfortably fits any coalesced delivery the kernel sends
// in practice; anything larger is truncated by the receive itself.
func recvBufSize() int {
	if ps := os.Getpagesize(); ps < 8192 {
		return ps
	}
	return 8192
}
