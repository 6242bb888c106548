package procmon

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/your-org/procwatch/internal/model"
)

// Wire layout of the proc connector channel. Offsets and sizes below must
// be kept in sync with linux/netlink.h, linux/connector.h and
// linux/cn_proc.h. Everything on this channel is in host byte order: both
// ends of the socket live on the same machine.

// Connector registration of the process-events subsystem (linux/connector.h).
const (
	cnIdxProc uint32 = 0x1
	cnValProc uint32 = 0x1
)

// proc_cn_mcast_op values (linux/cn_proc.h).
const (
	procCnMcastListen uint32 = 1
	procCnMcastIgnore uint32 = 2
)

// proc_event discriminants (linux/cn_proc.h). Only the four lifecycle
// events are modelled; uid/gid/sid/ptrace/comm changes decode to nil.
const (
	procEventNone     uint32 = 0x00000000
	procEventFork     uint32 = 0x00000001
	procEventExec     uint32 = 0x00000002
	procEventExit     uint32 = 0x80000000
	procEventCoredump uint32 = 0x40000000
)

const (
	nlHdrLen = unix.NLMSG_HDRLEN // struct nlmsghdr: len, type, flags, seq, pid

	// struct cn_msg: cb_id{idx,val}, seq, ack, len, flags.
	cnMsgLen  = 20
	cnIdxOff  = 0
	cnValOff  = 4
	cnLenOff  = 16
	cnDataOff = cnMsgLen

	// struct proc_event header: what, cpu, timestamp(u64). The union
	// payload starts right after it, with no alignment guarantee: the
	// preceding cn_msg is 20 bytes, so the u64 timestamp lands on a
	// 4-byte boundary only.
	procEvHdrLen = 16
)

// nlmsgAlign rounds a message length up to the netlink 4-byte boundary.
func nlmsgAlign(n int) int {
	return (n + unix.NLMSG_ALIGNTO - 1) &^ (unix.NLMSG_ALIGNTO - 1)
}

// rawFrame is one netlink message within a received datagram, header
// fields plus the payload that follows them.
type rawFrame struct {
	length  uint32
	typ     uint16
	seq     uint32
	destID  uint32
	payload []byte
}

// walkFrames splits the filled portion of a receive buffer into netlink
// frames, in wire order. The walk mirrors the kernel's NLMSG_OK /
// NLMSG_NEXT macros: each frame occupies its declared length rounded up
// to a 4-byte boundary, and the first truncated or malformed header ends
// the batch (partial frames are never returned). NLMSG_ERROR and
// NLMSG_NOOP frames are control noise: they are dropped here but still
// consume their padded span.
func walkFrames(buf []byte) []rawFrame {
	var frames []rawFrame
	for len(buf) >= nlHdrLen {
		msgLen := int(binary.NativeEndian.Uint32(buf[0:4]))
		if msgLen < nlHdrLen || msgLen > len(buf) {
			break
		}
		typ := binary.NativeEndian.Uint16(buf[4:6])
		if typ != unix.NLMSG_ERROR && typ != unix.NLMSG_NOOP {
			frames = append(frames, rawFrame{
				length:  uint32(msgLen),
				typ:     typ,
				seq:     binary.NativeEndian.Uint32(buf[8:12]),
				destID:  binary.NativeEndian.Uint32(buf[12:16]),
				payload: buf[nlHdrLen:msgLen],
			})
		}
		skip := nlmsgAlign(msgLen)
		if skip > len(buf) {
			break
		}
		buf = buf[skip:]
	}
	return frames
}

// decodeEvent interprets a frame payload as a connector envelope carrying
// one proc_event record. Frames addressed to another connector subsystem
// and discriminants this package does not model decode to nil; the caller
// keeps scanning. All multi-byte reads go through an explicit byte-offset
// cursor, so the unaligned payload start is harmless.
func decodeEvent(p []byte) model.Event {
	if len(p) < cnDataOff+procEvHdrLen {
		return nil
	}
	if binary.NativeEndian.Uint32(p[cnIdxOff:]) != cnIdxProc ||
		binary.NativeEndian.Uint32(p[cnValOff:]) != cnValProc {
		return nil
	}
	ev := p[cnDataOff:]
	what := binary.NativeEndian.Uint32(ev[0:4])
	data := ev[procEvHdrLen:]

	switch what {
	case procEventFork:
		if len(data) < 16 {
			return nil
		}
		return model.Fork{
			ParentPid:  i32(data, 0),
			ParentTgid: i32(data, 4),
			ChildPid:   i32(data, 8),
			ChildTgid:  i32(data, 12),
		}
	case procEventExec:
		if len(data) < 8 {
			return nil
		}
		return model.Exec{
			ProcessPid:  i32(data, 0),
			ProcessTgid: i32(data, 4),
		}
	case procEventExit:
		if len(data) < 24 {
			return nil
		}
		return model.Exit{
			ProcessPid:  i32(data, 0),
			ProcessTgid: i32(data, 4),
			ExitCode:    binary.NativeEndian.Uint32(data[8:]),
			ExitSignal:  binary.NativeEndian.Uint32(data[12:]),
			ParentPid:   i32(data, 16),
			ParentTgid:  i32(data, 20),
		}
	case procEventCoredump:
		if len(data) < 16 {
			return nil
		}
		return model.Coredump{
			ProcessPid:  i32(data, 0),
			ProcessTgid: i32(data, 4),
			ParentPid:   i32(data, 8),
			ParentTgid:  i32(data, 12),
		}
	default:
		return nil
	}
}

func i32(b []byte, off int) int32 {
	return int32(binary.NativeEndian.Uint32(b[off:]))
}
