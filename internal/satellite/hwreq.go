package satellite

import "github.com/rtio-systems/subkernel/internal/mailbox"

// dispatchHWRequest services the fixed set of peripheral calls the
// satellite transparently answers while Running (§4.7). It reports
// false when msg is not a HWRequest, signalling the caller to continue
// normal dispatch.
//
// No real I2C/SPI bus is wired up behind this simulation: every
// request that isn't RTIO destination-status succeeds as a no-op
// against nothing, since the peripherals themselves are external
// hardware out of this module's scope (spec §1).
func (m *Manager) dispatchHWRequest(msg mailbox.Message) (bool, mailbox.Message) {
	req, ok := msg.(mailbox.HWRequest)
	if !ok {
		return false, nil
	}

	handled, reply := m.dispatchHWKind(req)
	if handled {
		m.recordHWRequest()
	}
	return handled, reply
}

func (m *Manager) dispatchHWKind(req mailbox.HWRequest) (bool, mailbox.Message) {
	switch req.Kind {
	case mailbox.HWRTIOInit:
		return true, mailbox.HWReply{Succeeded: true}

	case mailbox.HWRTIODestinationStatus:
		return true, mailbox.HWReply{Succeeded: true, Up: req.Destination == m.cfg.Rank}

	case mailbox.HWI2CStart, mailbox.HWI2CRestart, mailbox.HWI2CStop, mailbox.HWI2CWrite, mailbox.HWI2CSwitchSelect:
		return true, mailbox.HWReply{Succeeded: true, Ack: req.ExpectAck}

	case mailbox.HWI2CRead:
		return true, mailbox.HWReply{Succeeded: true, Data: 0}

	case mailbox.HWSPISetConfig, mailbox.HWSPIWrite:
		return true, mailbox.HWReply{Succeeded: true}

	case mailbox.HWSPIRead:
		return true, mailbox.HWReply{Succeeded: true, Data: 0}

	default:
		return false, nil
	}
}
