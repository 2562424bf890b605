package tftp

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/marmos91/tftpfs/internal/logger"
)

// Run drives the session to a terminal state and returns the finalized
// transfer metrics. The context is checked immediately before each
// receive and immediately after each decoded packet; on cancellation
// the peer is told with ERROR 0 "Cancelled".
//
// Run owns the session's streams: any source or sink implementing
// io.Closer is closed on every exit path.
func (s *Session) Run(ctx context.Context) (Metrics, error) {
	s.metrics.begin()
	defer s.closeStreams()

	s.startup()

	for !s.state.Terminal() {
		if s.cancelled(ctx) {
			break
		}

		data, from, err := s.endpoint.Receive(s.timeout)
		if err != nil {
			if IsTimeout(err) {
				s.onTimeout()
				continue
			}
			s.fail(localError(KindTransport, "endpoint receive failed", s.peerString(), err))
			break
		}

		if !s.acceptSource(from) {
			continue
		}

		pkt, err := Decode(data)
		if err != nil {
			logger.Debug("dropping malformed packet",
				logger.KeySessionID, s.id,
				logger.KeyPeer, from.String(),
				logger.KeyError, err.Error())
			s.reject(ErrCodeIllegalOperation, "malformed packet", KindDecode)
			break
		}
		s.metrics.packetReceived(0)
		s.callHook(pkt)

		if s.cancelled(ctx) {
			break
		}

		s.freezeTID(from)
		s.dispatch(pkt)
	}

	s.metrics.finalize()
	s.logOutcome()

	if s.state == StateErrored {
		if s.termErr == nil {
			s.termErr = localError(KindProtocol, "session errored", s.peerString(), nil)
		}
		return s.metrics, s.termErr
	}
	return s.metrics, nil
}

// startup issues the first action: clients send their request, servers
// consume the first datagram handed over by the dispatcher.
func (s *Session) startup() {
	if s.role.isClient() {
		s.sendRequest()
		return
	}
	s.handleFirstPacket()
}

// sendRequest encodes and transmits the RRQ or WRQ with the requested
// options, arming the retransmit state.
func (s *Session) sendRequest() {
	var pkt Packet
	if s.role == RoleClientDownload {
		pkt = ReadRequest{Filename: s.filename, Mode: ModeOctet, Options: s.requested}
		s.state = StateSentRRQ
	} else {
		pkt = WriteRequest{Filename: s.filename, Mode: ModeOctet, Options: s.requested}
		s.state = StateSentWRQ
	}

	logger.Debug("sending request",
		logger.KeySessionID, s.id,
		logger.KeyPeer, s.peerString(),
		logger.KeyOpcode, pkt.Opcode().String(),
		logger.KeyFilename, s.filename)

	s.send(pkt)
}

// handleFirstPacket decodes the dispatcher-delivered datagram and
// answers it. Anything other than a well-formed octet-mode RRQ or WRQ
// terminates the session with a wire error.
func (s *Session) handleFirstPacket() {
	pkt, err := Decode(s.firstPacket)
	if err != nil {
		s.reject(ErrCodeIllegalOperation, "malformed request", KindDecode)
		return
	}
	s.metrics.packetReceived(0)
	s.callHook(pkt)

	switch req := pkt.(type) {
	case ReadRequest:
		if s.role != RoleServerDownload {
			s.reject(ErrCodeIllegalOperation, "unexpected read request", KindProtocol)
			return
		}
		s.state = StateReceivedRRQ
		s.answerRead(req)
	case WriteRequest:
		if s.role != RoleServerUpload {
			s.reject(ErrCodeIllegalOperation, "unexpected write request", KindProtocol)
			return
		}
		s.state = StateReceivedWRQ
		s.answerWrite(req)
	default:
		s.reject(ErrCodeIllegalOperation, "first packet is not a request", KindProtocol)
	}
}

// answerRead opens the file and responds with an OACK or the first
// DATA block.
func (s *Session) answerRead(req ReadRequest) {
	if !strings.EqualFold(req.Mode, ModeOctet) {
		s.reject(ErrCodeIllegalOperation, "unsupported transfer mode "+strconv.Quote(req.Mode), KindProtocol)
		return
	}
	s.filename = req.Filename

	source, size, err := s.streams.OpenRead(req.Filename)
	if err != nil {
		s.rejectOpen(err, ErrCodeFileNotFound)
		return
	}
	s.source = source
	s.srcSize = size

	s.negotiated = NegotiateServer(req.Options, true, size, s.maxBlksize)
	s.blksize = s.negotiated.Blksize

	if len(s.negotiated.Echo) > 0 {
		s.lastBlockSent = 0
		s.state = StateExpectAck
		s.send(OptionAck{Options: s.negotiated.Echo})
		return
	}
	s.sendNextData(1)
}

// answerWrite opens the destination and responds with an OACK or
// ACK(0).
func (s *Session) answerWrite(req WriteRequest) {
	if !strings.EqualFold(req.Mode, ModeOctet) {
		s.reject(ErrCodeIllegalOperation, "unsupported transfer mode "+strconv.Quote(req.Mode), KindProtocol)
		return
	}
	s.filename = req.Filename

	sink, err := s.streams.OpenWrite(req.Filename)
	if err != nil {
		s.rejectOpen(err, ErrCodeAccessViolation)
		return
	}
	s.sink = sink

	s.negotiated = NegotiateServer(req.Options, false, -1, s.maxBlksize)
	s.blksize = s.negotiated.Blksize
	s.lastBlockAcked = 0
	s.state = StateExpectData

	if len(s.negotiated.Echo) > 0 {
		s.send(OptionAck{Options: s.negotiated.Echo})
		return
	}
	s.send(Ack{Block: 0})
}

// dispatch consumes one decoded packet in the current state. This is
// the single transition function of the state machine.
func (s *Session) dispatch(pkt Packet) {
	// An ERROR from the peer is terminal in every state and gets no
	// reply.
	if errPkt, ok := pkt.(Error); ok {
		s.fail(wireError(KindRemote, errPkt.Code, errPkt.Message, s.peerString()))
		return
	}

	switch s.state {
	case StateSentRRQ:
		s.onSentRRQ(pkt)
	case StateSentWRQ:
		s.onSentWRQ(pkt)
	case StateExpectData:
		s.onExpectData(pkt)
	case StateExpectAck:
		s.onExpectAck(pkt)
	default:
		s.reject(ErrCodeIllegalOperation, "packet in state "+s.state.String(), KindProtocol)
	}
}

// onSentRRQ handles the server's first reply to a read request: an
// OACK when options were accepted, DATA(1) when they were declined.
func (s *Session) onSentRRQ(pkt Packet) {
	switch p := pkt.(type) {
	case OptionAck:
		negotiated, err := ApplyOACK(p.Options, s.requested)
		if err != nil {
			s.failOACK(err)
			return
		}
		s.negotiated = negotiated
		s.blksize = negotiated.Blksize
		s.lastBlockAcked = 0
		s.state = StateExpectData
		s.send(Ack{Block: 0})

	case Data:
		// Server declined all options. Fall back to classic RFC 1350
		// and treat this as the first expected block.
		s.negotiated = Negotiated{Blksize: DefaultBlksize}
		s.blksize = DefaultBlksize
		s.lastBlockAcked = 0
		s.state = StateExpectData
		s.onExpectData(p)

	default:
		s.reject(ErrCodeIllegalOperation, "unexpected "+pkt.Opcode().String()+" awaiting read reply", KindProtocol)
	}
}

// onSentWRQ handles the server's first reply to a write request: an
// OACK when options were accepted, ACK(0) when they were declined.
func (s *Session) onSentWRQ(pkt Packet) {
	switch p := pkt.(type) {
	case OptionAck:
		negotiated, err := ApplyOACK(p.Options, s.requested)
		if err != nil {
			s.failOACK(err)
			return
		}
		s.negotiated = negotiated
		s.blksize = negotiated.Blksize
		s.sendNextData(1)

	case Ack:
		if p.Block != 0 {
			s.reject(ErrCodeIllegalOperation, "unexpected ACK block "+strconv.Itoa(int(p.Block)), KindProtocol)
			return
		}
		s.negotiated = Negotiated{Blksize: DefaultBlksize}
		s.blksize = DefaultBlksize
		s.sendNextData(1)

	default:
		s.reject(ErrCodeIllegalOperation, "unexpected "+pkt.Opcode().String()+" awaiting write reply", KindProtocol)
	}
}

// onExpectData handles DATA arrival on the downloading side.
func (s *Session) onExpectData(pkt Packet) {
	data, ok := pkt.(Data)
	if !ok {
		s.reject(ErrCodeIllegalOperation, "unexpected "+pkt.Opcode().String()+" awaiting DATA", KindProtocol)
		return
	}

	expected := s.lastBlockAcked + 1
	switch data.Block {
	case expected:
		if len(data.Payload) > s.blksize {
			s.reject(ErrCodeIllegalOperation,
				"DATA payload of "+strconv.Itoa(len(data.Payload))+" bytes exceeds negotiated block size", KindProtocol)
			return
		}
		if len(data.Payload) > 0 {
			if _, err := s.sink.Write(data.Payload); err != nil {
				s.reject(ErrCodeDiskFull, "write failed", KindFilesystem)
				return
			}
		}
		s.metrics.Bytes += int64(len(data.Payload))
		s.lastBlockAcked = data.Block
		s.lastPayloadLen = len(data.Payload)
		s.retriesLeft = s.retries

		if !s.send(Ack{Block: data.Block}) {
			return
		}
		if len(data.Payload) < s.blksize {
			s.state = StateFinished
		}

	case s.lastBlockAcked:
		// The peer missed our ACK and retransmitted. Re-ACK without
		// touching the retry budget.
		s.onDuplicate()

	default:
		s.reject(ErrCodeIllegalOperation,
			"DATA block "+strconv.Itoa(int(data.Block))+" out of sequence (expected "+strconv.Itoa(int(expected))+")",
			KindProtocol)
	}
}

// onExpectAck handles ACK arrival on the uploading side.
func (s *Session) onExpectAck(pkt Packet) {
	ack, ok := pkt.(Ack)
	if !ok {
		s.reject(ErrCodeIllegalOperation, "unexpected "+pkt.Opcode().String()+" awaiting ACK", KindProtocol)
		return
	}

	switch ack.Block {
	case s.lastBlockSent:
		s.retriesLeft = s.retries
		if s.sentData && s.lastPayloadLen < s.blksize {
			s.state = StateFinished
			return
		}
		s.sendNextData(s.lastBlockSent + 1)

	case s.lastBlockSent - 1:
		// Duplicate ACK for the previous block; the peer has not seen
		// our last DATA yet.
		s.onDuplicate()

	default:
		s.reject(ErrCodeIllegalOperation,
			"ACK block "+strconv.Itoa(int(ack.Block))+" out of sequence (expected "+strconv.Itoa(int(s.lastBlockSent))+")",
			KindProtocol)
	}
}

// sendNextData reads one block from the source and transmits it as
// DATA(block). Block numbers wrap to 0 past 65535.
func (s *Session) sendNextData(block uint16) {
	buf := make([]byte, s.blksize)
	n, _, err := readBlock(s.source, buf)
	if err != nil {
		s.reject(ErrCodeAccessViolation, "read failed", KindFilesystem)
		return
	}

	s.lastBlockSent = block
	s.lastPayloadLen = n
	s.sentData = true
	s.state = StateExpectAck
	s.send(Data{Block: block, Payload: buf[:n]})
}

// onDuplicate re-sends the last outbound packet in response to a
// duplicate from the peer. The retry budget is not decremented, but a
// peer looping on duplicates is eventually cut off.
func (s *Session) onDuplicate() {
	s.metrics.Duplicates++
	if s.metrics.Duplicates > MaxDuplicates {
		s.fail(localError(KindProtocol, "too many duplicate packets from peer", s.peerString(), nil))
		return
	}
	s.resendLast()
}

// onTimeout retransmits the last packet while budget remains; an
// exhausted budget terminates the session locally with no packet sent.
func (s *Session) onTimeout() {
	if s.state == StateStart || s.state.Terminal() {
		return
	}
	if s.retriesLeft > 0 {
		s.retriesLeft--
		s.metrics.Retransmits++
		logger.Debug("timeout, retransmitting",
			logger.KeySessionID, s.id,
			logger.KeyPeer, s.peerString(),
			logger.KeyRetries, s.retriesLeft)
		s.resendLast()
		return
	}
	s.fail(localError(KindTransport, "timeout waiting for peer (retries exhausted)", s.peerString(), nil))
}

// resendLast puts the stored last outbound packet back on the wire.
func (s *Session) resendLast() {
	if s.lastSent == nil {
		return
	}
	if err := s.endpoint.Send(s.lastSent, s.peer); err != nil {
		s.fail(localError(KindTransport, "endpoint send failed", s.peerString(), err))
		return
	}
	s.metrics.packetResent(rawPayloadLen(s.lastSent))
}

// acceptSource enforces the TID discipline for an inbound datagram.
// After TID freeze, a packet from the same IP but a different port is
// answered with ERROR 5 and ignored; a packet from a different IP is
// discarded silently.
func (s *Session) acceptSource(from *net.UDPAddr) bool {
	if !s.tidFrozen {
		// Before the TID is frozen only the IP can be checked; the
		// first reply is expected from the requested server, just on a
		// fresh ephemeral port.
		return s.peer == nil || from.IP.Equal(s.peer.IP)
	}
	if from.Port == s.peer.Port && from.IP.Equal(s.peer.IP) {
		return true
	}

	if from.IP.Equal(s.peer.IP) {
		logger.Debug("packet from unknown TID",
			logger.KeySessionID, s.id,
			logger.KeyPeer, from.String())
		stray := Encode(Error{Code: ErrCodeUnknownTID, Message: ErrorMessage(ErrCodeUnknownTID)})
		if err := s.endpoint.Send(stray, from); err != nil {
			logger.Debug("failed to answer unknown TID",
				logger.KeySessionID, s.id,
				logger.KeyError, err.Error())
		}
	}
	return false
}

// freezeTID pins the peer address on the first reply so that later
// packets from other ports can be rejected.
func (s *Session) freezeTID(from *net.UDPAddr) {
	if s.tidFrozen {
		return
	}
	s.peer = from
	s.tidFrozen = true
	logger.Debug("peer TID frozen",
		logger.KeySessionID, s.id,
		logger.KeyPeer, from.String())
}

// cancelled checks the caller's context and, when it is done, tells
// the peer and terminates.
func (s *Session) cancelled(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	if !s.state.Terminal() && s.state != StateStart {
		errPkt := Encode(Error{Code: ErrCodeNotDefined, Message: "Cancelled"})
		if err := s.endpoint.Send(errPkt, s.peer); err != nil {
			logger.Debug("failed to send cancel notice",
				logger.KeySessionID, s.id,
				logger.KeyError, err.Error())
		}
	}
	s.fail(localError(KindCancelled, "transfer cancelled", s.peerString(), ctx.Err()))
	return true
}

// send encodes and transmits pkt, retaining the encoded bytes for
// retransmission. Returns false when the endpoint failed and the
// session has terminated.
func (s *Session) send(pkt Packet) bool {
	encoded := Encode(pkt)
	s.lastSent = encoded
	if err := s.endpoint.Send(encoded, s.peer); err != nil {
		s.fail(localError(KindTransport, "endpoint send failed", s.peerString(), err))
		return false
	}
	s.metrics.packetSent(payloadLen(pkt))
	s.callHook(pkt)
	return true
}

// reject sends a wire ERROR to the peer and terminates the session.
func (s *Session) reject(code uint16, message string, kind ErrorKind) {
	errPkt := Encode(Error{Code: code, Message: ErrorMessage(code)})
	if err := s.endpoint.Send(errPkt, s.peer); err != nil {
		logger.Debug("failed to send error packet",
			logger.KeySessionID, s.id,
			logger.KeyError, err.Error())
	}
	s.metrics.packetSent(0)
	s.fail(wireError(kind, code, message, s.peerString()))
}

// rejectOpen maps a stream open failure to a wire error. Errors that
// already carry a wire code keep it; anything else gets the fallback.
func (s *Session) rejectOpen(err error, fallback uint16) {
	code := fallback
	message := err.Error()
	if terr, ok := err.(*TransferError); ok && terr.HasCode {
		code = terr.Code
		message = terr.Message
	}
	errPkt := Encode(Error{Code: code, Message: message})
	if sendErr := s.endpoint.Send(errPkt, s.peer); sendErr != nil {
		logger.Debug("failed to send error packet",
			logger.KeySessionID, s.id,
			logger.KeyError, sendErr.Error())
	}
	s.metrics.packetSent(0)
	s.fail(wireError(KindFilesystem, code, message, s.peerString()))
}

// failOACK reports an option negotiation failure to the peer and
// terminates.
func (s *Session) failOACK(err error) {
	message := "option negotiation failed"
	if terr, ok := err.(*TransferError); ok {
		message = terr.Message
	}
	errPkt := Encode(Error{Code: ErrCodeOptionNegotiation, Message: message})
	if sendErr := s.endpoint.Send(errPkt, s.peer); sendErr != nil {
		logger.Debug("failed to send error packet",
			logger.KeySessionID, s.id,
			logger.KeyError, sendErr.Error())
	}
	s.metrics.packetSent(0)
	s.fail(wireError(KindOption, ErrCodeOptionNegotiation, message, s.peerString()))
}

// fail records the terminal error and moves to Errored.
func (s *Session) fail(err *TransferError) {
	s.termErr = err
	s.state = StateErrored
}

// closeStreams releases the session's streams on every exit path.
func (s *Session) closeStreams() {
	if err := closeStream(s.source); err != nil {
		logger.Warn("failed to close source stream",
			logger.KeySessionID, s.id,
			logger.KeyError, err.Error())
	}
	if err := closeStream(s.sink); err != nil {
		logger.Warn("failed to close sink stream",
			logger.KeySessionID, s.id,
			logger.KeyError, err.Error())
	}
}

// callHook invokes the packet hook, shielding the session from panics
// inside it.
func (s *Session) callHook(pkt Packet) {
	if s.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("packet hook panicked",
				logger.KeySessionID, s.id,
				"panic", r)
		}
	}()
	s.hook(pkt)
}

// logOutcome emits the end-of-transfer log line.
func (s *Session) logOutcome() {
	if s.state == StateFinished {
		logger.Info("transfer finished",
			logger.KeySessionID, s.id,
			logger.KeyPeer, s.peerString(),
			logger.KeyRole, s.role.String(),
			logger.KeyFilename, s.filename,
			logger.KeyBytes, s.metrics.Bytes,
			logger.KeyDurationMs, float64(s.metrics.Duration.Microseconds())/1000.0,
			logger.KeyKbps, s.metrics.Kbps)
		return
	}
	args := []any{
		logger.KeySessionID, s.id,
		logger.KeyPeer, s.peerString(),
		logger.KeyRole, s.role.String(),
		logger.KeyFilename, s.filename,
	}
	if s.termErr != nil {
		args = append(args, logger.KeyError, s.termErr.Error())
	}
	logger.Warn("transfer failed", args...)
}

func (s *Session) peerString() string {
	if s.peer == nil {
		return ""
	}
	return s.peer.String()
}

// payloadLen returns the file payload carried by pkt: DATA payload
// bytes, zero for everything else.
func payloadLen(pkt Packet) int {
	if data, ok := pkt.(Data); ok {
		return len(data.Payload)
	}
	return 0
}

// rawPayloadLen inspects an encoded packet for DATA payload length.
func rawPayloadLen(raw []byte) int {
	if len(raw) >= 4 && Opcode(binary.BigEndian.Uint16(raw[0:2])) == OpDATA {
		return len(raw) - 4
	}
	return 0
}
