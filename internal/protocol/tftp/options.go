package tftp

import (
	"strconv"
	"strings"
)

// Option names honored by negotiation (RFC 2348, RFC 2349). Anything
// else requested by a peer is dropped silently.
const (
	OptionBlksize = "blksize"
	OptionTsize   = "tsize"
)

// Negotiated is the outcome of option negotiation for one session.
type Negotiated struct {
	// Echo is the option subset to send back in the OACK, with the
	// requester's name casing preserved. Empty means negotiation is
	// skipped and the transfer runs as plain RFC 1350.
	Echo Options

	// Blksize in effect for the transfer.
	Blksize int

	// Tsize is the transfer size learned during negotiation. Valid
	// only when HasTsize is set. On the server side of a read request
	// this is the size reported to the client; on the write side it is
	// the client's advisory declaration.
	Tsize    int64
	HasTsize bool
}

// RequestOptions builds the option list a client sends with its
// request. A zero tsize on a read request asks the server for the file
// size; on a write request it declares the upload size. Pass tsize < 0
// to omit the option, blksize <= 0 to skip blksize.
func RequestOptions(blksize int, tsize int64) Options {
	var opts Options
	if blksize > 0 && blksize != DefaultBlksize {
		if blksize < MinBlksize {
			blksize = MinBlksize
		}
		if blksize > MaxBlksize {
			blksize = MaxBlksize
		}
		opts = append(opts, Option{Name: OptionBlksize, Value: strconv.Itoa(blksize)})
	}
	if tsize >= 0 {
		opts = append(opts, Option{Name: OptionTsize, Value: strconv.FormatInt(tsize, 10)})
	}
	return opts
}

// NegotiateServer applies the server-side option policy to a request.
//
// isRead selects the role-dependent tsize semantics: for a read request
// a tsize of 0 asks for the actual file size (fileSize, pass a negative
// value when unknown); for a write request the client's declared size is
// echoed back unchanged. maxBlksize caps the accepted block size; pass
// 0 to allow the full RFC 2348 range.
func NegotiateServer(requested Options, isRead bool, fileSize int64, maxBlksize int) Negotiated {
	result := Negotiated{Blksize: DefaultBlksize}
	if maxBlksize <= 0 || maxBlksize > MaxBlksize {
		maxBlksize = MaxBlksize
	}

	for _, name := range requestedNames(requested) {
		value, _ := requested.Get(name)
		switch strings.ToLower(name) {
		case OptionBlksize:
			size, ok := parseBlksize(value)
			if !ok {
				continue
			}
			if size > maxBlksize {
				size = maxBlksize
			}
			result.Blksize = size
			result.Echo = append(result.Echo, Option{Name: name, Value: strconv.Itoa(size)})

		case OptionTsize:
			declared, err := strconv.ParseInt(value, 10, 64)
			if err != nil || declared < 0 {
				continue
			}
			if isRead {
				if declared == 0 {
					if fileSize < 0 {
						continue
					}
					declared = fileSize
				}
			}
			result.Tsize = declared
			result.HasTsize = true
			result.Echo = append(result.Echo, Option{Name: name, Value: strconv.FormatInt(declared, 10)})
		}
	}
	return result
}

// ApplyOACK validates a server OACK against the options the client
// requested and returns the negotiated values. Any echoed option the
// client never asked for is an option negotiation error.
func ApplyOACK(oack, requested Options) (Negotiated, error) {
	result := Negotiated{Blksize: DefaultBlksize}

	for _, opt := range oack.uniqueByName() {
		if !requested.Has(opt.Name) {
			return Negotiated{}, wireError(KindOption, ErrCodeOptionNegotiation,
				"server echoed unrequested option "+strconv.Quote(opt.Name), "")
		}
		switch strings.ToLower(opt.Name) {
		case OptionBlksize:
			size, ok := parseBlksize(opt.Value)
			if !ok {
				return Negotiated{}, wireError(KindOption, ErrCodeOptionNegotiation,
					"server echoed invalid blksize "+strconv.Quote(opt.Value), "")
			}
			result.Blksize = size
		case OptionTsize:
			size, err := strconv.ParseInt(opt.Value, 10, 64)
			if err != nil || size < 0 {
				return Negotiated{}, wireError(KindOption, ErrCodeOptionNegotiation,
					"server echoed invalid tsize "+strconv.Quote(opt.Value), "")
			}
			result.Tsize = size
			result.HasTsize = true
		}
	}
	return result, nil
}

// parseBlksize parses a decimal blksize value and clamps it to the
// RFC 2348 range. Unparseable values are rejected, not clamped.
func parseBlksize(value string) (int, bool) {
	size, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	if size < MinBlksize {
		size = MinBlksize
	}
	if size > MaxBlksize {
		size = MaxBlksize
	}
	return size, true
}

// requestedNames returns each distinct option name once, in first
// appearance order, preserving the requester's casing. Get still
// resolves duplicates last-occurrence-wins.
func requestedNames(o Options) []string {
	var names []string
	seen := make(map[string]bool, len(o))
	for _, opt := range o {
		key := strings.ToLower(opt.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, opt.Name)
	}
	return names
}

// uniqueByName collapses duplicate option names, keeping the last value
// and the first-seen casing.
func (o Options) uniqueByName() Options {
	var out Options
	for _, name := range requestedNames(o) {
		value, _ := o.Get(name)
		out = append(out, Option{Name: name, Value: value})
	}
	return out
}
