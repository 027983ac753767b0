// Package logparser decodes raw syslog lines carrying an OPNsense/pfSense
// filterlog record into record.Record values. Decoding a single line never
// returns an error for malformed input — a line that is not a filterlog record, or one
// whose CSV payload doesn't fit the grammar, is simply reported as not
// ok, leaving the caller free to skip it and keep streaming.
package logparser

import (
	"strings"
	"time"

	"github.com/opnsense-tools/fwlogstore/record"
)

// baseFields are present on every filterlog record regardless of IP
// version. Index i of baseFields is CSV field i of the payload.
var baseFields = []string{
	"rulenr", "subrulenr", "anchorname", "rid", "interface",
	"reason", "action", "dir", "ipversion",
}

// ipv4Fields continue the positional table for ipversion == "4", starting
// at CSV field 9.
var ipv4Fields = []string{
	"tos", "ecn", "ttl", "id", "offset", "ipflags",
	"protonum", "protoname", "length", "src", "dst",
}

// portFields apply only when protonum identifies TCP or UDP, starting at
// CSV field 20.
var portFields = []string{"srcport", "dstport", "datalen"}

// tcpExtraFields apply only when protonum identifies TCP, starting at CSV
// field 23.
var tcpExtraFields = []string{"tcpflags", "seq", "ack", "urp", "tcpopts"}

// protoNames overrides the numeric protonum field with its name. A
// protonum absent from this table is left as-is (the numeric string
// becomes its own name).
var protoNames = map[string]string{
	"6":   "tcp",
	"17":  "udp",
	"1":   "icmp",
	"112": "carp",
}

// InterfaceLookup resolves a physical interface identifier (e.g. "igb0")
// to an operator-assigned display name (e.g. "WAN"). It reports ok=false
// when no mapping is known, in which case the physical name is used
// as-is. A nil InterfaceLookup is equivalent to one that never resolves.
type InterfaceLookup func(physical string) (display string, ok bool)

// Decode parses a single raw log line. ok is false when the line is not
// a filterlog record, or its payload does not carry a usable action
// field; in neither case is that an error, since a store built over a
// real log file must tolerate interleaved non-filterlog syslog lines.
func Decode(rawLine string, now time.Time, resolveInterface InterfaceLookup) (rec record.Record, ok bool) {
	if !strings.Contains(rawLine, "filterlog") {
		return record.Record{}, false
	}

	tokens := strings.Fields(rawLine)
	if len(tokens) < 4 {
		return record.Record{}, false
	}

	filterlogIdx := -1
	for i, tok := range tokens {
		if strings.Contains(tok, "filterlog") {
			filterlogIdx = i
			break
		}
	}
	if filterlogIdx < 0 || filterlogIdx+1 >= len(tokens) {
		return record.Record{}, false
	}

	payload := strings.Join(tokens[filterlogIdx+1:], " ")
	rawCSV := strings.Split(payload, ",")
	csv := make([]string, len(rawCSV))
	for i, f := range rawCSV {
		csv[i] = strings.TrimSpace(f)
	}

	fields := make(map[string]string, len(baseFields)+len(ipv4Fields)+len(portFields))
	assign(fields, baseFields, csv, 0)

	if fields["ipversion"] == "4" && len(csv) > 9 {
		assign(fields, ipv4Fields, csv, 9)

		protonum := fields["protonum"]
		if protonum == "6" || protonum == "17" {
			assign(fields, portFields, csv, 20)
			if protonum == "6" {
				assign(fields, tcpExtraFields, csv, 23)
			}
		}
	}

	if protonum, has := fields["protonum"]; has {
		if name, known := protoNames[protonum]; known {
			fields["protoname"] = name
		} else {
			fields["protoname"] = protonum
		}
	}

	if fields["action"] == "" {
		return record.Record{}, false
	}

	if phys := fields["interface"]; resolveInterface != nil {
		if display, resolved := resolveInterface(phys); resolved {
			fields["interface_display"] = display
		} else {
			fields["interface_display"] = phys
		}
	} else {
		fields["interface_display"] = fields["interface"]
	}

	return record.Record{
		RawLine:   rawLine,
		Fields:    fields,
		Timestamp: parseTimestamp(tokens, now),
		Host:      record.DefaultHost,
		Digest:    record.DigestOf(rawLine),
	}, true
}

// assign copies csv[start:start+len(names)] into dst under names,
// leaving a name unset if the CSV payload is shorter than the table.
func assign(dst map[string]string, names []string, csv []string, start int) {
	for i, name := range names {
		idx := start + i
		if idx >= len(csv) {
			return
		}
		dst[name] = csv[idx]
	}
}

// parseTimestamp resolves the record timestamp from the leading syslog
// tokens, in three tiers: an ISO8601 single token, a three-token BSD
// "Mon DD HH:MM:SS" form anchored to now's year, or a synthetic fallback
// stamped at now when neither parses.
func parseTimestamp(tokens []string, now time.Time) record.Timestamp {
	if len(tokens) == 0 {
		return record.SyntheticAt(now)
	}

	first := tokens[0]
	if strings.Contains(first, "T") {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, first); err == nil {
				return record.Parsed(t)
			}
		}
		return record.SyntheticAt(now)
	}

	if len(tokens) >= 3 {
		candidate := strings.Join(tokens[:3], " ")
		if t, err := time.Parse("Jan _2 15:04:05", candidate); err == nil {
			return record.Parsed(time.Date(
				now.Year(), t.Month(), t.Day(),
				t.Hour(), t.Minute(), t.Second(), 0,
				now.Location(),
			))
		}
	}

	return record.SyntheticAt(now)
}
