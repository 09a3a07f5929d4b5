package srcp

import (
	"strconv"
	"strings"
)

// tokenize splits a line on runs of spaces, treating a double-quoted
// substring as one token (quotes stripped) and discarding any byte below
// 0x20 so a malformed client can't inject control characters into the
// in-process record.
func tokenize(line string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	haveTok := false

	flush := func() {
		if haveTok {
			out = append(out, cur.String())
			cur.Reset()
			haveTok = false
		}
	}

	for _, r := range line {
		switch {
		case r < 0x20:
			continue
		case r == '"':
			inQuote = !inQuote
			haveTok = true
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
			haveTok = true
		}
	}
	flush()
	return out
}

var verbNames = map[string]Verb{
	"GET":    VerbGet,
	"SET":    VerbSet,
	"INIT":   VerbInit,
	"TERM":   VerbTerm,
	"VERIFY": VerbVerify,
}

var deviceNames = map[string]Kind{
	"POWER": KindPower,
	"GL":    KindGL,
	"GA":    KindGA,
	"FB":    KindFB,
	"SM":    KindSM,
}

// Parse turns one command-mode line into a Command, or reports the ERROR
// event the session should send back (spec §7, layer 1: parse errors never
// propagate past the socket).
func Parse(line string) (*Command, *Event) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return nil, errUnknownCommand
	}

	verb, ok := verbNames[strings.ToUpper(toks[0])]
	if !ok {
		return nil, errUnknownCommand
	}

	if len(toks) < 3 {
		return nil, errListTooShort
	}

	busNum, err := strconv.Atoi(toks[1])
	if err != nil {
		return nil, errWrongValue
	}

	device, ok := deviceNames[strings.ToUpper(toks[2])]
	if !ok {
		return nil, errUnsupportedDevice
	}

	return &Command{Verb: verb, Bus: busNum, Device: device, Params: toks[3:]}, nil
}

// Serialize renders cmd back to its canonical wire form — upper-case verb
// and device, single-space separated, no trailing newline. Used by the
// round-trip codec test and nowhere in the hot path (commands are carried
// as *Command end to end, never re-serialized for dispatch).
func Serialize(cmd *Command) string {
	parts := []string{cmd.Verb.String(), strconv.Itoa(cmd.Bus), string(cmd.Device)}
	parts = append(parts, cmd.Params...)
	return strings.Join(parts, " ")
}
