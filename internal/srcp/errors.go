package srcp

// WireCode is an SRCP reply code, fixed by the protocol (spec §7 / §8.2).
// Unlike internal/errcode, these are never wrapped or compared to anything
// but themselves — they're what actually goes out on the wire.
type WireCode int

const (
	CodeOKProtocol       WireCode = 201
	CodeOKConnectionMode WireCode = 202
	CodeOKGo             WireCode = 200
	CodeOK               WireCode = 200
	CodeInfo             WireCode = 100

	CodeUnsupportedConnectionMode WireCode = 401
	CodeUnknownCommand            WireCode = 410
	CodeWrongValue                WireCode = 412
	CodeForbidden                 WireCode = 415
	CodeNoData                    WireCode = 416
	CodeTimeout                   WireCode = 417
	CodeListTooShort              WireCode = 419
	CodeUnsupportedDeviceProtocol WireCode = 420
	CodeUnsupportedDevice         WireCode = 421
	CodeUnsupportedOperation      WireCode = 423
)

// wireText is the exact, spec-mandated string that follows the numeric code
// on an ERROR line. Never reworded.
var wireText = map[WireCode]string{
	CodeUnsupportedConnectionMode: "unsupported connection mode",
	CodeUnknownCommand:            "unknown command",
	CodeWrongValue:                "wrong value",
	CodeForbidden:                 "forbidden",
	CodeNoData:                    "no data",
	CodeTimeout:                   "timeout",
	CodeListTooShort:              "list too short",
	CodeUnsupportedDeviceProtocol: "unsupported device protocol",
	CodeUnsupportedDevice:         "unsupported device",
	CodeUnsupportedOperation:      "unsupported operation",
}

// errEvent builds a direct ERROR reply event for one of the fixed wire codes.
func errEvent(code WireCode) *Event {
	return &Event{Code: code, Text: wireText[code]}
}

var (
	errUnsupportedConnectionMode = errEvent(CodeUnsupportedConnectionMode)
	errUnknownCommand            = errEvent(CodeUnknownCommand)
	errWrongValue                = errEvent(CodeWrongValue)
	errForbidden                 = errEvent(CodeForbidden)
	errNoData                    = errEvent(CodeNoData)
	errTimeout                   = errEvent(CodeTimeout)
	errListTooShort              = errEvent(CodeListTooShort)
	errUnsupportedDeviceProtocol = errEvent(CodeUnsupportedDeviceProtocol)
	errUnsupportedDevice         = errEvent(CodeUnsupportedDevice)
	errUnsupportedOperation      = errEvent(CodeUnsupportedOperation)
)
