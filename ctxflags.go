// SPDX-License-Identifier: Apache-2.0

package gssapi

import "strings"

type ContextFlag uint32

// GSS-API context flags - the same as C bindings for compatibility (RFC 2744 § 3.9.2)
const (
	ContextFlagDeleg     ContextFlag = 1 << iota // delegate credentials
	ContextFlagMutual                            // request remote peer authenticates itself
	ContextFlagReplay                            // enable replay detection for signed/sealed messages
	ContextFlagSequence                          // enable detection of out of sequence signed/sealed messages
	ContextFlagConf                              // confidentiality available
	ContextFlagInteg                             // integrity available
	ContextFlagAnon                              // do not transfer initiator identity to acceptor
	ContextFlagProtReady                         // per-message services available before establishment completes
	ContextFlagTrans                             // context can be exported

	// extensions
	ContextFlagChannelBound ContextFlag = 0x800 // require channel bindings
)

// requestable holds the flags a caller may ask for; the others are reported by the mechanism
const requestable = ContextFlagDeleg | ContextFlagMutual | ContextFlagReplay | ContextFlagSequence |
	ContextFlagConf | ContextFlagInteg | ContextFlagAnon | ContextFlagChannelBound

var flagNames = map[ContextFlag]string{
	ContextFlagDeleg:        "Delegation",
	ContextFlagMutual:       "Mutual authentication",
	ContextFlagReplay:       "Message replay detection",
	ContextFlagSequence:     "Out of sequence message detection",
	ContextFlagConf:         "Confidentiality",
	ContextFlagInteg:        "Integrity",
	ContextFlagAnon:         "Anonymous",
	ContextFlagProtReady:    "Protection ready",
	ContextFlagTrans:        "Transferable",
	ContextFlagChannelBound: "Channel Bindings",
}

// FlagList splits f into its individual flags, lowest bit first.
func FlagList(f ContextFlag) []ContextFlag {
	var fl []ContextFlag
	for f != 0 {
		bit := f & -f
		fl = append(fl, bit)
		f &^= bit
	}

	return fl
}

// FlagName returns a human-readable description of a single context flag.
func FlagName(f ContextFlag) string {
	if name, ok := flagNames[f]; ok {
		return name
	}

	return "Unknown"
}

func (f ContextFlag) String() string {
	fl := FlagList(f)
	names := make([]string, len(fl))
	for i, flag := range fl {
		names[i] = FlagName(flag)
	}

	return strings.Join(names, ", ")
}
