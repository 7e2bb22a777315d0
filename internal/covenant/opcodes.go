// Package covenant implements the Taproot leaf scripts, trees, and forfeit
// primitives of the pool covenant: the CSV claim leaf, the FrozenReceiver
// redeem leaf, and the CHECKSIGFROMSTACK forfeit leaf, plus the taproot
// assembly that ties them into the vUTXO and redeem trees.
package covenant

// Elements tapscript opcodes absent from txscript's Bitcoin-only opcode
// table. Byte values match the Elements introspection opcode range used
// across the ecosystem (0xc4-0xd6); a handful of them are not exercised by
// any single leaf script in this package but are kept here as the
// complete contiguous table, the same way upstream script codecs declare
// the whole local opcode block even when only using a subset of it.
const (
	OP_SHA256INITIALIZE          = 0xc4
	OP_SHA256UPDATE              = 0xc5
	OP_SHA256FINALIZE            = 0xc6
	OP_INSPECTINPUTOUTPOINT      = 0xc7
	OP_INSPECTINPUTASSET         = 0xc8
	OP_INSPECTINPUTVALUE         = 0xc9
	OP_INSPECTINPUTSCRIPTPUBKEY  = 0xca
	OP_INSPECTINPUTSEQUENCE      = 0xcb
	OP_CHECKSIGFROMSTACK         = 0xcc
	OP_PUSHCURRENTINPUTINDEX     = 0xcd
	OP_INSPECTOUTPUTASSET        = 0xce
	OP_INSPECTOUTPUTVALUE        = 0xcf
	OP_INSPECTOUTPUTNONCE        = 0xd0
	OP_INSPECTOUTPUTSCRIPTPUBKEY = 0xd1
	OP_INSPECTVERSION            = 0xd2
	OP_INSPECTLOCKTIME           = 0xd3
	OP_INSPECTNUMINPUTS          = 0xd4
	OP_INSPECTNUMOUTPUTS         = 0xd5
	OP_TXWEIGHT                  = 0xd6
)
