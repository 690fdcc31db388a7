package protocol

import "bytes"

// Command is a closed enumeration of the Bitcoin message command names
// this codec recognizes. The wire form is 12 ASCII bytes, NUL-padded.
type Command string

// The command set this codec recognizes, lowercase wire names.
const (
	CmdVersion     Command = "version"
	CmdVerAck      Command = "verack"
	CmdAddr        Command = "addr"
	CmdInv         Command = "inv"
	CmdGetData     Command = "getdata"
	CmdNotFound    Command = "notfound"
	CmdGetBlocks   Command = "getblocks"
	CmdGetHeaders  Command = "getheaders"
	CmdTx          Command = "tx"
	CmdBlock       Command = "block"
	CmdHeaders     Command = "headers"
	CmdGetAddr     Command = "getaddr"
	CmdMemPool     Command = "mempool"
	CmdPing        Command = "ping"
	CmdPong        Command = "pong"
	CmdReject      Command = "reject"
	CmdFilterLoad  Command = "filterload"
	CmdFilterAdd   Command = "filteradd"
	CmdFilterClear Command = "filterclear"
	CmdMerkleBlock Command = "merkleblock"
	CmdSendHeaders Command = "sendheaders"
	CmdFeeFilter   Command = "feefilter"
	CmdSendCmpct   Command = "sendcmpct"
	CmdCmpctBlock  Command = "cmpctblock"
	CmdGetBlockTxn Command = "getblocktxn"
	CmdBlockTxn    Command = "blocktxn"
	CmdAlert       Command = "alert"
	CmdCheckOrder  Command = "checkorder"
	CmdSubmitOrder Command = "submitorder"
	CmdReply       Command = "reply"
)

// knownCommands is the closed set used to validate decoded names.
var knownCommands = map[Command]struct{}{
	CmdVersion: {}, CmdVerAck: {}, CmdAddr: {}, CmdInv: {}, CmdGetData: {},
	CmdNotFound: {}, CmdGetBlocks: {}, CmdGetHeaders: {}, CmdTx: {}, CmdBlock: {},
	CmdHeaders: {}, CmdGetAddr: {}, CmdMemPool: {}, CmdPing: {}, CmdPong: {},
	CmdReject: {}, CmdFilterLoad: {}, CmdFilterAdd: {}, CmdFilterClear: {},
	CmdMerkleBlock: {}, CmdSendHeaders: {}, CmdFeeFilter: {}, CmdSendCmpct: {},
	CmdCmpctBlock: {}, CmdGetBlockTxn: {}, CmdBlockTxn: {}, CmdAlert: {},
	CmdCheckOrder: {}, CmdSubmitOrder: {}, CmdReply: {},
}

const commandSize = 12

// Encode writes cmd as 12 ASCII bytes, NUL-padded. Fails if cmd is not a
// member of the closed enum or does not fit in 12 bytes.
func (cmd Command) Encode() ([12]byte, error) {
	var out [12]byte
	if _, ok := knownCommands[cmd]; !ok {
		return out, ErrUnknownCommand
	}
	if len(cmd) > commandSize {
		return out, ErrUnknownCommand
	}
	copy(out[:], cmd)
	return out, nil
}

// DecodeCommand interprets buf up to the first NUL as UTF-8 and looks it
// up in the closed enum.
func DecodeCommand(buf [12]byte) (Command, error) {
	nameBytes := buf[:]
	if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
		nameBytes = nameBytes[:i]
	}
	cmd := Command(string(nameBytes))
	if _, ok := knownCommands[cmd]; !ok {
		return "", ErrUnknownCommand
	}
	return cmd, nil
}
