package transport

import (
	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
)

// MBAPCore implements every non-socket capability of Backend for the MBAP
// framing shared by the TCP and TCP-PI variants. Variant backends embed it
// by value and add Name, Connect, Listen and Clone; cloning the embedding
// struct duplicates the transaction counter along with it.
type MBAPCore struct {
	seq mbap.Sequence
}

func (c *MBAPCore) HeaderLength() int   { return mbap.HeaderLength }
func (c *MBAPCore) ChecksumLength() int { return mbap.ChecksumLength }
func (c *MBAPCore) MaxADULength() int   { return mbap.MaxADULength }

func (c *MBAPCore) ValidateUnitID(id int) error {
	return mbap.ValidateUnitID(id)
}

func (c *MBAPCore) BuildRequestHeader(buf []byte, unitID, function byte, addr, quantity uint16) int {
	return mbap.BuildRequestHeader(buf, c.seq.Next(), unitID, function, addr, quantity)
}

func (c *MBAPCore) BuildResponseHeader(buf []byte, sft mbap.SFT) int {
	return mbap.BuildResponseHeader(buf, sft)
}

func (c *MBAPCore) TransactionID(adu []byte) uint16 {
	return mbap.TransactionID(adu)
}

func (c *MBAPCore) PrepareSend(adu []byte) {
	mbap.PatchLength(adu)
}

func (c *MBAPCore) MetaLength(function byte, msgType mbap.MsgType) int {
	return mbap.MetaLength(function, msgType)
}

func (c *MBAPCore) DataLength(adu []byte, msgType mbap.MsgType) int {
	return mbap.DataLength(adu, msgType)
}

// CheckIntegrity is a no-op for stream transports: the framing state
// machine already guarantees byte-exact message boundaries. Checksum
// verification belongs to transports that need it.
func (c *MBAPCore) CheckIntegrity(adu []byte) (int, error) {
	return len(adu), nil
}

// PreCheckConfirmation rejects a confirmation whose transaction id does
// not equal the outstanding request's. This is a protocol-data error, not
// a transport error: it never triggers link recovery.
func (c *MBAPCore) PreCheckConfirmation(req, rsp []byte) error {
	if rsp[0] != req[0] || rsp[1] != req[1] {
		return &common.TIDMismatchError{
			Got:  mbap.TransactionID(rsp),
			Want: mbap.TransactionID(req),
		}
	}
	return nil
}
