package ton

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/tlb"
)

// 1 TON = 1_000_000_000 nanoTON.
var nanoPerTON = decimal.New(1, 9)

// Transfer is an incoming non-bounced value transfer.
type Transfer struct {
	LT         uint64
	Hash       string
	From       string
	AmountNano *big.Int
	Comment    string
}

// TransferFromTx keeps only incoming internal messages that carry value.
func TransferFromTx(tx *tlb.Transaction) (Transfer, bool) {
	if tx == nil || tx.IO.In == nil {
		return Transfer{}, false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return Transfer{}, false
	}
	if inMsg.Amount.Nano().Sign() <= 0 {
		return Transfer{}, false
	}

	from := ""
	if inMsg.SrcAddr != nil {
		from = inMsg.SrcAddr.String()
	}
	return Transfer{
		LT:         tx.LT,
		Hash:       hex.EncodeToString(tx.Hash),
		From:       from,
		AmountNano: inMsg.Amount.Nano(),
		Comment:    ExtractComment(inMsg),
	}, true
}

// ExtractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// ToNano converts a TON amount to nanoTON, truncating below 1 nano.
func ToNano(amount decimal.Decimal) *big.Int {
	return amount.Mul(nanoPerTON).Truncate(0).BigInt()
}

// ParseNano reads an integer nanoTON string.
func ParseNano(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid nano amount: %q", s)
	}
	return n, nil
}

// FromNano is the inverse of ToNano.
func FromNano(n *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(n, -9)
}
