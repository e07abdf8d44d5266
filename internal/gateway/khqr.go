package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// KHQR tags (EMVCo merchant-presented QR as profiled by Bakong)
const (
	tagPayloadFormat     = "00"
	tagPointOfInitiation = "01"
	tagBakongAccount     = "29"
	tagMerchantCategory  = "52"
	tagCurrency          = "53"
	tagAmount            = "54"
	tagCountry           = "58"
	tagMerchantName      = "59"
	tagMerchantCity      = "60"
	tagAdditionalData    = "62"
	tagTimestamp         = "99"
	tagCRC               = "63"

	subtagAccountID  = "00"
	subtagBillNumber = "01"
	subtagCreatedAt  = "00"

	dynamicQR = "12"
)

var khqrCurrencyCodes = map[string]string{
	"USD": "840",
	"KHR": "116",
}

// KHQR is a dynamic (single-use, fixed amount) Bakong payment request
type KHQR struct {
	AccountID    string
	MerchantName string
	MerchantCity string
	Currency     string
	Amount       decimal.Decimal
	BillNumber   string
	CreatedAt    time.Time
}

// Encode renders the QR payload string, CRC included
func (k KHQR) Encode() (string, error) {
	currency, ok := khqrCurrencyCodes[strings.ToUpper(k.Currency)]
	if !ok {
		return "", fmt.Errorf("khqr: unsupported currency %q", k.Currency)
	}
	if k.AccountID == "" {
		return "", fmt.Errorf("khqr: account id is required")
	}
	bill := k.BillNumber
	if len(bill) > 25 {
		bill = bill[:25]
	}

	var b strings.Builder
	b.WriteString(tlv(tagPayloadFormat, "01"))
	b.WriteString(tlv(tagPointOfInitiation, dynamicQR))
	b.WriteString(tlv(tagBakongAccount, tlv(subtagAccountID, k.AccountID)))
	b.WriteString(tlv(tagMerchantCategory, "5999"))
	b.WriteString(tlv(tagCurrency, currency))
	b.WriteString(tlv(tagAmount, formatMajor(k.Amount, k.Currency)))
	b.WriteString(tlv(tagCountry, "KH"))
	b.WriteString(tlv(tagMerchantName, truncate(k.MerchantName, 25)))
	b.WriteString(tlv(tagMerchantCity, truncate(k.MerchantCity, 15)))
	if bill != "" {
		b.WriteString(tlv(tagAdditionalData, tlv(subtagBillNumber, bill)))
	}
	b.WriteString(tlv(tagTimestamp, tlv(subtagCreatedAt, strconv.FormatInt(k.CreatedAt.UnixMilli(), 10))))

	// The checksum covers the CRC tag and length too.
	b.WriteString(tagCRC + "04")
	payload := b.String()
	return payload + fmt.Sprintf("%04X", crc16CCITT([]byte(payload))), nil
}

// KHQRHash is the md5 Bakong indexes transactions by
func KHQRHash(payload string) string {
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// crc16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF)
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range data {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
