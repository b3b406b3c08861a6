// Package paycode кодирует и проверяет текстовый код мгновенного платежа:
// TLV-поля в формате EMV плюс CRC16 в хвосте. Пакет чистый, без I/O —
// сетевые вызовы и хранение живут этажом выше.
package paycode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidPayeeKey   = errors.New("payee key must be an email-like address")
	ErrEmptyMerchantName = errors.New("merchant name is empty after normalization")
	ErrEmptyMerchantCity = errors.New("merchant city is empty after normalization")
	ErrPayloadTooLong    = errors.New("encoded payload exceeds maximum length")
)

const (
	tagPayloadFormat  = "00"
	tagMerchantInfo   = "26"
	tagCategoryCode   = "52"
	tagCurrency       = "53"
	tagAmount         = "54"
	tagCountry        = "58"
	tagMerchantName   = "59"
	tagMerchantCity   = "60"
	tagAdditionalData = "62"
	tagChecksum       = "63"

	subTagGUI   = "00"
	subTagKey   = "01"
	subTagTxID  = "05"
	networkGUI  = "BR.GOV.BCB.PIX"
	currencyBRL = "986"
	countryBR   = "BR"

	maxNameLen    = 25
	maxCityLen    = 15
	maxTxIDLen    = 25
	maxKeyLen     = 77
	maxPayloadLen = 512
	minPayloadLen = 50
)

var checksumTail = regexp.MustCompile(`6304[0-9A-F]{4}$`)

// EncodeParams — входные данные кодировщика.
type EncodeParams struct {
	MerchantName  string
	MerchantCity  string
	Amount        float64
	TransactionID string
	PayeeKey      string
}

// Encode собирает текстовый код платёжной инструкции.
// Поля нормализуются и усекаются; ключ получателя должен выглядеть как
// email-адрес. Ошибки возвращаются вызывающему сразу, без повторов.
func Encode(p EncodeParams) (string, error) {
	if !strings.Contains(p.PayeeKey, "@") || len(p.PayeeKey) > maxKeyLen || len(p.PayeeKey) == 0 {
		return "", ErrInvalidPayeeKey
	}

	name := truncate(normalizeText(p.MerchantName), maxNameLen)
	if name == "" {
		return "", ErrEmptyMerchantName
	}
	city := truncate(normalizeText(p.MerchantCity), maxCityLen)
	if city == "" {
		return "", ErrEmptyMerchantCity
	}
	txID := truncate(normalizeID(p.TransactionID), maxTxIDLen)
	if txID == "" {
		txID = "***"
	}

	var b strings.Builder
	b.WriteString(field(tagPayloadFormat, "01"))
	b.WriteString(field(tagMerchantInfo, field(subTagGUI, networkGUI)+field(subTagKey, p.PayeeKey)))
	b.WriteString(field(tagCategoryCode, "0000"))
	b.WriteString(field(tagCurrency, currencyBRL))
	b.WriteString(field(tagAmount, formatAmount(p.Amount)))
	b.WriteString(field(tagCountry, countryBR))
	b.WriteString(field(tagMerchantName, name))
	b.WriteString(field(tagMerchantCity, city))
	b.WriteString(field(tagAdditionalData, field(subTagTxID, txID)))

	// CRC считается по всему коду, включая тег и длину самой контрольной суммы.
	payload := b.String() + tagChecksum + "04"
	code := payload + fmt.Sprintf("%04X", checksum([]byte(payload)))

	if len(code) > maxPayloadLen {
		return "", ErrPayloadTooLong
	}
	return code, nil
}

// Validate проверяет структуру и контрольную сумму кода.
// Возвращает false при любом расхождении и никогда не паникует.
func Validate(code string) bool {
	if len(code) < minPayloadLen {
		return false
	}
	for _, marker := range []string{
		networkGUI,
		tagCurrency + "03" + currencyBRL,
		tagCountry + "02" + countryBR,
		tagAmount,
		tagMerchantName,
		tagMerchantCity,
		tagAdditionalData,
	} {
		if !strings.Contains(code, marker) {
			return false
		}
	}
	if !checksumTail.MatchString(code) {
		return false
	}

	body := code[:len(code)-4]
	want := code[len(code)-4:]
	return fmt.Sprintf("%04X", checksum([]byte(body))) == want
}

// field кодирует одно TLV-поле: <тег><2 цифры длины><значение>.
func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// formatAmount печатает сумму без хвостовых нулей: 35.00 -> "35",
// 35.50 -> "35.5", 35.99 -> "35.99".
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
