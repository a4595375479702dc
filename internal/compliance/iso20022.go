package compliance

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"
)

// Pacs008Namespace 是 FI to FI Customer Credit Transfer 08 版的命名空间。
const Pacs008Namespace = "urn:iso:std:iso:20022:tech:xsd:pacs.008.001.08"

// TransferDetails 是生成 pacs.008 报文所需的交易信息。
type TransferDetails struct {
	TxID     string
	Amount   string
	Currency string
	Debtor   string
	Creditor string
}

type pacs008Document struct {
	XMLName  xml.Name         `xml:"Document"`
	Xmlns    string           `xml:"xmlns,attr"`
	Transfer pacs008CreditTrf `xml:"FIToFICstmrCdtTrf"`
}

type pacs008CreditTrf struct {
	GroupHeader pacs008GroupHeader `xml:"GrpHdr"`
	TxInfo      pacs008TxInfo      `xml:"CdtTrfTxInf"`
}

type pacs008GroupHeader struct {
	MsgID            string `xml:"MsgId"`
	CreationDateTime string `xml:"CreDtTm"`
	NumberOfTxs      int    `xml:"NbOfTxs"`
	SettlementMethod string `xml:"SttlmInf>SttlmMtd"`
}

type pacs008TxInfo struct {
	EndToEndID string        `xml:"PmtId>EndToEndId"`
	TxID       string        `xml:"PmtId>TxId"`
	Amount     pacs008Amount `xml:"IntrBkSttlmAmt"`
	Debtor     string        `xml:"Dbtr>Nm"`
	Creditor   string        `xml:"Cdtr>Nm"`
}

type pacs008Amount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

// BuildPacs008 生成单笔交易的 pacs.008.001.08 报文，MsgId 为 "MSG-" 加交易号，
// 结算方式固定为 CLRG。
func BuildPacs008(d TransferDetails, createdAt time.Time) ([]byte, error) {
	if d.TxID == "" {
		return nil, errors.New("pacs.008 requires a transaction id")
	}
	if d.Amount == "" || d.Currency == "" {
		return nil, errors.New("pacs.008 requires amount and currency")
	}
	doc := pacs008Document{
		Xmlns: Pacs008Namespace,
		Transfer: pacs008CreditTrf{
			GroupHeader: pacs008GroupHeader{
				MsgID:            "MSG-" + d.TxID,
				CreationDateTime: createdAt.UTC().Format(time.RFC3339),
				NumberOfTxs:      1,
				SettlementMethod: "CLRG",
			},
			TxInfo: pacs008TxInfo{
				EndToEndID: d.TxID,
				TxID:       d.TxID,
				Amount:     pacs008Amount{Currency: d.Currency, Value: d.Amount},
				Debtor:     d.Debtor,
				Creditor:   d.Creditor,
			},
		},
	}
	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode pacs.008: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
