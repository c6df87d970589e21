package testutil

import (
	"testing"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/xuri/excelize/v2"
)

// TrialBalanceJSON is a two-account report in the JSON shape Zoho returns.
const TrialBalanceJSON = `{"code":0,"message":"success","trialbalance":[
	{"name":"Cash","account_code":"1000","net_debit_total":1250,"net_credit_total":0},
	{"name":"Sales","account_code":"4000","net_debit_total":0,"net_credit_total":1250}
]}`

// ErrorEnvelopeJSON is an upstream error body served with status 200.
const ErrorEnvelopeJSON = `{"code":14,"message":"Invalid value passed for organization_id"}`

// JSONPayload wraps body as a JSON response.
func JSONPayload(body string) model.RawPayload {
	return model.RawPayload{ContentType: "application/json;charset=UTF-8", Body: []byte(body)}
}

// SpreadsheetPayload builds an XLSX response with a title row above the
// header, as the report export renders it. rows follow the header
// Account, Account Code, Debit, Credit.
func SpreadsheetPayload(t *testing.T, rows ...[]any) model.RawPayload {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	data := append([][]any{{"Trial Balance"}, {"Account", "Account Code", "Debit", "Credit"}}, rows...)
	for i := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("failed to name cell: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &data[i]); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	return model.RawPayload{
		ContentType:        "application/octet-stream",
		ContentDisposition: `attachment; filename="trial_balance.xlsx"`,
		Body:               buf.Bytes(),
	}
}
