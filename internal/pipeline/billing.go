package pipeline

import (
	"encoding/json"
	"fmt"
)

// BillingCharge is the payload carried by a billing-class job.
type BillingCharge struct {
	AnalysisJobID int64  `json:"analysis_job_id"`
	AmountCents   int    `json:"amount_cents"`
	Description   string `json:"description"`
}

// EncodeBillingCharge serializes a charge for a billing job payload.
func EncodeBillingCharge(analysisJobID int64, amountCents int, description string) (string, error) {
	encoded, err := json.Marshal(BillingCharge{
		AnalysisJobID: analysisJobID,
		AmountCents:   amountCents,
		Description:   description,
	})
	if err != nil {
		return "", fmt.Errorf("encode billing charge: %w", err)
	}
	return string(encoded), nil
}

// DecodeBillingCharge parses a billing job payload.
func DecodeBillingCharge(payload string) (BillingCharge, error) {
	var charge BillingCharge
	if err := json.Unmarshal([]byte(payload), &charge); err != nil {
		return BillingCharge{}, fmt.Errorf("decode billing charge: %w", err)
	}
	if charge.AmountCents < 0 {
		return BillingCharge{}, fmt.Errorf("billing charge amount %d is negative", charge.AmountCents)
	}
	return charge, nil
}
