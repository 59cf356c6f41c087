package bot

import (
	"encoding/json"
	"fmt"
)

// Drafts accumulate flow answers between messages. They are serialized as
// JSON into the session row; the session state tells which draft type the
// payload holds.

// RegistrationDraft collects profile fields during registration.
type RegistrationDraft struct {
	FullName      string `json:"full_name,omitempty"`
	PersonalPhone string `json:"personal_phone,omitempty"`
}

// ReportDraft collects a weighing report. PreviousWeight and the difference
// here are display values only; the store recomputes them at commit time.
type ReportDraft struct {
	TruckNumber      string  `json:"truck_number"`
	DriverName       string  `json:"driver_name"`
	ClientName       string  `json:"client_name,omitempty"`
	PreviousWeight   float64 `json:"previous_weight"`
	CurrentWeight    float64 `json:"current_weight"`
	WeightDifference float64 `json:"weight_difference"`
	PhotoReceived    bool    `json:"photo_received,omitempty"`
	PhotoPath        string  `json:"photo_path,omitempty"`
	PhotoURL         string  `json:"photo_url,omitempty"`
}

// TruckChangeDraft exists for the single-step truck-change flow. It carries
// no accumulated fields; the truck number is validated and committed in one
// message.
type TruckChangeDraft struct{}

func marshalDraft(d any) json.RawMessage {
	b, err := json.Marshal(d)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func decodeRegistrationDraft(raw json.RawMessage) (RegistrationDraft, error) {
	var d RegistrationDraft
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode registration draft: %w", err)
	}
	return d, nil
}

func decodeReportDraft(raw json.RawMessage) (ReportDraft, error) {
	var d ReportDraft
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode report draft: %w", err)
	}
	return d, nil
}
