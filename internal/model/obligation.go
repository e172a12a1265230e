package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObligationType tags the kind of deadline a reminder tracks.
type ObligationType uint8

const (
	ObligationUnknown ObligationType = iota
	ObligationCalibration
	ObligationRental
	ObligationMaintenance
	ObligationSchedule
)

var obligationTypeNames = map[ObligationType]string{
	ObligationCalibration: "CALIBRATION",
	ObligationRental:      "RENTAL",
	ObligationMaintenance: "MAINTENANCE",
	ObligationSchedule:    "SCHEDULE",
}

var obligationTypesByName = func() map[string]ObligationType {
	m := make(map[string]ObligationType, len(obligationTypeNames))
	for t, name := range obligationTypeNames {
		m[name] = t
	}
	return m
}()

// ObligationTypes lists every known type in declaration order.
func ObligationTypes() []ObligationType {
	return []ObligationType{ObligationCalibration, ObligationRental, ObligationMaintenance, ObligationSchedule}
}

// ParseObligationType maps a tag to its type. Unrecognised tags yield
// ObligationUnknown and false.
func ParseObligationType(raw string) (ObligationType, bool) {
	t, ok := obligationTypesByName[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return ObligationUnknown, false
	}
	return t, true
}

func (t ObligationType) Valid() bool {
	_, ok := obligationTypeNames[t]
	return ok
}

func (t ObligationType) String() string {
	if name, ok := obligationTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

func (t ObligationType) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *ObligationType) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t, _ = ParseObligationType(v)
	case []byte:
		*t, _ = ParseObligationType(string(v))
	case nil:
		*t = ObligationUnknown
	default:
		return fmt.Errorf("scan obligation type: unsupported %T", value)
	}
	return nil
}

func (t ObligationType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ObligationType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := ParseObligationType(raw)
	if !ok {
		return fmt.Errorf("unknown obligation type %q", raw)
	}
	*t = parsed
	return nil
}

// Frequency is the recurrence unit of a recurring obligation.
type Frequency string

const (
	FrequencyNone    Frequency = ""
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// ParseFrequency normalises a frequency tag; empty input means "not recurring".
func ParseFrequency(raw string) (Frequency, error) {
	switch Frequency(strings.ToUpper(strings.TrimSpace(raw))) {
	case FrequencyNone:
		return FrequencyNone, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	case FrequencyYearly:
		return FrequencyYearly, nil
	default:
		return FrequencyNone, fmt.Errorf("unknown frequency %q", raw)
	}
}

// Obligation is the tracked subject a reminder points at: a calibration,
// rental, maintenance window or recurring inventory check.
type Obligation struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	LineageID   string         `gorm:"size:36;uniqueIndex:idx_obligation_lineage_due" json:"lineageId"`
	Kind        ObligationType `gorm:"type:varchar(16);index" json:"kind"`
	Title       string         `json:"title"`
	DueDate     *time.Time     `gorm:"uniqueIndex:idx_obligation_lineage_due" json:"dueDate,omitempty"`
	OwnerUserID string         `gorm:"size:36;index" json:"ownerUserId,omitempty"`
	NotifyRole  string         `gorm:"size:32" json:"notifyRole,omitempty"`
	IsRecurring bool           `gorm:"default:false" json:"isRecurring"`
	Frequency   Frequency      `gorm:"size:16" json:"frequency,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ObligationRef is the read-only view of an obligation the engine works with.
type ObligationRef struct {
	Kind        ObligationType `json:"kind"`
	ID          string         `json:"id"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	OwnerUserID string         `json:"ownerUserId,omitempty"`
}

func (o Obligation) Ref() ObligationRef {
	return ObligationRef{Kind: o.Kind, ID: o.ID, DueDate: o.DueDate, OwnerUserID: o.OwnerUserID}
}
