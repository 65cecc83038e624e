package models

import "time"

// Checklist field defaults applied when a submission omits the field.
const (
	DefaultPop               = "No"
	DefaultScratchFeinguide  = "No"
	DefaultButtonHardness    = "OK"
	DefaultButtonGoingInside = "OK"
	DefaultButtonOnOff       = "OK"
	DefaultCharging          = "OK"
)

// Choices offered by the entry form. Stored values are not restricted to these.
var (
	YesNoChoices = []string{"No", "Yes"}
	OKNGChoices  = []string{"OK", "NG"}
)

// Checklist holds the six per-device inspection attributes.
type Checklist struct {
	Pop               string `json:"pop"`
	ScratchFeinguide  string `json:"scratch_feinguide"`
	ButtonHardness    string `json:"button_hardness"`
	ButtonGoingInside string `json:"button_going_inside"`
	ButtonOnOff       string `json:"button_on_off"`
	Charging          string `json:"charging"`
}

type TestResult struct {
	ID       int64  `json:"id"`
	DeviceNo string `json:"device_no"`
	Checklist
	TestNo     string    `json:"test_no"`
	TestRemark string    `json:"test_remark"`
	OrderID    string    `json:"order_id"`
	NDR        bool      `json:"ndr"`
	TesterID   int64     `json:"tester_id"`
	TesterName string    `json:"tester_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChecklistInput carries checklist values from a submission; nil means absent.
type ChecklistInput struct {
	Pop               *string
	ScratchFeinguide  *string
	ButtonHardness    *string
	ButtonGoingInside *string
	ButtonOnOff       *string
	Charging          *string
}

// WithDefaults resolves absent fields to their defaults.
func (in ChecklistInput) WithDefaults() Checklist {
	return Checklist{
		Pop:               valueOr(in.Pop, DefaultPop),
		ScratchFeinguide:  valueOr(in.ScratchFeinguide, DefaultScratchFeinguide),
		ButtonHardness:    valueOr(in.ButtonHardness, DefaultButtonHardness),
		ButtonGoingInside: valueOr(in.ButtonGoingInside, DefaultButtonGoingInside),
		ButtonOnOff:       valueOr(in.ButtonOnOff, DefaultButtonOnOff),
		Charging:          valueOr(in.Charging, DefaultCharging),
	}
}

// MergeInto overwrites the fields of c that are present in the input.
func (in ChecklistInput) MergeInto(c *Checklist) {
	c.Pop = valueOr(in.Pop, c.Pop)
	c.ScratchFeinguide = valueOr(in.ScratchFeinguide, c.ScratchFeinguide)
	c.ButtonHardness = valueOr(in.ButtonHardness, c.ButtonHardness)
	c.ButtonGoingInside = valueOr(in.ButtonGoingInside, c.ButtonGoingInside)
	c.ButtonOnOff = valueOr(in.ButtonOnOff, c.ButtonOnOff)
	c.Charging = valueOr(in.Charging, c.Charging)
}

// NewTestResult is the input for creating a record.
type NewTestResult struct {
	DeviceNo   string
	TestNo     string
	Checklist  ChecklistInput
	TestRemark string
	OrderID    string
}

// TestResultPatch is a merge update: nil fields keep their stored value.
// NDR is not optional; an update without it clears the flag.
type TestResultPatch struct {
	DeviceNo   *string
	TestNo     *string
	Checklist  ChecklistInput
	TestRemark *string
	OrderID    *string
	NDR        bool
}

// Apply merges the patch into r. ID, tester and creation time are untouched.
func (p TestResultPatch) Apply(r *TestResult) {
	r.DeviceNo = valueOr(p.DeviceNo, r.DeviceNo)
	r.TestNo = valueOr(p.TestNo, r.TestNo)
	p.Checklist.MergeInto(&r.Checklist)
	r.TestRemark = valueOr(p.TestRemark, r.TestRemark)
	r.OrderID = valueOr(p.OrderID, r.OrderID)
	r.NDR = p.NDR
}

// TestResultFilter restricts a query. Zero-valued dimensions are ignored.
// From and To are inclusive.
type TestResultFilter struct {
	DeviceNoContains string
	From             *time.Time
	To               *time.Time
	TesterID         *int64
}

// FilterParams are the raw query-string values behind a TestResultFilter.
type FilterParams struct {
	Start  string
	End    string
	Search string
}

func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
